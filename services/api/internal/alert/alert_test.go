package alert

import (
	"context"
	"errors"
	"io"
	"log"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/clock"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestMailer(clk clock.Clock, opts ...Option) (*Mailer, *[]sentMail) {
	var sent []sentMail
	base := []Option{
		WithClock(clk),
		withSendFunc(func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
			return nil
		}),
	}
	m := NewMailer("mail.example.com:587", "alerts@example.com", []string{"ops@example.com"},
		nil, log.New(io.Discard, "", 0), append(base, opts...)...)
	return m, &sent
}

func TestMailer_Notify(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("delivers a formatted alert", func(t *testing.T) {
		m, sent := newTestMailer(clock.NewFixed(now))

		m.Notify(context.Background(), "token_transfer_failed", map[string]string{
			"order_id": "order-1",
			"wallet":   "0xabc",
		})

		if len(*sent) != 1 {
			t.Fatalf("expected 1 mail, got %d", len(*sent))
		}
		mail := (*sent)[0]
		if mail.addr != "mail.example.com:587" || mail.from != "alerts@example.com" {
			t.Fatalf("unexpected envelope: %+v", mail)
		}
		if !strings.Contains(mail.msg, "Subject: Ultra Civic Alert: token transfer failed") {
			t.Fatalf("expected subject line, got %q", mail.msg)
		}
		if !strings.Contains(mail.msg, "order_id: order-1") || !strings.Contains(mail.msg, "wallet: 0xabc") {
			t.Fatalf("expected details in body, got %q", mail.msg)
		}
	})

	t.Run("duplicate within window is suppressed", func(t *testing.T) {
		m, sent := newTestMailer(clock.NewFixed(now))

		details := map[string]string{"order_id": "order-1"}
		m.Notify(context.Background(), "token_transfer_failed", details)
		m.Notify(context.Background(), "token_transfer_failed", details)

		if len(*sent) != 1 {
			t.Fatalf("expected duplicate suppressed, got %d mails", len(*sent))
		}
	})

	t.Run("different order is not a duplicate", func(t *testing.T) {
		m, sent := newTestMailer(clock.NewFixed(now))

		m.Notify(context.Background(), "token_transfer_failed", map[string]string{"order_id": "order-1"})
		m.Notify(context.Background(), "token_transfer_failed", map[string]string{"order_id": "order-2"})

		if len(*sent) != 2 {
			t.Fatalf("expected both alerts delivered, got %d", len(*sent))
		}
	})

	t.Run("repeat after window is delivered", func(t *testing.T) {
		clk := clock.NewManual(now)
		m, sent := newTestMailer(clk, WithDedupWindow(10*time.Minute))

		details := map[string]string{"order_id": "order-1"}
		m.Notify(context.Background(), "token_transfer_failed", details)
		clk.Advance(11 * time.Minute)
		m.Notify(context.Background(), "token_transfer_failed", details)

		if len(*sent) != 2 {
			t.Fatalf("expected resend after window, got %d mails", len(*sent))
		}
	})

	t.Run("delivery failure is swallowed", func(t *testing.T) {
		m := NewMailer("mail.example.com:587", "alerts@example.com", []string{"ops@example.com"},
			nil, log.New(io.Discard, "", 0),
			WithClock(clock.NewFixed(now)),
			withSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
				return errors.New("smtp down")
			}))

		// Must not panic or propagate.
		m.Notify(context.Background(), "cleanup_job_failed", map[string]string{"error": "boom"})
	})
}
