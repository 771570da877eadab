// Package alert notifies operators about conditions that need manual
// intervention, most importantly a paid order whose reward transfer failed.
// Delivery is fire-and-forget: an unreachable mail server must never abort a
// settlement flow.
package alert

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/clock"
)

const defaultDedupWindow = 30 * time.Minute

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends operator alerts over SMTP, deduplicating repeats of the same
// event so a flapping dependency does not mail operators every tick. The
// dedup history is process-scoped and resets on restart.
type Mailer struct {
	addr        string
	from        string
	to          []string
	auth        smtp.Auth
	logger      *log.Logger
	clock       clock.Clock
	send        sendFunc
	dedupWindow time.Duration

	mu     sync.Mutex
	recent map[string]time.Time
}

type Option func(*Mailer)

func WithDedupWindow(d time.Duration) Option {
	return func(m *Mailer) { m.dedupWindow = d }
}

func WithClock(clk clock.Clock) Option {
	return func(m *Mailer) { m.clock = clk }
}

// withSendFunc swaps the SMTP call in tests.
func withSendFunc(fn sendFunc) Option {
	return func(m *Mailer) { m.send = fn }
}

func NewMailer(addr, from string, to []string, auth smtp.Auth, logger *log.Logger, opts ...Option) *Mailer {
	if logger == nil {
		logger = log.Default()
	}
	m := &Mailer{
		addr:        addr,
		from:        from,
		to:          to,
		auth:        auth,
		logger:      logger,
		clock:       clock.NewSystem(),
		send:        smtp.SendMail,
		dedupWindow: defaultDedupWindow,
		recent:      make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Notify delivers an operator alert. Errors are logged and swallowed.
func (m *Mailer) Notify(ctx context.Context, event string, details map[string]string) {
	key := dedupKey(event, details)
	if m.seenRecently(key) {
		m.logger.Printf("alert suppressed event=%s (duplicate within window)", event)
		return
	}

	subject := fmt.Sprintf("Ultra Civic Alert: %s", strings.ReplaceAll(event, "_", " "))
	body := buildBody(event, details)

	msg := []byte("From: " + m.from + "\r\n" +
		"To: " + strings.Join(m.to, ", ") + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" + body)

	if err := m.send(m.addr, m.auth, m.from, m.to, msg); err != nil {
		m.logger.Printf("ERROR: alert delivery failed event=%s: %v", event, err)
		return
	}
	m.logger.Printf("alert sent event=%s recipients=%d", event, len(m.to))
}

func (m *Mailer) seenRecently(key string) bool {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.recent[key]; ok && now.Sub(last) < m.dedupWindow {
		return true
	}
	m.recent[key] = now
	for k, t := range m.recent {
		if now.Sub(t) >= m.dedupWindow {
			delete(m.recent, k)
		}
	}
	return false
}

func dedupKey(event string, details map[string]string) string {
	return event + "|" + details["order_id"]
}

func buildBody(event string, details map[string]string) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\r\n\r\n", event)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, details[k])
	}
	return b.String()
}

// Nop discards all alerts. Used when SMTP is not configured.
type Nop struct{}

func (Nop) Notify(context.Context, string, map[string]string) {}
