package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
)

func TestHandleHistory(t *testing.T) {
	t.Parallel()

	completed := []domain.Order{
		{
			ID:            "6f1f4e29-8a3d-4c7a-9b6a-0d2f5f1c9e10",
			Status:        domain.OrderCompleted,
			SerialNumbers: []string{"PR-0001"},
			Wallet:        "0xabc",
			Message:       "for the planet",
			RewardTxHash:  "0xreward",
			CompletedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}

	t.Run("lists retirements with explorer links", func(t *testing.T) {
		t.Parallel()
		svc := &stubRetirementService{orders: completed}

		req := httptest.NewRequest(http.MethodGet, "/retirements/history?limit=5&offset=0", nil)
		rec := httptest.NewRecorder()
		HandleHistory(svc, "https://etherscan.io").ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp historyResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(resp.Retirements) != 1 {
			t.Fatalf("expected 1 retirement, got %d", len(resp.Retirements))
		}
		item := resp.Retirements[0]
		if item.ExplorerURL != "https://etherscan.io/tx/0xreward" {
			t.Fatalf("expected explorer link, got %q", item.ExplorerURL)
		}
		if resp.Limit != 5 || resp.Offset != 0 {
			t.Fatalf("expected paging echoed, got limit=%d offset=%d", resp.Limit, resp.Offset)
		}
	})

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()
		svc := &stubRetirementService{}

		req := httptest.NewRequest(http.MethodGet, "/retirements/history", nil)
		rec := httptest.NewRecorder()
		HandleHistory(svc, "https://etherscan.io").ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp historyResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(resp.Retirements) != 0 {
			t.Fatalf("expected empty list, got %v", resp.Retirements)
		}
	})

	t.Run("malformed paging params fall back to defaults", func(t *testing.T) {
		t.Parallel()
		svc := &stubRetirementService{orders: completed}

		req := httptest.NewRequest(http.MethodGet, "/retirements/history?limit=abc&offset=-", nil)
		rec := httptest.NewRecorder()
		HandleHistory(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("service failure", func(t *testing.T) {
		t.Parallel()
		svc := &stubRetirementService{err: errors.New("boom")}

		req := httptest.NewRequest(http.MethodGet, "/retirements/history", nil)
		rec := httptest.NewRecorder()
		HandleHistory(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/retirements/history", nil)
		rec := httptest.NewRecorder()
		HandleHistory(&stubRetirementService{}, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
	})
}
