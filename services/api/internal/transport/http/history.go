package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
)

// HistoryReader is the minimal interface needed to list completed orders.
type HistoryReader interface {
	History(ctx context.Context, limit, offset int) ([]domain.Order, error)
}

// HandleHistory returns an HTTP handler for the paginated list of completed
// retirements. Explorer links are derived from the reward transaction hash.
func HandleHistory(svc HistoryReader, explorerBaseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		limit := queryInt(r, "limit", 0)
		offset := queryInt(r, "offset", 0)

		orders, err := svc.History(r.Context(), limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		items := make([]historyItem, 0, len(orders))
		for _, o := range orders {
			item := historyItem{
				OrderID:       o.ID,
				SerialNumbers: o.SerialNumbers,
				Message:       o.Message,
				Wallet:        o.Wallet,
				RewardTxHash:  o.RewardTxHash,
				CompletedAt:   o.CompletedAt,
			}
			if o.RewardTxHash != "" && explorerBaseURL != "" {
				item.ExplorerURL = explorerBaseURL + "/tx/" + o.RewardTxHash
			}
			items = append(items, item)
		}

		writeJSON(w, http.StatusOK, historyResponse{
			Retirements: items,
			Limit:       limit,
			Offset:      offset,
		})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

type historyItem struct {
	OrderID       string    `json:"order_id"`
	SerialNumbers []string  `json:"serial_numbers"`
	Message       string    `json:"message,omitempty"`
	Wallet        string    `json:"wallet"`
	RewardTxHash  string    `json:"reward_tx_hash"`
	ExplorerURL   string    `json:"explorer_url,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

type historyResponse struct {
	Retirements []historyItem `json:"retirements"`
	Limit       int           `json:"limit"`
	Offset      int           `json:"offset"`
}
