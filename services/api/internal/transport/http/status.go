package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
)

// StatusReader is the minimal interface needed to query an order.
type StatusReader interface {
	Status(ctx context.Context, orderID string) (domain.Order, error)
}

// HandleOrderStatus returns an HTTP handler for GET /retirements/status/{order_id}.
func HandleOrderStatus(svc StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		orderID, ok := parseStatusPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		order, err := svc.Status(r.Context(), orderID)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidOrderID):
				writeError(w, http.StatusUnprocessableEntity, codeInvalidOrderID, err.Error())
			case errors.Is(err, domain.ErrOrderNotFound):
				writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		writeJSON(w, http.StatusOK, orderView(order))
	}
}

func parseStatusPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != "retirements" || parts[1] != "status" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

type orderResponse struct {
	OrderID       string   `json:"order_id"`
	Status        string   `json:"status"`
	SerialNumbers []string `json:"serial_numbers,omitempty"`
	Message       string   `json:"message,omitempty"`
	TxHash        string   `json:"tx_hash,omitempty"`
	RewardTxHash  string   `json:"reward_tx_hash,omitempty"`
}

func orderView(o domain.Order) orderResponse {
	return orderResponse{
		OrderID:       o.ID,
		Status:        string(o.Status),
		SerialNumbers: o.SerialNumbers,
		Message:       o.Message,
		TxHash:        o.TxHash,
		RewardTxHash:  o.RewardTxHash,
	}
}
