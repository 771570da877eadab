package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/app"
	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
)

// Reserver is the minimal interface needed to reserve allowances.
type Reserver interface {
	Reserve(ctx context.Context, in app.ReserveInput) (app.ReserveResult, error)
}

// HandleCreateRetirement returns an HTTP handler for reserving allowances.
func HandleCreateRetirement(svc Reserver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createRetirementRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequestBody, "invalid request body")
			return
		}

		res, err := svc.Reserve(r.Context(), app.ReserveInput{
			NumAllowances: req.NumAllowances,
			Wallet:        req.Wallet,
			Message:       req.Message,
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidQuantity):
				writeError(w, http.StatusUnprocessableEntity, codeInvalidQuantity, err.Error())
			case errors.Is(err, domain.ErrInvalidWallet):
				writeError(w, http.StatusUnprocessableEntity, codeInvalidWallet, err.Error())
			case errors.Is(err, domain.ErrInvalidMessage):
				writeError(w, http.StatusUnprocessableEntity, codeInvalidMessage, err.Error())
			case errors.Is(err, domain.ErrInsufficientInventory):
				writeError(w, http.StatusBadRequest, codeInsufficientInventory, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		writeJSON(w, http.StatusCreated, createRetirementResponse{
			OrderID:       res.OrderID,
			NumAllowances: res.NumAllowances,
			Message:       "allowances reserved",
		})
	}
}

type createRetirementRequest struct {
	NumAllowances int    `json:"num_allowances"`
	Message       string `json:"message"`
	Wallet        string `json:"wallet"`
}

type createRetirementResponse struct {
	OrderID       string `json:"order_id"`
	NumAllowances int    `json:"num_allowances"`
	Message       string `json:"message"`
}
