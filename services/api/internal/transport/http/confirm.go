package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/app"
	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
)

// Confirmer is the minimal interface needed to confirm a payment.
type Confirmer interface {
	Confirm(ctx context.Context, in app.ConfirmInput) (app.ConfirmResult, error)
}

// HandleConfirmPayment returns an HTTP handler for submitting a payment
// transaction hash. A payment that is still awaiting its receipt yields 202
// so clients know to retry, distinct from a hard rejection.
func HandleConfirmPayment(svc Confirmer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req confirmPaymentRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequestBody, "invalid request body")
			return
		}

		res, err := svc.Confirm(r.Context(), app.ConfirmInput{
			OrderID: req.OrderID,
			TxHash:  req.TxHash,
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidOrderID):
				writeError(w, http.StatusUnprocessableEntity, codeInvalidOrderID, err.Error())
			case errors.Is(err, domain.ErrInvalidTxHash):
				writeError(w, http.StatusUnprocessableEntity, codeInvalidTxHash, err.Error())
			case errors.Is(err, domain.ErrOrderNotFound):
				writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
			case errors.Is(err, domain.ErrAlreadyConfirmed):
				writeError(w, http.StatusBadRequest, codeAlreadyConfirmed, err.Error())
			case errors.Is(err, domain.ErrOrderNotReserved):
				writeError(w, http.StatusBadRequest, codeOrderNotReserved, err.Error())
			case errors.Is(err, domain.ErrTxNotFound):
				writeError(w, http.StatusBadRequest, codeTxNotFound, err.Error())
			case errors.Is(err, domain.ErrTxFailed):
				writeError(w, http.StatusBadRequest, codeTxFailed, err.Error())
			case errors.Is(err, domain.ErrWrongRecipient):
				writeError(w, http.StatusBadRequest, codeWrongRecipient, err.Error())
			case errors.Is(err, domain.ErrPaymentTooLow):
				writeError(w, http.StatusBadRequest, codePaymentTooLow, err.Error())
			case errors.Is(err, domain.ErrPaymentTooHigh):
				writeError(w, http.StatusBadRequest, codePaymentTooHigh, err.Error())
			case errors.Is(err, domain.ErrDependencyUnavailable):
				writeError(w, http.StatusServiceUnavailable, codeDependencyUnavailable, "blockchain lookup unavailable, retry later")
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		if res.Pending {
			writeJSON(w, http.StatusAccepted, confirmPaymentResponse{
				Status:  "pending_confirmation",
				Message: "transaction is pending confirmation, retry once it is mined",
			})
			return
		}

		writeJSON(w, http.StatusOK, confirmPaymentResponse{
			Status:  "processing",
			Message: "payment confirmation received and is being processed",
		})
	}
}

type confirmPaymentRequest struct {
	OrderID string `json:"order_id"`
	TxHash  string `json:"tx_hash"`
}

type confirmPaymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
