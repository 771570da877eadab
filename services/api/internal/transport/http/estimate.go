package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
	"github.com/delvillarfr/le-ultracivic/services/api/internal/pricing"
)

// PaymentEstimator is the minimal interface needed to quote a payment.
type PaymentEstimator interface {
	PaymentEstimate(ctx context.Context, numAllowances int) (pricing.Estimate, error)
}

// HandleEstimate returns an HTTP handler for GET /retirements/estimate/{n}.
func HandleEstimate(svc PaymentEstimator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		n, ok := parseEstimatePath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		estimate, err := svc.PaymentEstimate(r.Context(), n)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidQuantity):
				writeError(w, http.StatusUnprocessableEntity, codeInvalidQuantity, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		writeJSON(w, http.StatusOK, estimate)
	}
}

func parseEstimatePath(path string) (int, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return 0, false
	}
	if parts[0] != "retirements" || parts[1] != "estimate" {
		return 0, false
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
