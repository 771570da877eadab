package http

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/app"
	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
)

func TestHandleConfirmPayment(t *testing.T) {
	t.Parallel()

	validBody := `{"order_id":"6f1f4e29-8a3d-4c7a-9b6a-0d2f5f1c9e10","tx_hash":"0xabc"}`

	tests := []struct {
		name           string
		body           string
		result         app.ConfirmResult
		serviceErr     error
		expectedStatus int
		expectedSubstr string
	}{
		{
			name:           "accepted for processing",
			body:           validBody,
			expectedStatus: http.StatusOK,
			expectedSubstr: `"status":"processing"`,
		},
		{
			name:           "pending transaction",
			body:           validBody,
			result:         app.ConfirmResult{Pending: true},
			expectedStatus: http.StatusAccepted,
			expectedSubstr: `"status":"pending_confirmation"`,
		},
		{
			name:           "invalid json",
			body:           `{"order_id":`,
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "invalid order id",
			body:           validBody,
			serviceErr:     domain.ErrInvalidOrderID,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedSubstr: `"code":"invalid_order_id"`,
		},
		{
			name:           "invalid tx hash",
			body:           validBody,
			serviceErr:     domain.ErrInvalidTxHash,
			expectedStatus: http.StatusUnprocessableEntity,
			expectedSubstr: `"code":"invalid_tx_hash"`,
		},
		{
			name:           "order not found",
			body:           validBody,
			serviceErr:     domain.ErrOrderNotFound,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "already confirmed",
			body:           validBody,
			serviceErr:     domain.ErrAlreadyConfirmed,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: `"code":"already_confirmed"`,
		},
		{
			name:           "order not reserved",
			body:           validBody,
			serviceErr:     domain.ErrOrderNotReserved,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "tx not found on chain",
			body:           validBody,
			serviceErr:     domain.ErrTxNotFound,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: `"code":"tx_not_found"`,
		},
		{
			name:           "tx reverted",
			body:           validBody,
			serviceErr:     domain.ErrTxFailed,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "wrong recipient",
			body:           validBody,
			serviceErr:     domain.ErrWrongRecipient,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: `"code":"wrong_recipient"`,
		},
		{
			name:           "payment too low",
			body:           validBody,
			serviceErr:     domain.ErrPaymentTooLow,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: `"code":"payment_too_low"`,
		},
		{
			name:           "payment too high",
			body:           validBody,
			serviceErr:     domain.ErrPaymentTooHigh,
			expectedStatus: http.StatusBadRequest,
			expectedSubstr: `"code":"payment_too_high"`,
		},
		{
			name:           "rpc unavailable",
			body:           validBody,
			serviceErr:     domain.ErrDependencyUnavailable,
			expectedStatus: http.StatusServiceUnavailable,
			expectedSubstr: `"code":"dependency_unavailable"`,
		},
		{
			name:           "internal error",
			body:           validBody,
			serviceErr:     errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubRetirementService{confirmResult: tt.result, err: tt.serviceErr}

			req := httptest.NewRequest(http.MethodPost, "/retirements/confirm", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()

			HandleConfirmPayment(svc).ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if tt.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Fatalf("expected response to contain %q, got %q", tt.expectedSubstr, rec.Body.String())
			}
		})
	}

	t.Run("method not allowed", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/retirements/confirm", nil)
		rec := httptest.NewRecorder()
		HandleConfirmPayment(&stubRetirementService{}).ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
	})
}
