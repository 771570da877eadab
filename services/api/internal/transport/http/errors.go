package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed      = "method_not_allowed"
	codeNotFound              = "not_found"
	codeInvalidRequestBody    = "invalid_request_body"
	codeInvalidQuantity       = "invalid_quantity"
	codeInvalidWallet         = "invalid_wallet"
	codeInvalidMessage        = "invalid_message"
	codeInvalidTxHash         = "invalid_tx_hash"
	codeInvalidOrderID        = "invalid_order_id"
	codeInsufficientInventory = "insufficient_inventory"
	codeOrderNotFound         = "order_not_found"
	codeAlreadyConfirmed      = "already_confirmed"
	codeOrderNotReserved      = "order_not_reserved"
	codeTxNotFound            = "tx_not_found"
	codeTxFailed              = "tx_failed"
	codeWrongRecipient        = "wrong_recipient"
	codePaymentTooLow         = "payment_too_low"
	codePaymentTooHigh        = "payment_too_high"
	codeDependencyUnavailable = "dependency_unavailable"
	codeForbidden             = "forbidden"
	codeInternalError         = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
