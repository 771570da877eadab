package domain

import "errors"

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrInsufficientInventory = errors.New("insufficient allowance inventory")
	ErrInvalidQuantity       = errors.New("invalid allowance quantity")
	ErrInvalidWallet         = errors.New("invalid wallet address")
	ErrInvalidMessage        = errors.New("message too long")
	ErrInvalidTxHash         = errors.New("invalid transaction hash")
	ErrInvalidOrderID        = errors.New("invalid order id")
	ErrAlreadyConfirmed      = errors.New("order already has a payment transaction")
	ErrOrderNotReserved      = errors.New("order is not in reserved status")

	// Payment validation outcomes. Pending is not among them: a transaction
	// awaiting its receipt is a retryable state, not a failure.
	ErrTxNotFound     = errors.New("transaction not found on chain")
	ErrTxFailed       = errors.New("transaction failed on chain")
	ErrWrongRecipient = errors.New("payment sent to wrong recipient")
	ErrPaymentTooLow  = errors.New("payment amount below accepted range")
	ErrPaymentTooHigh = errors.New("payment amount above accepted range")

	ErrDependencyUnavailable = errors.New("external dependency unavailable")
)
