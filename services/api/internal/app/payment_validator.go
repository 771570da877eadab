package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
)

// ChainOracle is the read-only blockchain surface the core consumes.
// Transaction and Receipt return nil (without error) for unknown hashes and
// pending transactions respectively.
type ChainOracle interface {
	Transaction(ctx context.Context, hash string) (*domain.TxInfo, error)
	Receipt(ctx context.Context, hash string) (*domain.TxReceipt, error)
	Confirmation(ctx context.Context, hash string) (domain.Confirmation, error)
}

// PriceQuoter computes the expected payment band for an order size.
type PriceQuoter interface {
	ExpectedPayment(ctx context.Context, numAllowances int) (domain.PaymentQuote, error)
}

type VerdictState int

const (
	VerdictValid VerdictState = iota
	// VerdictPending means the transaction exists but has no receipt yet.
	// Retryable by the caller, explicitly not a failure.
	VerdictPending
)

type Verdict struct {
	State       VerdictState
	PaidWei     *big.Int
	BlockNumber uint64
}

// PaymentValidator decides, synchronously within a confirm request, whether a
// submitted transaction hash constitutes valid payment for an order.
type PaymentValidator struct {
	oracle   ChainOracle
	quoter   PriceQuoter
	treasury string
}

func NewPaymentValidator(oracle ChainOracle, quoter PriceQuoter, treasury string) *PaymentValidator {
	return &PaymentValidator{
		oracle:   oracle,
		quoter:   quoter,
		treasury: treasury,
	}
}

// Validate runs the ordered payment checks, short-circuiting on the first
// failure: hash format, on-chain existence, receipt presence (pending verdict
// when absent), execution success, treasury recipient, and amount within the
// quoted slippage band. Overpayment is rejected as well as underpayment,
// which guards against stale price quotes.
func (v *PaymentValidator) Validate(ctx context.Context, txHash string, numAllowances int) (Verdict, error) {
	if !txHashPattern.MatchString(txHash) {
		return Verdict{}, domain.ErrInvalidTxHash
	}

	tx, err := v.oracle.Transaction(ctx, txHash)
	if err != nil {
		return Verdict{}, fmt.Errorf("look up transaction: %w", err)
	}
	if tx == nil {
		return Verdict{}, domain.ErrTxNotFound
	}

	receipt, err := v.oracle.Receipt(ctx, txHash)
	if err != nil {
		return Verdict{}, fmt.Errorf("look up receipt: %w", err)
	}
	if receipt == nil {
		return Verdict{State: VerdictPending}, nil
	}
	if !receipt.Succeeded {
		return Verdict{}, domain.ErrTxFailed
	}

	if !strings.EqualFold(tx.To, v.treasury) {
		return Verdict{}, domain.ErrWrongRecipient
	}

	quote, err := v.quoter.ExpectedPayment(ctx, numAllowances)
	if err != nil {
		return Verdict{}, fmt.Errorf("quote expected payment: %w", err)
	}
	if tx.ValueWei.Cmp(quote.MinWei) < 0 {
		return Verdict{}, domain.ErrPaymentTooLow
	}
	if tx.ValueWei.Cmp(quote.MaxWei) > 0 {
		return Verdict{}, domain.ErrPaymentTooHigh
	}

	return Verdict{
		State:       VerdictValid,
		PaidWei:     tx.ValueWei,
		BlockNumber: receipt.BlockNumber,
	}, nil
}
