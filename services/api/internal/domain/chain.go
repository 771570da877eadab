package domain

import "math/big"

// Confirmation is the three-way answer a chain oracle gives about a
// transaction: still waiting for a receipt, reverted, or mined successfully.
type Confirmation int

const (
	ConfirmationPending Confirmation = iota
	ConfirmationFailed
	ConfirmationConfirmed
)

func (c Confirmation) String() string {
	switch c {
	case ConfirmationFailed:
		return "failed"
	case ConfirmationConfirmed:
		return "confirmed"
	default:
		return "pending"
	}
}

// TxInfo is the subset of an on-chain transaction the core cares about.
type TxInfo struct {
	Hash     string
	To       string
	ValueWei *big.Int
}

// TxReceipt reports the execution outcome of a mined transaction.
type TxReceipt struct {
	Succeeded   bool
	BlockNumber uint64
	GasUsed     uint64
}

// TransferTicket identifies an asynchronous reward-token transfer. Engines
// that queue work return a QueueID to poll; ones that execute inline return
// the transaction hash directly.
type TransferTicket struct {
	QueueID string
	TxHash  string
}

// PaymentQuote is the acceptable payment band for an order, derived from a
// live price quote plus slippage tolerance in both directions.
type PaymentQuote struct {
	ExpectedWei *big.Int
	MinWei      *big.Int
	MaxWei      *big.Int
	PriceSource string
}
