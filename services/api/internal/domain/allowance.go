package domain

import "time"

type AllowanceStatus string

const (
	StatusAvailable AllowanceStatus = "AVAILABLE"
	StatusReserved  AllowanceStatus = "RESERVED"
	StatusRetired   AllowanceStatus = "RETIRED"
)

// Allowance is one uniquely serialized ton of carbon offset. Rows are seeded
// once and cycle between AVAILABLE, RESERVED and RETIRED for the life of the
// system; they are never deleted.
type Allowance struct {
	SerialNumber string
	Status       AllowanceStatus
	OrderID      *string
	Wallet       *string
	Message      *string
	TxHash       *string
	RewardTxHash *string
	// Timestamp is the reservation creation time. It drives both the payment
	// timeout and the cleanup timeout, and is cleared when the row is released.
	Timestamp *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
