package domain

import "time"

// OrderStatus is derived from the shared fields of an order's member
// allowances; it is never stored.
type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderPaidNotRetired OrderStatus = "paid_but_not_retired"
	OrderCompleted      OrderStatus = "completed"
	OrderError          OrderStatus = "error"
)

// Order is the query-time aggregation of allowances sharing an order id.
// All members move together, so the first row is representative.
type Order struct {
	ID            string
	Status        OrderStatus
	SerialNumbers []string
	Wallet        string
	Message       string
	TxHash        string
	RewardTxHash  string
	CompletedAt   time.Time
}

// AggregateOrder derives the order view for a non-empty set of member rows.
// Serial numbers are only revealed once the order has completed, so the
// allocation is not exposed before finality.
func AggregateOrder(rows []Allowance) (Order, error) {
	if len(rows) == 0 {
		return Order{}, ErrOrderNotFound
	}

	first := rows[0]
	order := Order{
		Status:      deriveStatus(first),
		CompletedAt: first.UpdatedAt,
	}
	if first.OrderID != nil {
		order.ID = *first.OrderID
	}
	if first.Wallet != nil {
		order.Wallet = *first.Wallet
	}
	if first.Message != nil {
		order.Message = *first.Message
	}
	if first.TxHash != nil {
		order.TxHash = *first.TxHash
	}
	if first.RewardTxHash != nil {
		order.RewardTxHash = *first.RewardTxHash
	}
	if order.Status == OrderCompleted {
		order.SerialNumbers = make([]string, 0, len(rows))
		for _, a := range rows {
			order.SerialNumbers = append(order.SerialNumbers, a.SerialNumber)
		}
	}
	return order, nil
}

func deriveStatus(a Allowance) OrderStatus {
	switch a.Status {
	case StatusReserved:
		if a.TxHash != nil {
			return OrderPaidNotRetired
		}
		return OrderPending
	case StatusRetired:
		return OrderCompleted
	default:
		return OrderError
	}
}
