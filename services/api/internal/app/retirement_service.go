package app

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/clock"
	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
	"github.com/google/uuid"
)

// AllowanceRepository is the storage surface the services mutate the
// allowance inventory through. All multi-row mutations commit atomically.
type AllowanceRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	AcquireAvailable(ctx context.Context, n int) ([]domain.Allowance, error)
	FindByOrder(ctx context.Context, orderID string) ([]domain.Allowance, error)
	Reserve(ctx context.Context, serials []string, orderID, wallet string, message *string, now time.Time) error
	SetTxHash(ctx context.Context, orderID, txHash string, now time.Time) (int64, error)
	ListInFlight(ctx context.Context) ([]domain.Allowance, error)
	Retire(ctx context.Context, orderID, rewardTxHash string, now time.Time) (int64, error)
	Release(ctx context.Context, orderID string, now time.Time) (int64, error)
	ReleaseExpired(ctx context.Context, cutoff, now time.Time) ([]string, int, error)
	ReleaseStuck(ctx context.Context, cutoff, now time.Time) ([]string, int, error)
	CountByStatus(ctx context.Context) (map[domain.AllowanceStatus]int, error)
	CountReclaimable(ctx context.Context, cutoff time.Time, withTxHash bool) (int, error)
	ListCompleted(ctx context.Context, limit, offset int) ([]domain.Order, error)
}

// SettlementTrigger hands a freshly confirmed order to asynchronous
// settlement without holding the HTTP request open.
type SettlementTrigger interface {
	ProcessOrderAsync(orderID string)
}

const (
	maxAllowancesPerOrder = 99
	maxMessageLength      = 100

	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

var (
	walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

type RetirementService struct {
	repo      AllowanceRepository
	validator *PaymentValidator
	monitor   SettlementTrigger
	clock     clock.Clock
}

func NewRetirementService(repo AllowanceRepository, validator *PaymentValidator, monitor SettlementTrigger, clk clock.Clock) *RetirementService {
	return &RetirementService{
		repo:      repo,
		validator: validator,
		monitor:   monitor,
		clock:     clk,
	}
}

type ReserveInput struct {
	NumAllowances int
	Wallet        string
	Message       string
}

type ReserveResult struct {
	OrderID       string
	NumAllowances int
}

// Reserve atomically acquires the requested number of available allowances
// under a fresh order id. If inventory is short the whole acquisition is
// abandoned: the transaction never commits, so no partial reservation is
// observable.
func (s *RetirementService) Reserve(ctx context.Context, in ReserveInput) (ReserveResult, error) {
	if in.NumAllowances < 1 || in.NumAllowances > maxAllowancesPerOrder {
		return ReserveResult{}, domain.ErrInvalidQuantity
	}
	if !walletPattern.MatchString(in.Wallet) {
		return ReserveResult{}, domain.ErrInvalidWallet
	}
	if len(in.Message) > maxMessageLength {
		return ReserveResult{}, domain.ErrInvalidMessage
	}

	orderID := uuid.NewString()
	now := s.clock.Now()

	var message *string
	if in.Message != "" {
		msg := in.Message
		message = &msg
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		rows, err := s.repo.AcquireAvailable(txCtx, in.NumAllowances)
		if err != nil {
			return err
		}
		if len(rows) < in.NumAllowances {
			return domain.ErrInsufficientInventory
		}

		serials := make([]string, 0, len(rows))
		for _, a := range rows {
			serials = append(serials, a.SerialNumber)
		}
		return s.repo.Reserve(txCtx, serials, orderID, normalizeHex(in.Wallet), message, now)
	})
	if err != nil {
		return ReserveResult{}, err
	}

	return ReserveResult{OrderID: orderID, NumAllowances: in.NumAllowances}, nil
}

type ConfirmInput struct {
	OrderID string
	TxHash  string
}

type ConfirmResult struct {
	// Pending means the payment exists but has no receipt yet; the caller
	// should retry. Nothing was persisted on this path.
	Pending bool
}

// Confirm accepts a payment transaction for a pending order. The submitted
// hash is validated synchronously against the chain before anything is
// persisted; only a valid payment records the tx hash and hands the order to
// asynchronous settlement. A prior confirmation is never overwritten.
func (s *RetirementService) Confirm(ctx context.Context, in ConfirmInput) (ConfirmResult, error) {
	if _, err := uuid.Parse(in.OrderID); err != nil {
		return ConfirmResult{}, domain.ErrInvalidOrderID
	}
	if !txHashPattern.MatchString(in.TxHash) {
		return ConfirmResult{}, domain.ErrInvalidTxHash
	}
	txHash := normalizeHex(in.TxHash)

	rows, err := s.repo.FindByOrder(ctx, in.OrderID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if len(rows) == 0 {
		return ConfirmResult{}, domain.ErrOrderNotFound
	}

	first := rows[0]
	if first.TxHash != nil {
		return ConfirmResult{}, domain.ErrAlreadyConfirmed
	}
	if first.Status != domain.StatusReserved {
		return ConfirmResult{}, domain.ErrOrderNotReserved
	}

	verdict, err := s.validator.Validate(ctx, txHash, len(rows))
	if err != nil {
		return ConfirmResult{}, err
	}
	if verdict.State == VerdictPending {
		return ConfirmResult{Pending: true}, nil
	}

	affected, err := s.repo.SetTxHash(ctx, in.OrderID, txHash, s.clock.Now())
	if err != nil {
		return ConfirmResult{}, err
	}
	// A concurrent confirm or monitor tick can win the race between the read
	// above and this write; the storage guard decides.
	if affected == 0 {
		return ConfirmResult{}, domain.ErrAlreadyConfirmed
	}

	s.monitor.ProcessOrderAsync(in.OrderID)
	return ConfirmResult{}, nil
}

// Status computes the derived order view.
func (s *RetirementService) Status(ctx context.Context, orderID string) (domain.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return domain.Order{}, domain.ErrInvalidOrderID
	}
	rows, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return domain.AggregateOrder(rows)
}

// History lists completed orders, most recently retired first.
func (s *RetirementService) History(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListCompleted(ctx, limit, offset)
}

func normalizeHex(s string) string {
	return strings.ToLower(s)
}
