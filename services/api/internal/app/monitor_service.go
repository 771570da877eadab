package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/clock"
	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
)

// TokenDisburser initiates and tracks an asynchronous reward-token transfer.
type TokenDisburser interface {
	Transfer(ctx context.Context, to string, amount int) (domain.TransferTicket, error)
	WaitForCompletion(ctx context.Context, queueID string, maxWait time.Duration) (string, error)
}

// Notifier delivers fire-and-forget operator alerts. Implementations must
// never fail the calling flow.
type Notifier interface {
	Notify(ctx context.Context, event string, details map[string]string)
}

const (
	defaultPaymentTimeout = 30 * time.Minute
	defaultDisburseWait   = 5 * time.Minute
	// Pause before the first settlement attempt after a confirm, giving the
	// payment transaction time to propagate to the RPC node.
	defaultHandoffDelay = 5 * time.Second
	asyncProcessTimeout = 10 * time.Minute
)

// MonitorService reconciles orders that recorded a payment but have not
// reached a terminal state. It is idempotent and re-entrant: the in-flight
// selection (RESERVED with a tx hash) plus guarded state transitions make a
// repeated or concurrent run of the same order a no-op.
type MonitorService struct {
	repo      AllowanceRepository
	oracle    ChainOracle
	disburser TokenDisburser
	notifier  Notifier
	clock     clock.Clock
	logger    *log.Logger

	paymentTimeout time.Duration
	disburseWait   time.Duration
	handoffDelay   time.Duration
}

type MonitorOption func(*MonitorService)

// WithPaymentTimeout bounds how long an order may wait for chain
// confirmation. Must agree with the cleanup sweeper's reservation timeout.
func WithPaymentTimeout(d time.Duration) MonitorOption {
	return func(s *MonitorService) {
		if d > 0 {
			s.paymentTimeout = d
		}
	}
}

func WithDisburseWait(d time.Duration) MonitorOption {
	return func(s *MonitorService) {
		if d > 0 {
			s.disburseWait = d
		}
	}
}

func WithHandoffDelay(d time.Duration) MonitorOption {
	return func(s *MonitorService) {
		if d >= 0 {
			s.handoffDelay = d
		}
	}
}

func NewMonitorService(repo AllowanceRepository, oracle ChainOracle, disburser TokenDisburser, notifier Notifier, clk clock.Clock, logger *log.Logger, opts ...MonitorOption) *MonitorService {
	if logger == nil {
		logger = log.Default()
	}
	s := &MonitorService{
		repo:           repo,
		oracle:         oracle,
		disburser:      disburser,
		notifier:       notifier,
		clock:          clk,
		logger:         logger,
		paymentTimeout: defaultPaymentTimeout,
		disburseWait:   defaultDisburseWait,
		handoffDelay:   defaultHandoffDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MonitorReport summarizes one reconciliation pass.
type MonitorReport struct {
	Checked   int
	Settled   int
	Released  int
	StillWait int
	Parked    int
}

// Tick runs one reconciliation pass over all in-flight orders. Individual
// order failures are logged and do not stop the pass.
func (s *MonitorService) Tick(ctx context.Context) (MonitorReport, error) {
	inflight, err := s.repo.ListInFlight(ctx)
	if err != nil {
		return MonitorReport{}, fmt.Errorf("list in-flight orders: %w", err)
	}

	report := MonitorReport{Checked: len(inflight)}
	if len(inflight) > 0 {
		s.logger.Printf("monitoring in-flight orders count=%d", len(inflight))
	}

	for _, a := range inflight {
		outcome, err := s.processPending(ctx, a)
		if err != nil {
			if a.OrderID != nil {
				s.logger.Printf("ERROR: processing order=%s: %v", *a.OrderID, err)
			}
			continue
		}
		switch outcome {
		case outcomeSettled:
			report.Settled++
		case outcomeReleased:
			report.Released++
		case outcomeParked:
			report.Parked++
		default:
			report.StillWait++
		}
	}
	return report, nil
}

// ProcessOrder reconciles a single order on demand, re-using the same state
// checks as the periodic tick.
func (s *MonitorService) ProcessOrder(ctx context.Context, orderID string) error {
	rows, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return domain.ErrOrderNotFound
	}

	first := rows[0]
	if first.Status != domain.StatusReserved {
		return domain.ErrOrderNotReserved
	}
	if first.TxHash == nil {
		return domain.ErrOrderNotReserved
	}

	_, err = s.processPending(ctx, first)
	return err
}

// ProcessOrderAsync schedules settlement of a freshly confirmed order without
// blocking the caller.
func (s *MonitorService) ProcessOrderAsync(orderID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), asyncProcessTimeout)
		defer cancel()

		if s.handoffDelay > 0 {
			select {
			case <-time.After(s.handoffDelay):
			case <-ctx.Done():
				return
			}
		}
		if err := s.ProcessOrder(ctx, orderID); err != nil {
			s.logger.Printf("WARN: async settlement incomplete order=%s: %v", orderID, err)
		}
	}()
}

type processOutcome int

const (
	outcomeWaiting processOutcome = iota
	outcomeSettled
	outcomeReleased
	outcomeParked
)

func (s *MonitorService) processPending(ctx context.Context, a domain.Allowance) (processOutcome, error) {
	orderID := *a.OrderID
	txHash := *a.TxHash

	// Bounded wait: past the payment timeout the order fails regardless of
	// chain state.
	if s.timedOut(a) {
		s.logger.Printf("order timed out order=%s tx=%s", orderID, txHash)
		return s.release(ctx, orderID, "payment timeout")
	}

	conf, err := s.oracle.Confirmation(ctx, txHash)
	if err != nil {
		return outcomeWaiting, fmt.Errorf("check confirmation: %w", err)
	}

	switch conf {
	case domain.ConfirmationPending:
		return outcomeWaiting, nil
	case domain.ConfirmationFailed:
		s.logger.Printf("payment transaction reverted order=%s tx=%s", orderID, txHash)
		return s.release(ctx, orderID, "payment transaction failed")
	default:
		return s.settle(ctx, orderID)
	}
}

// settle disburses reward tokens and retires the order. A disbursement
// failure after confirmed payment is escalated to operators and the order is
// parked as-is: inventory whose payment was received is never auto-released,
// the extended-timeout sweep is the eventual reclaimer.
func (s *MonitorService) settle(ctx context.Context, orderID string) (processOutcome, error) {
	rows, err := s.repo.FindByOrder(ctx, orderID)
	if err != nil {
		return outcomeWaiting, err
	}
	if len(rows) == 0 {
		return outcomeWaiting, domain.ErrOrderNotFound
	}

	first := rows[0]
	if first.Status != domain.StatusReserved {
		// Another run already drove the order to a terminal state.
		return outcomeWaiting, nil
	}
	if first.Wallet == nil {
		return s.release(ctx, orderID, "missing wallet address")
	}
	wallet := *first.Wallet
	numAllowances := len(rows)

	s.logger.Printf("disbursing tokens order=%s wallet=%s amount=%d", orderID, wallet, numAllowances)

	ticket, err := s.disburser.Transfer(ctx, wallet, numAllowances)
	if err != nil {
		s.park(ctx, orderID, wallet, numAllowances, fmt.Sprintf("token transfer failed: %v", err))
		return outcomeParked, nil
	}

	rewardTxHash := ticket.TxHash
	if ticket.QueueID != "" {
		rewardTxHash, err = s.disburser.WaitForCompletion(ctx, ticket.QueueID, s.disburseWait)
		if err != nil {
			s.park(ctx, orderID, wallet, numAllowances, fmt.Sprintf("token transfer incomplete: %v", err))
			return outcomeParked, nil
		}
	}

	affected, err := s.repo.Retire(ctx, orderID, rewardTxHash, s.clock.Now())
	if err != nil {
		return outcomeWaiting, fmt.Errorf("retire order: %w", err)
	}
	if affected == 0 {
		return outcomeWaiting, nil
	}

	s.logger.Printf("order completed order=%s allowances=%d reward_tx=%s", orderID, affected, rewardTxHash)
	return outcomeSettled, nil
}

// release performs the full rollback to pristine state, recycling inventory.
// The only path back to AVAILABLE after a confirmation was attempted.
func (s *MonitorService) release(ctx context.Context, orderID, reason string) (processOutcome, error) {
	affected, err := s.repo.Release(ctx, orderID, s.clock.Now())
	if err != nil {
		return outcomeWaiting, fmt.Errorf("release order: %w", err)
	}
	if affected > 0 {
		s.logger.Printf("order failed and released order=%s allowances=%d reason=%q", orderID, affected, reason)
	}
	return outcomeReleased, nil
}

// park leaves a paid order reserved and alerts operators. Payment was
// received but the reward could not be delivered; this needs a human, not a
// silent retry loop.
func (s *MonitorService) park(ctx context.Context, orderID, wallet string, numAllowances int, reason string) {
	s.logger.Printf("ERROR: order parked for manual reconciliation order=%s reason=%q", orderID, reason)
	s.notifier.Notify(ctx, "token_transfer_failed", map[string]string{
		"order_id":       orderID,
		"wallet":         wallet,
		"num_allowances": fmt.Sprintf("%d", numAllowances),
		"error":          reason,
	})
}

func (s *MonitorService) timedOut(a domain.Allowance) bool {
	if a.Timestamp == nil {
		return false
	}
	return a.Timestamp.Before(s.clock.Now().Add(-s.paymentTimeout))
}
