package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/clock"
	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
)

const defaultReservationTimeout = 30 * time.Minute

// stuckMultiplier extends the reservation timeout for orders that recorded a
// payment; they are given the longer window before the sweep reclaims them.
const stuckMultiplier = 2

// CleanupService reclaims reservations abandoned before payment and orders
// stuck mid-settlement beyond the extended window. Both sweeps are idempotent
// and safe to run concurrently with the transaction monitor.
type CleanupService struct {
	repo               AllowanceRepository
	clock              clock.Clock
	logger             *log.Logger
	reservationTimeout time.Duration
}

type CleanupOption func(*CleanupService)

// WithReservationTimeout overrides the reservation timeout. Must agree with
// the monitor's payment timeout.
func WithReservationTimeout(d time.Duration) CleanupOption {
	return func(s *CleanupService) {
		if d > 0 {
			s.reservationTimeout = d
		}
	}
}

func NewCleanupService(repo AllowanceRepository, clk clock.Clock, logger *log.Logger, opts ...CleanupOption) *CleanupService {
	if logger == nil {
		logger = log.Default()
	}
	s := &CleanupService{
		repo:               repo,
		clock:              clk,
		logger:             logger,
		reservationTimeout: defaultReservationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SweepResult struct {
	Released int       `json:"released"`
	Orders   []string  `json:"orders"`
	Cutoff   time.Time `json:"cutoff"`
}

type FullSweepResult struct {
	Expired SweepResult `json:"expired"`
	Stuck   SweepResult `json:"stuck"`
	Total   int         `json:"total_released"`
}

// SweepExpired reclaims reservations older than the reservation timeout,
// regardless of payment state: users who reserved but never paid.
func (s *CleanupService) SweepExpired(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.reservationTimeout)

	orders, released, err := s.repo.ReleaseExpired(ctx, cutoff, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep expired reservations: %w", err)
	}
	if released > 0 {
		s.logger.Printf("cleanup released expired reservations allowances=%d orders=%d cutoff=%s", released, len(orders), cutoff.Format(time.RFC3339))
	}
	return SweepResult{Released: released, Orders: orders, Cutoff: cutoff}, nil
}

// SweepStuck reclaims orders that recorded a payment but were never driven to
// a terminal state within twice the reservation timeout: confirmation
// monitoring itself failed to progress them.
func (s *CleanupService) SweepStuck(ctx context.Context) (SweepResult, error) {
	now := s.clock.Now()
	cutoff := now.Add(-stuckMultiplier * s.reservationTimeout)

	orders, released, err := s.repo.ReleaseStuck(ctx, cutoff, now)
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep stuck transactions: %w", err)
	}
	if released > 0 {
		s.logger.Printf("WARN: cleanup released stuck transactions allowances=%d orders=%d cutoff=%s", released, len(orders), cutoff.Format(time.RFC3339))
	}
	return SweepResult{Released: released, Orders: orders, Cutoff: cutoff}, nil
}

// FullSweep runs both sweeps.
func (s *CleanupService) FullSweep(ctx context.Context) (FullSweepResult, error) {
	expired, err := s.SweepExpired(ctx)
	if err != nil {
		return FullSweepResult{}, err
	}
	stuck, err := s.SweepStuck(ctx)
	if err != nil {
		return FullSweepResult{}, err
	}
	return FullSweepResult{
		Expired: expired,
		Stuck:   stuck,
		Total:   expired.Released + stuck.Released,
	}, nil
}

// InventoryStats reports inventory counts and upcoming sweep candidates.
type InventoryStats struct {
	Available         int `json:"available_allowances"`
	Reserved          int `json:"reserved_allowances"`
	Retired           int `json:"retired_allowances"`
	Total             int `json:"total_allowances"`
	ExpiredCandidates int `json:"expired_reservations"`
	StuckCandidates   int `json:"stuck_transactions"`
}

func (s *CleanupService) Stats(ctx context.Context) (InventoryStats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return InventoryStats{}, fmt.Errorf("count by status: %w", err)
	}

	now := s.clock.Now()
	expired, err := s.repo.CountReclaimable(ctx, now.Add(-s.reservationTimeout), false)
	if err != nil {
		return InventoryStats{}, fmt.Errorf("count expired candidates: %w", err)
	}
	stuck, err := s.repo.CountReclaimable(ctx, now.Add(-stuckMultiplier*s.reservationTimeout), true)
	if err != nil {
		return InventoryStats{}, fmt.Errorf("count stuck candidates: %w", err)
	}

	stats := InventoryStats{
		Available:         counts[domain.StatusAvailable],
		Reserved:          counts[domain.StatusReserved],
		Retired:           counts[domain.StatusRetired],
		ExpiredCandidates: expired,
		StuckCandidates:   stuck,
	}
	stats.Total = stats.Available + stats.Reserved + stats.Retired
	return stats, nil
}
