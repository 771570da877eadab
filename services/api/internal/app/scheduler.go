package app

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	defaultMonitorInterval = 30 * time.Second
	defaultCleanupInterval = 20 * time.Minute
	jobRunTimeout          = 10 * time.Minute
)

// Scheduler drives the transaction monitor and the cleanup sweeper on fixed
// intervals for the life of the process. Started at process startup,
// cancelled cleanly at shutdown; jobs can also be triggered out-of-band.
type Scheduler struct {
	monitor  *MonitorService
	cleanup  *CleanupService
	notifier Notifier
	logger   *log.Logger

	monitorInterval time.Duration
	cleanupInterval time.Duration

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastRun   map[string]time.Time
	startedAt time.Time
}

type SchedulerOption func(*Scheduler)

func WithMonitorInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.monitorInterval = d
		}
	}
}

func WithCleanupInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

func NewScheduler(monitor *MonitorService, cleanup *CleanupService, notifier Notifier, logger *log.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	s := &Scheduler{
		monitor:         monitor,
		cleanup:         cleanup,
		notifier:        notifier,
		logger:          logger,
		monitorInterval: defaultMonitorInterval,
		cleanupInterval: defaultCleanupInterval,
		lastRun:         make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background loops. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Printf("WARN: scheduler already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.startedAt = time.Now().UTC()

	s.wg.Add(2)
	go s.loop(ctx, "monitor_transactions", s.monitorInterval, s.runMonitor)
	go s.loop(ctx, "cleanup_reservations", s.cleanupInterval, s.runCleanup)

	s.logger.Printf("scheduler started monitor_interval=%s cleanup_interval=%s", s.monitorInterval, s.cleanupInterval)
}

// Stop cancels the loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Printf("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, run func(ctx context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, jobRunTimeout)
			run(runCtx)
			cancel()
			s.recordRun(name)
		}
	}
}

func (s *Scheduler) recordRun(name string) {
	s.mu.Lock()
	s.lastRun[name] = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Scheduler) runMonitor(ctx context.Context) {
	if _, err := s.monitor.Tick(ctx); err != nil {
		s.logger.Printf("ERROR: transaction monitoring tick: %v", err)
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	if _, err := s.cleanup.FullSweep(ctx); err != nil {
		s.logger.Printf("ERROR: cleanup sweep: %v", err)
		s.notifier.Notify(ctx, "cleanup_job_failed", map[string]string{
			"error": err.Error(),
		})
	}
}

// RunMonitorNow triggers a reconciliation pass out-of-band.
func (s *Scheduler) RunMonitorNow(ctx context.Context) (MonitorReport, error) {
	report, err := s.monitor.Tick(ctx)
	if err == nil {
		s.recordRun("monitor_transactions")
	}
	return report, err
}

// RunCleanupNow triggers a full cleanup sweep out-of-band.
func (s *Scheduler) RunCleanupNow(ctx context.Context) (FullSweepResult, error) {
	result, err := s.cleanup.FullSweep(ctx)
	if err == nil {
		s.recordRun("cleanup_reservations")
	}
	return result, err
}

// JobStatus describes one scheduled job for the admin surface.
type JobStatus struct {
	Name      string     `json:"name"`
	Interval  string     `json:"interval"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

type SchedulerStatus struct {
	Running   bool           `json:"running"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	Jobs      []JobStatus    `json:"jobs"`
	Stats     InventoryStats `json:"inventory_stats"`
}

func (s *Scheduler) Status(ctx context.Context) (SchedulerStatus, error) {
	stats, err := s.cleanup.Stats(ctx)
	if err != nil {
		return SchedulerStatus{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status := SchedulerStatus{
		Running: s.running,
		Stats:   stats,
	}
	if s.running {
		started := s.startedAt
		status.StartedAt = &started
	}
	for _, job := range []struct {
		name     string
		interval time.Duration
	}{
		{"monitor_transactions", s.monitorInterval},
		{"cleanup_reservations", s.cleanupInterval},
	} {
		js := JobStatus{Name: job.name, Interval: job.interval.String()}
		if last, ok := s.lastRun[job.name]; ok {
			t := last
			js.LastRunAt = &t
		}
		status.Jobs = append(status.Jobs, js)
	}
	return status, nil
}
