// Package scheduler runs the periodic background jobs of the ledger service.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/musicschool/ledger/internal/application/reconciliation"
	"github.com/musicschool/ledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

// ErrInvalidConfig is returned when the sweeper configuration is unusable
var ErrInvalidConfig = errors.New("invalid scheduler configuration")

// OverdueMarker moves sent invoices past their due date to OVERDUE
type OverdueMarker interface {
	MarkOverdueInvoices(ctx context.Context, now time.Time, limit int) (*reconciliation.MarkOverdueResult, error)
}

// OverdueSweeper periodically marks overdue invoices
type OverdueSweeper struct {
	marker OverdueMarker
	logger *zap.Logger
	config config.SchedulerConfig
	clock  func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewOverdueSweeper creates a sweeper
func NewOverdueSweeper(marker OverdueMarker, cfg config.SchedulerConfig, logger *zap.Logger) (*OverdueSweeper, error) {
	if cfg.OverdueSweepEnabled && (cfg.OverdueSweepInterval <= 0 || cfg.OverdueSweepBatch <= 0) {
		return nil, ErrInvalidConfig
	}
	return &OverdueSweeper{
		marker: marker,
		logger: logger.Named("overdue-sweeper"),
		config: cfg,
		clock:  time.Now,
	}, nil
}

// SetClock replaces the time source used for the due-date comparison
func (s *OverdueSweeper) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Start launches the sweep loop. The first sweep runs immediately.
func (s *OverdueSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if !s.config.OverdueSweepEnabled {
		s.logger.Info("Overdue sweeper is disabled")
		return nil
	}
	s.isRunning = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Overdue sweeper started",
		zap.Duration("interval", s.config.OverdueSweepInterval),
		zap.Int("batch", s.config.OverdueSweepBatch),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish, or for
// ctx to expire
func (s *OverdueSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Overdue sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Overdue sweeper stop timed out")
		return ctx.Err()
	}
}

func (s *OverdueSweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.OverdueSweepInterval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep marks overdue invoices batch by batch until a batch comes back short
// or marks nothing. Each batch is bounded by the job timeout.
func (s *OverdueSweeper) Sweep(ctx context.Context) reconciliation.MarkOverdueResult {
	var total reconciliation.MarkOverdueResult
	started := time.Now()

	for ctx.Err() == nil {
		result, err := s.sweepBatch(ctx)
		if err != nil {
			s.logger.Error("Overdue sweep failed", zap.Error(err))
			break
		}
		total.Checked += result.Checked
		total.Marked += result.Marked
		total.Failed += result.Failed
		if result.Checked < s.config.OverdueSweepBatch || result.Marked == 0 {
			break
		}
	}

	s.logger.Info("Overdue sweep completed",
		zap.Int("checked", total.Checked),
		zap.Int("marked", total.Marked),
		zap.Int("failed", total.Failed),
		zap.Duration("duration", time.Since(started)),
	)
	return total
}

func (s *OverdueSweeper) sweepBatch(ctx context.Context) (*reconciliation.MarkOverdueResult, error) {
	if s.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.JobTimeout)
		defer cancel()
	}
	return s.marker.MarkOverdueInvoices(ctx, s.clock(), s.config.OverdueSweepBatch)
}
