package scheduler

import (
	"context"
	"time"

	"partner-sync-go/pkg/logger"
)

type StaleSweeper interface {
	SweepStale(ctx context.Context) (int, error)
}

// Sweeper periodically fails operations stuck in flight so they become
// visible and retryable.
type Sweeper struct {
	target   StaleSweeper
	interval time.Duration
	log      logger.Logger
}

func NewSweeper(target StaleSweeper, interval time.Duration, log logger.Logger) *Sweeper {
	return &Sweeper{
		target:   target,
		interval: interval,
		log:      log,
	}
}

// Run blocks until ctx is done. A non-positive interval disables sweeping.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.log.Info("scheduler.sweep: disabled")
		return nil
	}

	s.log.Info("scheduler.sweep: started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler.sweep: stopped")
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and reports how many operations it failed.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	startedAt := time.Now()

	swept, err := s.target.SweepStale(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return swept
		}
		s.log.InternalError("scheduler.sweep: sweep failed", err, "swept", swept)
		return swept
	}

	if swept > 0 {
		s.log.Info("scheduler.sweep: stale operations failed",
			"swept", swept,
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
	}
	return swept
}
