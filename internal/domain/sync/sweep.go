package sync

import (
	"context"
	"errors"
	"fmt"
)

const sweepBatchSize = 100

var errOverdue = errors.New("operation stuck past overdue deadline")

// SweepStale fails operations left in pending or processing longer than the
// overdue window, so they show up as failed and can be retried. It returns
// how many operations it moved.
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	before := s.now().Add(-s.cfg.OverdueAfter)

	stale, err := s.repo.ListStale(ctx, before, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale operations: %w", err)
	}

	swept := 0
	for i := range stale {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		op := stale[i]
		if op.Status != StatusPending && op.Status != StatusProcessing {
			continue
		}
		if s.fail(ctx, &op, op.Status, errOverdue) {
			swept++
			s.notifier.Publish(changeEventFor(op))
		}
	}

	return swept, nil
}
