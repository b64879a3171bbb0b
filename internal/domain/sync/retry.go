package sync

import (
	"context"
	"strings"
)

// Retry re-queues a failed operation and runs it through the push path
// again, so conflict detection sees the current entity state. Like Push it
// is not interrupted by ctx cancellation.
func (s *Service) Retry(ctx context.Context, input RetryInput) (*Operation, error) {
	ctx = context.WithoutCancel(ctx)
	op, err := s.repo.GetOperation(ctx, input.PartnerID, strings.TrimSpace(input.OperationID))
	if err != nil {
		return nil, err
	}
	if !retryable(*op) {
		return nil, ErrNotRetryable
	}

	next := *op
	next.Status = StatusPending
	next.Attempts++
	next.CanRetry = false
	next.LastError = nil
	next.UpdatedAt = s.now()

	ok, err := s.repo.UpdateOperation(ctx, &next, StatusFailed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRetryable
	}

	s.process(ctx, &next)
	return &next, nil
}

func retryable(op Operation) bool {
	return op.Status == StatusFailed && op.CanRetry && op.Attempts < op.MaxAttempts
}
