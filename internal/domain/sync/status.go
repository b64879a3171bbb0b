package sync

import (
	"context"
	"fmt"
)

func (s *Service) Status(ctx context.Context, partnerID string) (*StatusSummary, error) {
	counts, err := s.repo.CountByStatus(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("count operations: %w", err)
	}

	summary := &StatusSummary{
		PendingOperations:    counts[StatusPending],
		ProcessingOperations: counts[StatusProcessing],
		CompletedOperations:  counts[StatusCompleted],
		FailedOperations:     counts[StatusFailed],
		ConflictOperations:   counts[StatusConflict],
	}
	for _, status := range AllStatuses {
		summary.TotalOperations += counts[status]
	}

	summary.OverdueOperations, err = s.repo.CountOverdue(ctx, partnerID, s.now().Add(-s.cfg.OverdueAfter))
	if err != nil {
		return nil, fmt.Errorf("count overdue operations: %w", err)
	}
	summary.ExhaustedOperations, err = s.repo.CountExhausted(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("count exhausted operations: %w", err)
	}

	firstPage := Page{Page: 1, Limit: statusListLimit}
	summary.Pending, _, err = s.repo.ListByStatus(ctx, partnerID, StatusPending, firstPage)
	if err != nil {
		return nil, fmt.Errorf("list pending operations: %w", err)
	}
	summary.Conflicts, _, err = s.repo.ListByStatus(ctx, partnerID, StatusConflict, firstPage)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}

	return summary, nil
}

// ListConflicts pages through the partner's operations awaiting resolution.
func (s *Service) ListConflicts(ctx context.Context, partnerID string, page Page) ([]Operation, int64, error) {
	return s.repo.ListByStatus(ctx, partnerID, StatusConflict, s.NormalizePage(page))
}

// NormalizePage fills in the default page and clamps the page size.
func (s *Service) NormalizePage(page Page) Page {
	if page.Page <= 0 {
		page.Page = 1
	}
	if page.Limit <= 0 {
		page.Limit = s.cfg.DefaultPullLimit
	}
	if page.Limit > s.cfg.MaxPullLimit {
		page.Limit = s.cfg.MaxPullLimit
	}
	return page
}
