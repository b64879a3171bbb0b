package sync

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Pull returns the partner's operations changed after input.Since, newest
// first. The window holds the oldest changes after Since so that feeding
// LastSync back as Since never skips a change.
func (s *Service) Pull(ctx context.Context, input PullInput) (*PullResult, error) {
	if strings.TrimSpace(input.PartnerID) == "" {
		verr := &ValidationError{}
		verr.add("partnerId", "is required")
		return nil, verr
	}

	limit := input.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultPullLimit
	}
	if limit > s.cfg.MaxPullLimit {
		limit = s.cfg.MaxPullLimit
	}

	var since *time.Time
	if input.Since != nil {
		value := input.Since.UTC()
		since = &value
	}

	rows, err := s.repo.ListChangedSince(ctx, input.PartnerID, since, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}

	hasMore := len(rows) > limit
	window := rows
	if hasMore {
		window = trimBoundary(rows[:limit], rows[limit].UpdatedAt)
		if len(window) == 0 {
			window, hasMore, err = s.tiedWindow(ctx, input.PartnerID, since, rows[0].UpdatedAt, limit)
			if err != nil {
				return nil, fmt.Errorf("list changes: %w", err)
			}
		}
	}

	result := &PullResult{
		Operations: make([]Operation, 0, len(window)),
		HasMore:    hasMore,
	}
	for i := len(window) - 1; i >= 0; i-- {
		result.Operations = append(result.Operations, window[i])
	}

	switch {
	case len(window) > 0:
		result.LastSync = window[len(window)-1].UpdatedAt
	case since != nil:
		result.LastSync = *since
	default:
		result.LastSync = s.now()
	}

	return result, nil
}

// trimBoundary drops trailing rows sharing next's timestamp, since the
// following pull filters with a strict greater-than. The result is empty
// when every row shares it.
func trimBoundary(window []Operation, next time.Time) []Operation {
	end := len(window)
	for end > 0 && window[end-1].UpdatedAt.Equal(next) {
		end--
	}
	return window[:end]
}

// tiedWindow returns every change stamped at, which is the oldest timestamp
// after since. The window may exceed limit: splitting a group of equal
// timestamps would make the next pull skip the rest of it.
func (s *Service) tiedWindow(ctx context.Context, partnerID string, since *time.Time, at time.Time, limit int) ([]Operation, bool, error) {
	fetch := limit * 2
	for {
		rows, err := s.repo.ListChangedSince(ctx, partnerID, since, fetch+1)
		if err != nil {
			return nil, false, err
		}

		end := 0
		for end < len(rows) && rows[end].UpdatedAt.Equal(at) {
			end++
		}
		if end < len(rows) {
			return rows[:end], true, nil
		}
		if len(rows) <= fetch {
			return rows, false, nil
		}
		fetch *= 2
	}
}
