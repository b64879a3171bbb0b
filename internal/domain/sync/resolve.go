package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ResolveConflict settles an operation in conflict with one of the three
// policies. The entity head and the operation are updated together.
func (s *Service) ResolveConflict(ctx context.Context, input ResolveInput) (*Operation, error) {
	if !input.Resolution.Valid() {
		return nil, ErrInvalidResolution
	}

	op, err := s.repo.GetOperation(ctx, input.PartnerID, strings.TrimSpace(input.OperationID))
	if err != nil {
		return nil, err
	}
	if op.Status != StatusConflict {
		return nil, ErrNotInConflict
	}

	var merged *Payload
	if input.Resolution == ResolutionMerge {
		payload, err := s.mergedPayload(ctx, *op, input.MergedData)
		if err != nil {
			return nil, err
		}
		merged = &payload
	}

	key := EntityKey{PartnerID: op.PartnerID, EntityType: op.EntityType, EntityID: op.EntityID}

	var resolved Operation
	err = s.withHead(ctx, key, func(tx Repository, head *EntityHead) error {
		now := s.now()
		next := resolvedHead(head, *op, input.Resolution, merged, now)

		var (
			ok  bool
			err error
		)
		if head == nil {
			ok, err = tx.CreateEntityHead(ctx, &next)
		} else {
			ok, err = tx.SwapEntityHead(ctx, &next, head.Version)
		}
		if err != nil {
			return err
		}
		if !ok {
			return errHeadMoved
		}

		updated := *op
		resolution := input.Resolution
		updated.Status = StatusCompleted
		updated.Resolution = &resolution
		if resolvedBy := strings.TrimSpace(input.ResolvedBy); resolvedBy != "" {
			updated.ResolvedBy = &resolvedBy
		}
		updated.ResolvedAt = &now
		if merged != nil {
			updated.MergedData = cloneJSON(merged.Data)
		}
		updated.UpdatedAt = now

		ok, err = tx.UpdateOperation(ctx, &updated, StatusConflict)
		if err != nil {
			return err
		}
		if !ok {
			return errStaleTransition
		}

		resolved = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, errStaleTransition) {
			return nil, ErrNotInConflict
		}
		return nil, err
	}

	s.notifier.Publish(changeEventFor(resolved))
	return &resolved, nil
}

func (s *Service) mergedPayload(ctx context.Context, op Operation, supplied []byte) (Payload, error) {
	raw := supplied
	if len(strings.TrimSpace(string(raw))) == 0 || string(raw) == "null" {
		if s.merger == nil {
			return Payload{}, ErrMergeUnavailable
		}
		out, err := s.merger.Merge(ctx, MergeInput{
			PartnerID:  op.PartnerID,
			EntityType: op.EntityType,
			EntityID:   op.EntityID,
			ServerData: op.ServerData,
			LocalData:  op.LocalData,
		})
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrMergeUnavailable, err)
		}
		raw = out
	}

	payload, err := CanonicalizePayload(raw)
	if err != nil {
		verr := &ValidationError{}
		verr.add("mergedData", "must be a non-empty json value")
		return Payload{}, verr
	}
	return payload, nil
}

// resolvedHead releases one open conflict and sets the accepted state the
// policy selects. server_wins keeps whatever the head currently accepts,
// which is not op.ServerData once another conflict on the entity was
// resolved with local_wins or merge in the meantime.
func resolvedHead(head *EntityHead, op Operation, resolution Resolution, merged *Payload, now time.Time) EntityHead {
	var next EntityHead
	if head == nil {
		next = EntityHead{
			PartnerID:           op.PartnerID,
			EntityType:          op.EntityType,
			EntityID:            op.EntityID,
			AcceptedOperationID: op.ID,
			AcceptedData:        cloneJSON(op.ServerData),
		}
		if payload, err := CanonicalizePayload(op.ServerData); err == nil {
			next.AcceptedHash = payload.Hash
		}
	} else {
		next = *head
		if next.OpenConflicts > 0 {
			next.OpenConflicts--
		}
	}
	next.Version++
	next.UpdatedAt = now

	switch resolution {
	case ResolutionLocalWins:
		next.AcceptedOperationID = op.ID
		next.AcceptedData = cloneJSON(op.Data)
		next.AcceptedHash = op.DataHash
	case ResolutionMerge:
		next.AcceptedOperationID = op.ID
		next.AcceptedData = cloneJSON(merged.Data)
		next.AcceptedHash = merged.Hash
	}

	return next
}
