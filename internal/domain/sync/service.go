package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	MaxBatchOperations int
	MaxAttempts        int
	HeadSwapAttempts   int
	DefaultPullLimit   int
	MaxPullLimit       int
	OverdueAfter       time.Duration
}

type Service struct {
	repo     Repository
	merger   Merger
	notifier Notifier
	cfg      Config

	now   func() time.Time
	newID func() string
}

func NewService(repo Repository, cfg Config, merger Merger, notifier Notifier) *Service {
	if cfg.MaxBatchOperations <= 0 {
		cfg.MaxBatchOperations = DefaultMaxBatchOperations
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.HeadSwapAttempts <= 0 {
		cfg.HeadSwapAttempts = DefaultHeadSwapAttempts
	}
	if cfg.MaxPullLimit <= 0 {
		cfg.MaxPullLimit = MaxPullLimit
	}
	if cfg.DefaultPullLimit <= 0 || cfg.DefaultPullLimit > cfg.MaxPullLimit {
		cfg.DefaultPullLimit = min(DefaultPullLimit, cfg.MaxPullLimit)
	}
	if cfg.OverdueAfter <= 0 {
		cfg.OverdueAfter = DefaultOverdueAfter
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}

	return &Service{
		repo:     repo,
		merger:   merger,
		notifier: notifier,
		cfg:      cfg,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
		newID: func() string {
			return uuid.NewString()
		},
	}
}

// Push validates the whole batch up front, then processes every operation
// independently. A failure on one operation never aborts the others. Once
// validated, the batch runs to completion even if ctx is cancelled, so every
// returned outcome is persisted.
func (s *Service) Push(ctx context.Context, input PushInput) (*PushResult, error) {
	payloads, err := s.validatePush(input)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	batchID := strings.TrimSpace(input.BatchID)
	isBatch := batchID != ""

	sequence := 0
	if isBatch {
		sequence, err = s.repo.MaxSequenceNumber(ctx, input.PartnerID, batchID)
		if err != nil {
			return nil, fmt.Errorf("load batch sequence: %w", err)
		}
	}

	result := &PushResult{
		BatchID:    batchID,
		Operations: make([]OperationOutcome, 0, len(input.Operations)),
	}

	for i, operation := range input.Operations {
		op := Operation{
			ID:               s.newID(),
			PartnerID:        input.PartnerID,
			DeviceID:         strings.TrimSpace(input.DeviceID),
			OperationType:    operation.OperationType,
			EntityType:       operation.EntityType,
			EntityID:         strings.TrimSpace(operation.EntityID),
			Data:             payloads[i].Data,
			DataHash:         payloads[i].Hash,
			Status:           StatusPending,
			BatchID:          batchID,
			SequenceNumber:   1,
			IsBatchOperation: isBatch,
			CanRetry:         false,
			Attempts:         1,
			MaxAttempts:      s.cfg.MaxAttempts,
		}
		if isBatch {
			op.SequenceNumber = sequence + 1
		} else {
			op.BatchID = s.newID()
		}

		outcome := s.intake(ctx, &op)
		if isBatch {
			sequence = op.SequenceNumber
		}
		result.Operations = append(result.Operations, outcome)

		switch outcome.Status {
		case StatusCompleted:
			result.Processed++
		case StatusConflict:
			result.Conflicts++
		default:
			result.Errors++
		}
	}

	return result, nil
}

func (s *Service) validatePush(input PushInput) ([]Payload, error) {
	if len(input.Operations) > s.cfg.MaxBatchOperations {
		return nil, ErrBatchTooLarge
	}

	verr := &ValidationError{}
	if strings.TrimSpace(input.PartnerID) == "" {
		verr.add("partnerId", "is required")
	}
	if batchID := strings.TrimSpace(input.BatchID); batchID != "" {
		if _, err := uuid.Parse(batchID); err != nil {
			verr.add("batchId", "must be a uuid")
		}
	}
	if len(input.Operations) == 0 {
		verr.add("operations", "must not be empty")
		return nil, verr
	}

	payloads := make([]Payload, len(input.Operations))
	for i, operation := range input.Operations {
		prefix := "operations[" + strconv.Itoa(i) + "]."
		if !operation.OperationType.Valid() {
			verr.add(prefix+"operationType", "must be one of create, update, delete, sync")
		}
		if !operation.EntityType.Valid() {
			verr.add(prefix+"entityType", "must be one of order, inventory, payment, customer, product, settings")
		}
		if strings.TrimSpace(operation.EntityID) == "" {
			verr.add(prefix+"entityId", "is required")
		}
		payload, err := CanonicalizePayload(operation.Data)
		if err != nil {
			if errors.Is(err, errEmptyPayload) {
				verr.add(prefix+"data", "is required")
			} else {
				verr.add(prefix+"data", "must be valid json")
			}
			continue
		}
		payloads[i] = payload
	}

	if !verr.empty() {
		return nil, verr
	}
	return payloads, nil
}

// intake persists a fresh operation as pending and runs it to an outcome.
func (s *Service) intake(ctx context.Context, op *Operation) OperationOutcome {
	now := s.now()
	op.CreatedAt = now
	op.UpdatedAt = now

	if err := s.create(ctx, op); err != nil {
		return OperationOutcome{
			OperationID:    op.ID,
			SequenceNumber: op.SequenceNumber,
			Status:         StatusFailed,
			Error:          "operation could not be recorded",
		}
	}

	s.process(ctx, op)
	return outcomeFor(*op)
}

// create inserts op. When a concurrent push into the same batch took op's
// sequence number, op moves past the batch's current highest number.
func (s *Service) create(ctx context.Context, op *Operation) error {
	err := s.repo.CreateOperation(ctx, op)
	for attempt := 1; errors.Is(err, ErrSequenceTaken) && attempt < s.cfg.HeadSwapAttempts; attempt++ {
		highest, lookupErr := s.repo.MaxSequenceNumber(ctx, op.PartnerID, op.BatchID)
		if lookupErr != nil {
			return lookupErr
		}
		op.SequenceNumber = highest + 1
		err = s.repo.CreateOperation(ctx, op)
	}
	return err
}

// process moves a pending operation through processing to its final state.
// op is updated in place with whatever was persisted.
func (s *Service) process(ctx context.Context, op *Operation) {
	next := *op
	next.Status = StatusProcessing
	next.UpdatedAt = s.now()

	ok, err := s.repo.UpdateOperation(ctx, &next, StatusPending)
	if err != nil {
		s.fail(ctx, op, StatusPending, err)
		s.notifier.Publish(changeEventFor(*op))
		return
	}
	if !ok {
		s.reload(ctx, op)
		return
	}
	*op = next

	if err := s.apply(ctx, op); err != nil {
		if errors.Is(err, errStaleTransition) {
			s.reload(ctx, op)
			return
		}
		s.fail(ctx, op, StatusProcessing, err)
	}

	s.notifier.Publish(changeEventFor(*op))
}

// apply runs conflict detection and records the outcome in one transaction,
// compare-and-swapping the entity head so concurrent writers to the same
// entity serialize.
func (s *Service) apply(ctx context.Context, op *Operation) error {
	key := EntityKey{PartnerID: op.PartnerID, EntityType: op.EntityType, EntityID: op.EntityID}

	var applied Operation
	err := s.withHead(ctx, key, func(tx Repository, head *EntityHead) error {
		pending := false
		if head != nil && head.OpenConflicts > 0 {
			var err error
			pending, err = tx.HasOpenConflict(ctx, key, op.DataHash)
			if err != nil {
				return err
			}
		}

		now := s.now()
		decision := detect(head, *op, pending, now)

		if decision.createHead {
			created, err := tx.CreateEntityHead(ctx, &decision.head)
			if err != nil {
				return err
			}
			if !created {
				return errHeadMoved
			}
		} else {
			swapped, err := tx.SwapEntityHead(ctx, &decision.head, head.Version)
			if err != nil {
				return err
			}
			if !swapped {
				return errHeadMoved
			}
		}

		next := *op
		next.Status = decision.status
		next.HasConflict = decision.status == StatusConflict
		next.ConflictType = decision.conflictType
		next.ServerData = decision.serverData
		next.LocalData = nil
		if next.HasConflict {
			next.LocalData = cloneJSON(op.Data)
		}
		next.CanRetry = false
		next.LastError = nil
		next.UpdatedAt = now

		ok, err := tx.UpdateOperation(ctx, &next, StatusProcessing)
		if err != nil {
			return err
		}
		if !ok {
			return errStaleTransition
		}

		applied = next
		return nil
	})
	if err != nil {
		return err
	}

	*op = applied
	return nil
}

// withHead runs fn in a transaction with the entity's current head and
// retries when another writer moved the head first.
func (s *Service) withHead(ctx context.Context, key EntityKey, fn func(tx Repository, head *EntityHead) error) error {
	for attempt := 0; attempt < s.cfg.HeadSwapAttempts; attempt++ {
		err := s.repo.Transaction(ctx, func(tx Repository) error {
			head, err := tx.GetEntityHead(ctx, key)
			if err != nil {
				return err
			}
			return fn(tx, head)
		})
		if !errors.Is(err, errHeadMoved) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("entity %s/%s: %w after %d attempts", key.EntityType, key.EntityID, errHeadMoved, s.cfg.HeadSwapAttempts)
}

// fail records cause on op. The update is conditional on op still being in
// status from; if it is not, op is reloaded instead.
func (s *Service) fail(ctx context.Context, op *Operation, from Status, cause error) bool {
	next := *op
	next.Status = StatusFailed
	next.CanRetry = IsRetryable(cause) && next.Attempts < next.MaxAttempts
	message := cause.Error()
	next.LastError = &message
	next.UpdatedAt = s.now()

	ok, err := s.repo.UpdateOperation(ctx, &next, from)
	if err != nil {
		// Not persisted; the sweeper fails the stored record later.
		*op = next
		return false
	}
	if !ok {
		s.reload(ctx, op)
		return false
	}

	*op = next
	return true
}

func (s *Service) reload(ctx context.Context, op *Operation) {
	current, err := s.repo.GetOperation(ctx, op.PartnerID, op.ID)
	if err != nil {
		return
	}
	*op = *current
}

func (s *Service) GetOperation(ctx context.Context, partnerID, operationID string) (*Operation, error) {
	return s.repo.GetOperation(ctx, partnerID, strings.TrimSpace(operationID))
}

func outcomeFor(op Operation) OperationOutcome {
	outcome := OperationOutcome{
		OperationID:    op.ID,
		SequenceNumber: op.SequenceNumber,
		Status:         op.Status,
	}
	if op.Status == StatusFailed {
		if op.CanRetry {
			outcome.Error = "transient failure, operation can be retried"
		} else {
			outcome.Error = "operation failed permanently"
		}
	}
	return outcome
}
