package sync

import (
	"context"
	"time"
)

type Repository interface {
	Transaction(ctx context.Context, fn func(Repository) error) error

	CreateOperation(ctx context.Context, operation *Operation) error
	GetOperation(ctx context.Context, partnerID, operationID string) (*Operation, error)
	// MaxSequenceNumber returns 0 for an unknown batch.
	MaxSequenceNumber(ctx context.Context, partnerID, batchID string) (int, error)
	// UpdateOperation persists operation only if its stored status is still from.
	UpdateOperation(ctx context.Context, operation *Operation, from Status) (bool, error)

	GetEntityHead(ctx context.Context, key EntityKey) (*EntityHead, error)
	// CreateEntityHead inserts head unless a head for the same key exists.
	CreateEntityHead(ctx context.Context, head *EntityHead) (bool, error)
	// SwapEntityHead stores head only if the stored version equals expectedVersion.
	SwapEntityHead(ctx context.Context, head *EntityHead, expectedVersion int64) (bool, error)

	// HasOpenConflict reports whether an operation in conflict on key
	// carries a payload with dataHash.
	HasOpenConflict(ctx context.Context, key EntityKey, dataHash string) (bool, error)

	ListChangedSince(ctx context.Context, partnerID string, since *time.Time, limit int) ([]Operation, error)
	ListByStatus(ctx context.Context, partnerID string, status Status, page Page) ([]Operation, int64, error)
	CountByStatus(ctx context.Context, partnerID string) (map[Status]int64, error)
	CountOverdue(ctx context.Context, partnerID string, before time.Time) (int64, error)
	CountExhausted(ctx context.Context, partnerID string) (int64, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]Operation, error)
}

// Merger computes merged entity state for the merge resolution policy.
type Merger interface {
	Merge(ctx context.Context, input MergeInput) ([]byte, error)
}

type MergeInput struct {
	PartnerID  string
	EntityType EntityType
	EntityID   string
	ServerData []byte
	LocalData  []byte
}

type Notifier interface {
	Publish(event ChangeEvent)
}

type noopNotifier struct{}

func (noopNotifier) Publish(ChangeEvent) {}
