package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	syncdomain "partner-sync-go/internal/domain/sync"
)

// PostgresRepository stores the operation log with gorm. The queries stay
// within what both Postgres and SQLite accept, so the embedded store reuses it.
type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Transaction(ctx context.Context, fn func(syncdomain.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PostgresRepository{db: tx})
	})
}

func (r *PostgresRepository) CreateOperation(ctx context.Context, operation *syncdomain.Operation) error {
	return classify(r.db.WithContext(ctx).Create(operation).Error)
}

func (r *PostgresRepository) GetOperation(ctx context.Context, partnerID, operationID string) (*syncdomain.Operation, error) {
	if _, err := uuid.Parse(operationID); err != nil {
		return nil, syncdomain.ErrOperationNotFound
	}

	var operation syncdomain.Operation
	if err := r.db.WithContext(ctx).
		Where("partner_id = ? AND id = ?", partnerID, operationID).
		First(&operation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, syncdomain.ErrOperationNotFound
		}
		return nil, err
	}
	return &operation, nil
}

func (r *PostgresRepository) MaxSequenceNumber(ctx context.Context, partnerID, batchID string) (int, error) {
	var highest int
	err := r.db.WithContext(ctx).
		Model(&syncdomain.Operation{}).
		Select("COALESCE(MAX(sequence_number), 0)").
		Where("partner_id = ? AND batch_id = ?", partnerID, batchID).
		Scan(&highest).Error
	return highest, err
}

func (r *PostgresRepository) UpdateOperation(ctx context.Context, operation *syncdomain.Operation, from syncdomain.Status) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&syncdomain.Operation{}).
		Where("id = ? AND partner_id = ? AND status = ?", operation.ID, operation.PartnerID, from).
		Updates(map[string]interface{}{
			"status":        operation.Status,
			"has_conflict":  operation.HasConflict,
			"conflict_type": operation.ConflictType,
			"server_data":   operation.ServerData,
			"local_data":    operation.LocalData,
			"resolution":    operation.Resolution,
			"resolved_by":   operation.ResolvedBy,
			"resolved_at":   operation.ResolvedAt,
			"merged_data":   operation.MergedData,
			"can_retry":     operation.CanRetry,
			"attempts":      operation.Attempts,
			"last_error":    operation.LastError,
			"updated_at":    operation.UpdatedAt,
		})
	if result.Error != nil {
		return false, classify(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *PostgresRepository) GetEntityHead(ctx context.Context, key syncdomain.EntityKey) (*syncdomain.EntityHead, error) {
	var head syncdomain.EntityHead
	if err := r.db.WithContext(ctx).
		Where("partner_id = ? AND entity_type = ? AND entity_id = ?", key.PartnerID, key.EntityType, key.EntityID).
		First(&head).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &head, nil
}

func (r *PostgresRepository) CreateEntityHead(ctx context.Context, head *syncdomain.EntityHead) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "partner_id"},
				{Name: "entity_type"},
				{Name: "entity_id"},
			},
			DoNothing: true,
		}).
		Create(head)
	if result.Error != nil {
		return false, classify(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *PostgresRepository) SwapEntityHead(ctx context.Context, head *syncdomain.EntityHead, expectedVersion int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&syncdomain.EntityHead{}).
		Where("partner_id = ? AND entity_type = ? AND entity_id = ? AND version = ?",
			head.PartnerID, head.EntityType, head.EntityID, expectedVersion).
		Updates(map[string]interface{}{
			"accepted_operation_id": head.AcceptedOperationID,
			"accepted_data":         head.AcceptedData,
			"accepted_hash":         head.AcceptedHash,
			"open_conflicts":        head.OpenConflicts,
			"version":               head.Version,
			"updated_at":            head.UpdatedAt,
		})
	if result.Error != nil {
		return false, classify(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *PostgresRepository) HasOpenConflict(ctx context.Context, key syncdomain.EntityKey, dataHash string) (bool, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&syncdomain.Operation{}).
		Where("partner_id = ? AND entity_type = ? AND entity_id = ? AND status = ? AND data_hash = ?",
			key.PartnerID, key.EntityType, key.EntityID, syncdomain.StatusConflict, dataHash).
		Count(&total).Error
	return total > 0, err
}

func (r *PostgresRepository) ListChangedSince(ctx context.Context, partnerID string, since *time.Time, limit int) ([]syncdomain.Operation, error) {
	query := r.db.WithContext(ctx).Where("partner_id = ?", partnerID)
	if since != nil {
		query = query.Where("updated_at > ?", *since)
	}

	var operations []syncdomain.Operation
	if err := query.
		Order("updated_at asc, id asc").
		Limit(limit).
		Find(&operations).Error; err != nil {
		return nil, err
	}
	return operations, nil
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, partnerID string, status syncdomain.Status, page syncdomain.Page) ([]syncdomain.Operation, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&syncdomain.Operation{}).
		Where("partner_id = ? AND status = ?", partnerID, status)

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("updated_at asc, id asc")
	if page.Limit > 0 {
		query = query.Limit(page.Limit)
	}
	if offset := page.Offset(); offset > 0 {
		query = query.Offset(offset)
	}

	var operations []syncdomain.Operation
	if err := query.Find(&operations).Error; err != nil {
		return nil, 0, err
	}
	return operations, total, nil
}

func (r *PostgresRepository) CountByStatus(ctx context.Context, partnerID string) (map[syncdomain.Status]int64, error) {
	type row struct {
		Status syncdomain.Status
		Total  int64
	}

	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&syncdomain.Operation{}).
		Select("status, COUNT(*) AS total").
		Where("partner_id = ?", partnerID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[syncdomain.Status]int64, len(rows))
	for _, item := range rows {
		counts[item.Status] = item.Total
	}
	return counts, nil
}

func (r *PostgresRepository) CountOverdue(ctx context.Context, partnerID string, before time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&syncdomain.Operation{}).
		Where("partner_id = ? AND status IN ? AND updated_at < ?", partnerID, inFlight(), before).
		Count(&total).Error
	return total, err
}

func (r *PostgresRepository) CountExhausted(ctx context.Context, partnerID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&syncdomain.Operation{}).
		Where("partner_id = ? AND status = ? AND can_retry = ?", partnerID, syncdomain.StatusFailed, false).
		Count(&total).Error
	return total, err
}

func (r *PostgresRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]syncdomain.Operation, error) {
	var operations []syncdomain.Operation
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", inFlight(), before).
		Order("updated_at asc, id asc").
		Limit(limit).
		Find(&operations).Error; err != nil {
		return nil, err
	}
	return operations, nil
}

func inFlight() []syncdomain.Status {
	return []syncdomain.Status{syncdomain.StatusPending, syncdomain.StatusProcessing}
}

const (
	uniqueViolation    = "23505"
	batchSequenceIndex = "idx_sync_operations_batch_sequence"
)

// classify marks storage errors that a retry cannot fix as permanent.
// Everything else, such as timeouts, dropped connections or serialization
// failures, stays retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolation && pgErr.ConstraintName == batchSequenceIndex {
			return fmt.Errorf("%w: %v", syncdomain.ErrSequenceTaken, err)
		}
		// 22: data exception, 23: integrity constraint violation.
		if strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23") {
			return fmt.Errorf("%w: %v", syncdomain.ErrPermanent, err)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(liteErr.Error(), ".sequence_number") {
			return fmt.Errorf("%w: %v", syncdomain.ErrSequenceTaken, err)
		}
		switch liteErr.Code {
		case sqlite3.ErrConstraint, sqlite3.ErrMismatch, sqlite3.ErrTooBig:
			return fmt.Errorf("%w: %v", syncdomain.ErrPermanent, err)
		}
	}

	return err
}
