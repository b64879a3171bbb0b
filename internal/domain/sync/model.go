package sync

import (
	"time"

	"gorm.io/datatypes"
)

const (
	DefaultMaxBatchOperations = 100
	DefaultMaxAttempts        = 3
	DefaultHeadSwapAttempts   = 5
	DefaultPullLimit          = 100
	MaxPullLimit              = 1000
	DefaultOverdueAfter       = 5 * time.Minute
	statusListLimit           = 50
)

type OperationType string

const (
	OperationTypeCreate OperationType = "create"
	OperationTypeUpdate OperationType = "update"
	OperationTypeDelete OperationType = "delete"
	OperationTypeSync   OperationType = "sync"
)

func (t OperationType) Valid() bool {
	switch t {
	case OperationTypeCreate, OperationTypeUpdate, OperationTypeDelete, OperationTypeSync:
		return true
	}
	return false
}

type EntityType string

const (
	EntityTypeOrder     EntityType = "order"
	EntityTypeInventory EntityType = "inventory"
	EntityTypePayment   EntityType = "payment"
	EntityTypeCustomer  EntityType = "customer"
	EntityTypeProduct   EntityType = "product"
	EntityTypeSettings  EntityType = "settings"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeOrder, EntityTypeInventory, EntityTypePayment, EntityTypeCustomer, EntityTypeProduct, EntityTypeSettings:
		return true
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusConflict   Status = "conflict"
	StatusFailed     Status = "failed"
)

// AllStatuses lists every state in state machine order.
var AllStatuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusConflict, StatusFailed}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusConflict, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusCompleted || next == StatusConflict || next == StatusFailed
	case StatusConflict:
		return next == StatusCompleted
	case StatusFailed:
		return next == StatusPending
	}
	return false
}

type ConflictType string

const (
	ConflictTypeDataMismatch ConflictType = "data_mismatch"
	ConflictTypeOpenConflict ConflictType = "open_conflict"
)

type Resolution string

const (
	ResolutionLocalWins  Resolution = "local_wins"
	ResolutionServerWins Resolution = "server_wins"
	ResolutionMerge      Resolution = "merge"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionLocalWins, ResolutionServerWins, ResolutionMerge:
		return true
	}
	return false
}

// Operation is one entry of the operation log. Rows are never deleted.
type Operation struct {
	ID               string `gorm:"primaryKey"`
	PartnerID        string
	DeviceID         string
	OperationType    OperationType
	EntityType       EntityType
	EntityID         string
	Data             datatypes.JSON
	DataHash         string
	Status           Status
	HasConflict      bool
	ConflictType     *ConflictType
	ServerData       datatypes.JSON
	LocalData        datatypes.JSON
	Resolution       *Resolution
	ResolvedBy       *string
	ResolvedAt       *time.Time
	MergedData       datatypes.JSON
	BatchID          string
	SequenceNumber   int
	IsBatchOperation bool
	CanRetry         bool
	Attempts         int
	MaxAttempts      int
	LastError        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Operation) TableName() string {
	return "sync_operations"
}

// Exhausted reports whether a failed operation can never be retried again.
func (o Operation) Exhausted() bool {
	return o.Status == StatusFailed && !o.CanRetry
}

type EntityKey struct {
	PartnerID  string
	EntityType EntityType
	EntityID   string
}

// EntityHead is the current accepted state of one entity, the row every
// push and resolution compare-and-swaps on.
type EntityHead struct {
	PartnerID           string     `gorm:"primaryKey"`
	EntityType          EntityType `gorm:"primaryKey"`
	EntityID            string     `gorm:"primaryKey"`
	AcceptedOperationID string
	AcceptedData        datatypes.JSON
	AcceptedHash        string
	OpenConflicts       int
	Version             int64
	UpdatedAt           time.Time
}

func (EntityHead) TableName() string {
	return "sync_entity_heads"
}

func (h EntityHead) Key() EntityKey {
	return EntityKey{PartnerID: h.PartnerID, EntityType: h.EntityType, EntityID: h.EntityID}
}

type OperationInput struct {
	OperationType OperationType
	EntityType    EntityType
	EntityID      string
	Data          []byte
}

type PushInput struct {
	PartnerID  string
	DeviceID   string
	BatchID    string
	Operations []OperationInput
}

type OperationOutcome struct {
	OperationID    string `json:"operationId"`
	SequenceNumber int    `json:"sequenceNumber"`
	Status         Status `json:"status"`
	Error          string `json:"error,omitempty"`
}

type PushResult struct {
	BatchID    string             `json:"batchId,omitempty"`
	Processed  int                `json:"processed"`
	Conflicts  int                `json:"conflicts"`
	Errors     int                `json:"errors"`
	Operations []OperationOutcome `json:"operations"`
}

type PullInput struct {
	PartnerID string
	Since     *time.Time
	Limit     int
}

type PullResult struct {
	Operations []Operation
	LastSync   time.Time
	HasMore    bool
}

type ResolveInput struct {
	PartnerID   string
	OperationID string
	Resolution  Resolution
	ResolvedBy  string
	MergedData  []byte
}

type RetryInput struct {
	PartnerID   string
	OperationID string
}

type Page struct {
	Page  int
	Limit int
}

func (p Page) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

type StatusSummary struct {
	TotalOperations      int64       `json:"totalOperations"`
	PendingOperations    int64       `json:"pendingOperations"`
	ProcessingOperations int64       `json:"processingOperations"`
	CompletedOperations  int64       `json:"completedOperations"`
	FailedOperations     int64       `json:"failedOperations"`
	ConflictOperations   int64       `json:"conflictOperations"`
	OverdueOperations    int64       `json:"overdueOperations"`
	ExhaustedOperations  int64       `json:"exhaustedOperations"`
	Pending              []Operation `json:"-"`
	Conflicts            []Operation `json:"-"`
}

// ChangeEvent announces that an operation of a partner changed state.
type ChangeEvent struct {
	PartnerID   string     `json:"partnerId"`
	OperationID string     `json:"operationId"`
	EntityType  EntityType `json:"entityType"`
	EntityID    string     `json:"entityId"`
	Status      Status     `json:"status"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func changeEventFor(op Operation) ChangeEvent {
	return ChangeEvent{
		PartnerID:   op.PartnerID,
		OperationID: op.ID,
		EntityType:  op.EntityType,
		EntityID:    op.EntityID,
		Status:      op.Status,
		UpdatedAt:   op.UpdatedAt,
	}
}
