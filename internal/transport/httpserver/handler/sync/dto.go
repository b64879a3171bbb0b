package sync

import (
	"encoding/json"
	"time"

	syncdomain "partner-sync-go/internal/domain/sync"
)

type pushRequest struct {
	BatchID    string             `json:"batchId"`
	Operations []operationRequest `json:"operations"`
}

type operationRequest struct {
	OperationType string          `json:"operationType"`
	EntityType    string          `json:"entityType"`
	EntityID      string          `json:"entityId"`
	Data          json.RawMessage `json:"data"`
}

type resolveRequest struct {
	OperationID string          `json:"operationId"`
	Resolution  string          `json:"resolution"`
	MergedData  json.RawMessage `json:"mergedData"`
}

type retryRequest struct {
	OperationID string `json:"operationId"`
}

type operationResponse struct {
	OperationID   string           `json:"operationId"`
	PartnerID     string           `json:"partnerId"`
	DeviceID      string           `json:"deviceId"`
	OperationType string           `json:"operationType"`
	EntityType    string           `json:"entityType"`
	EntityID      string           `json:"entityId"`
	Data          json.RawMessage  `json:"data"`
	Status        string           `json:"status"`
	Conflict      conflictResponse `json:"conflict"`
	Sync          batchResponse    `json:"sync"`
	Retry         retryResponse    `json:"retry"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

type conflictResponse struct {
	HasConflict  bool            `json:"hasConflict"`
	ConflictType *string         `json:"conflictType,omitempty"`
	ServerData   json.RawMessage `json:"serverData,omitempty"`
	LocalData    json.RawMessage `json:"localData,omitempty"`
	Resolution   *string         `json:"resolution,omitempty"`
	ResolvedBy   *string         `json:"resolvedBy,omitempty"`
	ResolvedAt   *time.Time      `json:"resolvedAt,omitempty"`
	MergedData   json.RawMessage `json:"mergedData,omitempty"`
}

type batchResponse struct {
	BatchID          string `json:"batchId"`
	SequenceNumber   int    `json:"sequenceNumber"`
	IsBatchOperation bool   `json:"isBatchOperation"`
}

type retryResponse struct {
	CanRetry    bool    `json:"canRetry"`
	Attempts    int     `json:"attempts"`
	MaxAttempts int     `json:"maxAttempts"`
	LastError   *string `json:"lastError,omitempty"`
}

type pullResponse struct {
	Operations []operationResponse `json:"operations"`
	LastSync   time.Time           `json:"lastSync"`
	Count      int                 `json:"count"`
	HasMore    bool                `json:"hasMore"`
}

type statusResponse struct {
	TotalOperations      int64               `json:"totalOperations"`
	PendingOperations    int64               `json:"pendingOperations"`
	ProcessingOperations int64               `json:"processingOperations"`
	CompletedOperations  int64               `json:"completedOperations"`
	FailedOperations     int64               `json:"failedOperations"`
	ConflictOperations   int64               `json:"conflictOperations"`
	OverdueOperations    int64               `json:"overdueOperations"`
	ExhaustedOperations  int64               `json:"exhaustedOperations"`
	Pending              []operationResponse `json:"pending"`
	Conflicts            []operationResponse `json:"conflicts"`
}

type conflictsResponse struct {
	Operations []operationResponse `json:"operations"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
	Total      int64               `json:"total"`
}

func toOperationResponse(op syncdomain.Operation) operationResponse {
	resp := operationResponse{
		OperationID:   op.ID,
		PartnerID:     op.PartnerID,
		DeviceID:      op.DeviceID,
		OperationType: string(op.OperationType),
		EntityType:    string(op.EntityType),
		EntityID:      op.EntityID,
		Data:          rawJSON(op.Data),
		Status:        string(op.Status),
		Conflict: conflictResponse{
			HasConflict: op.HasConflict,
			ServerData:  rawJSON(op.ServerData),
			LocalData:   rawJSON(op.LocalData),
			ResolvedBy:  op.ResolvedBy,
			MergedData:  rawJSON(op.MergedData),
		},
		Sync: batchResponse{
			BatchID:          op.BatchID,
			SequenceNumber:   op.SequenceNumber,
			IsBatchOperation: op.IsBatchOperation,
		},
		Retry: retryResponse{
			CanRetry:    op.CanRetry,
			Attempts:    op.Attempts,
			MaxAttempts: op.MaxAttempts,
			LastError:   op.LastError,
		},
		CreatedAt: op.CreatedAt.UTC(),
		UpdatedAt: op.UpdatedAt.UTC(),
	}

	if op.ConflictType != nil {
		value := string(*op.ConflictType)
		resp.Conflict.ConflictType = &value
	}
	if op.Resolution != nil {
		value := string(*op.Resolution)
		resp.Conflict.Resolution = &value
	}
	if op.ResolvedAt != nil {
		value := op.ResolvedAt.UTC()
		resp.Conflict.ResolvedAt = &value
	}
	return resp
}

func toOperationResponses(ops []syncdomain.Operation) []operationResponse {
	result := make([]operationResponse, 0, len(ops))
	for _, op := range ops {
		result = append(result, toOperationResponse(op))
	}
	return result
}

func rawJSON(data []byte) json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}
