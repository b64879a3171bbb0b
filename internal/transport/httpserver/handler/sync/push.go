package sync

import (
	"net/http"
	"time"

	syncdomain "partner-sync-go/internal/domain/sync"
)

func (h *Handlers) Push(w http.ResponseWriter, r *http.Request) {
	startedAt := time.Now()

	principal, partnerID, ok := principalFor(w, r)
	if !ok {
		return
	}

	var req pushRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}

	operations := make([]syncdomain.OperationInput, 0, len(req.Operations))
	for _, operation := range req.Operations {
		operations = append(operations, syncdomain.OperationInput{
			OperationType: syncdomain.OperationType(operation.OperationType),
			EntityType:    syncdomain.EntityType(operation.EntityType),
			EntityID:      operation.EntityID,
			Data:          operation.Data,
		})
	}

	result, err := h.Sync.Push(r.Context(), syncdomain.PushInput{
		PartnerID:  partnerID,
		DeviceID:   principal.DeviceID,
		BatchID:    req.BatchID,
		Operations: operations,
	})
	if err != nil {
		logAttrs := []any{
			"partner_id", partnerID,
			"device_id", principal.DeviceID,
			"operations", len(operations),
			"duration_ms", time.Since(startedAt).Milliseconds(),
		}
		if writeServiceError(w, err) {
			h.log.BusinessError("sync.push: rejected", err, logAttrs...)
			return
		}
		h.log.InternalError("sync.push: push failed", err, logAttrs...)
		return
	}

	h.log.Info("sync.push: completed",
		"partner_id", partnerID,
		"device_id", principal.DeviceID,
		"batch_id", result.BatchID,
		"total", len(result.Operations),
		"processed", result.Processed,
		"conflicts", result.Conflicts,
		"errors", result.Errors,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, result)
}
