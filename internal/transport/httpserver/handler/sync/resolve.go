package sync

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	syncdomain "partner-sync-go/internal/domain/sync"
)

const operationIDParam = "operationId"

func (h *Handlers) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	principal, partnerID, ok := principalFor(w, r)
	if !ok {
		return
	}

	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	if strings.TrimSpace(req.OperationID) == "" {
		writeValidation(w, &syncdomain.ValidationError{Fields: []syncdomain.FieldError{{Field: "operationId", Message: "is required"}}})
		return
	}

	op, err := h.Sync.ResolveConflict(r.Context(), syncdomain.ResolveInput{
		PartnerID:   partnerID,
		OperationID: req.OperationID,
		Resolution:  syncdomain.Resolution(strings.TrimSpace(req.Resolution)),
		ResolvedBy:  principal.Actor(),
		MergedData:  req.MergedData,
	})
	if err != nil {
		logAttrs := []any{
			"partner_id", partnerID,
			"operation_id", req.OperationID,
			"resolution", req.Resolution,
		}
		if writeServiceError(w, err) {
			h.log.BusinessError("sync.resolve: rejected", err, logAttrs...)
			return
		}
		h.log.InternalError("sync.resolve: resolve failed", err, logAttrs...)
		return
	}

	h.log.Info("sync.resolve: conflict resolved",
		"partner_id", partnerID,
		"operation_id", op.ID,
		"resolution", req.Resolution,
		"resolved_by", principal.Actor(),
	)

	writeJSON(w, http.StatusOK, toOperationResponse(*op))
}

func (h *Handlers) Retry(w http.ResponseWriter, r *http.Request) {
	_, partnerID, ok := principalFor(w, r)
	if !ok {
		return
	}

	var req retryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid json body")
		return
	}
	if strings.TrimSpace(req.OperationID) == "" {
		writeValidation(w, &syncdomain.ValidationError{Fields: []syncdomain.FieldError{{Field: "operationId", Message: "is required"}}})
		return
	}

	op, err := h.Sync.Retry(r.Context(), syncdomain.RetryInput{
		PartnerID:   partnerID,
		OperationID: req.OperationID,
	})
	if err != nil {
		logAttrs := []any{"partner_id", partnerID, "operation_id", req.OperationID}
		if writeServiceError(w, err) {
			h.log.BusinessError("sync.retry: rejected", err, logAttrs...)
			return
		}
		h.log.InternalError("sync.retry: retry failed", err, logAttrs...)
		return
	}

	h.log.Info("sync.retry: operation reprocessed",
		"partner_id", partnerID,
		"operation_id", op.ID,
		"status", op.Status,
		"attempts", op.Attempts,
	)

	writeJSON(w, http.StatusOK, toOperationResponse(*op))
}

func (h *Handlers) GetOperation(w http.ResponseWriter, r *http.Request) {
	_, partnerID, ok := principalFor(w, r)
	if !ok {
		return
	}

	operationID := chi.URLParam(r, operationIDParam)
	op, err := h.Sync.GetOperation(r.Context(), partnerID, operationID)
	if err != nil {
		if writeServiceError(w, err) {
			return
		}
		h.log.InternalError("sync.operation: lookup failed", err, "partner_id", partnerID, "operation_id", operationID)
		return
	}

	writeJSON(w, http.StatusOK, toOperationResponse(*op))
}
