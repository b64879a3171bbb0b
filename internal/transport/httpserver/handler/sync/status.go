package sync

import (
	"net/http"

	syncdomain "partner-sync-go/internal/domain/sync"
)

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	_, partnerID, ok := principalFor(w, r)
	if !ok {
		return
	}

	summary, err := h.Sync.Status(r.Context(), partnerID)
	if err != nil {
		h.log.InternalError("sync.status: summary failed", err, "partner_id", partnerID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		TotalOperations:      summary.TotalOperations,
		PendingOperations:    summary.PendingOperations,
		ProcessingOperations: summary.ProcessingOperations,
		CompletedOperations:  summary.CompletedOperations,
		FailedOperations:     summary.FailedOperations,
		ConflictOperations:   summary.ConflictOperations,
		OverdueOperations:    summary.OverdueOperations,
		ExhaustedOperations:  summary.ExhaustedOperations,
		Pending:              toOperationResponses(summary.Pending),
		Conflicts:            toOperationResponses(summary.Conflicts),
	})
}

func (h *Handlers) ListConflicts(w http.ResponseWriter, r *http.Request) {
	_, partnerID, ok := principalFor(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	page, err := parseIntParam(query.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid page")
		return
	}
	limit, err := parseIntParam(query.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}

	normalized := h.Sync.NormalizePage(syncdomain.Page{Page: page, Limit: limit})
	operations, total, err := h.Sync.ListConflicts(r.Context(), partnerID, normalized)
	if err != nil {
		h.log.InternalError("sync.conflicts: list failed", err, "partner_id", partnerID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, conflictsResponse{
		Operations: toOperationResponses(operations),
		Page:       normalized.Page,
		Limit:      normalized.Limit,
		Total:      total,
	})
}
