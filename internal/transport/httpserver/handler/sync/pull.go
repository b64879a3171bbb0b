package sync

import (
	"net/http"

	syncdomain "partner-sync-go/internal/domain/sync"
	commonhandler "partner-sync-go/internal/transport/httpserver/handler/common"
)

func (h *Handlers) Pull(w http.ResponseWriter, r *http.Request) {
	_, partnerID, ok := principalFor(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	var fields []commonhandler.FieldError

	since, err := commonhandler.ParseTimeParam(query.Get("since"))
	if err != nil {
		fields = append(fields, commonhandler.FieldError{Field: "since", Message: "must be an RFC3339 timestamp"})
	}
	limit, err := parseIntParam(query.Get("limit"), 0)
	if err != nil {
		fields = append(fields, commonhandler.FieldError{Field: "limit", Message: "must be a non-negative integer"})
	}
	if len(fields) > 0 {
		commonhandler.WriteFieldErrors(w, http.StatusBadRequest, "validation_failed", "request validation failed", fields)
		return
	}

	result, err := h.Sync.Pull(r.Context(), syncdomain.PullInput{
		PartnerID: partnerID,
		Since:     since,
		Limit:     limit,
	})
	if err != nil {
		if writeServiceError(w, err) {
			h.log.BusinessError("sync.pull: rejected", err, "partner_id", partnerID)
			return
		}
		h.log.InternalError("sync.pull: pull failed", err, "partner_id", partnerID)
		return
	}

	writeJSON(w, http.StatusOK, pullResponse{
		Operations: toOperationResponses(result.Operations),
		LastSync:   result.LastSync.UTC(),
		Count:      len(result.Operations),
		HasMore:    result.HasMore,
	})
}
