package sync

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	identitydomain "partner-sync-go/internal/domain/identity"
	syncdomain "partner-sync-go/internal/domain/sync"
	commonhandler "partner-sync-go/internal/transport/httpserver/handler/common"
	"partner-sync-go/internal/transport/httpserver/middleware"
)

func writeError(w http.ResponseWriter, status int, code, message string) {
	commonhandler.WriteError(w, status, code, message)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	commonhandler.WriteJSON(w, status, payload)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return commonhandler.DecodeJSON(r, dst)
}

func parseIntParam(value string, fallback int) (int, error) {
	return commonhandler.ParseIntParam(value, fallback)
}

func writeValidation(w http.ResponseWriter, verr *syncdomain.ValidationError) {
	fields := make([]commonhandler.FieldError, 0, len(verr.Fields))
	for _, field := range verr.Fields {
		fields = append(fields, commonhandler.FieldError{Field: field.Field, Message: field.Message})
	}
	commonhandler.WriteFieldErrors(w, http.StatusBadRequest, "validation_failed", "request validation failed", fields)
}

// principalFor returns the caller and the partner named in the path. The
// partner scope middleware has already checked that both agree.
func principalFor(w http.ResponseWriter, r *http.Request) (identitydomain.Principal, string, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid token")
		return identitydomain.Principal{}, "", false
	}
	partnerID := strings.TrimSpace(chi.URLParam(r, middleware.PartnerIDParam))
	if partnerID == "" || partnerID != principal.PartnerID {
		writeError(w, http.StatusForbidden, "forbidden", "access to this partner is not allowed")
		return identitydomain.Principal{}, "", false
	}
	return principal, partnerID, true
}

// writeServiceError maps domain errors to HTTP responses. It reports false
// for errors it does not recognise so the caller can log them as internal.
func writeServiceError(w http.ResponseWriter, err error) bool {
	var verr *syncdomain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidation(w, verr)
	case errors.Is(err, syncdomain.ErrBatchTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "sync_batch_too_large", "too many operations in one batch")
	case errors.Is(err, syncdomain.ErrOperationNotFound):
		writeError(w, http.StatusNotFound, "operation_not_found", "sync operation not found")
	case errors.Is(err, syncdomain.ErrNotInConflict):
		writeError(w, http.StatusConflict, "operation_not_in_conflict", "sync operation is not in conflict")
	case errors.Is(err, syncdomain.ErrNotRetryable):
		writeError(w, http.StatusBadRequest, "operation_not_retryable", "sync operation cannot be retried")
	case errors.Is(err, syncdomain.ErrInvalidResolution):
		commonhandler.WriteFieldErrors(w, http.StatusBadRequest, "validation_failed", "request validation failed",
			[]commonhandler.FieldError{{Field: "resolution", Message: "must be one of local_wins, server_wins, merge"}})
	case errors.Is(err, syncdomain.ErrMergeUnavailable):
		writeError(w, http.StatusUnprocessableEntity, "merge_unavailable", "merged data is required for this entity")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return false
	}
	return true
}
