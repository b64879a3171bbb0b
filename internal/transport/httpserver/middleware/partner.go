package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"partner-sync-go/pkg/logger"
)

const PartnerIDParam = "partnerId"

// PartnerScope rejects requests whose {partnerId} path segment differs from
// the authenticated principal's partner. Every rejection is logged.
func PartnerScope(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}

			requested := chi.URLParam(r, PartnerIDParam)
			if requested != principal.PartnerID {
				log.Warn("auth.partner_scope: partner mismatch",
					"principal_partner_id", principal.PartnerID,
					"requested_partner_id", requested,
					"device_id", principal.DeviceID,
					"subject", principal.Subject,
					"method", r.Method,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusForbidden, "forbidden", "access to this partner is not allowed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
