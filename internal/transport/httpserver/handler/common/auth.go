package common

import (
	"net/http"

	"partner-sync-go/internal/transport/httpserver/middleware"
)

type authMeResponse struct {
	PartnerID string `json:"partnerId"`
	DeviceID  string `json:"deviceId,omitempty"`
	Subject   string `json:"subject,omitempty"`
}

func (h *Handlers) AuthMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token", "invalid token")
		return
	}

	writeJSON(w, http.StatusOK, authMeResponse{
		PartnerID: principal.PartnerID,
		DeviceID:  principal.DeviceID,
		Subject:   principal.Subject,
	})
}
