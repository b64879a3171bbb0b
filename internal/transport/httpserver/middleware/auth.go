package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"partner-sync-go/internal/config"
	identitydomain "partner-sync-go/internal/domain/identity"
	"partner-sync-go/pkg/logger"
)

const (
	defaultAuthTimeout = 5 * time.Second
	DeviceIDHeader     = "X-Device-ID"
)

// IdentityAuth resolves the bearer token of a request to a partner principal
// by asking the identity service. Resolved tokens are cached for a short TTL.
type IdentityAuth struct {
	endpoint string
	apiKey   string
	client   *http.Client
	cache    identitydomain.Cache
	cacheTTL time.Duration
	skipAuth bool
	mock     identitydomain.Principal
	log      logger.Logger
}

type contextKey int

const principalKey contextKey = iota

type principalResponse struct {
	PartnerID string `json:"partnerId"`
	DeviceID  string `json:"deviceId"`
	Subject   string `json:"subject"`
	Sub       string `json:"sub"`
}

func NewIdentityAuth(cfg config.IdentityConfig, cache identitydomain.Cache, log logger.Logger) *IdentityAuth {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultAuthTimeout
	}
	if cache == nil {
		cache = identitydomain.NoopCache()
	}

	return &IdentityAuth{
		endpoint: strings.TrimRight(cfg.URL, "/"),
		apiKey:   cfg.APIKey,
		client: &http.Client{
			Timeout: timeout,
		},
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
		skipAuth: cfg.SkipAuth,
		mock: identitydomain.Principal{
			PartnerID: strings.TrimSpace(cfg.MockPartnerID),
			DeviceID:  strings.TrimSpace(cfg.MockDeviceID),
			Subject:   strings.TrimSpace(cfg.MockSubject),
		},
		log: log,
	}
}

func (a *IdentityAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipAuth {
			principal := a.mock
			if !principal.Valid() {
				writeError(w, http.StatusInternalServerError, "auth_not_configured", "auth mock partner id not configured")
				return
			}
			principal.DeviceID = deviceID(r, principal.DeviceID)
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
			return
		}

		if a.endpoint == "" {
			writeError(w, http.StatusInternalServerError, "auth_not_configured", "auth not configured")
			return
		}

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w)
			return
		}

		principal, ok := a.cache.GetByToken(token)
		if !ok {
			resolved, err := a.lookup(r.Context(), token)
			if err != nil {
				a.log.BusinessError("auth.lookup: token rejected", err)
				unauthorized(w)
				return
			}
			a.cache.SetByToken(token, resolved, a.cacheTTL)
			principal = resolved
		}

		resolved := *principal
		resolved.DeviceID = deviceID(r, resolved.DeviceID)
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), resolved)))
	})
}

func (a *IdentityAuth) lookup(ctx context.Context, token string) (*identitydomain.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if a.apiKey != "" {
		req.Header.Set("X-API-Key", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &lookupError{status: resp.StatusCode}
	}

	var payload principalResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	principal := &identitydomain.Principal{
		PartnerID: strings.TrimSpace(payload.PartnerID),
		DeviceID:  strings.TrimSpace(payload.DeviceID),
		Subject:   firstNonEmpty(payload.Subject, payload.Sub),
	}
	if !principal.Valid() {
		return nil, errMissingPartner
	}
	return principal, nil
}

// deviceID prefers the device bound to the token, then the request header.
func deviceID(r *http.Request, bound string) string {
	if bound != "" {
		return bound
	}
	return strings.TrimSpace(r.Header.Get(DeviceIDHeader))
}

func bearerToken(value string) (string, bool) {
	parts := strings.Fields(value)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "invalid_token", "invalid token")
}

func WithPrincipal(ctx context.Context, principal identitydomain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

func PrincipalFromContext(ctx context.Context) (identitydomain.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(identitydomain.Principal)
	if !ok || !principal.Valid() {
		return identitydomain.Principal{}, false
	}
	return principal, true
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" {
			return value
		}
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
