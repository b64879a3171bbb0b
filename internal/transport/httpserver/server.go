package httpserver

import (
	"net/http"
	"time"

	"partner-sync-go/internal/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 2 * time.Minute
	maxHeaderBytes    = 1 << 16
)

// New builds the listener for router. WriteTimeout stays unset because the
// change stream holds connections open; per-route timeouts live in the router.
func New(cfg config.Config, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
}
