package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"partner-sync-go/internal/config"
	"partner-sync-go/internal/transport/httpserver/handler"
	authmw "partner-sync-go/internal/transport/httpserver/middleware"
	"partner-sync-go/pkg/logger"
)

const defaultRequestTimeout = 30 * time.Second

func NewRouter(cfg config.Config, handlers *handler.Handlers, auth *authmw.IdentityAuth, log logger.Logger) http.Handler {
	timeout := cfg.HTTP.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(authmw.NewCORS(cfg.HTTP.CORSOrigins))

	r.Route("/api", func(r chi.Router) {
		r.With(chimw.Timeout(timeout)).Get("/health", handlers.Common.Health)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.With(chimw.Timeout(timeout)).Get("/auth/me", handlers.Common.AuthMe)

			r.Route("/partners/{"+authmw.PartnerIDParam+"}/sync", func(r chi.Router) {
				r.Use(authmw.PartnerScope(log))

				// The stream outlives the request timeout.
				r.Get("/stream", handlers.Sync.Stream)

				r.Group(func(r chi.Router) {
					r.Use(chimw.Timeout(timeout))

					r.Get("/", handlers.Sync.Pull)
					r.Post("/", handlers.Sync.Push)
					r.Get("/status", handlers.Sync.Status)
					r.Get("/conflicts", handlers.Sync.ListConflicts)
					r.Post("/resolve-conflict", handlers.Sync.ResolveConflict)
					r.Post("/retry", handlers.Sync.Retry)
					r.Get("/operations/{operationId}", handlers.Sync.GetOperation)
				})
			})
		})
	})

	return r
}
