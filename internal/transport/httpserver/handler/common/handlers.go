package common

import (
	"context"
	"net/http"
	"time"

	"partner-sync-go/pkg/logger"
)

const healthTimeout = 2 * time.Second

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handlers struct {
	db  Pinger
	log logger.Logger
}

func New(db Pinger, log logger.Logger) *Handlers {
	return &Handlers{
		db:  db,
		log: log,
	}
}

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := h.db.PingContext(ctx); err != nil {
			h.log.InternalError("health.check: database unreachable", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable", "database unavailable")
			return
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Time: time.Now().UTC()})
}
