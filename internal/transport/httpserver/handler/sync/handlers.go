package sync

import (
	syncdomain "partner-sync-go/internal/domain/sync"
	"partner-sync-go/pkg/logger"
)

// Subscriber hands out per-partner change event feeds for the stream endpoint.
type Subscriber interface {
	Subscribe(partnerID string) (<-chan syncdomain.ChangeEvent, func())
}

type Handlers struct {
	Sync           *syncdomain.Service
	events         Subscriber
	allowedOrigins []string
	log            logger.Logger
}

func New(sync *syncdomain.Service, events Subscriber, allowedOrigins []string, log logger.Logger) *Handlers {
	return &Handlers{
		Sync:           sync,
		events:         events,
		allowedOrigins: allowedOrigins,
		log:            log,
	}
}
