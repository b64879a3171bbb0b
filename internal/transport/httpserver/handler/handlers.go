package handler

import (
	commonhandler "partner-sync-go/internal/transport/httpserver/handler/common"
	synchandler "partner-sync-go/internal/transport/httpserver/handler/sync"
)

type Handlers struct {
	Common *commonhandler.Handlers
	Sync   *synchandler.Handlers
}

func New(common *commonhandler.Handlers, sync *synchandler.Handlers) *Handlers {
	return &Handlers{
		Common: common,
		Sync:   sync,
	}
}
