package sync

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	streamWriteTimeout = 5 * time.Second
	streamPingInterval = 30 * time.Second
)

// Stream upgrades to a websocket and forwards the partner's change events.
// Clients react to an event by pulling; the stream carries no payloads.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	principal, partnerID, ok := principalFor(w, r)
	if !ok {
		return
	}
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "stream_unavailable", "change stream is not enabled")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.allowedOrigins),
	})
	if err != nil {
		h.log.BusinessError("sync.stream: upgrade failed", err, "partner_id", partnerID)
		return
	}
	defer conn.CloseNow()

	events, cancel := h.events.Subscribe(partnerID)
	defer cancel()

	h.log.Info("sync.stream: subscribed", "partner_id", partnerID, "device_id", principal.DeviceID)

	ctx := conn.CloseRead(r.Context())
	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("sync.stream: closed", "partner_id", partnerID, "device_id", principal.DeviceID)
			return
		case <-ticker.C:
			if err := ping(ctx, conn); err != nil {
				h.log.BusinessError("sync.stream: ping failed", err, "partner_id", partnerID)
				return
			}
		case event, open := <-events:
			if !open {
				_ = conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(writeCtx, conn, event)
			cancelWrite()
			if err != nil {
				h.log.BusinessError("sync.stream: write failed", err, "partner_id", partnerID)
				return
			}
		}
	}
}

func ping(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return conn.Ping(ctx)
}

// originPatterns turns configured CORS origins into the host patterns the
// websocket handshake checks against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			patterns = append(patterns, parsed.Host)
			continue
		}
		patterns = append(patterns, origin)
	}
	return patterns
}
