package notify

import (
	"sync"
	"sync/atomic"

	syncdomain "partner-sync-go/internal/domain/sync"
	"partner-sync-go/pkg/logger"
)

const defaultBuffer = 16

// Hub fans change events out to the subscribers of each partner. Publish
// never blocks: a subscriber whose buffer is full misses the event and is
// expected to catch up with a pull.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	buffer  int
	log     logger.Logger
	dropped atomic.Uint64
}

type subscriber struct {
	events chan syncdomain.ChangeEvent
	once   sync.Once
}

func NewHub(buffer int, log logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
		log:    log,
	}
}

// Subscribe registers a listener for partnerID. The returned cancel func
// unregisters it and closes the channel; calling it twice is safe.
func (h *Hub) Subscribe(partnerID string) (<-chan syncdomain.ChangeEvent, func()) {
	sub := &subscriber{events: make(chan syncdomain.ChangeEvent, h.buffer)}

	h.mu.Lock()
	if h.subs[partnerID] == nil {
		h.subs[partnerID] = make(map[*subscriber]struct{})
	}
	h.subs[partnerID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[partnerID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, partnerID)
			}
		}
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.events) })
	}
	return sub.events, cancel
}

func (h *Hub) Publish(event syncdomain.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.PartnerID] {
		select {
		case sub.events <- event:
		default:
			h.dropped.Add(1)
			if h.log != nil {
				h.log.Warn("notify.publish: subscriber buffer full, event dropped",
					"partner_id", event.PartnerID,
					"operation_id", event.OperationID,
				)
			}
		}
	}
}

// Subscribers returns the number of listeners for partnerID.
func (h *Hub) Subscribers(partnerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[partnerID])
}

// Dropped returns how many events were discarded for slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
