package batch

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// subscriberBuffer bounds the per-subscriber event channel. A slow
// subscriber drops the oldest buffered event rather than blocking the
// processor (spec.md §4.5 "newest-wins eviction").
const subscriberBuffer = 64

// Hub fans batch events out to subscriber channels keyed by batch id,
// adapted from the teacher's websocket.Hub but addressed by batch id
// instead of workflow/execution id and backed by plain Go channels
// instead of a client-registration event loop.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]bool

	log zerolog.Logger
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan Event]bool),
		log:  log.With().Str("component", "batch_hub").Logger(),
	}
}

// Subscribe registers a new subscriber channel for batchID. Callers must
// call the returned unsubscribe function when done listening.
func (h *Hub) Subscribe(batchID string) (ch chan Event, unsubscribe func()) {
	ch = make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[batchID] == nil {
		h.subs[batchID] = make(map[chan Event]bool)
	}
	h.subs[batchID][ch] = true
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if clients, ok := h.subs[batchID]; ok {
			delete(clients, ch)
			close(ch)
			if len(clients) == 0 {
				delete(h.subs, batchID)
			}
		}
	}
}

// Publish fans an event out to every subscriber of its batch id. A full
// subscriber buffer evicts its oldest event to make room, so Publish never
// blocks the caller (the batch processor's worker goroutine).
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	clients := h.subs[e.BatchID]
	targets := make([]chan Event, 0, len(clients))
	for ch := range clients {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- e:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- e:
			default:
				h.log.Warn().Str("batch_id", e.BatchID).Str("event_type", e.Type).Msg("subscriber buffer full, dropping event")
			}
		}
	}
}

// SubscriberCount reports how many subscribers are listening to a batch,
// used by tests to assert registration/teardown.
func (h *Hub) SubscriberCount(batchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[batchID])
}
