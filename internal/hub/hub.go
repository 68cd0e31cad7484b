package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fight5566jay/Explainable-Mortal/internal/model"
)

const (
	inputBuffer      = 256
	subscriberBuffer = 1024
)

// Hub receives coordinator events and broadcasts them to all subscribers.
type Hub struct {
	input       chan model.Event
	done        chan struct{}
	logger      *slog.Logger
	mu          sync.RWMutex
	subscribers map[chan model.Event]struct{}
	dropped     int64
}

// New creates an idle Hub. Call Start to begin broadcasting.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		input:       make(chan model.Event, inputBuffer),
		done:        make(chan struct{}),
		logger:      logger,
		subscribers: make(map[chan model.Event]struct{}),
	}
}

// Notify queues an event for broadcast. It implements model.Observer and
// returns immediately once the hub has stopped.
func (h *Hub) Notify(ev model.Event) {
	select {
	case h.input <- ev:
	case <-h.done:
	}
}

// Subscribe returns a buffered channel that will receive events.
// Multiple consumers can subscribe; each gets a copy of every event.
func (h *Hub) Subscribe() <-chan model.Event {
	ch := make(chan model.Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		close(ch)
	default:
		h.subscribers[ch] = struct{}{}
	}
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (h *Hub) Unsubscribe(ch <-chan model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		if sub == ch {
			delete(h.subscribers, sub)
			close(sub)
			return
		}
	}
}

// Dropped returns the total number of events dropped due to slow consumers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Start broadcasts queued events until the context is cancelled, then
// closes every subscriber channel.
func (h *Hub) Start(ctx context.Context) {
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.input:
			h.broadcast(ev)
		}
	}
}

// broadcast sends an event to all subscribers.
// If a subscriber's channel is full, the event is dropped for that subscriber.
func (h *Hub) broadcast(ev model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.dropped++
			h.logger.Warn("hub: dropped event for slow consumer", "total_dropped", h.dropped)
		}
	}
}

// closeAll closes all subscriber channels.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.done)
	for ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = make(map[chan model.Event]struct{})
}
