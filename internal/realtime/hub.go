// Package realtime carries row change events from the lead store to board
// sessions, in-process or through redis or postgres.
package realtime

import (
	"log/slog"
	"sync"
)

// Hub fans values out to every subscriber without blocking the publisher.
type Hub[T any] struct {
	mu     sync.RWMutex
	subs   map[chan T]struct{}
	closed bool
	logger *slog.Logger
	name   string
}

// NewHub creates a hub. name labels dropped-message warnings.
func NewHub[T any](name string, logger *slog.Logger) *Hub[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub[T]{
		subs:   make(map[chan T]struct{}),
		logger: logger,
		name:   name,
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel; it is safe to call twice.
func (h *Hub[T]) Subscribe(buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Publish delivers v to every subscriber with room in its buffer.
func (h *Hub[T]) Publish(v T) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- v:
		default:
			// Subscriber too slow, skip
			h.logger.Warn("Dropped realtime message", "hub", h.name)
		}
	}
}

// Len returns the number of subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}
