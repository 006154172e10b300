package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/madhatter5501/leadboard/kanban"
)

// Publisher pushes lead change events to the feed.
type Publisher interface {
	Publish(ctx context.Context, ev kanban.ChangeEvent) error
}

// Subscriber hands out a stream of lead change events. The channel closes
// when ctx is done or the feed shuts down.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan kanban.ChangeEvent, error)
}

// Feed is both ends of a change stream.
type Feed interface {
	Publisher
	Subscriber
	io.Closer
}

// subscriberBuffer bounds how far a board session may fall behind.
const subscriberBuffer = 64

// MemoryFeed is an in-process feed for a single server.
type MemoryFeed struct {
	hub *Hub[kanban.ChangeEvent]
}

// NewMemoryFeed creates an in-process feed.
func NewMemoryFeed(logger *slog.Logger) *MemoryFeed {
	return &MemoryFeed{hub: NewHub[kanban.ChangeEvent]("leads", logger)}
}

// Publish implements Publisher.
func (f *MemoryFeed) Publish(_ context.Context, ev kanban.ChangeEvent) error {
	f.hub.Publish(ev)
	return nil
}

// Subscribe implements Subscriber.
func (f *MemoryFeed) Subscribe(ctx context.Context) (<-chan kanban.ChangeEvent, error) {
	ch, cancel := f.hub.Subscribe(subscriberBuffer)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, nil
}

// Close implements io.Closer.
func (f *MemoryFeed) Close() error {
	f.hub.Close()
	return nil
}

func encodeEvent(ev kanban.ChangeEvent) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (kanban.ChangeEvent, error) {
	var ev kanban.ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("failed to decode change event: %w", err)
	}
	switch ev.Type {
	case kanban.ChangeInsert, kanban.ChangeUpdate, kanban.ChangeDelete:
	default:
		return ev, fmt.Errorf("unknown change type %q", ev.Type)
	}
	return ev, nil
}
