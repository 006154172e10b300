package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/madhatter5501/leadboard/kanban"
)

// PostgresChannel is the NOTIFY channel the leads trigger writes to.
const PostgresChannel = "leads_changes"

// PostgresFeed listens for row changes announced by the leads table trigger.
// Writes publish themselves through the trigger, so this feed only subscribes.
type PostgresFeed struct {
	dsn    string
	logger *slog.Logger
}

// NewPostgresFeed creates a feed that opens one listener connection per subscription.
func NewPostgresFeed(dsn string, logger *slog.Logger) *PostgresFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresFeed{dsn: dsn, logger: logger}
}

// Subscribe implements Subscriber.
func (f *PostgresFeed) Subscribe(ctx context.Context) (<-chan kanban.ChangeEvent, error) {
	listener := pq.NewListener(f.dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			f.logger.Warn("Postgres listener event", "event", ev, "error", err)
		}
	})
	if err := listener.Listen(PostgresChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", PostgresChannel, err)
	}

	out := make(chan kanban.ChangeEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer listener.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				if n == nil {
					// Connection re-established; events in the gap are lost
					f.logger.Warn("Postgres listener reconnected")
					continue
				}
				ev, err := decodeEvent([]byte(n.Extra))
				if err != nil {
					f.logger.Warn("Ignoring malformed change event", "channel", n.Channel, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close implements io.Closer.
func (f *PostgresFeed) Close() error { return nil }
