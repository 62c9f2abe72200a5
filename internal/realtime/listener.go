package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Channel is the Postgres NOTIFY channel the notifications trigger writes to.
const Channel = "notifications"

// EventNotification is the Event type for new notification rows.
const EventNotification = "notification"

// NotificationPayload is the JSON the trigger sends with pg_notify.
type NotificationPayload struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// ParsePayload decodes a pg_notify payload.
func ParsePayload(raw string) (*NotificationPayload, error) {
	var p NotificationPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode notification payload: %w", err)
	}
	if p.OwnerID == "" {
		return nil, fmt.Errorf("notification payload has no owner_id")
	}
	return &p, nil
}

// Publisher is the part of Hub the listener needs.
type Publisher interface {
	Publish(ownerID string, ev Event) int
}

// Listener holds a dedicated pool connection in LISTEN mode and forwards
// every notification to the hub.
type Listener struct {
	pool *pgxpool.Pool
	hub  Publisher
	log  zerolog.Logger
}

func NewListener(pool *pgxpool.Pool, hub Publisher, log zerolog.Logger) *Listener {
	return &Listener{pool: pool, hub: hub, log: log}
}

// Run listens until ctx is cancelled, reconnecting with backoff when the
// connection drops.
func (l *Listener) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.log.Error().Err(err).Dur("retry_in", backoff).Msg("Notification listener dropped")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.log.Info().Str("channel", Channel).Msg("Listening for notifications")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait: %w", err)
		}
		l.Dispatch(n.Payload)
	}
}

// Dispatch forwards one raw payload to the hub.
func (l *Listener) Dispatch(raw string) {
	p, err := ParsePayload(raw)
	if err != nil {
		l.log.Warn().Err(err).Msg("Ignoring notification")
		return
	}
	delivered := l.hub.Publish(p.OwnerID, Event{Type: EventNotification, Data: p})
	l.log.Debug().
		Str("owner_id", p.OwnerID).
		Str("notification_id", p.ID).
		Int("connections", delivered).
		Msg("Notification pushed")
}
