// Package eventbus publishes and subscribes to real-time trading events
// over Redis pub/sub, bridging scheduler/trading-side state changes to the
// WebSocket gateway's connected clients. Channel name, event envelope, and
// publish-failure policy are grounded on
// original_source/backend/websocket/events.py (EVENTS_CHANNEL = "boz:events",
// WebSocketEvent{type, timestamp, data}, never let a publish failure crash
// the caller) and the reconnect-backoff subscriber in
// original_source/backend/websocket/subscriber.py.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel is the Redis pub/sub channel every event is published to and
// subscribed from.
const Channel = "boz:events"

// maxBackoff caps the subscriber's reconnect backoff, matching
// subscriber.py's MAX_BACKOFF_SECONDS.
const maxBackoff = 30 * time.Second

// Event is the envelope every message carries: a dotted type
// ("trade.executed", "trade.settled", "trade.queued", ...), a
// generation timestamp, and an event-specific payload.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Bus publishes events onto the shared Redis channel. A Bus satisfies
// internal/trading's Publisher interface.
type Bus struct {
	rdb *redis.Client
	log *slog.Logger
}

// New builds a Bus over an existing Redis client.
func New(rdb *redis.Client, log *slog.Logger) *Bus {
	return &Bus{rdb: rdb, log: log.With("component", "eventbus")}
}

// Publish marshals and publishes one event. A publish failure is logged and
// swallowed: no caller's trading cycle, settlement run, or approval flow
// should fail because the WebSocket fan-out is momentarily unavailable.
func (b *Bus) Publish(ctx context.Context, eventType string, data any) {
	event := Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data}
	payload, err := json.Marshal(event)
	if err != nil {
		b.log.Warn("failed to marshal event", "event_type", eventType, "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		b.log.Warn("failed to publish event", "event_type", eventType, "error", err)
	}
}

// Sink receives each raw JSON event forwarded by Subscribe, typically a
// WebSocket connection manager's broadcast method.
type Sink interface {
	Broadcast(raw []byte)
}

// Subscribe runs a long-lived loop forwarding every boz:events message to
// sink, reconnecting with exponential backoff (capped at maxBackoff) on any
// Redis error. It returns only when ctx is canceled.
func Subscribe(ctx context.Context, rdb *redis.Client, log *slog.Logger, sink Sink) {
	log = log.With("component", "eventbus-subscriber")
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		if err := subscribeOnce(ctx, rdb, log, sink); err != nil {
			wait := backoff(attempt)
			log.Warn("subscriber error, reconnecting", "error", err, "attempt", attempt+1, "wait", wait)
			attempt++
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}
		// subscribeOnce only returns nil when ctx was canceled mid-listen.
		return
	}
}

func subscribeOnce(ctx context.Context, rdb *redis.Client, log *slog.Logger, sink Sink) error {
	pubsub := rdb.Subscribe(ctx, Channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	log.Info("subscriber connected", "channel", Channel)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			sink.Broadcast([]byte(msg.Payload))
		case <-ctx.Done():
			return nil
		}
	}
}

func backoff(attempt int) time.Duration {
	d := time.Second
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
