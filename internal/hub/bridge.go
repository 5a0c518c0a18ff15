package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventChannel is the redis pub/sub channel carrying call events between
// instances. Every instance publishes its events here and replays events
// from peers into its local hub.
const EventChannel = "fleetvoice:call-events"

type envelope struct {
	Origin  string        `json:"origin"`
	Keys    []string      `json:"keys"`
	Message ServerMessage `json:"message"`
}

// Bridge fans call events out across instances over redis pub/sub.
// Publish delivers to the local hub first, then broadcasts the envelope
// so peers can deliver to their own subscribers. Run consumes the
// channel and skips envelopes this instance originated.
type Bridge struct {
	hub    *Hub
	rdb    *redis.Client
	origin string
	log    *slog.Logger
}

func NewBridge(h *Hub, rdb *redis.Client, log *slog.Logger) *Bridge {
	return &Bridge{
		hub:    h,
		rdb:    rdb,
		origin: uuid.NewString(),
		log:    log.With("component", "hub_bridge"),
	}
}

// Publish delivers msg to local subscribers and broadcasts it to peers.
// Redis publish failures are logged and swallowed: local delivery already
// happened and call events are best-effort on the fan-out path.
func (b *Bridge) Publish(ctx context.Context, msg ServerMessage, keys ...string) {
	b.hub.Publish(msg, keys...)

	env := envelope{Origin: b.origin, Keys: keys, Message: msg}
	payload, err := json.Marshal(env)
	if err != nil {
		b.log.Error("marshal event envelope", "error", err)
		return
	}
	if err := b.rdb.Publish(ctx, EventChannel, payload).Err(); err != nil {
		b.log.Warn("redis publish failed", "error", err, "type", msg.Type)
	}
}

// Run subscribes to the event channel and replays peer events into the
// local hub until ctx is cancelled. On subscription errors it backs off
// and resubscribes.
func (b *Bridge) Run(ctx context.Context) {
	for {
		if err := b.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			b.log.Warn("event subscription lost, resubscribing", "error", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		return
	}
}

func (b *Bridge) consume(ctx context.Context) error {
	pubsub := b.rdb.Subscribe(ctx, EventChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				b.log.Warn("malformed event envelope", "error", err)
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			b.hub.Publish(env.Message, env.Keys...)
		}
	}
}
