package store

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const mirrorChannel = "store:changes"

type envelope struct {
	Origin string `json:"origin"`
	Event
}

// Mirror relays row change events through Redis pub/sub so subscribers
// on other instances see writes made here, and vice versa. Events
// published by this instance are suppressed on the way back in.
type Mirror struct {
	rdb    *redis.Client
	feed   *Feed
	origin string
}

func NewMirror(rdb *redis.Client, feed *Feed) *Mirror {
	return &Mirror{rdb: rdb, feed: feed, origin: uuid.NewString()}
}

// Forward pushes a locally produced event to the shared channel.
// Best-effort: a Redis failure is logged, never surfaced to the write.
func (m *Mirror) Forward(ctx context.Context, ev Event) {
	payload, err := json.Marshal(envelope{Origin: m.origin, Event: ev})
	if err != nil {
		slog.Warn("event mirror marshal failed", "table", ev.Table, "error", err)
		return
	}
	if err := m.rdb.Publish(ctx, mirrorChannel, payload).Err(); err != nil {
		slog.Warn("event mirror publish failed", "table", ev.Table, "error", err)
	}
}

// Run republishes remote events into the local feed until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	pubsub := m.rdb.Subscribe(ctx, mirrorChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("event mirror received undecodable payload", "error", err)
				continue
			}
			if env.Origin == m.origin {
				continue
			}
			m.feed.Publish(env.Event)
		}
	}
}
