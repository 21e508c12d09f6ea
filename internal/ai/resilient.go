package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/gvargas9/smartterapist/internal/sentiment"
	"github.com/gvargas9/smartterapist/internal/store"
)

// Resilient wraps a Generator with the turn policy: a soft per-attempt
// timeout, one retry after a backoff when the failure is transient,
// and a safe fallback reply when the generator stays down. Caller
// cancellation is never converted into a fallback.
type Resilient struct {
	inner   Generator
	timeout time.Duration
	backoff time.Duration
}

func NewResilient(inner Generator, timeout, backoff time.Duration) *Resilient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if backoff < 500*time.Millisecond {
		backoff = 500 * time.Millisecond
	}
	return &Resilient{inner: inner, timeout: timeout, backoff: backoff}
}

func (r *Resilient) Respond(ctx context.Context, req Request) (Reply, error) {
	const op = "ai.respond"

	reply, err := r.attempt(ctx, req)
	if err == nil {
		return reply, nil
	}
	if ctx.Err() != nil {
		return Reply{}, store.E(op, store.KindCancelled, ctx.Err())
	}

	if store.IsTransient(err) {
		slog.Warn("generator attempt failed, retrying once",
			"conversation_id", req.ConversationID, "backoff", r.backoff, "error", err)
		select {
		case <-time.After(r.backoff):
		case <-ctx.Done():
			return Reply{}, store.E(op, store.KindCancelled, ctx.Err())
		}
		if reply, err = r.attempt(ctx, req); err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return Reply{}, store.E(op, store.KindCancelled, ctx.Err())
		}
	}

	slog.Error("generator unavailable, serving fallback reply",
		"conversation_id", req.ConversationID, "error", err)
	neutral := sentiment.Neutral
	return Reply{Text: FallbackText, Sentiment: &neutral, Degraded: true}, nil
}

func (r *Resilient) attempt(ctx context.Context, req Request) (Reply, error) {
	actx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.inner.Respond(actx, req)
}
