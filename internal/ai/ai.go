package ai

import (
	"context"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/models"
)

// FallbackText is the assistant reply served when no generator can
// produce one.
const FallbackText = "I hear you. Can you say more about that?"

// Request is one turn handed to the generator. History carries the
// recent turns of the conversation oldest first; Preset, when set,
// shapes the assistant's voice.
type Request struct {
	ConversationID uuid.UUID
	UserText       string
	Preset         *models.Behavior
	History        []models.Message
}

// Reply is a generated assistant turn. Sentiment, when the generator
// scored its own reply, lies in [0,1] and takes precedence over
// re-scoring the text; nil means the caller should score it. Degraded
// marks a fallback produced after the primary path failed.
type Reply struct {
	Text      string
	Sentiment *float64
	Degraded  bool
}

// Generator produces the assistant side of a conversation turn.
// Implementations respect ctx for cancellation and deadlines.
type Generator interface {
	Respond(ctx context.Context, req Request) (Reply, error)
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
