package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Sentiment trend labels over a conversation.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// SentimentMetrics aggregates the scored messages of a conversation.
// Unscored messages do not contribute; Trend compares the last scored
// message against the first.
type SentimentMetrics struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Trend   string  `json:"trend"`
}

// Summary is the per-conversation digest. ConversationID is unique, so
// regeneration overwrites in place. MessageCount records how many
// messages the conversation had when the summary was produced, which is
// how the synthesizer knows a summary has gone stale.
type Summary struct {
	ID               uuid.UUID                            `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID   uuid.UUID                            `gorm:"type:uuid;not null;uniqueIndex" json:"conversation_id"`
	SummaryText      string                               `gorm:"type:text;not null" json:"summary_text"`
	SentimentMetrics datatypes.JSONType[SentimentMetrics] `gorm:"type:jsonb" json:"sentiment_metrics"`
	MessageCount     int                                  `gorm:"not null;default:0" json:"message_count"`
	CreatedAt        time.Time                            `json:"created_at"`
	UpdatedAt        time.Time                            `json:"updated_at"`
}
