package models

import (
	"time"

	"github.com/google/uuid"
)

// Message sender kinds. System messages are service notices (degraded
// assistant replies, conversation lifecycle notes) rather than chat turns.
const (
	SenderUser      = "user"
	SenderAI        = "ai"
	SenderTherapist = "therapist"
	SenderSystem    = "system"
)

// Message is a single turn inside a conversation. Timestamp is assigned
// by the store on insert and is strictly increasing per conversation, so
// (conversation_id, timestamp) gives a stable total order.
// SentimentScore is nil until scored; scored values live in [0,1] with
// 0.5 neutral.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_conv_ts,priority:1" json:"conversation_id"`
	Sender         string    `gorm:"size:20;not null" json:"sender"`
	Text           string    `gorm:"type:text;not null" json:"text"`
	AudioURL       string    `gorm:"size:500" json:"audio_url,omitempty"`
	Timestamp      time.Time `gorm:"not null;index:idx_messages_conv_ts,priority:2" json:"timestamp"`
	SentimentScore *float64  `json:"sentiment_score"`
	CreatedAt      time.Time `json:"created_at"`
}
