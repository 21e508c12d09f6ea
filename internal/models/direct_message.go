package models

import (
	"time"

	"github.com/google/uuid"
)

// DirectMessage is out-of-band mail between two users, typically a
// therapist nudging a client between sessions. It lives outside
// conversations and never passes through the assistant.
type DirectMessage struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID    uuid.UUID `gorm:"type:uuid;not null;index" json:"sender_id"`
	RecipientID uuid.UUID `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	Read        bool      `gorm:"not null;default:false" json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}
