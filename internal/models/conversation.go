package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a chat thread between a client and the assistant,
// optionally supervised by a therapist. A nil EndTS means the thread is
// open and accepting messages; closing it stamps EndTS exactly once.
type Conversation struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	TherapistID *uuid.UUID `gorm:"type:uuid;index" json:"therapist_id"`
	StartTS     time.Time  `gorm:"column:start_ts;not null" json:"start_ts"`
	EndTS       *time.Time `gorm:"column:end_ts" json:"end_ts"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Open reports whether the conversation still accepts messages.
func (c *Conversation) Open() bool {
	return c.EndTS == nil
}
