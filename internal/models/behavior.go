package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Behavior is a named coaching preset: a prompt template plus metadata.
// IsActive gates assignability only; already-assigned presets keep
// working after deactivation.
type Behavior struct {
	ID             uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string                      `gorm:"size:120;not null;index" json:"name"`
	Description    string                      `gorm:"type:text" json:"description"`
	PromptTemplate string                      `gorm:"type:text;not null" json:"prompt_template"`
	Tags           datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"tags"`
	IsActive       bool                        `gorm:"not null;default:true" json:"is_active"`
	CreatedBy      uuid.UUID                   `gorm:"type:uuid;index" json:"created_by"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// ClientBehavior links a client to a coaching preset. At most one link
// per client has Active set; flipping assignments toggles rows rather
// than deleting them, preserving assignment history.
type ClientBehavior struct {
	ClientID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"client_id"`
	BehaviorID uuid.UUID `gorm:"type:uuid;primaryKey" json:"behavior_id"`
	Active     bool      `gorm:"not null;default:false" json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
