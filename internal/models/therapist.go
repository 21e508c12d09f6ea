package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Therapist is a care provider profile linked to a user account.
// Credentials and availability are free-form documents owned by the
// practice-management side; the core only stores and serves them.
type Therapist struct {
	ID           uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Specialties  datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"specialties"`
	Credentials  datatypes.JSON              `gorm:"type:jsonb;default:'{}'" json:"credentials"`
	Availability datatypes.JSON              `gorm:"type:jsonb;default:'{}'" json:"availability"`
	Status       string                      `gorm:"size:20;not null;default:'active'" json:"status"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}
