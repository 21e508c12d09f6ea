package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Client lifecycle states.
const (
	ClientStatusActive   = "active"
	ClientStatusInactive = "inactive"
	ClientStatusArchived = "archived"
)

// Client is a care recipient profile. TherapistID is nil until the
// client is matched with a therapist.
type Client struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	TherapistID     *uuid.UUID     `gorm:"type:uuid;index" json:"therapist_id"`
	Status          string         `gorm:"size:20;not null;default:'active'" json:"status"`
	IntakeCompleted bool           `gorm:"not null;default:false" json:"intake_completed"`
	ProfileData     datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"profile_data"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
