package models

import (
	"time"

	"github.com/google/uuid"
)

// Therapy session lifecycle states.
const (
	SessionStatusScheduled  = "scheduled"
	SessionStatusInProgress = "in-progress"
	SessionStatusCompleted  = "completed"
	SessionStatusCancelled  = "cancelled"
)

// Therapy session kinds.
const (
	SessionTypeInitial   = "initial"
	SessionTypeFollowUp  = "follow-up"
	SessionTypeEmergency = "emergency"
	SessionTypeGroup     = "group"
)

// TherapySession is a scheduled appointment between a client and a
// therapist. Actual start/end stay nil until the session actually
// happens.
type TherapySession struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	TherapistID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"therapist_id"`
	Status         string     `gorm:"size:20;not null;default:'scheduled'" json:"status"`
	SessionType    string     `gorm:"size:20;not null" json:"session_type"`
	ScheduledStart time.Time  `gorm:"not null;index" json:"scheduled_start"`
	ScheduledEnd   time.Time  `gorm:"not null" json:"scheduled_end"`
	ActualStart    *time.Time `json:"actual_start"`
	ActualEnd      *time.Time `json:"actual_end"`
	Notes          string     `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
