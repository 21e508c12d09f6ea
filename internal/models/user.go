package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles a user account can hold. Role is fixed at creation and drives
// authorization everywhere downstream.
const (
	RoleClient    = "client"
	RoleTherapist = "therapist"
	RoleAdmin     = "admin"
)

// User is the shared identity record. Client and therapist profiles both
// hang off a user row; role tells them apart.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"not null;size:255;uniqueIndex" json:"email"`
	Role      string    `gorm:"size:20;not null" json:"role"`
	FirstName string    `gorm:"size:100" json:"first_name"`
	LastName  string    `gorm:"size:100" json:"last_name"`
	Phone     string    `gorm:"size:30" json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
