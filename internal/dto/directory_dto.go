package dto

import (
	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/models"
	"gorm.io/datatypes"
)

type RegisterClientRequest struct {
	Email       string         `json:"email"`
	FirstName   string         `json:"first_name"`
	LastName    string         `json:"last_name"`
	Phone       string         `json:"phone"`
	TherapistID *uuid.UUID     `json:"therapist_id,omitempty"`
	ProfileData datatypes.JSON `json:"profile_data,omitempty"`
}

type RegisterTherapistRequest struct {
	Email        string         `json:"email"`
	FirstName    string         `json:"first_name"`
	LastName     string         `json:"last_name"`
	Phone        string         `json:"phone"`
	Specialties  []string       `json:"specialties,omitempty"`
	Credentials  datatypes.JSON `json:"credentials,omitempty"`
	Availability datatypes.JSON `json:"availability,omitempty"`
}

type UpdateUserRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
}

type UpdateClientRequest struct {
	Status          *string        `json:"status"`
	IntakeCompleted *bool          `json:"intake_completed"`
	TherapistID     *uuid.UUID     `json:"therapist_id"`
	ProfileData     datatypes.JSON `json:"profile_data"`
}

type UpdateTherapistRequest struct {
	Status       *string        `json:"status"`
	Specialties  []string       `json:"specialties"`
	Credentials  datatypes.JSON `json:"credentials"`
	Availability datatypes.JSON `json:"availability"`
}

type AssignTherapistRequest struct {
	TherapistID *uuid.UUID `json:"therapist_id"`
}

type ClientAccountResponse struct {
	User   models.User   `json:"user"`
	Client models.Client `json:"client"`
}

type TherapistAccountResponse struct {
	User      models.User      `json:"user"`
	Therapist models.Therapist `json:"therapist"`
}

type UserCountsResponse struct {
	Clients    int64 `json:"clients"`
	Therapists int64 `json:"therapists"`
	Admins     int64 `json:"admins"`
	Total      int64 `json:"total"`
}
