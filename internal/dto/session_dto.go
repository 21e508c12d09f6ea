package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	ClientID       uuid.UUID `json:"client_id"`
	TherapistID    uuid.UUID `json:"therapist_id"`
	SessionType    string    `json:"session_type"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
	Notes          string    `json:"notes,omitempty"`
}

type RescheduleSessionRequest struct {
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
}

type SessionNotesRequest struct {
	Notes string `json:"notes"`
}

type SendDirectMessageRequest struct {
	RecipientID uuid.UUID `json:"recipient_id"`
	Content     string    `json:"content"`
}

type UnreadCountResponse struct {
	Unread int64 `json:"unread"`
}
