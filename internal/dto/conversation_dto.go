package dto

import (
	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/models"
)

type StartConversationRequest struct {
	ClientID    uuid.UUID  `json:"client_id"`
	TherapistID *uuid.UUID `json:"therapist_id,omitempty"`
	Resume      bool       `json:"resume"`
}

type AppendMessageRequest struct {
	Text string `json:"text"`
}

type AppendNoteRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type AppendResponse struct {
	Messages []models.Message `json:"messages"`
	Degraded bool             `json:"degraded"`
}

type VoiceTurnResponse struct {
	Transcript string           `json:"transcript"`
	Messages   []models.Message `json:"messages"`
	Degraded   bool             `json:"degraded"`
}

type SpeakRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`
}

type CreateBehaviorRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	PromptTemplate string   `json:"prompt_template"`
	Tags           []string `json:"tags,omitempty"`
}

type UpdateBehaviorRequest struct {
	Name           *string  `json:"name"`
	Description    *string  `json:"description"`
	PromptTemplate *string  `json:"prompt_template"`
	Tags           []string `json:"tags"`
	IsActive       *bool    `json:"is_active"`
}

type AssignBehaviorRequest struct {
	BehaviorID uuid.UUID `json:"behavior_id"`
	Active     *bool     `json:"active"`
}
