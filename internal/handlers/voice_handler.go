package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/conversation"
	"github.com/gvargas9/smartterapist/internal/dto"
	"github.com/gvargas9/smartterapist/internal/voice"
)

type VoiceHandler struct {
	adapter *voice.Adapter
	manager *conversation.Manager
}

func NewVoiceHandler(adapter *voice.Adapter, manager *conversation.Manager) *VoiceHandler {
	return &VoiceHandler{adapter: adapter, manager: manager}
}

// Turn transcribes an uploaded recording and runs the transcript
// through the normal append protocol. An optional audio_url form field
// keeps a reference to where the UI stored the recording.
func (h *VoiceHandler) Turn(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}
	fh, err := c.FormFile("audio")
	if err != nil {
		return badRequest(c, "audio file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "audio file is not readable")
	}
	defer f.Close()

	transcript, err := h.adapter.SpeechToText(c.Context(), f, fh.Filename, c.FormValue("language"))
	if err != nil {
		return fail(c, err)
	}

	res, err := h.manager.AppendVoice(c.Context(), id, transcript, c.FormValue("audio_url"))
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.VoiceTurnResponse{
		Transcript: transcript,
		Messages:   res.Messages,
		Degraded:   res.Degraded,
	})
}

// Speak renders text to audio for playback. A synthesis failure never
// touches the stored conversation; the text reply already persisted.
func (h *VoiceHandler) Speak(c *fiber.Ctx) error {
	var req dto.SpeakRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	audio, err := h.adapter.TextToSpeech(c.Context(), req.Text, voice.SynthesisOptions{
		Voice: req.Voice,
		Speed: req.Speed,
		Pitch: req.Pitch,
	})
	if err != nil {
		return fail(c, err)
	}
	c.Set(fiber.HeaderContentType, "audio/mpeg")
	return c.Send(audio)
}
