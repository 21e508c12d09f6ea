package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/dto"
	"github.com/gvargas9/smartterapist/internal/services"
	"github.com/gvargas9/smartterapist/internal/store"
)

type SessionHandler struct {
	sessions *services.SessionService
	store    *store.Store
}

func NewSessionHandler(sessions *services.SessionService, st *store.Store) *SessionHandler {
	return &SessionHandler{sessions: sessions, store: st}
}

func (h *SessionHandler) Schedule(c *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	ts, err := h.sessions.Schedule(c.Context(), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ts)
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid session ID")
	}
	ts, err := h.store.GetTherapySession(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(ts)
}

// List filters sessions by participant, status and scheduled window.
func (h *SessionHandler) List(c *fiber.Ctx) error {
	var f store.SessionFilter

	if v := c.Query("client_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return badRequest(c, "Invalid client ID")
		}
		f.ClientID = &id
	}
	if v := c.Query("therapist_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return badRequest(c, "Invalid therapist ID")
		}
		f.TherapistID = &id
	}
	f.Status = c.Query("status", "")
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, "Invalid from timestamp")
		}
		f.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, "Invalid to timestamp")
		}
		f.To = &t
	}
	f.Limit, _ = strconv.Atoi(c.Query("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.Query("offset", "0"))
	if f.Limit > 200 {
		f.Limit = 200
	}

	sessions, err := h.store.ListTherapySessions(c.Context(), f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"sessions": sessions,
		"limit":    f.Limit,
		"offset":   f.Offset,
	})
}

func (h *SessionHandler) Begin(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid session ID")
	}
	ts, err := h.sessions.Begin(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(ts)
}

func (h *SessionHandler) Complete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid session ID")
	}
	ts, err := h.sessions.Complete(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(ts)
}

func (h *SessionHandler) Cancel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid session ID")
	}
	ts, err := h.sessions.Cancel(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(ts)
}

func (h *SessionHandler) Reschedule(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid session ID")
	}
	var req dto.RescheduleSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	ts, err := h.sessions.Reschedule(c.Context(), id, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(ts)
}

func (h *SessionHandler) SetNotes(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid session ID")
	}
	var req dto.SessionNotesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	ts, err := h.sessions.SetNotes(c.Context(), id, req.Notes)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(ts)
}

func (h *SessionHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid session ID")
	}
	if err := h.store.DeleteTherapySession(c.Context(), id); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Session deleted"})
}
