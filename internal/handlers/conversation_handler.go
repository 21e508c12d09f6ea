package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/conversation"
	"github.com/gvargas9/smartterapist/internal/dto"
	"github.com/gvargas9/smartterapist/internal/store"
)

type ConversationHandler struct {
	manager *conversation.Manager
	store   *store.Store
}

func NewConversationHandler(manager *conversation.Manager, st *store.Store) *ConversationHandler {
	return &ConversationHandler{manager: manager, store: st}
}

// Start opens a conversation, or resumes the client's open one when the
// request asks for it.
func (h *ConversationHandler) Start(c *fiber.Ctx) error {
	var req dto.StartConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.ClientID == uuid.Nil {
		return badRequest(c, "client_id is required")
	}

	if req.Resume {
		conv, err := h.manager.Resume(c.Context(), req.ClientID, req.TherapistID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(conv)
	}

	conv, err := h.manager.Start(c.Context(), req.ClientID, req.TherapistID)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

func (h *ConversationHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}
	conv, err := h.manager.Get(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(conv)
}

// ListForClient returns a client's conversations newest first.
func (h *ConversationHandler) ListForClient(c *fiber.Ctx) error {
	clientID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid client ID")
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit > 100 {
		limit = 100
	}

	convs, err := h.store.ListConversations(c.Context(), clientID, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"conversations": convs,
		"limit":         limit,
		"offset":        offset,
	})
}

// Open returns the client's open conversation, or JSON null when every
// conversation is closed.
func (h *ConversationHandler) Open(c *fiber.Ctx) error {
	clientID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid client ID")
	}
	conv, err := h.manager.GetOpen(c.Context(), clientID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(conv)
}

// Append runs a user turn: persist the message, generate and persist
// the assistant reply, and return both.
func (h *ConversationHandler) Append(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}
	var req dto.AppendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := h.manager.Append(c.Context(), id, req.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.AppendResponse{
		Messages: res.Messages,
		Degraded: res.Degraded,
	})
}

// AppendNote records a therapist or system message without invoking
// the assistant.
func (h *ConversationHandler) AppendNote(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}
	var req dto.AppendNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	msg, err := h.manager.AppendFrom(c.Context(), id, req.Sender, req.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// Replay returns the ordered message history. An after query parameter
// (RFC 3339) pages forward from that instant.
func (h *ConversationHandler) Replay(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}

	if after := c.Query("after"); after != "" {
		ts, err := time.Parse(time.RFC3339Nano, after)
		if err != nil {
			return badRequest(c, "Invalid after timestamp")
		}
		limit, _ := strconv.Atoi(c.Query("limit", "100"))
		msgs, err := h.store.ListMessagesAfter(c.Context(), id, ts, limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"messages": msgs})
	}

	msgs, err := h.manager.Replay(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (h *ConversationHandler) Close(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}
	conv, err := h.manager.Close(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(conv)
}

func (h *ConversationHandler) GetSummary(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}
	sum, err := h.store.GetSummary(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(sum)
}

// Summarize regenerates the summary on demand, superseding any earlier
// one.
func (h *ConversationHandler) Summarize(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}
	sum, err := h.manager.Summarize(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(sum)
}

func (h *ConversationHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid conversation ID")
	}
	if err := h.store.DeleteConversation(c.Context(), id); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Conversation deleted"})
}

// Stream upgrades to a websocket and pushes every message persisted in
// the conversation as it lands.
func (h *ConversationHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		id, err := uuid.Parse(conn.Params("id"))
		if err != nil {
			return
		}
		sub := h.manager.Events(id)
		defer sub.Close()

		// Read pump: we never expect client frames, but reading is the
		// only way to notice the peer going away.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
}
