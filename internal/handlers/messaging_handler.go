package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/dto"
	"github.com/gvargas9/smartterapist/internal/middleware"
	"github.com/gvargas9/smartterapist/internal/services"
)

type MessagingHandler struct {
	messaging *services.MessagingService
}

func NewMessagingHandler(messaging *services.MessagingService) *MessagingHandler {
	return &MessagingHandler{messaging: messaging}
}

func (h *MessagingHandler) Send(c *fiber.Ctx) error {
	senderID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req dto.SendDirectMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	dm, err := h.messaging.Send(c.Context(), senderID, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dm)
}

// Thread returns the caller's two-way history with another user.
func (h *MessagingHandler) Thread(c *fiber.Ctx) error {
	callerID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	otherID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit > 200 {
		limit = 200
	}

	msgs, err := h.messaging.Thread(c.Context(), callerID, otherID, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"messages": msgs,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *MessagingHandler) MarkRead(c *fiber.Ctx) error {
	callerID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid message ID")
	}
	dm, err := h.messaging.MarkRead(c.Context(), callerID, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dm)
}

func (h *MessagingHandler) UnreadCount(c *fiber.Ctx) error {
	callerID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	n, err := h.messaging.UnreadCount(c.Context(), callerID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.UnreadCountResponse{Unread: n})
}
