package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gvargas9/smartterapist/internal/dto"
	"github.com/gvargas9/smartterapist/internal/store"
)

// statusOf maps error kinds onto HTTP statuses so every endpoint
// reports failures the same way.
func statusOf(err error) int {
	switch store.KindOf(err) {
	case store.KindNotFound:
		return fiber.StatusNotFound
	case store.KindConflict:
		return fiber.StatusConflict
	case store.KindInvalid:
		return fiber.StatusBadRequest
	case store.KindPermissionDenied:
		return fiber.StatusForbidden
	case store.KindTransient:
		return fiber.StatusServiceUnavailable
	case store.KindCancelled:
		return fiber.StatusRequestTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// fail renders err with its mapped status. Server-side detail stays in
// the logs; clients only see it for 4xx responses.
func fail(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	message := err.Error()
	if status >= 500 {
		slog.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err,
		)
		message = "Internal server error"
		if status == fiber.StatusServiceUnavailable {
			message = "Temporarily unavailable, please retry"
		}
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: message})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: message})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: "Unauthorized"})
}
