package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/dto"
	"github.com/gvargas9/smartterapist/internal/services"
	"github.com/gvargas9/smartterapist/internal/store"
)

type DirectoryHandler struct {
	directory *services.DirectoryService
	store     *store.Store
}

func NewDirectoryHandler(directory *services.DirectoryService, st *store.Store) *DirectoryHandler {
	return &DirectoryHandler{directory: directory, store: st}
}

// ---- users ----

func (h *DirectoryHandler) GetUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	user, err := h.store.GetUser(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(user)
}

func (h *DirectoryHandler) ListUsers(c *fiber.Ctx) error {
	role := c.Query("role", "")
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit > 200 {
		limit = 200
	}

	users, err := h.store.ListUsers(c.Context(), role, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"users":  users,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *DirectoryHandler) UpdateUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	user, err := h.directory.UpdateUser(c.Context(), id, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(user)
}

// DeleteUser removes the account and everything hanging off it.
func (h *DirectoryHandler) DeleteUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid user ID")
	}
	if err := h.store.DeleteUser(c.Context(), id); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "User deleted"})
}

func (h *DirectoryHandler) UserCounts(c *fiber.Ctx) error {
	counts, err := h.directory.Counts(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(counts)
}

// ---- clients ----

func (h *DirectoryHandler) RegisterClient(c *fiber.Ctx) error {
	var req dto.RegisterClientRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	account, err := h.directory.RegisterClient(c.Context(), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(account)
}

func (h *DirectoryHandler) GetClient(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid client ID")
	}
	account, err := h.directory.GetClientAccount(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(account)
}

func (h *DirectoryHandler) ListClients(c *fiber.Ctx) error {
	status := c.Query("status", "")
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit > 200 {
		limit = 200
	}

	var therapistID *uuid.UUID
	if t := c.Query("therapist_id"); t != "" {
		id, err := uuid.Parse(t)
		if err != nil {
			return badRequest(c, "Invalid therapist ID")
		}
		therapistID = &id
	}

	clients, err := h.store.ListClients(c.Context(), status, therapistID, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"clients": clients,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *DirectoryHandler) UpdateClient(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid client ID")
	}
	var req dto.UpdateClientRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	client, err := h.directory.UpdateClient(c.Context(), id, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(client)
}

// DeleteClient removes the care profile and its conversations but
// keeps the identity row.
func (h *DirectoryHandler) DeleteClient(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid client ID")
	}
	if err := h.store.DeleteClient(c.Context(), id); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Client deleted"})
}

func (h *DirectoryHandler) AssignTherapist(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid client ID")
	}
	var req dto.AssignTherapistRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	client, err := h.directory.AssignTherapist(c.Context(), id, req.TherapistID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(client)
}

// ---- therapists ----

func (h *DirectoryHandler) RegisterTherapist(c *fiber.Ctx) error {
	var req dto.RegisterTherapistRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	account, err := h.directory.RegisterTherapist(c.Context(), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(account)
}

func (h *DirectoryHandler) GetTherapist(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid therapist ID")
	}
	account, err := h.directory.GetTherapistAccount(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(account)
}

func (h *DirectoryHandler) ListTherapists(c *fiber.Ctx) error {
	status := c.Query("status", "")
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit > 200 {
		limit = 200
	}

	therapists, err := h.store.ListTherapists(c.Context(), status, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"therapists": therapists,
		"limit":      limit,
		"offset":     offset,
	})
}

func (h *DirectoryHandler) UpdateTherapist(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid therapist ID")
	}
	var req dto.UpdateTherapistRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	therapist, err := h.directory.UpdateTherapist(c.Context(), id, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(therapist)
}

// DeleteTherapist removes the provider profile, detaching clients and
// conversations and dropping scheduled sessions.
func (h *DirectoryHandler) DeleteTherapist(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid therapist ID")
	}
	if err := h.store.DeleteTherapist(c.Context(), id); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Therapist deleted"})
}
