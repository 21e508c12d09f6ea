package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/behavior"
	"github.com/gvargas9/smartterapist/internal/dto"
	"github.com/gvargas9/smartterapist/internal/middleware"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/gvargas9/smartterapist/internal/store"
	"gorm.io/datatypes"
)

type BehaviorHandler struct {
	resolver *behavior.Resolver
	store    *store.Store
}

func NewBehaviorHandler(resolver *behavior.Resolver, st *store.Store) *BehaviorHandler {
	return &BehaviorHandler{resolver: resolver, store: st}
}

func (h *BehaviorHandler) Create(c *fiber.Ctx) error {
	creatorID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	var req dto.CreateBehaviorRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	b := &models.Behavior{
		Name:           req.Name,
		Description:    req.Description,
		PromptTemplate: req.PromptTemplate,
		Tags:           datatypes.NewJSONSlice(req.Tags),
		IsActive:       true,
		CreatedBy:      creatorID,
	}
	if err := h.store.CreateBehavior(c.Context(), b); err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(b)
}

func (h *BehaviorHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid behavior ID")
	}
	b, err := h.store.GetBehavior(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(b)
}

func (h *BehaviorHandler) List(c *fiber.Ctx) error {
	activeOnly := c.Query("active") == "true"
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit > 200 {
		limit = 200
	}

	behaviors, err := h.store.ListBehaviors(c.Context(), activeOnly, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"behaviors": behaviors,
		"limit":     limit,
		"offset":    offset,
	})
}

func (h *BehaviorHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid behavior ID")
	}
	var req dto.UpdateBehaviorRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	b, err := h.store.GetBehavior(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	if req.Name != nil {
		b.Name = *req.Name
	}
	if req.Description != nil {
		b.Description = *req.Description
	}
	if req.PromptTemplate != nil {
		b.PromptTemplate = *req.PromptTemplate
	}
	if req.Tags != nil {
		b.Tags = datatypes.NewJSONSlice(req.Tags)
	}
	if req.IsActive != nil {
		b.IsActive = *req.IsActive
	}
	if err := h.store.UpdateBehavior(c.Context(), b); err != nil {
		return fail(c, err)
	}
	return c.JSON(b)
}

func (h *BehaviorHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid behavior ID")
	}
	if err := h.store.DeleteBehavior(c.Context(), id); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Behavior deleted"})
}

// Assign activates or records a preset for a client. Activating
// displaces any other active assignment in the same transaction.
func (h *BehaviorHandler) Assign(c *fiber.Ctx) error {
	clientID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid client ID")
	}
	var req dto.AssignBehaviorRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.BehaviorID == uuid.Nil {
		return badRequest(c, "behavior_id is required")
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	asg, err := h.resolver.Assign(c.Context(), clientID, req.BehaviorID, active)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(asg)
}

func (h *BehaviorHandler) Unassign(c *fiber.Ctx) error {
	clientID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid client ID")
	}
	behaviorID, err := uuid.Parse(c.Params("behaviorId"))
	if err != nil {
		return badRequest(c, "Invalid behavior ID")
	}
	if err := h.resolver.Unassign(c.Context(), clientID, behaviorID); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "Behavior unassigned"})
}

func (h *BehaviorHandler) ListAssignments(c *fiber.Ctx) error {
	clientID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid client ID")
	}
	activeOnly := c.Query("active") == "true"

	asgs, err := h.store.ListAssignments(c.Context(), clientID, activeOnly)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"assignments": asgs})
}

// Resolve returns the client's effective preset, or JSON null when no
// assignment is active.
func (h *BehaviorHandler) Resolve(c *fiber.Ctx) error {
	clientID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid client ID")
	}
	preset, err := h.resolver.Resolve(c.Context(), clientID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(preset)
}
