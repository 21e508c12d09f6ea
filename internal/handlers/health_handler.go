package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gvargas9/smartterapist/internal/database"
	"github.com/gvargas9/smartterapist/internal/dto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewHealthHandler(db *gorm.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := database.Ping(h.db); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	cacheStatus := "disabled"
	if h.rdb != nil {
		cacheStatus = "ok"
		if err := h.rdb.Ping(c.Context()).Err(); err != nil {
			cacheStatus = "unhealthy: " + err.Error()
		}
	}

	return c.JSON(dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		Cache:     cacheStatus,
	})
}
