package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"canvas-backend/internal/presence"
)

// HealthHandler reports component status for the sync backend.
type HealthHandler struct {
	db     *gorm.DB
	mirror *presence.Mirror
}

// NewHealthHandler builds a health handler; mirror may be nil when the
// presence mirror is disabled.
func NewHealthHandler(db *gorm.DB, mirror *presence.Mirror) *HealthHandler {
	return &HealthHandler{db: db, mirror: mirror}
}

// ComponentCheck is the status of one dependency.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the full health report.
type HealthResponse struct {
	Status    string                    `json:"status"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]ComponentCheck `json:"checks"`
}

// Check pings the database and presence mirror.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    make(map[string]ComponentCheck),
	}

	dbStart := time.Now()
	sqlDB, err := h.db.DB()
	if err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "failed to get database connection",
		}
	} else if err := sqlDB.Ping(); err != nil {
		response.Status = "unhealthy"
		response.Checks["database"] = ComponentCheck{
			Status: "unhealthy",
			Error:  "database ping failed",
		}
	} else {
		response.Checks["database"] = ComponentCheck{
			Status:  "healthy",
			Latency: time.Since(dbStart).String(),
		}
	}

	if h.mirror != nil {
		redisStart := time.Now()
		if err := h.mirror.Ping(c.Context()); err != nil {
			// the mirror is best-effort, so a dead redis degrades
			// rather than fails the service
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
			response.Checks["redis"] = ComponentCheck{
				Status: "unhealthy",
				Error:  "redis ping failed",
			}
		} else {
			response.Checks["redis"] = ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(redisStart).String(),
			}
		}
	}

	code := fiber.StatusOK
	if response.Status == "unhealthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(response)
}

// Live is the liveness probe.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
