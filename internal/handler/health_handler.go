package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-progression-api/internal/config"
	"github.com/noah-isme/gema-progression-api/internal/utils"
)

// HealthHandler reports liveness and readiness. Readiness pings the stores
// the engine cannot serve without.
type HealthHandler struct {
	cfg     config.Config
	db      *gorm.DB
	cache   *redis.Client
	started time.Time
}

// NewHealthHandler constructs a health handler. cache may be nil when no
// report cache is wired.
func NewHealthHandler(cfg config.Config, db *gorm.DB, cache *redis.Client) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, cache: cache, started: time.Now().UTC()}
}

// HealthResponse is the payload returned by the health endpoints.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
	Service       string            `json:"service"`
	Environment   string            `json:"environment"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// Live reports that the process is up.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "service healthy", h.payload("ok", nil))
}

// Ready verifies the backing stores and returns 503 when any is unreachable.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	checks := map[string]string{}
	healthy := true

	checks["database"] = "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else if err := sqlDB.PingContext(c.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}

	if h.cache != nil {
		checks["redis"] = "ok"
		if err := h.cache.Ping(c.Context()).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(utils.APIResponse{
			Success: false,
			Message: "service degraded",
			Data:    h.payload("degraded", checks),
		})
	}
	return utils.SendSuccess(c, "service ready", h.payload("ok", checks))
}

func (h *HealthHandler) payload(status string, checks map[string]string) HealthResponse {
	return HealthResponse{
		Status:        status,
		Timestamp:     time.Now().UTC(),
		Service:       h.cfg.AppName,
		Environment:   h.cfg.AppEnv,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Checks:        checks,
	}
}
