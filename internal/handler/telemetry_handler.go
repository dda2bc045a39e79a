package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-progression-api/internal/dto"
	"github.com/noah-isme/gema-progression-api/internal/service"
	"github.com/noah-isme/gema-progression-api/internal/utils"
)

// TelemetryHandler exposes the recent progression event feed.
type TelemetryHandler struct {
	service service.TelemetryService
	logger  zerolog.Logger
}

// NewTelemetryHandler constructs a telemetry handler.
func NewTelemetryHandler(service service.TelemetryService, logger zerolog.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		service: service,
		logger:  logger.With().Str("component", "telemetry_handler").Logger(),
	}
}

// Register wires telemetry routes.
func (h *TelemetryHandler) Register(router fiber.Router) {
	router.Get("/events", h.listEvents)
}

func (h *TelemetryHandler) listEvents(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing user identity")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	events, err := h.service.ListRecent(c.Context(), userID, limit)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list telemetry events")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list events")
	}

	items := make([]dto.TelemetryEventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, dto.NewTelemetryEventResponse(event))
	}
	return utils.SendSuccess(c, "events retrieved", items)
}
