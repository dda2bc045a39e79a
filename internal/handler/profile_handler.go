package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-progression-api/internal/dto"
	"github.com/noah-isme/gema-progression-api/internal/service"
	"github.com/noah-isme/gema-progression-api/internal/utils"
)

// ProfileHandler exposes the learner gamification profile and the daily goal
// claim.
type ProfileHandler struct {
	ledger service.GamificationService
	logger zerolog.Logger
}

// NewProfileHandler constructs a profile handler.
func NewProfileHandler(ledger service.GamificationService, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{
		ledger: ledger,
		logger: logger.With().Str("component", "profile_handler").Logger(),
	}
}

// Register wires profile routes.
func (h *ProfileHandler) Register(router fiber.Router) {
	router.Get("/", h.get)
	router.Post("/daily-goal/claim", h.claimDailyGoal)
}

func (h *ProfileHandler) get(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing user identity")
	}

	profile, err := h.ledger.GetProfile(c.Context(), userID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to load profile")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to load profile")
	}
	return utils.SendSuccess(c, "profile retrieved", dto.NewProfileResponse(profile))
}

func (h *ProfileHandler) claimDailyGoal(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing user identity")
	}

	profile, err := h.ledger.ClaimDailyGoal(c.Context(), userID)
	switch {
	case errors.Is(err, service.ErrDailyGoalNotMet):
		return utils.SendError(c, fiber.StatusPreconditionFailed, "daily goal not met")
	case errors.Is(err, service.ErrDailyGoalClaimed):
		return utils.SendError(c, fiber.StatusConflict, "daily goal already claimed")
	case err != nil:
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to claim daily goal")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to claim daily goal")
	}
	return utils.SendSuccess(c, "daily goal claimed", dto.NewProfileResponse(profile))
}
