package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-progression-api/internal/dto"
	"github.com/noah-isme/gema-progression-api/internal/service"
	"github.com/noah-isme/gema-progression-api/internal/utils"
)

// ProgressionHandler exposes lesson completion, quiz submission and lesson
// view tracking.
type ProgressionHandler struct {
	service service.ProgressionService
	logger  zerolog.Logger
}

// NewProgressionHandler constructs a progression handler.
func NewProgressionHandler(service service.ProgressionService, logger zerolog.Logger) *ProgressionHandler {
	return &ProgressionHandler{
		service: service,
		logger:  logger.With().Str("component", "progression_handler").Logger(),
	}
}

// Register wires progression routes.
func (h *ProgressionHandler) Register(router fiber.Router) {
	router.Post("/initialize", h.initialize)
	router.Post("/nodes/:nodeId/complete", h.completeNode)
	router.Post("/nodes/:nodeId/lesson-view", h.markLessonViewed)
	router.Post("/quiz", h.submitQuiz)
}

func (h *ProgressionHandler) initialize(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing user identity")
	}

	bootstrap, err := h.service.InitializeLearner(c.Context(), userID)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to initialize learner")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to initialize learner")
	}
	return utils.SendSuccess(c, "learner initialized", bootstrap)
}

func (h *ProgressionHandler) completeNode(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing user identity")
	}
	nodeID := c.Params("nodeId")

	result, err := h.service.CompleteNode(c.Context(), userID, nodeID)
	if err != nil {
		return h.sendProgressionError(c, err, "failed to complete node")
	}
	return utils.SendSuccess(c, "node completed", result)
}

func (h *ProgressionHandler) markLessonViewed(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing user identity")
	}

	var body struct {
		TimeSpentSeconds int `json:"time_spent_seconds"`
	}
	if err := c.BodyParser(&body); err != nil && len(c.Body()) > 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	req := dto.LessonViewRequest{
		UserID:           userID,
		NodeID:           c.Params("nodeId"),
		TimeSpentSeconds: body.TimeSpentSeconds,
	}
	progress, err := h.service.MarkLessonViewed(c.Context(), req)
	if err != nil {
		return h.sendProgressionError(c, err, "failed to record lesson view")
	}
	return utils.SendSuccess(c, "lesson view recorded", progress)
}

func (h *ProgressionHandler) submitQuiz(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing user identity")
	}

	var req dto.QuizSubmissionRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.UserID = userID

	result, err := h.service.SubmitQuiz(c.Context(), req)
	if err != nil {
		return h.sendProgressionError(c, err, "failed to submit quiz")
	}
	return utils.SendSuccess(c, "quiz submitted", result)
}

func (h *ProgressionHandler) sendProgressionError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, service.ErrNodeNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "node not found")
	case errors.Is(err, service.ErrNodeLocked):
		return utils.SendError(c, fiber.StatusPreconditionFailed, "node is locked")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
