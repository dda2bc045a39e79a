package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-progression-api/internal/dto"
	"github.com/noah-isme/gema-progression-api/internal/service"
	"github.com/noah-isme/gema-progression-api/internal/utils"
)

// PathHandler exposes curriculum path management and progress reporting.
type PathHandler struct {
	paths   service.PathService
	reports service.PathReportService
	logger  zerolog.Logger
}

// NewPathHandler constructs a path handler.
func NewPathHandler(paths service.PathService, reports service.PathReportService, logger zerolog.Logger) *PathHandler {
	return &PathHandler{
		paths:   paths,
		reports: reports,
		logger:  logger.With().Str("component", "path_handler").Logger(),
	}
}

// Register wires path routes.
func (h *PathHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", h.create)
	router.Post("/generate", h.generate)
	router.Get("/:pathId", h.get)
	router.Put("/:pathId", h.update)
	router.Delete("/:pathId", h.remove)
	router.Post("/:pathId/clone", h.clone)
	router.Put("/:pathId/reorder", h.reorder)
	router.Get("/:pathId/progress", h.progress)
}

func (h *PathHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "pageSize")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page size")
	}
	gradeLevel, err := parseQueryInt(c, "gradeLevel")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid grade level")
	}

	req := dto.PathListRequest{
		Search:       c.Query("search"),
		Subject:      c.Query("subject"),
		GradeLevel:   gradeLevel,
		TemplateOnly: c.QueryBool("templates"),
		Page:         page,
		PageSize:     pageSize,
	}
	if school := c.Query("schoolId"); school != "" {
		req.SchoolID = &school
	}

	result, err := h.paths.List(c.Context(), req)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list paths")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list paths")
	}
	return utils.SendSuccess(c, "paths retrieved", result)
}

func (h *PathHandler) create(c *fiber.Ctx) error {
	var req dto.PathCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	path, err := h.paths.Create(c.Context(), req)
	if err != nil {
		return h.sendPathError(c, err, "failed to create path")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "path created", path)
}

func (h *PathHandler) get(c *fiber.Ctx) error {
	path, err := h.paths.Get(c.Context(), c.Params("pathId"))
	if err != nil {
		return h.sendPathError(c, err, "failed to fetch path")
	}
	return utils.SendSuccess(c, "path retrieved", path)
}

func (h *PathHandler) update(c *fiber.Ctx) error {
	var req dto.PathUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	path, err := h.paths.Update(c.Context(), c.Params("pathId"), req)
	if err != nil {
		return h.sendPathError(c, err, "failed to update path")
	}
	return utils.SendSuccess(c, "path updated", path)
}

func (h *PathHandler) remove(c *fiber.Ctx) error {
	if err := h.paths.Delete(c.Context(), c.Params("pathId")); err != nil {
		return h.sendPathError(c, err, "failed to delete path")
	}
	return utils.SendSuccess(c, "path deleted", nil)
}

func (h *PathHandler) clone(c *fiber.Ctx) error {
	var req dto.PathCloneRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	path, err := h.paths.Clone(c.Context(), c.Params("pathId"), req)
	if err != nil {
		return h.sendPathError(c, err, "failed to clone path")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "path cloned", path)
}

func (h *PathHandler) reorder(c *fiber.Ctx) error {
	var req dto.PathReorderRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	path, err := h.paths.Reorder(c.Context(), c.Params("pathId"), req)
	if err != nil {
		return h.sendPathError(c, err, "failed to reorder path")
	}
	return utils.SendSuccess(c, "path reordered", path)
}

func (h *PathHandler) generate(c *fiber.Ctx) error {
	summary, err := h.paths.GenerateTemplates(c.Context())
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("template generation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "template generation failed")
	}
	return utils.SendSuccess(c, "template generation completed", summary)
}

func (h *PathHandler) progress(c *fiber.Ctx) error {
	userID := userIDFromContext(c)
	if userID == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "missing user identity")
	}

	report, err := h.reports.Report(c.Context(), c.Params("pathId"), userID)
	if err != nil {
		return h.sendPathError(c, err, "failed to build progress report")
	}
	return utils.SendSuccess(c, "progress report", report)
}

func (h *PathHandler) sendPathError(c *fiber.Ctx, err error, fallback string) error {
	if invalid, ok := service.AsInvalidReference(err); ok {
		return utils.SendErrorWithDetails(c, fiber.StatusUnprocessableEntity, "unknown node ids", invalid.Missing)
	}
	switch {
	case errors.Is(err, service.ErrPathNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "path not found")
	case errors.Is(err, service.ErrPathExists):
		return utils.SendError(c, fiber.StatusConflict, "path already exists")
	case errors.Is(err, service.ErrPathProtected):
		return utils.SendError(c, fiber.StatusForbidden, "path is a protected template")
	case errors.Is(err, service.ErrReorderMismatch):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "reorder must be a permutation of the current node ids")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
