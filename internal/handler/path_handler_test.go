package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-progression-api/internal/dto"
	"github.com/noah-isme/gema-progression-api/internal/handler"
	"github.com/noah-isme/gema-progression-api/internal/service"
)

type stubPathService struct {
	path    dto.PathResponse
	list    dto.PathListResult
	summary dto.GenerationSummary
	err     error
}

func (s stubPathService) Create(context.Context, dto.PathCreateRequest) (dto.PathResponse, error) {
	return s.path, s.err
}

func (s stubPathService) Get(context.Context, string) (dto.PathResponse, error) {
	return s.path, s.err
}

func (s stubPathService) List(context.Context, dto.PathListRequest) (dto.PathListResult, error) {
	return s.list, s.err
}

func (s stubPathService) Update(context.Context, string, dto.PathUpdateRequest) (dto.PathResponse, error) {
	return s.path, s.err
}

func (s stubPathService) Reorder(context.Context, string, dto.PathReorderRequest) (dto.PathResponse, error) {
	return s.path, s.err
}

func (s stubPathService) Clone(context.Context, string, dto.PathCloneRequest) (dto.PathResponse, error) {
	return s.path, s.err
}

func (s stubPathService) Delete(context.Context, string) error {
	return s.err
}

func (s stubPathService) GenerateTemplates(context.Context) (dto.GenerationSummary, error) {
	return s.summary, s.err
}

type stubReportService struct {
	report dto.PathProgressReport
	err    error
}

func (s stubReportService) Report(context.Context, string, string) (dto.PathProgressReport, error) {
	return s.report, s.err
}

func (s stubReportService) InvalidateUser(context.Context, string) {}

func newPathApp(paths service.PathService, reports service.PathReportService) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "student-1")
		return c.Next()
	})
	handler.NewPathHandler(paths, reports, zerolog.Nop()).Register(app.Group("/api/v1/paths"))
	return app
}

func TestPathHandlerCreate(t *testing.T) {
	svc := stubPathService{path: dto.PathResponse{PathID: "path-1", Name: "Aljabar", TotalXP: 30}}
	app := newPathApp(svc, stubReportService{})

	body, err := json.Marshal(map[string]interface{}{
		"name":     "Aljabar",
		"node_ids": []string{"node-1", "node-2"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/paths/", bytes.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestPathHandlerCreateUnknownNodes(t *testing.T) {
	svc := stubPathService{err: &service.InvalidReferenceError{Missing: []string{"node-x"}}}
	app := newPathApp(svc, stubReportService{})

	body, err := json.Marshal(map[string]interface{}{"name": "Broken", "node_ids": []string{"node-x"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/paths/", bytes.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var payload struct {
		Success bool     `json:"success"`
		Details []string `json:"details"`
	}
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.False(t, payload.Success)
	require.Equal(t, []string{"node-x"}, payload.Details)
}

func TestPathHandlerDeleteProtected(t *testing.T) {
	app := newPathApp(stubPathService{err: service.ErrPathProtected}, stubReportService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/paths/template-1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPathHandlerReorderMismatch(t *testing.T) {
	app := newPathApp(stubPathService{err: service.ErrReorderMismatch}, stubReportService{})

	body, err := json.Marshal(map[string]interface{}{"node_ids": []string{"node-1"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/paths/path-1/reorder", bytes.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPathHandlerProgressReport(t *testing.T) {
	reports := stubReportService{report: dto.PathProgressReport{PathID: "path-1", UserID: "student-1", TotalNodes: 3, CompletedNodes: 1}}
	app := newPathApp(stubPathService{}, reports)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/paths/path-1/progress", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Data dto.PathProgressReport `json:"data"`
	}
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, 3, payload.Data.TotalNodes)
	require.Equal(t, 1, payload.Data.CompletedNodes)
}

func TestPathHandlerGetNotFound(t *testing.T) {
	app := newPathApp(stubPathService{err: service.ErrPathNotFound}, stubReportService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/paths/path-zz", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
