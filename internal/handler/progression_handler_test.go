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
	"github.com/noah-isme/gema-progression-api/internal/models"
	"github.com/noah-isme/gema-progression-api/internal/service"
)

type stubProgressionService struct {
	bootstrap  dto.LearnerBootstrap
	completion dto.CompletionResult
	quiz       dto.QuizResult
	progress   models.Progress
	err        error
}

func (s stubProgressionService) InitializeLearner(context.Context, string) (dto.LearnerBootstrap, error) {
	return s.bootstrap, s.err
}

func (s stubProgressionService) CompleteNode(context.Context, string, string) (dto.CompletionResult, error) {
	return s.completion, s.err
}

func (s stubProgressionService) SubmitQuiz(context.Context, dto.QuizSubmissionRequest) (dto.QuizResult, error) {
	return s.quiz, s.err
}

func (s stubProgressionService) MarkLessonViewed(context.Context, dto.LessonViewRequest) (models.Progress, error) {
	return s.progress, s.err
}

func newProgressionApp(svc service.ProgressionService, userID string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals("user_id", userID)
		}
		return c.Next()
	})
	handler.NewProgressionHandler(svc, zerolog.Nop()).Register(app.Group("/api/v1/progression"))
	return app
}

func TestProgressionHandlerCompleteNode(t *testing.T) {
	svc := stubProgressionService{
		completion: dto.CompletionResult{NodeID: "node-a", XPEarned: 10},
	}
	app := newProgressionApp(svc, "student-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/progression/nodes/node-a/complete", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			NodeID   string `json:"node_id"`
			XPEarned int    `json:"xp_earned"`
		} `json:"data"`
	}
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.True(t, payload.Success)
	require.Equal(t, "node-a", payload.Data.NodeID)
	require.Equal(t, 10, payload.Data.XPEarned)
}

func TestProgressionHandlerLockedNode(t *testing.T) {
	app := newProgressionApp(stubProgressionService{err: service.ErrNodeLocked}, "student-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/progression/nodes/node-b/complete", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}

func TestProgressionHandlerUnknownNode(t *testing.T) {
	app := newProgressionApp(stubProgressionService{err: service.ErrNodeNotFound}, "student-1")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/progression/nodes/node-zz/complete", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProgressionHandlerRequiresIdentity(t *testing.T) {
	app := newProgressionApp(stubProgressionService{}, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/progression/nodes/node-a/complete", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProgressionHandlerSubmitQuiz(t *testing.T) {
	svc := stubProgressionService{
		quiz: dto.QuizResult{NodeID: "node-a", Passed: true, Stars: 3},
	}
	app := newProgressionApp(svc, "student-1")

	body, err := json.Marshal(map[string]interface{}{"node_id": "node-a", "score": 95})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/progression/quiz", bytes.NewReader(body))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
