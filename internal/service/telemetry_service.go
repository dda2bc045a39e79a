package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-progression-api/internal/models"
	"github.com/noah-isme/gema-progression-api/internal/repository"
)

// TelemetryEntry captures the details required to append a progression event.
type TelemetryEntry struct {
	Type      string
	StudentID string
	Metadata  map[string]interface{}
}

// TelemetryRecorder defines behaviour for appending progression events.
type TelemetryRecorder interface {
	Record(ctx context.Context, entry TelemetryEntry) (models.TelemetryEvent, error)
	WithTx(tx *gorm.DB) TelemetryRecorder
}

// TelemetryService records and queries the capped progression event log.
type TelemetryService interface {
	TelemetryRecorder
	ListRecent(ctx context.Context, studentID string, limit int) ([]models.TelemetryEvent, error)
}

type telemetryService struct {
	repo   repository.TelemetryRepository
	logger zerolog.Logger
}

// NewTelemetryService constructs the telemetry service.
func NewTelemetryService(repo repository.TelemetryRepository, logger zerolog.Logger) TelemetryService {
	return &telemetryService{
		repo:   repo,
		logger: logger.With().Str("component", "telemetry_service").Logger(),
	}
}

func (s *telemetryService) WithTx(tx *gorm.DB) TelemetryRecorder {
	return &telemetryService{repo: s.repo.WithTx(tx), logger: s.logger}
}

func (s *telemetryService) Record(ctx context.Context, entry TelemetryEntry) (models.TelemetryEvent, error) {
	if strings.TrimSpace(entry.Type) == "" {
		return models.TelemetryEvent{}, fmt.Errorf("event type is required")
	}
	if strings.TrimSpace(entry.StudentID) == "" {
		return models.TelemetryEvent{}, fmt.Errorf("student id is required")
	}

	event := models.TelemetryEvent{
		EventID:   uuid.NewString(),
		Type:      strings.ToLower(strings.TrimSpace(entry.Type)),
		StudentID: strings.TrimSpace(entry.StudentID),
		Metadata:  sanitizeMetadata(entry.Metadata),
	}

	if err := s.repo.Append(ctx, &event); err != nil {
		s.logger.Error().Err(err).Str("type", event.Type).Msg("failed to append telemetry event")
		return models.TelemetryEvent{}, err
	}
	return event, nil
}

func (s *telemetryService) ListRecent(ctx context.Context, studentID string, limit int) ([]models.TelemetryEvent, error) {
	return s.repo.ListRecent(ctx, strings.TrimSpace(studentID), limit)
}

// sanitizeMetadata masks values under keys that look like credentials or
// contact details before they reach the log.
func sanitizeMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	if metadata == nil {
		return datatypes.JSONMap{}
	}

	sanitized := datatypes.JSONMap{}
	for key, value := range metadata {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "email") || strings.Contains(lower, "token") {
			sanitized[key] = "***"
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}
