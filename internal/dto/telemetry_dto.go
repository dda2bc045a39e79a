package dto

import (
	"time"

	"github.com/noah-isme/gema-progression-api/internal/models"
)

// TelemetryEventResponse is the API shape of one progression event.
type TelemetryEventResponse struct {
	EventID   string                 `json:"event_id"`
	Type      string                 `json:"type"`
	StudentID string                 `json:"student_id"`
	Metadata  map[string]interface{} `json:"metadata"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewTelemetryEventResponse converts a telemetry model into its API shape.
func NewTelemetryEventResponse(event models.TelemetryEvent) TelemetryEventResponse {
	return TelemetryEventResponse{
		EventID:   event.EventID,
		Type:      event.Type,
		StudentID: event.StudentID,
		Metadata:  event.Metadata,
		Timestamp: event.CreatedAt,
	}
}
