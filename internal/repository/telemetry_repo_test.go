package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-progression-api/internal/models"
)

func appendEvent(t *testing.T, repo TelemetryRepository, i int) {
	t.Helper()
	event := models.TelemetryEvent{
		EventID:   fmt.Sprintf("event-%d", i),
		Type:      models.EventLessonCompleted,
		StudentID: "student-1",
		Metadata:  datatypes.JSONMap{"seq": i},
	}
	require.NoError(t, repo.Append(context.Background(), &event))
}

func TestTelemetryAppendEvictsOldestBeyondRetention(t *testing.T) {
	db := newTestDB(t)
	repo := NewTelemetryRepository(db, 5)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		appendEvent(t, repo, i)
	}

	total, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), total)

	events, err := repo.ListRecent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, events, 5)
	// Newest first; the three oldest appends were evicted.
	require.Equal(t, "event-7", events[0].EventID)
	require.Equal(t, "event-3", events[4].EventID)
}

func TestTelemetryListRecentDefaultsLimit(t *testing.T) {
	db := newTestDB(t)
	repo := NewTelemetryRepository(db, 500)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		appendEvent(t, repo, i)
	}

	events, err := repo.ListRecent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, events, 50)
	require.Equal(t, "event-59", events[0].EventID)
}

func TestTelemetryRetentionFloor(t *testing.T) {
	db := newTestDB(t)
	repo := NewTelemetryRepository(db, 0)

	for i := 0; i < 3; i++ {
		appendEvent(t, repo, i)
	}

	total, err := repo.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
}
