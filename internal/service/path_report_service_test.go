package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-progression-api/internal/models"
	"github.com/noah-isme/gema-progression-api/internal/repository"
)

func newReports(t *testing.T, db *gorm.DB, cache *redis.Client) PathReportService {
	t.Helper()
	return NewPathReportService(
		repository.NewPathRepository(db),
		repository.NewNodeRepository(db),
		repository.NewProgressRepository(db),
		cache,
		time.Minute,
		zerolog.Nop(),
	)
}

func seedReportFixture(t *testing.T, db *gorm.DB) {
	t.Helper()
	seedPathNodes(t, db)
	path := models.Path{
		PathID:  "path-1",
		Name:    "Campuran",
		NodeIDs: []string{"node-1", "node-2", "node-3"},
	}
	require.NoError(t, db.Create(&path).Error)
}

func setProgress(t *testing.T, db *gorm.DB, userID, nodeID, status string, stars int) {
	t.Helper()
	_, err := repository.NewProgressRepository(db).Upsert(context.Background(), userID, nodeID, func(p *models.Progress) error {
		p.Status = status
		p.Stars = stars
		return nil
	})
	require.NoError(t, err)
}

func TestReportCountsByStatus(t *testing.T) {
	db := newTestDB(t)
	seedReportFixture(t, db)
	svc := newReports(t, db, nil)
	ctx := context.Background()

	setProgress(t, db, "student-1", "node-1", models.StatusCompleted, 3)
	setProgress(t, db, "student-1", "node-2", models.StatusInProgress, 1)

	report, err := svc.Report(ctx, "path-1", "student-1")
	require.NoError(t, err)

	require.Equal(t, 3, report.TotalNodes)
	require.Equal(t, 1, report.CompletedNodes)
	require.Equal(t, 1, report.InProgressNodes)
	require.Equal(t, 1, report.LockedNodes)
	require.Equal(t, 33.3, report.PercentComplete)
	require.Equal(t, 10, report.XPEarned)
	require.Equal(t, 45, report.XPAvailable)
	require.Equal(t, 4, report.StarsEarned)
	require.Equal(t, 9, report.StarsMax)
	require.False(t, report.CacheHit)
}

func TestReportTreatsMasteredAsCompleted(t *testing.T) {
	db := newTestDB(t)
	seedReportFixture(t, db)
	svc := newReports(t, db, nil)

	setProgress(t, db, "student-1", "node-1", models.StatusMastered, 2)

	report, err := svc.Report(context.Background(), "path-1", "student-1")
	require.NoError(t, err)
	require.Equal(t, 1, report.CompletedNodes)
	require.Equal(t, 10, report.XPEarned)
}

func TestReportDropsUnresolvableNodes(t *testing.T) {
	db := newTestDB(t)
	seedReportFixture(t, db)
	svc := newReports(t, db, nil)

	path := models.Path{PathID: "path-2", Name: "Rusak", NodeIDs: []string{"node-1", "node-gone"}}
	require.NoError(t, db.Create(&path).Error)

	report, err := svc.Report(context.Background(), "path-2", "student-1")
	require.NoError(t, err)
	require.Equal(t, 1, report.TotalNodes)
	require.Equal(t, 10, report.XPAvailable)
}

func TestReportUnknownPath(t *testing.T) {
	db := newTestDB(t)
	seedReportFixture(t, db)
	svc := newReports(t, db, nil)

	_, err := svc.Report(context.Background(), "path-zz", "student-1")
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestReportCachesPerLearner(t *testing.T) {
	db := newTestDB(t)
	seedReportFixture(t, db)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	svc := newReports(t, db, cache)
	ctx := context.Background()

	first, err := svc.Report(ctx, "path-1", "student-1")
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	cached, err := svc.Report(ctx, "path-1", "student-1")
	require.NoError(t, err)
	require.True(t, cached.CacheHit)
	require.Equal(t, first.TotalNodes, cached.TotalNodes)
}

func TestInvalidateUserBustsCachedReports(t *testing.T) {
	db := newTestDB(t)
	seedReportFixture(t, db)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	svc := newReports(t, db, cache)
	ctx := context.Background()

	_, err = svc.Report(ctx, "path-1", "student-1")
	require.NoError(t, err)

	setProgress(t, db, "student-1", "node-1", models.StatusCompleted, 3)
	svc.InvalidateUser(ctx, "student-1")

	report, err := svc.Report(ctx, "path-1", "student-1")
	require.NoError(t, err)
	require.False(t, report.CacheHit)
	require.Equal(t, 1, report.CompletedNodes)
}

func TestInvalidateUserBustsRepeatedly(t *testing.T) {
	db := newTestDB(t)
	seedReportFixture(t, db)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	svc := newReports(t, db, cache)
	ctx := context.Background()

	for i, node := range []string{"node-1", "node-2"} {
		_, err := svc.Report(ctx, "path-1", "student-1")
		require.NoError(t, err)

		setProgress(t, db, "student-1", node, models.StatusCompleted, 3)
		svc.InvalidateUser(ctx, "student-1")

		report, err := svc.Report(ctx, "path-1", "student-1")
		require.NoError(t, err)
		require.False(t, report.CacheHit)
		require.Equal(t, i+1, report.CompletedNodes)
	}
}
