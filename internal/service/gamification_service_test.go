package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-progression-api/internal/models"
	"github.com/noah-isme/gema-progression-api/internal/repository"
)

// newTestDB opens an isolated in-memory database named after the test so
// parallel tests never share state.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Node{},
		&models.Skill{},
		&models.Unit{},
		&models.Path{},
		&models.Progress{},
		&models.SkillProgress{},
		&models.UnitProgress{},
		&models.Profile{},
		&models.TelemetryEvent{},
	))
	return db
}

func newLedger(t *testing.T, db *gorm.DB) GamificationService {
	t.Helper()
	telemetry := NewTelemetryService(repository.NewTelemetryRepository(db, 500), zerolog.Nop())
	return NewGamificationService(db, repository.NewProfileRepository(db), telemetry, 25, zerolog.Nop())
}

func TestGrantXPCreatesProfileWithDefaults(t *testing.T) {
	db := newTestDB(t)
	ledger := newLedger(t, db)

	profile, err := ledger.GrantXP(context.Background(), "student-1", 10, "lesson_completed")
	require.NoError(t, err)

	require.Equal(t, 10, profile.XP)
	require.Equal(t, 10, profile.XPInLevel)
	require.Equal(t, models.DefaultXPForNextLevel, profile.XPForNextLevel)
	require.Equal(t, 1, profile.Level)
	require.Equal(t, 10, profile.DailyGoalProgress)
	require.False(t, profile.DailyGoalMet)
}

func TestGrantXPCrossesLevelThreshold(t *testing.T) {
	db := newTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	_, err := ledger.GrantXP(ctx, "student-1", 90, "lesson_completed")
	require.NoError(t, err)

	profile, err := ledger.GrantXP(ctx, "student-1", 25, "lesson_completed")
	require.NoError(t, err)

	require.Equal(t, 115, profile.XP)
	require.Equal(t, 2, profile.Level)
	require.Equal(t, 15, profile.XPInLevel)
	require.Equal(t, 115, profile.XPForNextLevel)
}

func TestGrantXPCrossesMultipleLevels(t *testing.T) {
	db := newTestDB(t)
	ledger := newLedger(t, db)

	// 100 + 115 = 215 consumed, 85 remaining into level 3.
	profile, err := ledger.GrantXP(context.Background(), "student-1", 300, "lesson_completed")
	require.NoError(t, err)

	require.Equal(t, 300, profile.XP)
	require.Equal(t, 3, profile.Level)
	require.Equal(t, 85, profile.XPInLevel)
	require.Equal(t, 132, profile.XPForNextLevel)
	require.Less(t, profile.XPInLevel, profile.XPForNextLevel)
}

func TestGrantXPMarksDailyGoalMet(t *testing.T) {
	db := newTestDB(t)
	ledger := newLedger(t, db)

	profile, err := ledger.GrantXP(context.Background(), "student-1", 50, "lesson_completed")
	require.NoError(t, err)

	require.True(t, profile.DailyGoalMet)
	require.False(t, profile.DailyGoalClaimed)
}

func TestGrantXPIgnoresNonPositiveAmount(t *testing.T) {
	db := newTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	_, err := ledger.GrantXP(ctx, "student-1", 40, "lesson_completed")
	require.NoError(t, err)

	profile, err := ledger.GrantXP(ctx, "student-1", 0, "lesson_completed")
	require.NoError(t, err)
	require.Equal(t, 40, profile.XP)
}

func TestGrantStreakRaisesBestStreak(t *testing.T) {
	db := newTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	profile, err := ledger.GrantStreak(ctx, "student-1", 3)
	require.NoError(t, err)
	require.Equal(t, 3, profile.Streak)
	require.Equal(t, 3, profile.BestStreak)

	profile, err = ledger.GrantStreak(ctx, "student-1", 2)
	require.NoError(t, err)
	require.Equal(t, 5, profile.Streak)
	require.Equal(t, 5, profile.BestStreak)
}

func TestClaimDailyGoalRequiresMetGoal(t *testing.T) {
	db := newTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	_, err := ledger.GrantXP(ctx, "student-1", 10, "lesson_completed")
	require.NoError(t, err)

	_, err = ledger.ClaimDailyGoal(ctx, "student-1")
	require.ErrorIs(t, err, ErrDailyGoalNotMet)
}

func TestClaimDailyGoalPaysBonusOnce(t *testing.T) {
	db := newTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	_, err := ledger.GrantXP(ctx, "student-1", 50, "lesson_completed")
	require.NoError(t, err)

	profile, err := ledger.ClaimDailyGoal(ctx, "student-1")
	require.NoError(t, err)
	require.Equal(t, 75, profile.XP)
	require.Equal(t, 1, profile.Streak)
	require.True(t, profile.DailyGoalClaimed)

	_, err = ledger.ClaimDailyGoal(ctx, "student-1")
	require.ErrorIs(t, err, ErrDailyGoalClaimed)
}

func TestClaimDailyGoalRollsBackOnFailure(t *testing.T) {
	db := newTestDB(t)
	ledger := newLedger(t, db)
	ctx := context.Background()

	_, err := ledger.ClaimDailyGoal(ctx, "student-1")
	require.ErrorIs(t, err, ErrDailyGoalNotMet)

	// The rejected claim must not have persisted a profile mutation.
	profile, err := ledger.GetProfile(ctx, "student-1")
	require.NoError(t, err)
	require.Equal(t, 0, profile.XP)
	require.Equal(t, 0, profile.Streak)
}

func TestApplyXPNormalizesCorruptThreshold(t *testing.T) {
	profile := models.Profile{Level: 1, XPForNextLevel: -10}
	_, err := applyXP(&profile, 5)
	require.NoError(t, err)
	require.Equal(t, models.DefaultXPForNextLevel, profile.XPForNextLevel)
}
