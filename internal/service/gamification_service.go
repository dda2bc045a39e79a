package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-progression-api/internal/models"
	"github.com/noah-isme/gema-progression-api/internal/repository"
)

// levelGrowthFactor multiplies the XP threshold on every level-up.
const levelGrowthFactor = 1.15

// GamificationService is the ledger for learner profiles: XP grants with
// level-up thresholds, streak increments and the daily goal. Every operation
// applies fully or not at all.
type GamificationService interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	GrantXP(ctx context.Context, userID string, amount int, reason string) (models.Profile, error)
	GrantStreak(ctx context.Context, userID string, increment int) (models.Profile, error)
	ClaimDailyGoal(ctx context.Context, userID string) (models.Profile, error)
	WithTx(tx *gorm.DB) GamificationService
}

type gamificationService struct {
	db        *gorm.DB
	profiles  repository.ProfileRepository
	telemetry TelemetryRecorder
	bonusXP   int
	logger    zerolog.Logger
}

// NewGamificationService constructs the ledger. dailyGoalBonusXP is the fixed
// reward paid when a met daily goal is claimed.
func NewGamificationService(db *gorm.DB, profiles repository.ProfileRepository, telemetry TelemetryRecorder, dailyGoalBonusXP int, logger zerolog.Logger) GamificationService {
	if dailyGoalBonusXP <= 0 {
		dailyGoalBonusXP = 25
	}
	return &gamificationService{
		db:        db,
		profiles:  profiles,
		telemetry: telemetry,
		bonusXP:   dailyGoalBonusXP,
		logger:    logger.With().Str("component", "gamification_service").Logger(),
	}
}

func (s *gamificationService) WithTx(tx *gorm.DB) GamificationService {
	return &gamificationService{
		db:        tx,
		profiles:  s.profiles.WithTx(tx),
		telemetry: s.telemetry.WithTx(tx),
		bonusXP:   s.bonusXP,
		logger:    s.logger,
	}
}

func (s *gamificationService) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	profile, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

func (s *gamificationService) GrantXP(ctx context.Context, userID string, amount int, reason string) (models.Profile, error) {
	if amount <= 0 {
		return s.GetProfile(ctx, userID)
	}

	var result models.Profile
	var levelsGained int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profiles := s.profiles.WithTx(tx)
		profile, err := profiles.Mutate(ctx, userID, func(p *models.Profile) error {
			gained, applyErr := applyXP(p, amount)
			levelsGained = gained
			return applyErr
		})
		if err != nil {
			return err
		}
		result = profile

		_, err = s.telemetry.WithTx(tx).Record(ctx, TelemetryEntry{
			Type:      models.EventRewardClaimed,
			StudentID: userID,
			Metadata: map[string]interface{}{
				"xp":            amount,
				"reason":        reason,
				"levels_gained": levelsGained,
				"level":         profile.Level,
			},
		})
		return err
	})
	if err != nil {
		return models.Profile{}, err
	}

	if levelsGained > 0 {
		s.logger.Info().
			Str("user_id", userID).
			Int("levels_gained", levelsGained).
			Int("level", result.Level).
			Msg("learner leveled up")
	}
	return result, nil
}

func (s *gamificationService) GrantStreak(ctx context.Context, userID string, increment int) (models.Profile, error) {
	if increment <= 0 {
		return s.GetProfile(ctx, userID)
	}

	var result models.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := s.profiles.WithTx(tx).Mutate(ctx, userID, func(p *models.Profile) error {
			applyStreak(p, increment)
			return nil
		})
		if err != nil {
			return err
		}
		result = profile

		_, err = s.telemetry.WithTx(tx).Record(ctx, TelemetryEntry{
			Type:      models.EventRewardClaimed,
			StudentID: userID,
			Metadata: map[string]interface{}{
				"kind":   "streak",
				"streak": profile.Streak,
			},
		})
		return err
	})
	if err != nil {
		return models.Profile{}, err
	}
	return result, nil
}

func (s *gamificationService) ClaimDailyGoal(ctx context.Context, userID string) (models.Profile, error) {
	var result models.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profiles := s.profiles.WithTx(tx)
		profile, err := profiles.Mutate(ctx, userID, func(p *models.Profile) error {
			if !p.DailyGoalMet {
				return ErrDailyGoalNotMet
			}
			if p.DailyGoalClaimed {
				return ErrDailyGoalClaimed
			}
			if _, err := applyXP(p, s.bonusXP); err != nil {
				return err
			}
			applyStreak(p, 1)
			p.DailyGoalClaimed = true
			return nil
		})
		if err != nil {
			return err
		}
		result = profile

		_, err = s.telemetry.WithTx(tx).Record(ctx, TelemetryEntry{
			Type:      models.EventDailyGoalClaimed,
			StudentID: userID,
			Metadata: map[string]interface{}{
				"bonus_xp": s.bonusXP,
				"streak":   profile.Streak,
			},
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDailyGoalNotMet) || errors.Is(err, ErrDailyGoalClaimed) {
			return models.Profile{}, err
		}
		return models.Profile{}, fmt.Errorf("claim daily goal: %w", err)
	}
	return result, nil
}

// applyXP adds amount to the lifetime and in-level totals, then consumes as
// many level thresholds as the new total crosses. A single large reward can
// cross several levels, so this is a loop, not a conditional.
func applyXP(p *models.Profile, amount int) (int, error) {
	if p.XPForNextLevel <= 0 {
		p.XPForNextLevel = models.DefaultXPForNextLevel
	}
	if p.Level <= 0 {
		p.Level = 1
	}

	p.XP += amount
	p.XPInLevel += amount

	levelsGained := 0
	for p.XPInLevel >= p.XPForNextLevel {
		p.XPInLevel -= p.XPForNextLevel
		p.Level++
		levelsGained++
		p.XPForNextLevel = int(math.Round(float64(p.XPForNextLevel) * levelGrowthFactor))
	}

	if p.XPInLevel >= p.XPForNextLevel || p.XPInLevel < 0 {
		return 0, fmt.Errorf("%w: xp_in_level=%d threshold=%d", ErrInvariantViolation, p.XPInLevel, p.XPForNextLevel)
	}

	p.DailyGoalProgress += amount
	if p.DailyGoalXP > 0 && p.DailyGoalProgress >= p.DailyGoalXP {
		p.DailyGoalMet = true
	}
	return levelsGained, nil
}

func applyStreak(p *models.Profile, increment int) {
	p.Streak += increment
	if p.Streak > p.BestStreak {
		p.BestStreak = p.Streak
	}
}
