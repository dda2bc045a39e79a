package dto

import (
	"time"

	"github.com/noah-isme/gema-progression-api/internal/models"
)

// ProfileResponse is the learner gamification snapshot returned to clients.
type ProfileResponse struct {
	UserID            string    `json:"user_id"`
	XP                int       `json:"xp"`
	XPInLevel         int       `json:"xp_in_level"`
	XPForNextLevel    int       `json:"xp_for_next_level"`
	Level             int       `json:"level"`
	Streak            int       `json:"streak"`
	BestStreak        int       `json:"best_streak"`
	DailyGoalXP       int       `json:"daily_goal_xp"`
	DailyGoalProgress int       `json:"daily_goal_progress"`
	DailyGoalMet      bool      `json:"daily_goal_met"`
	DailyGoalClaimed  bool      `json:"daily_goal_claimed"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewProfileResponse converts a profile model into its API shape.
func NewProfileResponse(profile models.Profile) ProfileResponse {
	return ProfileResponse{
		UserID:            profile.UserID,
		XP:                profile.XP,
		XPInLevel:         profile.XPInLevel,
		XPForNextLevel:    profile.XPForNextLevel,
		Level:             profile.Level,
		Streak:            profile.Streak,
		BestStreak:        profile.BestStreak,
		DailyGoalXP:       profile.DailyGoalXP,
		DailyGoalProgress: profile.DailyGoalProgress,
		DailyGoalMet:      profile.DailyGoalMet,
		DailyGoalClaimed:  profile.DailyGoalClaimed,
		UpdatedAt:         profile.UpdatedAt,
	}
}
