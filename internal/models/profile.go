package models

import "time"

// Baseline profile defaults applied at enrollment.
const (
	DefaultXPForNextLevel = 100
	DefaultDailyGoalXP    = 50
)

// Profile is the per-learner gamification ledger: lifetime XP, level
// thresholds, streaks and the daily goal. It is mutated exclusively by the
// gamification service; XPInLevel < XPForNextLevel holds after every write.
type Profile struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	UserID         string `gorm:"size:64;uniqueIndex;not null" json:"user_id"`
	XP             int    `json:"xp"`
	XPInLevel      int    `json:"xp_in_level"`
	XPForNextLevel int    `gorm:"default:100" json:"xp_for_next_level"`
	Level          int    `gorm:"default:1" json:"level"`
	Streak         int    `json:"streak"`
	BestStreak     int    `json:"best_streak"`

	DailyGoalXP       int  `gorm:"default:50" json:"daily_goal_xp"`
	DailyGoalProgress int  `json:"daily_goal_progress"`
	DailyGoalMet      bool `json:"daily_goal_met"`
	DailyGoalClaimed  bool `json:"daily_goal_claimed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProfile returns a profile seeded with enrollment defaults.
func NewProfile(userID string) Profile {
	return Profile{
		UserID:         userID,
		Level:          1,
		XPForNextLevel: DefaultXPForNextLevel,
		DailyGoalXP:    DefaultDailyGoalXP,
	}
}
