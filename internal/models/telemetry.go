package models

import (
	"time"

	"gorm.io/datatypes"
)

// Telemetry event types emitted by the progression engine.
const (
	EventLessonCompleted  = "lesson_completed"
	EventLessonUnlocked   = "lesson_unlocked"
	EventSkillUnlocked    = "skill_unlocked"
	EventUnitProgressed   = "unit_progressed"
	EventRewardClaimed    = "reward_claimed"
	EventDailyGoalClaimed = "daily_goal_claimed"
)

// TelemetryEvent is an append-only observability record describing one
// progression side effect. The log is capped: appends beyond the configured
// retention evict the oldest rows.
type TelemetryEvent struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	EventID   string            `gorm:"size:64;uniqueIndex" json:"event_id"`
	Type      string            `gorm:"size:64;not null;index" json:"type"`
	StudentID string            `gorm:"size:64;not null;index" json:"student_id"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}
