package models

import "time"

// Canonical node status vocabulary. Lesson play reads the
// locked/available/mastered subset; path progress reporting reads the
// locked/current/in_progress/completed subset. Both views share one column so
// they can never drift apart.
const (
	StatusLocked     = "locked"
	StatusAvailable  = "available"
	StatusCurrent    = "current"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusMastered   = "mastered"
)

// Unit statuses. A unit starts upcoming, becomes current when the learner
// enters it and completed when its last skill is mastered.
const (
	UnitStatusUpcoming  = "upcoming"
	UnitStatusCurrent   = "current"
	UnitStatusCompleted = "completed"
)

// Progress is the per-learner, per-node completion record. Rows are created
// lazily on first touch and never deleted; Attempts accumulates across
// repeated quiz submissions.
type Progress struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          string     `gorm:"size:64;not null;uniqueIndex:idx_progress_user_node" json:"user_id"`
	NodeID          string     `gorm:"size:64;not null;uniqueIndex:idx_progress_user_node" json:"node_id"`
	Status          string     `gorm:"size:16;not null;default:locked" json:"status"`
	Stars           int        `json:"stars"`
	Attempts        int        `json:"attempts"`
	BestScore       int        `json:"best_score"`
	LessonViewed    bool       `json:"lesson_viewed"`
	LessonTimeSpent int        `json:"lesson_time_spent"`
	CompletedAt     *time.Time `json:"completed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Terminal reports whether the node has been finished. Terminal progress is
// the idempotent-replay guard: completing a terminal node again grants
// nothing.
func (p Progress) Terminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusMastered
}

// Unlocked reports whether the learner may interact with the node.
func (p Progress) Unlocked() bool {
	return p.Status != StatusLocked && p.Status != ""
}

// SkillProgress tracks a learner's standing within one skill.
type SkillProgress struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"size:64;not null;uniqueIndex:idx_skill_progress_user" json:"user_id"`
	SkillID    string    `gorm:"size:64;not null;uniqueIndex:idx_skill_progress_user" json:"skill_id"`
	Status     string    `gorm:"size:16;not null;default:locked" json:"status"`
	MasteryPct int       `json:"mastery_pct"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UnitProgress tracks a learner's standing within one unit. RewardClaimed
// guards the unit's one-time completion bonus.
type UnitProgress struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"size:64;not null;uniqueIndex:idx_unit_progress_user" json:"user_id"`
	UnitID        string    `gorm:"size:64;not null;uniqueIndex:idx_unit_progress_user" json:"unit_id"`
	Status        string    `gorm:"size:16;not null;default:upcoming" json:"status"`
	RewardClaimed bool      `json:"reward_claimed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
