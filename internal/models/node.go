package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Difficulty levels assignable to a node. Paths additionally use
// DifficultyMixed when their member nodes disagree.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
	DifficultyMixed  = "mixed"
)

// Node is an atomic learning unit: a single lesson or exercise with rewards
// and prerequisites. Nodes are authored externally; the progression engine
// only reads them.
type Node struct {
	ID               uint   `gorm:"primaryKey" json:"id"`
	NodeID           string `gorm:"size:64;uniqueIndex;not null" json:"node_id"`
	SkillID          string `gorm:"size:64;index" json:"skill_id"`
	Title            string `gorm:"size:255;not null" json:"title"`
	Sequence         int    `gorm:"index" json:"sequence"`
	PrerequisitesRaw string `gorm:"column:prerequisites;type:text" json:"-"`
	XPReward         int    `gorm:"default:10" json:"xp_reward"`
	GemsReward       int    `json:"gems_reward"`
	StreakReward     int    `json:"streak_reward"`
	IsCheckpoint     bool   `json:"is_checkpoint"`
	Difficulty       string `gorm:"size:16;default:easy" json:"difficulty"`
	EstimatedMinutes int    `gorm:"default:10" json:"estimated_minutes"`
	QuizCount        int    `json:"quiz_count"`

	// Curriculum grouping used by template path generation.
	GradeLevel  int    `gorm:"index" json:"grade_level"`
	ClassNumber int    `json:"class_number"`
	Semester    int    `json:"semester"`
	Subject     string `gorm:"size:128;index" json:"subject"`
	Major       string `gorm:"size:128" json:"major"`

	LearningOutcomesRaw string `gorm:"column:learning_outcomes;type:text" json:"-"`
	KompetensiDasarRaw  string `gorm:"column:kompetensi_dasar;type:text" json:"-"`

	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Prerequisites    []string `gorm:"-" json:"prerequisites"`
	LearningOutcomes []string `gorm:"-" json:"learning_outcomes"`
	KompetensiDasar  []string `gorm:"-" json:"kompetensi_dasar"`
}

// BeforeSave normalises list-valued fields before persisting.
func (n *Node) BeforeSave(tx *gorm.DB) error {
	n.PrerequisitesRaw = encodeList(n.Prerequisites)
	n.LearningOutcomesRaw = encodeList(n.LearningOutcomes)
	n.KompetensiDasarRaw = encodeList(n.KompetensiDasar)
	if n.Sequence < 0 {
		n.Sequence = 0
	}
	if n.EstimatedMinutes <= 0 {
		n.EstimatedMinutes = 10
	}
	if n.Difficulty == "" {
		n.Difficulty = DifficultyEasy
	}
	return nil
}

// AfterFind hydrates list-valued fields after retrieval.
func (n *Node) AfterFind(tx *gorm.DB) error {
	n.Prerequisites = decodeList(n.PrerequisitesRaw)
	n.LearningOutcomes = decodeList(n.LearningOutcomesRaw)
	n.KompetensiDasar = decodeList(n.KompetensiDasarRaw)
	return nil
}

// Skill is an ordered group of nodes within a unit.
type Skill struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SkillID   string    `gorm:"size:64;uniqueIndex;not null" json:"skill_id"`
	UnitID    string    `gorm:"size:64;index" json:"unit_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Sequence  int       `gorm:"index" json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Unit is an ordered group of skills. RewardXP, when positive, is a one-time
// bonus granted the first time a learner completes the unit.
type Unit struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UnitID    string    `gorm:"size:64;uniqueIndex;not null" json:"unit_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Sequence  int       `gorm:"index" json:"sequence"`
	RewardXP  int       `json:"reward_xp"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// encodeList stores an ordered string list as pipe-delimited text. Order is
// preserved; empty entries are dropped.
func encodeList(values []string) string {
	if len(values) == 0 {
		return ""
	}
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}
	if len(cleaned) == 0 {
		return ""
	}
	return "|" + strings.Join(cleaned, "|") + "|"
}

func decodeList(raw string) []string {
	raw = strings.Trim(raw, "|")
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, "|")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, trimmed)
	}
	return values
}
