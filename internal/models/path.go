package models

import (
	"time"

	"gorm.io/gorm"
)

// Path is a named, ordered sequence of nodes forming a curriculum. The
// aggregate columns (TotalNodes through Difficulty) are derived from the
// member nodes and recomputed on every write that touches NodeIDs.
type Path struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	PathID      string `gorm:"size:64;uniqueIndex;not null" json:"path_id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	NodeIDsRaw  string `gorm:"column:node_ids;type:text" json:"-"`

	TotalNodes      int     `json:"total_nodes"`
	TotalXP         int     `json:"total_xp"`
	TotalQuizzes    int     `json:"total_quizzes"`
	EstimatedHours  float64 `json:"estimated_hours"`
	CheckpointCount int     `json:"checkpoint_count"`
	Difficulty      string  `gorm:"size:16;default:easy" json:"difficulty"`

	// Curriculum grouping carried over from member nodes when the path is
	// synthesised by the template generator.
	GradeLevel  int    `gorm:"index" json:"grade_level"`
	ClassNumber int    `json:"class_number"`
	Semester    int    `json:"semester"`
	Subject     string `gorm:"size:128;index" json:"subject"`
	Major       string `gorm:"size:128" json:"major"`

	LearningOutcomesRaw string `gorm:"column:learning_outcomes;type:text" json:"-"`
	KompetensiDasarRaw  string `gorm:"column:kompetensi_dasar;type:text" json:"-"`

	IsTemplate bool    `gorm:"index" json:"is_template"`
	IsPublic   bool    `gorm:"index" json:"is_public"`
	IsActive   bool    `gorm:"default:true;index" json:"is_active"`
	SchoolID   *string `gorm:"size:64;index" json:"school_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	NodeIDs          []string `gorm:"-" json:"node_ids"`
	LearningOutcomes []string `gorm:"-" json:"learning_outcomes"`
	KompetensiDasar  []string `gorm:"-" json:"kompetensi_dasar"`
}

// Protected reports whether the path may not be deleted. Public templates are
// shared across schools and survive until retired by an operator.
func (p Path) Protected() bool {
	return p.IsTemplate && p.IsPublic
}

// BeforeSave flattens list-valued fields before persisting.
func (p *Path) BeforeSave(tx *gorm.DB) error {
	p.NodeIDsRaw = encodeList(p.NodeIDs)
	p.LearningOutcomesRaw = encodeList(p.LearningOutcomes)
	p.KompetensiDasarRaw = encodeList(p.KompetensiDasar)
	if p.Difficulty == "" {
		p.Difficulty = DifficultyEasy
	}
	return nil
}

// AfterFind hydrates list-valued fields after retrieval.
func (p *Path) AfterFind(tx *gorm.DB) error {
	p.NodeIDs = decodeList(p.NodeIDsRaw)
	p.LearningOutcomes = decodeList(p.LearningOutcomesRaw)
	p.KompetensiDasar = decodeList(p.KompetensiDasarRaw)
	return nil
}
