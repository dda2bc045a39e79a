package dto

import (
	"time"

	"github.com/noah-isme/gema-progression-api/internal/models"
)

// PathCreateRequest creates a curriculum path from an ordered node list.
type PathCreateRequest struct {
	PathID      string   `json:"path_id"`
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	NodeIDs     []string `json:"node_ids" validate:"required,min=1,max=100"`
	GradeLevel  int      `json:"grade_level"`
	ClassNumber int      `json:"class_number"`
	Semester    int      `json:"semester"`
	Subject     string   `json:"subject"`
	Major       string   `json:"major"`
	IsTemplate  bool     `json:"is_template"`
	IsPublic    bool     `json:"is_public"`
	SchoolID    *string  `json:"school_id"`
}

// PathUpdateRequest replaces a path's metadata and node list. A nil NodeIDs
// leaves the sequence untouched; a non-nil value triggers a full aggregate
// recompute.
type PathUpdateRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	NodeIDs     []string `json:"node_ids" validate:"omitempty,min=1,max=100"`
	IsActive    *bool    `json:"is_active"`
	IsPublic    *bool    `json:"is_public"`
}

// PathCloneRequest deep-copies a path under a new identity.
type PathCloneRequest struct {
	NewPathID string  `json:"new_path_id"`
	Name      string  `json:"name" validate:"required"`
	SchoolID  *string `json:"school_id"`
}

// PathReorderRequest replaces the node sequence with a permutation of the
// current ids.
type PathReorderRequest struct {
	NodeIDs []string `json:"node_ids" validate:"required,min=1,max=100"`
}

// PathListRequest filters the path listing.
type PathListRequest struct {
	Search       string
	Subject      string
	GradeLevel   int
	TemplateOnly bool
	SchoolID     *string
	Page         int
	PageSize     int
}

// PathResponse is the API shape of a path with its derived aggregates.
type PathResponse struct {
	PathID           string    `json:"path_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	NodeIDs          []string  `json:"node_ids"`
	TotalNodes       int       `json:"total_nodes"`
	TotalXP          int       `json:"total_xp"`
	TotalQuizzes     int       `json:"total_quizzes"`
	EstimatedHours   float64   `json:"estimated_hours"`
	CheckpointCount  int       `json:"checkpoint_count"`
	Difficulty       string    `json:"difficulty"`
	GradeLevel       int       `json:"grade_level"`
	ClassNumber      int       `json:"class_number"`
	Semester         int       `json:"semester"`
	Subject          string    `json:"subject"`
	Major            string    `json:"major"`
	LearningOutcomes []string  `json:"learning_outcomes"`
	KompetensiDasar  []string  `json:"kompetensi_dasar"`
	IsTemplate       bool      `json:"is_template"`
	IsPublic         bool      `json:"is_public"`
	IsActive         bool      `json:"is_active"`
	SchoolID         *string   `json:"school_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewPathResponse converts a path model into its API shape.
func NewPathResponse(path models.Path) PathResponse {
	return PathResponse{
		PathID:           path.PathID,
		Name:             path.Name,
		Description:      path.Description,
		NodeIDs:          append([]string(nil), path.NodeIDs...),
		TotalNodes:       path.TotalNodes,
		TotalXP:          path.TotalXP,
		TotalQuizzes:     path.TotalQuizzes,
		EstimatedHours:   path.EstimatedHours,
		CheckpointCount:  path.CheckpointCount,
		Difficulty:       path.Difficulty,
		GradeLevel:       path.GradeLevel,
		ClassNumber:      path.ClassNumber,
		Semester:         path.Semester,
		Subject:          path.Subject,
		Major:            path.Major,
		LearningOutcomes: append([]string(nil), path.LearningOutcomes...),
		KompetensiDasar:  append([]string(nil), path.KompetensiDasar...),
		IsTemplate:       path.IsTemplate,
		IsPublic:         path.IsPublic,
		IsActive:         path.IsActive,
		SchoolID:         path.SchoolID,
		CreatedAt:        path.CreatedAt,
		UpdatedAt:        path.UpdatedAt,
	}
}

// PathListResult is the paginated path listing.
type PathListResult struct {
	Items      []PathResponse `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// GenerationSummary reports one run of the template generation job.
type GenerationSummary struct {
	Created        int      `json:"created"`
	Skipped        int      `json:"skipped"`
	CreatedPathIDs []string `json:"created_path_ids"`
}

// PathProgressReport joins a path against one learner's progress.
type PathProgressReport struct {
	PathID           string  `json:"path_id"`
	UserID           string  `json:"user_id"`
	TotalNodes       int     `json:"total_nodes"`
	CompletedNodes   int     `json:"completed_nodes"`
	InProgressNodes  int     `json:"in_progress_nodes"`
	LockedNodes      int     `json:"locked_nodes"`
	PercentComplete  float64 `json:"percent_complete"`
	XPEarned         int     `json:"xp_earned"`
	XPAvailable      int     `json:"xp_available"`
	StarsEarned      int     `json:"stars_earned"`
	StarsMax         int     `json:"stars_max"`
	CacheHit         bool    `json:"-"`
}
