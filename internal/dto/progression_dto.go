package dto

// CompletionResult aggregates everything a single completion unlocked, for
// telemetry and for the client that rendered the lesson.
type CompletionResult struct {
	NodeID            string            `json:"node_id"`
	AlreadyCompleted  bool              `json:"already_completed"`
	XPEarned          int               `json:"xp_earned"`
	StreakIncrement   int               `json:"streak_increment"`
	UnlockedNodeIDs   []string          `json:"unlocked_node_ids"`
	UnlockedSkillIDs  []string          `json:"unlocked_skill_ids"`
	CompletedSkillIDs []string          `json:"completed_skill_ids"`
	CompletedUnitIDs  []string          `json:"completed_unit_ids"`
	SkillMasteryPct   int               `json:"skill_mastery_pct"`
	NodeStatuses      map[string]string `json:"node_statuses"`
	Profile           ProfileResponse   `json:"profile"`
}

// QuizSubmissionRequest records one quiz attempt for a node.
type QuizSubmissionRequest struct {
	UserID string `json:"user_id" validate:"required"`
	NodeID string `json:"node_id" validate:"required"`
	Score  int    `json:"score" validate:"min=0,max=100"`
}

// QuizResult describes the outcome of a quiz submission. Completion is set
// only when the score passed and routed into the completion flow.
type QuizResult struct {
	NodeID     string            `json:"node_id"`
	Passed     bool              `json:"passed"`
	Stars      int               `json:"stars"`
	BestScore  int               `json:"best_score"`
	Attempts   int               `json:"attempts"`
	Status     string            `json:"status"`
	Completion *CompletionResult `json:"completion,omitempty"`
}

// LessonViewRequest marks lesson material as viewed and accumulates reading
// time.
type LessonViewRequest struct {
	UserID           string `json:"user_id" validate:"required"`
	NodeID           string `json:"node_id" validate:"required"`
	TimeSpentSeconds int    `json:"time_spent_seconds" validate:"min=0"`
}

// LearnerBootstrap describes the entry state created for a new learner.
type LearnerBootstrap struct {
	UnitID  string          `json:"unit_id"`
	SkillID string          `json:"skill_id"`
	NodeID  string          `json:"node_id"`
	Profile ProfileResponse `json:"profile"`
}
