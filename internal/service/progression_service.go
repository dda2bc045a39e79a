package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-progression-api/internal/dto"
	"github.com/noah-isme/gema-progression-api/internal/models"
	"github.com/noah-isme/gema-progression-api/internal/observability"
	"github.com/noah-isme/gema-progression-api/internal/repository"
)

// quizPassMark is the minimum score routed into the completion flow.
const quizPassMark = 50

// ReportCacheInvalidator busts cached per-learner path reports after a
// progression write.
type ReportCacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID string)
}

// ProgressionService applies progression events and computes every cascading
// effect: terminal stamps, ledger grants, sibling unlocks, skill mastery and
// unit promotion. One call, one transaction.
type ProgressionService interface {
	InitializeLearner(ctx context.Context, userID string) (dto.LearnerBootstrap, error)
	CompleteNode(ctx context.Context, userID, nodeID string) (dto.CompletionResult, error)
	SubmitQuiz(ctx context.Context, req dto.QuizSubmissionRequest) (dto.QuizResult, error)
	MarkLessonViewed(ctx context.Context, req dto.LessonViewRequest) (models.Progress, error)
}

type progressionService struct {
	db            *gorm.DB
	nodes         repository.NodeRepository
	progress      repository.ProgressRepository
	skillProgress repository.SkillProgressRepository
	unitProgress  repository.UnitProgressRepository
	ledger        GamificationService
	telemetry     TelemetryRecorder
	reports       ReportCacheInvalidator
	validator     *validator.Validate
	logger        zerolog.Logger
}

// NewProgressionService constructs the progression state machine. reports may
// be nil when no report cache is wired.
func NewProgressionService(
	db *gorm.DB,
	nodes repository.NodeRepository,
	progress repository.ProgressRepository,
	skillProgress repository.SkillProgressRepository,
	unitProgress repository.UnitProgressRepository,
	ledger GamificationService,
	telemetry TelemetryRecorder,
	reports ReportCacheInvalidator,
	validate *validator.Validate,
	logger zerolog.Logger,
) ProgressionService {
	return &progressionService{
		db:            db,
		nodes:         nodes,
		progress:      progress,
		skillProgress: skillProgress,
		unitProgress:  unitProgress,
		ledger:        ledger,
		telemetry:     telemetry,
		reports:       reports,
		validator:     validate,
		logger:        logger.With().Str("component", "progression_service").Logger(),
	}
}

func (s *progressionService) InitializeLearner(ctx context.Context, userID string) (dto.LearnerBootstrap, error) {
	if userID == "" {
		return dto.LearnerBootstrap{}, fmt.Errorf("user id is required")
	}

	var bootstrap dto.LearnerBootstrap
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nodes := s.nodes.WithTx(tx)

		profile, err := s.ledger.WithTx(tx).GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		bootstrap.Profile = dto.NewProfileResponse(profile)

		units, err := nodes.ListUnits(ctx)
		if err != nil || len(units) == 0 {
			return err
		}
		first := units[0]
		bootstrap.UnitID = first.UnitID
		if _, err := s.unitProgress.WithTx(tx).Upsert(ctx, userID, first.UnitID, func(up *models.UnitProgress) error {
			if up.Status == models.UnitStatusUpcoming {
				up.Status = models.UnitStatusCurrent
			}
			return nil
		}); err != nil {
			return err
		}

		skills, err := nodes.ListSkillsByUnit(ctx, first.UnitID)
		if err != nil || len(skills) == 0 {
			return err
		}
		bootstrap.SkillID = skills[0].SkillID
		if _, err := s.skillProgress.WithTx(tx).Upsert(ctx, userID, skills[0].SkillID, func(sp *models.SkillProgress) error {
			if sp.Status == models.StatusLocked {
				sp.Status = models.StatusCurrent
			}
			return nil
		}); err != nil {
			return err
		}

		lessons, err := nodes.ListBySkill(ctx, skills[0].SkillID)
		if err != nil || len(lessons) == 0 {
			return err
		}
		bootstrap.NodeID = lessons[0].NodeID
		_, err = s.progress.WithTx(tx).Upsert(ctx, userID, lessons[0].NodeID, func(p *models.Progress) error {
			if !p.Unlocked() {
				p.Status = models.StatusAvailable
			}
			return nil
		})
		return err
	})
	if err != nil {
		return dto.LearnerBootstrap{}, fmt.Errorf("initialize learner: %w", err)
	}
	return bootstrap, nil
}

func (s *progressionService) CompleteNode(ctx context.Context, userID, nodeID string) (dto.CompletionResult, error) {
	if userID == "" || nodeID == "" {
		return dto.CompletionResult{}, fmt.Errorf("user id and node id are required")
	}

	var result dto.CompletionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.completeNodeTx(ctx, tx, userID, nodeID, true)
		return err
	})
	if err != nil {
		observability.NodeCompletions().WithLabelValues("rejected").Inc()
		return dto.CompletionResult{}, err
	}

	if result.AlreadyCompleted {
		observability.NodeCompletions().WithLabelValues("replayed").Inc()
		return result, nil
	}

	observability.NodeCompletions().WithLabelValues("completed").Inc()
	if s.reports != nil {
		s.reports.InvalidateUser(ctx, userID)
	}
	return result, nil
}

func (s *progressionService) completeNodeTx(ctx context.Context, tx *gorm.DB, userID, nodeID string, countAttempt bool) (dto.CompletionResult, error) {
	nodes := s.nodes.WithTx(tx)
	progress := s.progress.WithTx(tx)
	ledger := s.ledger.WithTx(tx)
	telemetry := s.telemetry.WithTx(tx)

	node, err := nodes.GetByNodeID(ctx, nodeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.CompletionResult{}, ErrNodeNotFound
	}
	if err != nil {
		return dto.CompletionResult{}, fmt.Errorf("load node: %w", err)
	}

	result := newCompletionResult(nodeID)

	// The replay and lock checks run inside the locked upsert so two
	// concurrent completions of the same (user, node) pair serialize and the
	// loser observes the terminal state.
	replay := false
	now := time.Now().UTC()
	_, err = progress.Upsert(ctx, userID, nodeID, func(p *models.Progress) error {
		if p.Terminal() {
			replay = true
			return nil
		}
		if !p.Unlocked() {
			return ErrNodeLocked
		}
		p.Status = models.StatusMastered
		p.CompletedAt = &now
		if countAttempt {
			p.Attempts++
		}
		return nil
	})
	if err != nil {
		return dto.CompletionResult{}, err
	}

	if replay {
		profile, profileErr := ledger.GetProfile(ctx, userID)
		if profileErr != nil {
			return dto.CompletionResult{}, profileErr
		}
		result.AlreadyCompleted = true
		result.Profile = dto.NewProfileResponse(profile)
		return result, nil
	}

	if _, err := ledger.GrantXP(ctx, userID, node.XPReward, models.EventLessonCompleted); err != nil {
		return dto.CompletionResult{}, err
	}
	result.XPEarned = node.XPReward

	if node.StreakReward > 0 {
		if _, err := ledger.GrantStreak(ctx, userID, node.StreakReward); err != nil {
			return dto.CompletionResult{}, err
		}
		result.StreakIncrement = node.StreakReward
	}

	if _, err := telemetry.Record(ctx, TelemetryEntry{
		Type:      models.EventLessonCompleted,
		StudentID: userID,
		Metadata: map[string]interface{}{
			"node_id":    node.NodeID,
			"skill_id":   node.SkillID,
			"xp":         node.XPReward,
			"gems":       node.GemsReward,
			"checkpoint": node.IsCheckpoint,
		},
	}); err != nil {
		return dto.CompletionResult{}, err
	}

	if node.SkillID != "" {
		if err := s.cascade(ctx, tx, userID, node, &result); err != nil {
			return dto.CompletionResult{}, err
		}
	}

	profile, err := ledger.GetProfile(ctx, userID)
	if err != nil {
		return dto.CompletionResult{}, err
	}
	result.Profile = dto.NewProfileResponse(profile)
	return result, nil
}

// cascade applies the unlock effects that follow one completion: next sibling
// lesson, skill mastery, then a work list of skill promotions that can roll
// up into unit completion and entry into the next unit.
func (s *progressionService) cascade(ctx context.Context, tx *gorm.DB, userID string, node models.Node, result *dto.CompletionResult) error {
	nodes := s.nodes.WithTx(tx)
	progress := s.progress.WithTx(tx)
	telemetry := s.telemetry.WithTx(tx)

	siblings, err := nodes.ListBySkill(ctx, node.SkillID)
	if err != nil {
		return fmt.Errorf("list skill nodes: %w", err)
	}

	if next, ok := nextNode(siblings, node.NodeID); ok {
		unlocked, err := s.unlockNode(ctx, tx, userID, next.NodeID)
		if err != nil {
			return err
		}
		if unlocked {
			result.UnlockedNodeIDs = append(result.UnlockedNodeIDs, next.NodeID)
			if _, err := telemetry.Record(ctx, TelemetryEntry{
				Type:      models.EventLessonUnlocked,
				StudentID: userID,
				Metadata:  map[string]interface{}{"node_id": next.NodeID, "skill_id": node.SkillID},
			}); err != nil {
				return err
			}
		}
	}

	nodeIDs := make([]string, 0, len(siblings))
	for _, sibling := range siblings {
		nodeIDs = append(nodeIDs, sibling.NodeID)
	}
	records, err := progress.ListForNodes(ctx, userID, nodeIDs)
	if err != nil {
		return fmt.Errorf("list skill progress: %w", err)
	}

	statuses := make(map[string]string, len(nodeIDs))
	for _, id := range nodeIDs {
		statuses[id] = models.StatusLocked
	}
	mastered := 0
	for _, record := range records {
		statuses[record.NodeID] = record.Status
		if record.Terminal() {
			mastered++
		}
	}
	result.NodeStatuses = statuses

	total := len(siblings)
	if total == 0 {
		total = 1
	}
	pct := int(math.Round(float64(mastered) * 100 / float64(total)))
	result.SkillMasteryPct = pct

	_, err = s.skillProgress.WithTx(tx).Upsert(ctx, userID, node.SkillID, func(sp *models.SkillProgress) error {
		sp.MasteryPct = pct
		switch {
		case pct >= 100:
			sp.Status = models.StatusCompleted
		case pct > 0 && sp.Status != models.StatusCompleted:
			sp.Status = models.StatusCurrent
		}
		return nil
	})
	if err != nil {
		return err
	}

	if pct < 100 {
		return nil
	}
	result.CompletedSkillIDs = append(result.CompletedSkillIDs, node.SkillID)

	// Work list of completed skills still owing their promotion effects.
	worklist := []string{node.SkillID}
	for len(worklist) > 0 {
		skillID := worklist[0]
		worklist = worklist[1:]
		if err := s.promoteAfterSkill(ctx, tx, userID, skillID, result); err != nil {
			return err
		}
	}
	return nil
}

// promoteAfterSkill unlocks the next skill in the owning unit, or completes
// the unit and promotes its successor when the finished skill was the last.
func (s *progressionService) promoteAfterSkill(ctx context.Context, tx *gorm.DB, userID, skillID string, result *dto.CompletionResult) error {
	nodes := s.nodes.WithTx(tx)
	telemetry := s.telemetry.WithTx(tx)

	skill, err := nodes.GetSkill(ctx, skillID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load skill: %w", err)
	}

	unitSkills, err := nodes.ListSkillsByUnit(ctx, skill.UnitID)
	if err != nil {
		return fmt.Errorf("list unit skills: %w", err)
	}

	if next, ok := nextSkill(unitSkills, skillID); ok {
		unlocked, err := s.unlockSkill(ctx, tx, userID, next.SkillID)
		if err != nil {
			return err
		}
		if unlocked {
			result.UnlockedSkillIDs = append(result.UnlockedSkillIDs, next.SkillID)
			observability.UnlockEvents().WithLabelValues("skill").Inc()
			if _, err := telemetry.Record(ctx, TelemetryEntry{
				Type:      models.EventSkillUnlocked,
				StudentID: userID,
				Metadata:  map[string]interface{}{"skill_id": next.SkillID, "unit_id": skill.UnitID},
			}); err != nil {
				return err
			}
			if err := s.unlockFirstLesson(ctx, tx, userID, next.SkillID, result); err != nil {
				return err
			}
		}
		return nil
	}

	// Last skill of the unit: the unit is done.
	_, err = s.unitProgress.WithTx(tx).Upsert(ctx, userID, skill.UnitID, func(up *models.UnitProgress) error {
		up.Status = models.UnitStatusCompleted
		return nil
	})
	if err != nil {
		return err
	}
	result.CompletedUnitIDs = append(result.CompletedUnitIDs, skill.UnitID)
	observability.UnlockEvents().WithLabelValues("unit").Inc()
	if _, err := telemetry.Record(ctx, TelemetryEntry{
		Type:      models.EventUnitProgressed,
		StudentID: userID,
		Metadata:  map[string]interface{}{"unit_id": skill.UnitID, "status": models.UnitStatusCompleted},
	}); err != nil {
		return err
	}

	if err := s.grantUnitReward(ctx, tx, userID, skill.UnitID, result); err != nil {
		return err
	}
	return s.promoteNextUnit(ctx, tx, userID, skill.UnitID, result)
}

// grantUnitReward pays a unit's completion bonus exactly once per learner.
func (s *progressionService) grantUnitReward(ctx context.Context, tx *gorm.DB, userID, unitID string, result *dto.CompletionResult) error {
	nodes := s.nodes.WithTx(tx)

	unit, err := nodes.GetUnit(ctx, unitID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load unit: %w", err)
	}
	if unit.RewardXP <= 0 {
		return nil
	}

	claimedNow := false
	_, err = s.unitProgress.WithTx(tx).Upsert(ctx, userID, unitID, func(up *models.UnitProgress) error {
		if !up.RewardClaimed {
			up.RewardClaimed = true
			claimedNow = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !claimedNow {
		return nil
	}

	if _, err := s.ledger.WithTx(tx).GrantXP(ctx, userID, unit.RewardXP, "unit_completion"); err != nil {
		return err
	}
	result.XPEarned += unit.RewardXP
	return nil
}

// promoteNextUnit moves the learner into the successor unit: the unit becomes
// current, its first skill current and that skill's first lesson available.
// A unit without a successor simply ends the cascade.
func (s *progressionService) promoteNextUnit(ctx context.Context, tx *gorm.DB, userID, unitID string, result *dto.CompletionResult) error {
	nodes := s.nodes.WithTx(tx)
	telemetry := s.telemetry.WithTx(tx)

	units, err := nodes.ListUnits(ctx)
	if err != nil {
		return fmt.Errorf("list units: %w", err)
	}
	next, ok := nextUnit(units, unitID)
	if !ok {
		return nil
	}

	promoted := false
	_, err = s.unitProgress.WithTx(tx).Upsert(ctx, userID, next.UnitID, func(up *models.UnitProgress) error {
		if up.Status == models.UnitStatusUpcoming {
			up.Status = models.UnitStatusCurrent
			promoted = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !promoted {
		return nil
	}

	if _, err := telemetry.Record(ctx, TelemetryEntry{
		Type:      models.EventUnitProgressed,
		StudentID: userID,
		Metadata:  map[string]interface{}{"unit_id": next.UnitID, "status": models.UnitStatusCurrent},
	}); err != nil {
		return err
	}

	skills, err := nodes.ListSkillsByUnit(ctx, next.UnitID)
	if err != nil {
		return fmt.Errorf("list unit skills: %w", err)
	}
	if len(skills) == 0 {
		return nil
	}

	unlocked, err := s.unlockSkill(ctx, tx, userID, skills[0].SkillID)
	if err != nil {
		return err
	}
	if unlocked {
		result.UnlockedSkillIDs = append(result.UnlockedSkillIDs, skills[0].SkillID)
		if _, err := telemetry.Record(ctx, TelemetryEntry{
			Type:      models.EventSkillUnlocked,
			StudentID: userID,
			Metadata:  map[string]interface{}{"skill_id": skills[0].SkillID, "unit_id": next.UnitID},
		}); err != nil {
			return err
		}
	}
	return s.unlockFirstLesson(ctx, tx, userID, skills[0].SkillID, result)
}

func (s *progressionService) unlockFirstLesson(ctx context.Context, tx *gorm.DB, userID, skillID string, result *dto.CompletionResult) error {
	lessons, err := s.nodes.WithTx(tx).ListBySkill(ctx, skillID)
	if err != nil {
		return fmt.Errorf("list skill nodes: %w", err)
	}
	if len(lessons) == 0 {
		return nil
	}

	unlocked, err := s.unlockNode(ctx, tx, userID, lessons[0].NodeID)
	if err != nil {
		return err
	}
	if unlocked {
		result.UnlockedNodeIDs = append(result.UnlockedNodeIDs, lessons[0].NodeID)
		_, err = s.telemetry.WithTx(tx).Record(ctx, TelemetryEntry{
			Type:      models.EventLessonUnlocked,
			StudentID: userID,
			Metadata:  map[string]interface{}{"node_id": lessons[0].NodeID, "skill_id": skillID},
		})
	}
	return err
}

// unlockNode promotes a locked node to available. Already-unlocked nodes are
// never touched, so status never regresses.
func (s *progressionService) unlockNode(ctx context.Context, tx *gorm.DB, userID, nodeID string) (bool, error) {
	changed := false
	_, err := s.progress.WithTx(tx).Upsert(ctx, userID, nodeID, func(p *models.Progress) error {
		if p.Unlocked() {
			return nil
		}
		p.Status = models.StatusAvailable
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		observability.UnlockEvents().WithLabelValues("lesson").Inc()
	}
	return changed, nil
}

func (s *progressionService) unlockSkill(ctx context.Context, tx *gorm.DB, userID, skillID string) (bool, error) {
	changed := false
	_, err := s.skillProgress.WithTx(tx).Upsert(ctx, userID, skillID, func(sp *models.SkillProgress) error {
		if sp.Status != models.StatusLocked {
			return nil
		}
		sp.Status = models.StatusCurrent
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *progressionService) SubmitQuiz(ctx context.Context, req dto.QuizSubmissionRequest) (dto.QuizResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.QuizResult{}, err
	}

	if _, err := s.nodes.GetByNodeID(ctx, req.NodeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.QuizResult{}, ErrNodeNotFound
		}
		return dto.QuizResult{}, fmt.Errorf("load node: %w", err)
	}

	passed := req.Score >= quizPassMark
	stars := starsForScore(req.Score)

	// Attempt bookkeeping and the completion cascade commit together so a
	// failed cascade leaves no half-recorded attempt behind.
	var (
		result        dto.QuizResult
		completion    dto.CompletionResult
		completionRan bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updated, err := s.progress.WithTx(tx).Upsert(ctx, req.UserID, req.NodeID, func(p *models.Progress) error {
			if !p.Unlocked() {
				return ErrNodeLocked
			}
			p.Attempts++
			if req.Score > p.BestScore {
				p.BestScore = req.Score
			}
			if stars > p.Stars {
				p.Stars = stars
			}
			if !passed && !p.Terminal() {
				p.Status = models.StatusInProgress
			}
			return nil
		})
		if err != nil {
			return err
		}

		result = dto.QuizResult{
			NodeID:    req.NodeID,
			Passed:    passed,
			Stars:     updated.Stars,
			BestScore: updated.BestScore,
			Attempts:  updated.Attempts,
			Status:    updated.Status,
		}
		if !passed {
			return nil
		}

		completionRan = true
		completion, err = s.completeNodeTx(ctx, tx, req.UserID, req.NodeID, false)
		if err != nil {
			return err
		}
		result.Completion = &completion
		result.Status = models.StatusMastered
		return nil
	})
	if err != nil {
		if completionRan {
			observability.NodeCompletions().WithLabelValues("rejected").Inc()
		}
		return dto.QuizResult{}, err
	}

	if completionRan {
		if completion.AlreadyCompleted {
			observability.NodeCompletions().WithLabelValues("replayed").Inc()
		} else {
			observability.NodeCompletions().WithLabelValues("completed").Inc()
			if s.reports != nil {
				s.reports.InvalidateUser(ctx, req.UserID)
			}
		}
	}
	return result, nil
}

func (s *progressionService) MarkLessonViewed(ctx context.Context, req dto.LessonViewRequest) (models.Progress, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.Progress{}, err
	}

	if _, err := s.nodes.GetByNodeID(ctx, req.NodeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Progress{}, ErrNodeNotFound
		}
		return models.Progress{}, fmt.Errorf("load node: %w", err)
	}

	return s.progress.Upsert(ctx, req.UserID, req.NodeID, func(p *models.Progress) error {
		p.LessonViewed = true
		p.LessonTimeSpent += req.TimeSpentSeconds
		return nil
	})
}

func newCompletionResult(nodeID string) dto.CompletionResult {
	return dto.CompletionResult{
		NodeID:            nodeID,
		UnlockedNodeIDs:   []string{},
		UnlockedSkillIDs:  []string{},
		CompletedSkillIDs: []string{},
		CompletedUnitIDs:  []string{},
		NodeStatuses:      map[string]string{},
	}
}

func starsForScore(score int) int {
	switch {
	case score >= 90:
		return 3
	case score >= 70:
		return 2
	case score >= quizPassMark:
		return 1
	default:
		return 0
	}
}

func nextNode(ordered []models.Node, nodeID string) (models.Node, bool) {
	for i, node := range ordered {
		if node.NodeID == nodeID && i+1 < len(ordered) {
			return ordered[i+1], true
		}
	}
	return models.Node{}, false
}

func nextSkill(ordered []models.Skill, skillID string) (models.Skill, bool) {
	for i, skill := range ordered {
		if skill.SkillID == skillID && i+1 < len(ordered) {
			return ordered[i+1], true
		}
	}
	return models.Skill{}, false
}

func nextUnit(ordered []models.Unit, unitID string) (models.Unit, bool) {
	for i, unit := range ordered {
		if unit.UnitID == unitID && i+1 < len(ordered) {
			return ordered[i+1], true
		}
	}
	return models.Unit{}, false
}
