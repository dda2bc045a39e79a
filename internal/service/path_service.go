package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-progression-api/internal/dto"
	"github.com/noah-isme/gema-progression-api/internal/models"
	"github.com/noah-isme/gema-progression-api/internal/observability"
	"github.com/noah-isme/gema-progression-api/internal/repository"
)

// PathService owns the curriculum path lifecycle. Every write that touches a
// node list flows through the same aggregation so the derived columns can
// never go stale.
type PathService interface {
	Create(ctx context.Context, req dto.PathCreateRequest) (dto.PathResponse, error)
	Get(ctx context.Context, pathID string) (dto.PathResponse, error)
	List(ctx context.Context, req dto.PathListRequest) (dto.PathListResult, error)
	Update(ctx context.Context, pathID string, req dto.PathUpdateRequest) (dto.PathResponse, error)
	Reorder(ctx context.Context, pathID string, req dto.PathReorderRequest) (dto.PathResponse, error)
	Clone(ctx context.Context, pathID string, req dto.PathCloneRequest) (dto.PathResponse, error)
	Delete(ctx context.Context, pathID string) error
	GenerateTemplates(ctx context.Context) (dto.GenerationSummary, error)
}

type pathService struct {
	paths     repository.PathRepository
	nodes     repository.NodeRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewPathService constructs the path service.
func NewPathService(paths repository.PathRepository, nodes repository.NodeRepository, validate *validator.Validate, logger zerolog.Logger) PathService {
	return &pathService{
		paths:     paths,
		nodes:     nodes,
		validator: validate,
		logger:    logger.With().Str("component", "path_service").Logger(),
	}
}

// pathAggregates holds the derived statistics computed from an ordered node
// list.
type pathAggregates struct {
	TotalNodes       int
	TotalXP          int
	TotalQuizzes     int
	EstimatedHours   float64
	CheckpointCount  int
	Difficulty       string
	LearningOutcomes []string
	KompetensiDasar  []string
}

// resolveNodes resolves ids in request order. Any id that does not resolve
// rejects the whole write with an InvalidReferenceError before persistence.
func (s *pathService) resolveNodes(ctx context.Context, nodeIDs []string) ([]models.Node, error) {
	found, err := s.nodes.GetByNodeIDs(ctx, nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve nodes: %w", err)
	}

	byID := make(map[string]models.Node, len(found))
	for _, node := range found {
		byID[node.NodeID] = node
	}

	ordered := make([]models.Node, 0, len(nodeIDs))
	missing := []string{}
	for _, id := range nodeIDs {
		node, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		ordered = append(ordered, node)
	}
	if len(missing) > 0 {
		return nil, &InvalidReferenceError{Missing: missing}
	}
	return ordered, nil
}

func aggregateNodes(nodes []models.Node) pathAggregates {
	agg := pathAggregates{
		TotalNodes:       len(nodes),
		Difficulty:       models.DifficultyEasy,
		LearningOutcomes: []string{},
		KompetensiDasar:  []string{},
	}

	totalMinutes := 0
	difficulty := ""
	mixed := false
	seenOutcome := map[string]bool{}
	seenKompetensi := map[string]bool{}

	for _, node := range nodes {
		agg.TotalXP += node.XPReward
		agg.TotalQuizzes += node.QuizCount
		totalMinutes += node.EstimatedMinutes
		if node.IsCheckpoint {
			agg.CheckpointCount++
		}

		if difficulty == "" {
			difficulty = node.Difficulty
		} else if node.Difficulty != difficulty {
			mixed = true
		}

		for _, outcome := range node.LearningOutcomes {
			if !seenOutcome[outcome] {
				seenOutcome[outcome] = true
				agg.LearningOutcomes = append(agg.LearningOutcomes, outcome)
			}
		}
		for _, kd := range node.KompetensiDasar {
			if !seenKompetensi[kd] {
				seenKompetensi[kd] = true
				agg.KompetensiDasar = append(agg.KompetensiDasar, kd)
			}
		}
	}

	agg.EstimatedHours = math.Round(float64(totalMinutes)/60*10) / 10
	if mixed {
		agg.Difficulty = models.DifficultyMixed
	} else if difficulty != "" {
		agg.Difficulty = difficulty
	}
	return agg
}

func applyAggregates(path *models.Path, nodeIDs []string, agg pathAggregates) {
	path.NodeIDs = append([]string(nil), nodeIDs...)
	path.TotalNodes = agg.TotalNodes
	path.TotalXP = agg.TotalXP
	path.TotalQuizzes = agg.TotalQuizzes
	path.EstimatedHours = agg.EstimatedHours
	path.CheckpointCount = agg.CheckpointCount
	path.Difficulty = agg.Difficulty
	path.LearningOutcomes = agg.LearningOutcomes
	path.KompetensiDasar = agg.KompetensiDasar
}

func (s *pathService) Create(ctx context.Context, req dto.PathCreateRequest) (dto.PathResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.PathResponse{}, err
	}

	start := time.Now()
	defer func() {
		observability.PathRecomputeLatency().Observe(time.Since(start).Seconds())
	}()

	pathID := req.PathID
	if pathID == "" {
		pathID = uuid.NewString()
	} else {
		exists, err := s.paths.Exists(ctx, pathID)
		if err != nil {
			return dto.PathResponse{}, err
		}
		if exists {
			return dto.PathResponse{}, ErrPathExists
		}
	}

	nodes, err := s.resolveNodes(ctx, req.NodeIDs)
	if err != nil {
		return dto.PathResponse{}, err
	}

	path := models.Path{
		PathID:      pathID,
		Name:        req.Name,
		Description: req.Description,
		GradeLevel:  req.GradeLevel,
		ClassNumber: req.ClassNumber,
		Semester:    req.Semester,
		Subject:     req.Subject,
		Major:       req.Major,
		IsTemplate:  req.IsTemplate,
		IsPublic:    req.IsPublic,
		IsActive:    true,
		SchoolID:    req.SchoolID,
	}
	applyAggregates(&path, req.NodeIDs, aggregateNodes(nodes))

	if err := s.paths.Create(ctx, &path); err != nil {
		return dto.PathResponse{}, fmt.Errorf("create path: %w", err)
	}
	return dto.NewPathResponse(path), nil
}

func (s *pathService) Get(ctx context.Context, pathID string) (dto.PathResponse, error) {
	path, err := s.paths.GetByPathID(ctx, pathID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.PathResponse{}, ErrPathNotFound
	}
	if err != nil {
		return dto.PathResponse{}, err
	}
	return dto.NewPathResponse(path), nil
}

func (s *pathService) List(ctx context.Context, req dto.PathListRequest) (dto.PathListResult, error) {
	filter := repository.PathFilter{
		Search:       req.Search,
		Subject:      req.Subject,
		GradeLevel:   req.GradeLevel,
		TemplateOnly: req.TemplateOnly,
		SchoolID:     req.SchoolID,
		Page:         req.Page,
		PageSize:     req.PageSize,
	}

	paths, total, err := s.paths.List(ctx, filter)
	if err != nil {
		return dto.PathListResult{}, err
	}

	items := make([]dto.PathResponse, 0, len(paths))
	for _, path := range paths {
		items = append(items, dto.NewPathResponse(path))
	}

	pagination := dto.PaginationMeta{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalItems: total,
	}
	if pagination.Page <= 0 {
		pagination.Page = 1
	}
	if filter.PageSize > 0 {
		pagination.TotalPages = int(math.Ceil(float64(total) / float64(filter.PageSize)))
	} else {
		pagination.TotalPages = 1
	}

	return dto.PathListResult{Items: items, Pagination: pagination}, nil
}

func (s *pathService) Update(ctx context.Context, pathID string, req dto.PathUpdateRequest) (dto.PathResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.PathResponse{}, err
	}

	start := time.Now()
	defer func() {
		observability.PathRecomputeLatency().Observe(time.Since(start).Seconds())
	}()

	// Resolve outside the row lock; the ids are validated against an
	// immutable catalog.
	var nodes []models.Node
	if req.NodeIDs != nil {
		resolved, err := s.resolveNodes(ctx, req.NodeIDs)
		if err != nil {
			return dto.PathResponse{}, err
		}
		nodes = resolved
	}

	path, err := s.paths.Update(ctx, pathID, func(p *models.Path) error {
		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.IsActive != nil {
			p.IsActive = *req.IsActive
		}
		if req.IsPublic != nil {
			p.IsPublic = *req.IsPublic
		}
		if req.NodeIDs != nil {
			applyAggregates(p, req.NodeIDs, aggregateNodes(nodes))
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.PathResponse{}, ErrPathNotFound
	}
	if err != nil {
		return dto.PathResponse{}, err
	}
	return dto.NewPathResponse(path), nil
}

// Reorder replaces the node sequence. The new sequence must be a true
// permutation of the current ids: same length and same id multiset.
func (s *pathService) Reorder(ctx context.Context, pathID string, req dto.PathReorderRequest) (dto.PathResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.PathResponse{}, err
	}

	path, err := s.paths.Update(ctx, pathID, func(p *models.Path) error {
		if !samePermutation(p.NodeIDs, req.NodeIDs) {
			return ErrReorderMismatch
		}
		p.NodeIDs = append([]string(nil), req.NodeIDs...)
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.PathResponse{}, ErrPathNotFound
	}
	if err != nil {
		return dto.PathResponse{}, err
	}
	return dto.NewPathResponse(path), nil
}

func (s *pathService) Clone(ctx context.Context, pathID string, req dto.PathCloneRequest) (dto.PathResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.PathResponse{}, err
	}

	source, err := s.paths.GetByPathID(ctx, pathID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.PathResponse{}, ErrPathNotFound
	}
	if err != nil {
		return dto.PathResponse{}, err
	}

	newID := req.NewPathID
	if newID == "" {
		newID = uuid.NewString()
	}
	exists, err := s.paths.Exists(ctx, newID)
	if err != nil {
		return dto.PathResponse{}, err
	}
	if exists {
		return dto.PathResponse{}, ErrPathExists
	}

	clone := source
	clone.ID = 0
	clone.PathID = newID
	clone.Name = req.Name
	clone.IsTemplate = false
	clone.IsPublic = false
	clone.SchoolID = req.SchoolID
	clone.CreatedAt = time.Time{}
	clone.UpdatedAt = time.Time{}
	clone.NodeIDs = append([]string(nil), source.NodeIDs...)
	clone.LearningOutcomes = append([]string(nil), source.LearningOutcomes...)
	clone.KompetensiDasar = append([]string(nil), source.KompetensiDasar...)

	if err := s.paths.Create(ctx, &clone); err != nil {
		return dto.PathResponse{}, fmt.Errorf("clone path: %w", err)
	}
	return dto.NewPathResponse(clone), nil
}

func (s *pathService) Delete(ctx context.Context, pathID string) error {
	path, err := s.paths.GetByPathID(ctx, pathID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPathNotFound
	}
	if err != nil {
		return err
	}
	if path.Protected() {
		return ErrPathProtected
	}

	if err := s.paths.Delete(ctx, pathID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPathNotFound
		}
		return err
	}
	return nil
}

// GenerateTemplates scans the active node catalog, groups nodes by curriculum
// tuple and synthesises one template path per group that has none yet.
// Generation is additive: existing groups are skipped, so re-runs are safe.
func (s *pathService) GenerateTemplates(ctx context.Context) (dto.GenerationSummary, error) {
	nodes, err := s.nodes.ListActive(ctx)
	if err != nil {
		return dto.GenerationSummary{}, fmt.Errorf("list active nodes: %w", err)
	}

	groups := map[repository.TemplateGroup][]models.Node{}
	order := []repository.TemplateGroup{}
	for _, node := range nodes {
		group := repository.TemplateGroup{
			GradeLevel:  node.GradeLevel,
			ClassNumber: node.ClassNumber,
			Semester:    node.Semester,
			Subject:     node.Subject,
			Major:       node.Major,
		}
		if _, seen := groups[group]; !seen {
			order = append(order, group)
		}
		groups[group] = append(groups[group], node)
	}

	summary := dto.GenerationSummary{CreatedPathIDs: []string{}}
	for _, group := range order {
		exists, err := s.paths.TemplateExistsForGroup(ctx, group)
		if err != nil {
			return dto.GenerationSummary{}, err
		}
		if exists {
			summary.Skipped++
			continue
		}

		members := groups[group]
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Sequence < members[j].Sequence
		})
		nodeIDs := make([]string, 0, len(members))
		for _, node := range members {
			nodeIDs = append(nodeIDs, node.NodeID)
		}

		path := models.Path{
			PathID:      uuid.NewString(),
			Name:        templateName(group),
			GradeLevel:  group.GradeLevel,
			ClassNumber: group.ClassNumber,
			Semester:    group.Semester,
			Subject:     group.Subject,
			Major:       group.Major,
			IsTemplate:  true,
			IsPublic:    true,
			IsActive:    true,
		}
		applyAggregates(&path, nodeIDs, aggregateNodes(members))

		if err := s.paths.Create(ctx, &path); err != nil {
			return dto.GenerationSummary{}, fmt.Errorf("create template path: %w", err)
		}
		summary.Created++
		summary.CreatedPathIDs = append(summary.CreatedPathIDs, path.PathID)
	}

	s.logger.Info().
		Int("created", summary.Created).
		Int("skipped", summary.Skipped).
		Msg("template generation completed")
	return summary, nil
}

func templateName(group repository.TemplateGroup) string {
	name := fmt.Sprintf("%s - Kelas %d", group.Subject, group.GradeLevel)
	if group.Major != "" {
		name = fmt.Sprintf("%s %s", name, group.Major)
	}
	return fmt.Sprintf("%s (Semester %d)", name, group.Semester)
}

// samePermutation reports whether b contains exactly the ids of a, order
// aside.
func samePermutation(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
