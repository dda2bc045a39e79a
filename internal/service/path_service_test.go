package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-progression-api/internal/dto"
	"github.com/noah-isme/gema-progression-api/internal/models"
	"github.com/noah-isme/gema-progression-api/internal/repository"
)

func newPaths(t *testing.T, db *gorm.DB) PathService {
	t.Helper()
	return NewPathService(
		repository.NewPathRepository(db),
		repository.NewNodeRepository(db),
		validator.New(validator.WithRequiredStructEnabled()),
		zerolog.Nop(),
	)
}

func seedPathNodes(t *testing.T, db *gorm.DB) {
	t.Helper()
	nodes := []models.Node{
		{
			NodeID: "node-1", Title: "Aljabar 1", Sequence: 1,
			XPReward: 10, QuizCount: 2, EstimatedMinutes: 30,
			Difficulty: models.DifficultyEasy, IsCheckpoint: false,
			GradeLevel: 10, ClassNumber: 1, Semester: 1, Subject: "Matematika",
			LearningOutcomes: []string{"menghitung"},
			KompetensiDasar:  []string{"KD-3.1"},
		},
		{
			NodeID: "node-2", Title: "Aljabar 2", Sequence: 2,
			XPReward: 20, QuizCount: 1, EstimatedMinutes: 45,
			Difficulty: models.DifficultyMedium, IsCheckpoint: true,
			GradeLevel: 10, ClassNumber: 1, Semester: 1, Subject: "Matematika",
			LearningOutcomes: []string{"menghitung", "menganalisis"},
			KompetensiDasar:  []string{"KD-3.1", "KD-3.2"},
		},
		{
			NodeID: "node-3", Title: "Mekanika", Sequence: 1,
			XPReward: 15, QuizCount: 1, EstimatedMinutes: 60,
			Difficulty: models.DifficultyHard,
			GradeLevel: 11, ClassNumber: 2, Semester: 2, Subject: "Fisika", Major: "IPA",
		},
	}
	for i := range nodes {
		nodes[i].IsActive = true
		require.NoError(t, db.Create(&nodes[i]).Error)
	}
}

func TestPathCreateComputesAggregates(t *testing.T) {
	db := newTestDB(t)
	seedPathNodes(t, db)
	svc := newPaths(t, db)

	path, err := svc.Create(context.Background(), dto.PathCreateRequest{
		Name:    "Matematika Kelas 10",
		NodeIDs: []string{"node-1", "node-2"},
		Subject: "Matematika",
	})
	require.NoError(t, err)

	require.NotEmpty(t, path.PathID)
	require.Equal(t, []string{"node-1", "node-2"}, path.NodeIDs)
	require.Equal(t, 2, path.TotalNodes)
	require.Equal(t, 30, path.TotalXP)
	require.Equal(t, 3, path.TotalQuizzes)
	require.Equal(t, 1.3, path.EstimatedHours)
	require.Equal(t, 1, path.CheckpointCount)
	require.Equal(t, models.DifficultyMixed, path.Difficulty)
	require.Equal(t, []string{"menghitung", "menganalisis"}, path.LearningOutcomes)
	require.Equal(t, []string{"KD-3.1", "KD-3.2"}, path.KompetensiDasar)
	require.True(t, path.IsActive)
}

func TestPathCreateRejectsUnknownNodes(t *testing.T) {
	db := newTestDB(t)
	seedPathNodes(t, db)
	svc := newPaths(t, db)

	_, err := svc.Create(context.Background(), dto.PathCreateRequest{
		Name:    "Broken",
		NodeIDs: []string{"node-1", "node-x", "node-y"},
	})

	refErr, ok := AsInvalidReference(err)
	require.True(t, ok)
	require.Equal(t, []string{"node-x", "node-y"}, refErr.Missing)
}

func TestPathCreateRejectsDuplicateID(t *testing.T) {
	db := newTestDB(t)
	seedPathNodes(t, db)
	svc := newPaths(t, db)
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.PathCreateRequest{PathID: "path-1", Name: "First", NodeIDs: []string{"node-1"}})
	require.NoError(t, err)

	_, err = svc.Create(ctx, dto.PathCreateRequest{PathID: "path-1", Name: "Second", NodeIDs: []string{"node-2"}})
	require.ErrorIs(t, err, ErrPathExists)
}

func TestPathUpdateRecomputesAggregates(t *testing.T) {
	db := newTestDB(t)
	seedPathNodes(t, db)
	svc := newPaths(t, db)
	ctx := context.Background()

	created, err := svc.Create(ctx, dto.PathCreateRequest{PathID: "path-1", Name: "Aljabar", NodeIDs: []string{"node-1"}})
	require.NoError(t, err)
	require.Equal(t, 10, created.TotalXP)

	name := "Aljabar Lengkap"
	updated, err := svc.Update(ctx, "path-1", dto.PathUpdateRequest{
		Name:    &name,
		NodeIDs: []string{"node-1", "node-2"},
	})
	require.NoError(t, err)

	require.Equal(t, "Aljabar Lengkap", updated.Name)
	require.Equal(t, 2, updated.TotalNodes)
	require.Equal(t, 30, updated.TotalXP)
	require.Equal(t, models.DifficultyMixed, updated.Difficulty)
}

func TestPathUpdateWithoutNodeListKeepsAggregates(t *testing.T) {
	db := newTestDB(t)
	seedPathNodes(t, db)
	svc := newPaths(t, db)
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.PathCreateRequest{PathID: "path-1", Name: "Aljabar", NodeIDs: []string{"node-1", "node-2"}})
	require.NoError(t, err)

	active := false
	updated, err := svc.Update(ctx, "path-1", dto.PathUpdateRequest{IsActive: &active})
	require.NoError(t, err)

	require.False(t, updated.IsActive)
	require.Equal(t, 2, updated.TotalNodes)
	require.Equal(t, 30, updated.TotalXP)
}

func TestPathReorderRequiresPermutation(t *testing.T) {
	db := newTestDB(t)
	seedPathNodes(t, db)
	svc := newPaths(t, db)
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.PathCreateRequest{PathID: "path-1", Name: "Aljabar", NodeIDs: []string{"node-1", "node-2"}})
	require.NoError(t, err)

	_, err = svc.Reorder(ctx, "path-1", dto.PathReorderRequest{NodeIDs: []string{"node-1"}})
	require.ErrorIs(t, err, ErrReorderMismatch)

	_, err = svc.Reorder(ctx, "path-1", dto.PathReorderRequest{NodeIDs: []string{"node-1", "node-3"}})
	require.ErrorIs(t, err, ErrReorderMismatch)

	reordered, err := svc.Reorder(ctx, "path-1", dto.PathReorderRequest{NodeIDs: []string{"node-2", "node-1"}})
	require.NoError(t, err)
	require.Equal(t, []string{"node-2", "node-1"}, reordered.NodeIDs)
	// Aggregates are order independent and must survive a reorder.
	require.Equal(t, 30, reordered.TotalXP)
}

func TestPathCloneCopiesContentUnderNewIdentity(t *testing.T) {
	db := newTestDB(t)
	seedPathNodes(t, db)
	svc := newPaths(t, db)
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.PathCreateRequest{
		PathID: "template-1", Name: "Template", NodeIDs: []string{"node-1", "node-2"},
		IsTemplate: true, IsPublic: true,
	})
	require.NoError(t, err)

	school := "school-7"
	clone, err := svc.Clone(ctx, "template-1", dto.PathCloneRequest{Name: "Kelasku", SchoolID: &school})
	require.NoError(t, err)

	require.NotEqual(t, "template-1", clone.PathID)
	require.Equal(t, "Kelasku", clone.Name)
	require.Equal(t, []string{"node-1", "node-2"}, clone.NodeIDs)
	require.Equal(t, 30, clone.TotalXP)
	require.False(t, clone.IsTemplate)
	require.False(t, clone.IsPublic)
	require.Equal(t, &school, clone.SchoolID)

	// The source is untouched.
	source, err := svc.Get(ctx, "template-1")
	require.NoError(t, err)
	require.True(t, source.IsTemplate)
}

func TestPathDeleteProtectsPublicTemplates(t *testing.T) {
	db := newTestDB(t)
	seedPathNodes(t, db)
	svc := newPaths(t, db)
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.PathCreateRequest{
		PathID: "template-1", Name: "Template", NodeIDs: []string{"node-1"},
		IsTemplate: true, IsPublic: true,
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, "template-1"), ErrPathProtected)

	_, err = svc.Create(ctx, dto.PathCreateRequest{PathID: "path-1", Name: "Private", NodeIDs: []string{"node-1"}})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "path-1"))

	_, err = svc.Get(ctx, "path-1")
	require.ErrorIs(t, err, ErrPathNotFound)
}

func TestGenerateTemplatesGroupsByCurriculum(t *testing.T) {
	db := newTestDB(t)
	seedPathNodes(t, db)
	svc := newPaths(t, db)
	ctx := context.Background()

	summary, err := svc.GenerateTemplates(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Created)
	require.Equal(t, 0, summary.Skipped)
	require.Len(t, summary.CreatedPathIDs, 2)

	list, err := svc.List(ctx, dto.PathListRequest{TemplateOnly: true})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)

	byName := map[string]dto.PathResponse{}
	for _, item := range list.Items {
		byName[item.Name] = item
	}
	math := byName["Matematika - Kelas 10 (Semester 1)"]
	require.Equal(t, []string{"node-1", "node-2"}, math.NodeIDs)
	require.True(t, math.IsTemplate)
	require.True(t, math.IsPublic)

	fisika := byName["Fisika - Kelas 11 IPA (Semester 2)"]
	require.Equal(t, []string{"node-3"}, fisika.NodeIDs)
}

func TestGenerateTemplatesSkipsExistingGroups(t *testing.T) {
	db := newTestDB(t)
	seedPathNodes(t, db)
	svc := newPaths(t, db)
	ctx := context.Background()

	first, err := svc.GenerateTemplates(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, first.Created)

	second, err := svc.GenerateTemplates(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, second.Created)
	require.Equal(t, 2, second.Skipped)
}

func TestPathListFiltersAndPaginates(t *testing.T) {
	db := newTestDB(t)
	seedPathNodes(t, db)
	svc := newPaths(t, db)
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.PathCreateRequest{PathID: "path-1", Name: "Aljabar Dasar", NodeIDs: []string{"node-1"}, Subject: "Matematika"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, dto.PathCreateRequest{PathID: "path-2", Name: "Mekanika Dasar", NodeIDs: []string{"node-3"}, Subject: "Fisika"})
	require.NoError(t, err)

	bySubject, err := svc.List(ctx, dto.PathListRequest{Subject: "Fisika"})
	require.NoError(t, err)
	require.Len(t, bySubject.Items, 1)
	require.Equal(t, "path-2", bySubject.Items[0].PathID)

	bySearch, err := svc.List(ctx, dto.PathListRequest{Search: "aljabar"})
	require.NoError(t, err)
	require.Len(t, bySearch.Items, 1)
	require.Equal(t, "path-1", bySearch.Items[0].PathID)

	paged, err := svc.List(ctx, dto.PathListRequest{Page: 1, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, paged.Items, 1)
	require.Equal(t, int64(2), paged.Pagination.TotalItems)
	require.Equal(t, 2, paged.Pagination.TotalPages)
}
