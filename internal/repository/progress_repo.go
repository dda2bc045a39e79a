package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-progression-api/internal/models"
)

// ProgressRepository stores per-(user, node) completion records. Upsert runs
// the mutator under a row lock inside a transaction so concurrent writers for
// the same pair serialize; different pairs never contend.
type ProgressRepository interface {
	Get(ctx context.Context, userID, nodeID string) (models.Progress, error)
	Upsert(ctx context.Context, userID, nodeID string, mutate func(*models.Progress) error) (models.Progress, error)
	ListForNodes(ctx context.Context, userID string, nodeIDs []string) ([]models.Progress, error)
	WithTx(tx *gorm.DB) ProgressRepository
}

type progressRepository struct {
	db *gorm.DB
}

// NewProgressRepository constructs a progress repository.
func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) WithTx(tx *gorm.DB) ProgressRepository {
	return &progressRepository{db: tx}
}

func (r *progressRepository) Get(ctx context.Context, userID, nodeID string) (models.Progress, error) {
	var progress models.Progress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND node_id = ?", userID, nodeID).
		First(&progress).Error
	if err != nil {
		return models.Progress{}, err
	}
	return progress, nil
}

func (r *progressRepository) Upsert(ctx context.Context, userID, nodeID string, mutate func(*models.Progress) error) (models.Progress, error) {
	var result models.Progress
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var progress models.Progress
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND node_id = ?", userID, nodeID).
			First(&progress).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			progress = models.Progress{UserID: userID, NodeID: nodeID, Status: models.StatusLocked}
		} else if err != nil {
			return err
		}

		if err := mutate(&progress); err != nil {
			return err
		}

		if err := tx.Save(&progress).Error; err != nil {
			return err
		}
		result = progress
		return nil
	})
	if err != nil {
		return models.Progress{}, err
	}
	return result, nil
}

func (r *progressRepository) ListForNodes(ctx context.Context, userID string, nodeIDs []string) ([]models.Progress, error) {
	if len(nodeIDs) == 0 {
		return []models.Progress{}, nil
	}
	var records []models.Progress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND node_id IN ?", userID, nodeIDs).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SkillProgressRepository stores per-(user, skill) standing.
type SkillProgressRepository interface {
	Get(ctx context.Context, userID, skillID string) (models.SkillProgress, error)
	Upsert(ctx context.Context, userID, skillID string, mutate func(*models.SkillProgress) error) (models.SkillProgress, error)
	WithTx(tx *gorm.DB) SkillProgressRepository
}

type skillProgressRepository struct {
	db *gorm.DB
}

// NewSkillProgressRepository constructs a skill progress repository.
func NewSkillProgressRepository(db *gorm.DB) SkillProgressRepository {
	return &skillProgressRepository{db: db}
}

func (r *skillProgressRepository) WithTx(tx *gorm.DB) SkillProgressRepository {
	return &skillProgressRepository{db: tx}
}

func (r *skillProgressRepository) Get(ctx context.Context, userID, skillID string) (models.SkillProgress, error) {
	var record models.SkillProgress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND skill_id = ?", userID, skillID).
		First(&record).Error
	if err != nil {
		return models.SkillProgress{}, err
	}
	return record, nil
}

func (r *skillProgressRepository) Upsert(ctx context.Context, userID, skillID string, mutate func(*models.SkillProgress) error) (models.SkillProgress, error) {
	var result models.SkillProgress
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.SkillProgress
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND skill_id = ?", userID, skillID).
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = models.SkillProgress{UserID: userID, SkillID: skillID, Status: models.StatusLocked}
		} else if err != nil {
			return err
		}

		if err := mutate(&record); err != nil {
			return err
		}

		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		result = record
		return nil
	})
	if err != nil {
		return models.SkillProgress{}, err
	}
	return result, nil
}

// UnitProgressRepository stores per-(user, unit) standing.
type UnitProgressRepository interface {
	Get(ctx context.Context, userID, unitID string) (models.UnitProgress, error)
	Upsert(ctx context.Context, userID, unitID string, mutate func(*models.UnitProgress) error) (models.UnitProgress, error)
	WithTx(tx *gorm.DB) UnitProgressRepository
}

type unitProgressRepository struct {
	db *gorm.DB
}

// NewUnitProgressRepository constructs a unit progress repository.
func NewUnitProgressRepository(db *gorm.DB) UnitProgressRepository {
	return &unitProgressRepository{db: db}
}

func (r *unitProgressRepository) WithTx(tx *gorm.DB) UnitProgressRepository {
	return &unitProgressRepository{db: tx}
}

func (r *unitProgressRepository) Get(ctx context.Context, userID, unitID string) (models.UnitProgress, error) {
	var record models.UnitProgress
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND unit_id = ?", userID, unitID).
		First(&record).Error
	if err != nil {
		return models.UnitProgress{}, err
	}
	return record, nil
}

func (r *unitProgressRepository) Upsert(ctx context.Context, userID, unitID string, mutate func(*models.UnitProgress) error) (models.UnitProgress, error) {
	var result models.UnitProgress
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.UnitProgress
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND unit_id = ?", userID, unitID).
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			record = models.UnitProgress{UserID: userID, UnitID: unitID, Status: models.UnitStatusUpcoming}
		} else if err != nil {
			return err
		}

		if err := mutate(&record); err != nil {
			return err
		}

		if err := tx.Save(&record).Error; err != nil {
			return err
		}
		result = record
		return nil
	})
	if err != nil {
		return models.UnitProgress{}, err
	}
	return result, nil
}
