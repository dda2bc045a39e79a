package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-progression-api/internal/models"
)

// PathFilter narrows path listing queries.
type PathFilter struct {
	Search       string
	Subject      string
	GradeLevel   int
	TemplateOnly bool
	SchoolID     *string
	Page         int
	PageSize     int
}

// TemplateGroup identifies one curriculum grouping used by template
// generation.
type TemplateGroup struct {
	GradeLevel  int
	ClassNumber int
	Semester    int
	Subject     string
	Major       string
}

// PathRepository persists curriculum paths. Update applies its mutator under
// a row lock so the node list and the derived aggregates always change in the
// same transaction.
type PathRepository interface {
	GetByPathID(ctx context.Context, pathID string) (models.Path, error)
	Exists(ctx context.Context, pathID string) (bool, error)
	List(ctx context.Context, filter PathFilter) ([]models.Path, int64, error)
	Create(ctx context.Context, path *models.Path) error
	Update(ctx context.Context, pathID string, mutate func(*models.Path) error) (models.Path, error)
	Delete(ctx context.Context, pathID string) error
	TemplateExistsForGroup(ctx context.Context, group TemplateGroup) (bool, error)
	WithTx(tx *gorm.DB) PathRepository
}

type pathRepository struct {
	db *gorm.DB
}

// NewPathRepository constructs a path repository.
func NewPathRepository(db *gorm.DB) PathRepository {
	return &pathRepository{db: db}
}

func (r *pathRepository) WithTx(tx *gorm.DB) PathRepository {
	return &pathRepository{db: tx}
}

func (r *pathRepository) GetByPathID(ctx context.Context, pathID string) (models.Path, error) {
	var path models.Path
	if err := r.db.WithContext(ctx).Where("path_id = ?", pathID).First(&path).Error; err != nil {
		return models.Path{}, err
	}
	return path, nil
}

func (r *pathRepository) Exists(ctx context.Context, pathID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Path{}).Where("path_id = ?", pathID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *pathRepository) List(ctx context.Context, filter PathFilter) ([]models.Path, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Path{})

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}
	if filter.Subject != "" {
		query = query.Where("subject = ?", filter.Subject)
	}
	if filter.GradeLevel > 0 {
		query = query.Where("grade_level = ?", filter.GradeLevel)
	}
	if filter.TemplateOnly {
		query = query.Where("is_template = ?", true)
	}
	if filter.SchoolID != nil {
		query = query.Where("school_id = ?", *filter.SchoolID)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var paths []models.Path
	if err := query.Order("created_at DESC").Find(&paths).Error; err != nil {
		return nil, 0, err
	}
	return paths, total, nil
}

func (r *pathRepository) Create(ctx context.Context, path *models.Path) error {
	return r.db.WithContext(ctx).Create(path).Error
}

func (r *pathRepository) Update(ctx context.Context, pathID string, mutate func(*models.Path) error) (models.Path, error) {
	var result models.Path
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var path models.Path
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("path_id = ?", pathID).
			First(&path).Error
		if err != nil {
			return err
		}

		if err := mutate(&path); err != nil {
			return err
		}

		if err := tx.Save(&path).Error; err != nil {
			return err
		}
		result = path
		return nil
	})
	if err != nil {
		return models.Path{}, err
	}
	return result, nil
}

func (r *pathRepository) Delete(ctx context.Context, pathID string) error {
	result := r.db.WithContext(ctx).Where("path_id = ?", pathID).Delete(&models.Path{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *pathRepository) TemplateExistsForGroup(ctx context.Context, group TemplateGroup) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Path{}).
		Where("is_template = ?", true).
		Where("grade_level = ? AND class_number = ? AND semester = ? AND subject = ? AND major = ?",
			group.GradeLevel, group.ClassNumber, group.Semester, group.Subject, group.Major).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
