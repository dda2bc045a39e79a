package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-progression-api/internal/models"
)

// ProfileRepository stores per-learner gamification ledgers. Mutate locks the
// row for the duration of the mutator so concurrent grants for the same user
// serialize; GetOrCreate seeds enrollment defaults on first touch.
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (models.Profile, error)
	GetOrCreate(ctx context.Context, userID string) (models.Profile, error)
	Mutate(ctx context.Context, userID string, mutate func(*models.Profile) error) (models.Profile, error)
	WithTx(tx *gorm.DB) ProfileRepository
}

type profileRepository struct {
	db *gorm.DB
}

// NewProfileRepository constructs a profile repository.
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) WithTx(tx *gorm.DB) ProfileRepository {
	return &profileRepository{db: tx}
}

func (r *profileRepository) Get(ctx context.Context, userID string) (models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

func (r *profileRepository) GetOrCreate(ctx context.Context, userID string) (models.Profile, error) {
	profile, err := r.Get(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Profile{}, err
	}

	profile = models.NewProfile(userID)
	if err := r.db.WithContext(ctx).Create(&profile).Error; err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

func (r *profileRepository) Mutate(ctx context.Context, userID string, mutate func(*models.Profile) error) (models.Profile, error) {
	var result models.Profile
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.Profile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			profile = models.NewProfile(userID)
		} else if err != nil {
			return err
		}

		if err := mutate(&profile); err != nil {
			return err
		}

		if err := tx.Save(&profile).Error; err != nil {
			return err
		}
		result = profile
		return nil
	})
	if err != nil {
		return models.Profile{}, err
	}
	return result, nil
}
