package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-progression-api/internal/models"
)

// TelemetryRepository appends progression events to a capped log. Append
// trims the oldest rows once the table grows past the retention limit, so the
// log behaves as a bounded ring rather than an unbounded collection.
type TelemetryRepository interface {
	Append(ctx context.Context, event *models.TelemetryEvent) error
	ListRecent(ctx context.Context, studentID string, limit int) ([]models.TelemetryEvent, error)
	Count(ctx context.Context) (int64, error)
	WithTx(tx *gorm.DB) TelemetryRepository
}

type telemetryRepository struct {
	db        *gorm.DB
	retention int
}

// NewTelemetryRepository constructs a telemetry repository keeping at most
// retention events.
func NewTelemetryRepository(db *gorm.DB, retention int) TelemetryRepository {
	if retention <= 0 {
		retention = 500
	}
	return &telemetryRepository{db: db, retention: retention}
}

func (r *telemetryRepository) WithTx(tx *gorm.DB) TelemetryRepository {
	return &telemetryRepository{db: tx, retention: r.retention}
}

func (r *telemetryRepository) Append(ctx context.Context, event *models.TelemetryEvent) error {
	db := r.db.WithContext(ctx)
	if err := db.Create(event).Error; err != nil {
		return err
	}

	var total int64
	if err := db.Model(&models.TelemetryEvent{}).Count(&total).Error; err != nil {
		return err
	}
	overflow := total - int64(r.retention)
	if overflow <= 0 {
		return nil
	}

	var stale []uint
	err := db.Model(&models.TelemetryEvent{}).
		Order("id ASC").
		Limit(int(overflow)).
		Pluck("id", &stale).Error
	if err != nil {
		return err
	}
	return db.Where("id IN ?", stale).Delete(&models.TelemetryEvent{}).Error
}

func (r *telemetryRepository) ListRecent(ctx context.Context, studentID string, limit int) ([]models.TelemetryEvent, error) {
	if limit <= 0 || limit > r.retention {
		limit = 50
	}
	query := r.db.WithContext(ctx).Model(&models.TelemetryEvent{})
	if studentID != "" {
		query = query.Where("student_id = ?", studentID)
	}

	var events []models.TelemetryEvent
	if err := query.Order("id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *telemetryRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.TelemetryEvent{}).Count(&total).Error
	return total, err
}
