package storage

import (
	"context"

	"gorm.io/gorm"

	"sentinel-server-go/internal/platform/errors"
)

// EventRepository persists the local audit trail of security events.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Save appends one event record to the audit trail.
func (r *EventRepository) Save(ctx context.Context, record *SecurityEventRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "event.save", "failed to save event", err)
	}
	return nil
}

// ListRecent returns the newest events, most recent first.
func (r *EventRepository) ListRecent(ctx context.Context, limit int) ([]SecurityEventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []SecurityEventRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.list_recent", "failed to list events", err)
	}
	return records, nil
}

// CountByLevel returns how many stored events carry the given level.
func (r *EventRepository) CountByLevel(ctx context.Context, level string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&SecurityEventRecord{}).
		Where("level = ?", level).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(errors.KindStorage, "event.count_by_level", "failed to count events", err)
	}
	return count, nil
}
