package storage

import (
	"context"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sentinel-server-go/internal/platform/errors"
)

// StateRepository stores client state under fixed keys: the permanently
// persisted visit counter and the session-scoped tamper flag.
type StateRepository struct {
	db *gorm.DB
}

func NewStateRepository(db *gorm.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Get returns the value under (scope, key) and whether it exists.
func (r *StateRepository) Get(ctx context.Context, scope, key string) (string, bool, error) {
	var record ClientStateRecord
	err := r.db.WithContext(ctx).
		Where("scope = ? AND key = ?", scope, key).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, errors.Wrap(errors.KindStorage, "state.get", "failed to read state", err)
	}
	return record.Value, true, nil
}

// Set upserts the value under (scope, key).
func (r *StateRepository) Set(ctx context.Context, scope, key, value string) error {
	record := ClientStateRecord{
		Scope:     scope,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "scope"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return errors.Wrap(errors.KindStorage, "state.set", "failed to write state", err)
	}
	return nil
}

// GetInt reads an integer value, defaulting to 0 when absent.
func (r *StateRepository) GetInt(ctx context.Context, scope, key string) (int, error) {
	raw, ok, err := r.Get(ctx, scope, key)
	if err != nil || !ok {
		return 0, err
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrap(errors.KindStorage, "state.get_int", "malformed integer state", err)
	}
	return value, nil
}

// SetInt writes an integer value.
func (r *StateRepository) SetInt(ctx context.Context, scope, key string, value int) error {
	return r.Set(ctx, scope, key, strconv.Itoa(value))
}

// GetTime reads an RFC3339 timestamp, returning nil when absent.
func (r *StateRepository) GetTime(ctx context.Context, scope, key string) (*time.Time, error) {
	raw, ok, err := r.Get(ctx, scope, key)
	if err != nil || !ok {
		return nil, err
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "state.get_time", "malformed timestamp state", err)
	}
	return &value, nil
}

// SetTime writes an RFC3339 timestamp.
func (r *StateRepository) SetTime(ctx context.Context, scope, key string, value time.Time) error {
	return r.Set(ctx, scope, key, value.UTC().Format(time.RFC3339))
}
