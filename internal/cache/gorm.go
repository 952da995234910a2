package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tesla-telemetry-backend/internal/model"
)

type gormBackend struct {
	db *gorm.DB
}

// NewGormBackend stores entries in the cache_entries table.
func NewGormBackend(db *gorm.DB) Backend {
	return &gormBackend{db: db}
}

func (b *gormBackend) Load(ctx context.Context, kind Kind, key string) (*Entry, bool, error) {
	var row model.CacheEntry
	err := b.db.WithContext(ctx).
		Where("kind = ? AND cache_key = ?", string(kind), key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &Entry{
		Kind:      Kind(row.Kind),
		Key:       row.Key,
		Payload:   []byte(row.Payload),
		CachedAt:  row.CachedAt,
		ExpiresAt: row.ExpiresAt,
	}, true, nil
}

func (b *gormBackend) Save(ctx context.Context, e *Entry) error {
	row := model.CacheEntry{
		Kind:      string(e.Kind),
		Key:       e.Key,
		Payload:   datatypes.JSON(e.Payload),
		CachedAt:  e.CachedAt,
		ExpiresAt: e.ExpiresAt,
	}
	return b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "cached_at", "expires_at"}),
	}).Create(&row).Error
}

func (b *gormBackend) Delete(ctx context.Context, kind Kind, key string) (bool, error) {
	res := b.db.WithContext(ctx).
		Where("kind = ? AND cache_key = ?", string(kind), key).
		Delete(&model.CacheEntry{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (b *gormBackend) DeleteKind(ctx context.Context, kind Kind) (int64, error) {
	res := b.db.WithContext(ctx).Where("kind = ?", string(kind)).Delete(&model.CacheEntry{})
	return res.RowsAffected, res.Error
}

func (b *gormBackend) DeleteExpired(ctx context.Context, now time.Time) (ExpireResult, error) {
	result := make(ExpireResult, len(Kinds))
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, kind := range Kinds {
			res := tx.Where("kind = ? AND expires_at < ?", string(kind), now).Delete(&model.CacheEntry{})
			if res.Error != nil {
				return res.Error
			}
			result[kind] = res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
