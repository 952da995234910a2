package model

import (
	"time"

	"gorm.io/datatypes"
)

// CacheEntry is one row of the entity cache. Kind and Key together identify it.
type CacheEntry struct {
	Kind      string         `gorm:"primaryKey;size:32"`
	Key       string         `gorm:"column:cache_key;primaryKey;size:64"`
	Payload   datatypes.JSON `gorm:"not null"`
	CachedAt  time.Time      `gorm:"not null"`
	ExpiresAt time.Time      `gorm:"not null;index"`
}
