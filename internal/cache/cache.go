// Package cache is the TTL entity cache that fronts the Fleet API. Expired rows stay
// readable through GetStale until they are invalidated, overwritten or swept by ExpireAll.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"tesla-telemetry-backend/internal/metrics"
)

// Kind names one logical cache table.
type Kind string

const (
	KindVehicleList Kind = "vehicle_list"
	KindVehicleData Kind = "vehicle_data"
	KindEnergyData  Kind = "energy_data"
)

// Kinds lists every cache kind swept by ExpireAll.
var Kinds = []Kind{KindVehicleList, KindVehicleData, KindEnergyData}

// SingletonKey is the key of the one vehicle_list row.
const SingletonKey = "singleton"

// Entry is a cached payload with its freshness window.
type Entry struct {
	Kind      Kind
	Key       string
	Payload   []byte
	CachedAt  time.Time
	ExpiresAt time.Time
}

// Fresh reports whether the entry may be served without a stale opt-in.
func (e *Entry) Fresh(now time.Time) bool {
	return e.ExpiresAt.After(now)
}

// ExpireResult counts the rows removed per kind by one sweep.
type ExpireResult map[Kind]int64

// Backend stores entries. Implementations must not apply their own expiry.
type Backend interface {
	Load(ctx context.Context, kind Kind, key string) (*Entry, bool, error)
	Save(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, kind Kind, key string) (bool, error)
	DeleteKind(ctx context.Context, kind Kind) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (ExpireResult, error)
}

// Cache layers TTL semantics over a Backend.
type Cache struct {
	backend Backend
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache over the given backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry only while it is fresh. An expired row is reported as a miss.
func (c *Cache) Get(ctx context.Context, kind Kind, key string) (*Entry, bool, error) {
	e, ok, err := c.backend.Load(ctx, kind, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s/%s: %w", kind, key, err)
	}
	if !ok || !e.Fresh(c.now()) {
		metrics.CacheLookups.WithLabelValues(string(kind), "miss").Inc()
		return nil, false, nil
	}
	metrics.CacheLookups.WithLabelValues(string(kind), "hit").Inc()
	return e, true, nil
}

// GetStale returns any stored entry regardless of expiry.
func (c *Cache) GetStale(ctx context.Context, kind Kind, key string) (*Entry, bool, error) {
	e, ok, err := c.backend.Load(ctx, kind, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache get stale %s/%s: %w", kind, key, err)
	}
	if ok {
		metrics.CacheLookups.WithLabelValues(string(kind), "stale").Inc()
	}
	return e, ok, nil
}

// Put upserts payload under key with cachedAt = now and expiresAt = now + ttl.
func (c *Cache) Put(ctx context.Context, kind Kind, key string, payload []byte, ttl time.Duration) (*Entry, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache put %s/%s: ttl must be positive, got %s", kind, key, ttl)
	}
	now := c.now()
	e := &Entry{
		Kind:      kind,
		Key:       key,
		Payload:   payload,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := c.backend.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("cache put %s/%s: %w", kind, key, err)
	}
	return e, nil
}

// Invalidate removes one entry. Absence is not an error; found reports whether a row existed.
func (c *Cache) Invalidate(ctx context.Context, kind Kind, key string) (bool, error) {
	found, err := c.backend.Delete(ctx, kind, key)
	if err != nil {
		return false, fmt.Errorf("cache invalidate %s/%s: %w", kind, key, err)
	}
	return found, nil
}

// InvalidateKind removes every entry of one kind.
func (c *Cache) InvalidateKind(ctx context.Context, kind Kind) (int64, error) {
	n, err := c.backend.DeleteKind(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("cache invalidate kind %s: %w", kind, err)
	}
	return n, nil
}

// ExpireAll deletes every row, across all kinds, whose expiresAt is before now.
func (c *Cache) ExpireAll(ctx context.Context, now time.Time) (ExpireResult, error) {
	res, err := c.backend.DeleteExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("cache expire: %w", err)
	}
	for _, k := range Kinds {
		if _, ok := res[k]; !ok {
			res[k] = 0
		}
		metrics.CacheExpired.WithLabelValues(string(k)).Add(float64(res[k]))
	}
	return res, nil
}

// GetJSON decodes a fresh entry into v.
func (c *Cache) GetJSON(ctx context.Context, kind Kind, key string, v any) (*Entry, bool, error) {
	e, ok, err := c.Get(ctx, kind, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return decode(e, v)
}

// GetStaleJSON decodes any stored entry into v.
func (c *Cache) GetStaleJSON(ctx context.Context, kind Kind, key string, v any) (*Entry, bool, error) {
	e, ok, err := c.GetStale(ctx, kind, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return decode(e, v)
}

// PutJSON encodes v and stores it.
func (c *Cache) PutJSON(ctx context.Context, kind Kind, key string, v any, ttl time.Duration) (*Entry, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cache encode %s/%s: %w", kind, key, err)
	}
	return c.Put(ctx, kind, key, payload, ttl)
}

func decode(e *Entry, v any) (*Entry, bool, error) {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return nil, false, fmt.Errorf("cache decode %s/%s: %w", e.Kind, e.Key, err)
	}
	return e, true, nil
}
