package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type memoryBackend struct {
	mu    sync.Mutex
	items *gocache.Cache
}

// NewMemoryBackend keeps entries in process memory. Items never expire inside go-cache;
// TTLs are enforced by Cache so that stale reads keep working.
func NewMemoryBackend() Backend {
	return &memoryBackend{items: gocache.New(gocache.NoExpiration, 0)}
}

func memoryKey(kind Kind, key string) string {
	return string(kind) + "|" + key
}

func (b *memoryBackend) Load(_ context.Context, kind Kind, key string) (*Entry, bool, error) {
	v, ok := b.items.Get(memoryKey(kind, key))
	if !ok {
		return nil, false, nil
	}
	e := *v.(*Entry)
	return &e, true, nil
}

func (b *memoryBackend) Save(_ context.Context, e *Entry) error {
	stored := *e
	b.items.Set(memoryKey(e.Kind, e.Key), &stored, gocache.NoExpiration)
	return nil
}

func (b *memoryBackend) Delete(_ context.Context, kind Kind, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := memoryKey(kind, key)
	if _, ok := b.items.Get(k); !ok {
		return false, nil
	}
	b.items.Delete(k)
	return true, nil
}

func (b *memoryBackend) DeleteKind(_ context.Context, kind Kind) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := string(kind) + "|"
	var n int64
	for k := range b.items.Items() {
		if strings.HasPrefix(k, prefix) {
			b.items.Delete(k)
			n++
		}
	}
	return n, nil
}

func (b *memoryBackend) DeleteExpired(_ context.Context, now time.Time) (ExpireResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make(ExpireResult, len(Kinds))
	for k, item := range b.items.Items() {
		e := item.Object.(*Entry)
		if e.ExpiresAt.Before(now) {
			b.items.Delete(k)
			result[e.Kind]++
		}
	}
	return result, nil
}
