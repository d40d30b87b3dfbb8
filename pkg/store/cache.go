// Package store holds the storefront's result cache and its backing
// connections: an in-process TTL cache with a capacity bound, an optional
// Redis tier for multi-instance deployments, and the Postgres pool used by
// the seeding tooling.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/market"
)

const (
	// DefaultTTL bounds how stale a cached catalog page may get.
	DefaultTTL = 30 * time.Second
	// DefaultMaxEntries bounds the in-process cache footprint.
	DefaultMaxEntries = 256
)

// ResultCache stores assembled catalog pages keyed by their query key.
// Get reports a miss with redis.Nil regardless of the backing store.
type ResultCache interface {
	Get(ctx context.Context, key string) (market.CachedPage, error)
	Set(ctx context.Context, key string, page market.CachedPage, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisCache stores pages as JSON under a shared key prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func (r *RedisCache) Get(ctx context.Context, key string) (market.CachedPage, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Result()
	if err != nil {
		return market.CachedPage{}, err
	}
	var page market.CachedPage
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		// An undecodable entry is unusable. Drop it and report a miss so
		// the caller refreshes from the gateway.
		_ = r.client.Del(ctx, r.prefix+key).Err()
		return market.CachedPage{}, redis.Nil
	}
	return page, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, page market.CachedPage, ttl time.Duration) error {
	raw, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, raw, ttl).Err()
}

func (r *RedisCache) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// MemoryCache is an in-process TTL cache bounded to maxEntries. When full
// it evicts the entry that was set least recently. Expired entries are
// collected lazily on access.
type MemoryCache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]memEntry
	order      []string
}

type memEntry struct {
	page      market.CachedPage
	expiresAt time.Time
}

// NewMemoryCache returns a MemoryCache holding at most maxEntries pages.
// A non-positive maxEntries selects DefaultMaxEntries.
func NewMemoryCache(maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryCache{
		maxEntries: maxEntries,
		entries:    map[string]memEntry{},
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (market.CachedPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked()
	entry, ok := m.entries[key]
	if !ok {
		return market.CachedPage{}, redis.Nil
	}
	return entry.page, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, page market.CachedPage, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked()
	if _, ok := m.entries[key]; ok {
		// Last writer wins; the rewrite also counts as the newest set.
		m.removeFromOrderLocked(key)
	} else if len(m.entries) >= m.maxEntries {
		m.evictOldestLocked()
	}
	m.entries[key] = memEntry{page: page, expiresAt: time.Now().Add(ttl)}
	m.order = append(m.order, key)
	return nil
}

func (m *MemoryCache) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		delete(m.entries, key)
		m.removeFromOrderLocked(key)
	}
	return nil
}

// Len reports the number of live entries after lazy cleanup.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked()
	return len(m.entries)
}

func (m *MemoryCache) cleanupLocked() {
	now := time.Now()
	kept := m.order[:0]
	for _, key := range m.order {
		entry, ok := m.entries[key]
		if !ok {
			continue
		}
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	m.order = kept
}

func (m *MemoryCache) evictOldestLocked() {
	if len(m.order) == 0 {
		return
	}
	oldest := m.order[0]
	m.order = m.order[1:]
	delete(m.entries, oldest)
}

func (m *MemoryCache) removeFromOrderLocked(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// NewResultCache tries redis, falls back to memory.
func NewResultCache(ctx context.Context, client *redis.Client, maxEntries int) ResultCache {
	if client != nil {
		if err := client.Ping(ctx).Err(); err == nil {
			return &RedisCache{client: client, prefix: "catalog:"}
		}
	}
	return NewMemoryCache(maxEntries)
}
