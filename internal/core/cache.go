// Package core provides the business logic and service layer for the report engine.
package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// CacheRepository defines the interface for caching operations.
// This follows the hexagonal architecture pattern where the core defines interfaces
// and the data layer provides implementations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// SetTTL updates the TTL for an existing key.
	// Returns true if the key exists and TTL was updated.
	SetTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	// This is useful for implementing distributed locks and deduplication.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// RuleCacheService caches resolved masking rule sets per (role, reportType)
// so hot report paths avoid the identity-provider round-trip. Redis is the
// shared tier; a small in-process map keeps lookups working when Redis is
// unavailable or not configured.
type RuleCacheService struct {
	cache CacheRepository
	ttl   time.Duration
	clock func() time.Time

	mu    sync.RWMutex
	local map[string]localRules
}

type localRules struct {
	rules   []string
	expires time.Time
}

// RuleCacheConfig holds configuration for masking rule caching.
type RuleCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// RuleCacheServiceOptions bundles dependencies for NewRuleCacheService.
// Cache may be nil; the service then runs on the in-process tier alone.
type RuleCacheServiceOptions struct {
	Cache  CacheRepository
	Config RuleCacheConfig
}

// DefaultRuleCacheConfig returns a RuleCacheConfig with sensible defaults.
func DefaultRuleCacheConfig() RuleCacheConfig {
	return RuleCacheConfig{
		TTL: 10 * time.Minute,
	}
}

// NewRuleCacheService creates a new RuleCacheService.
func NewRuleCacheService(opts RuleCacheServiceOptions) *RuleCacheService {
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = DefaultRuleCacheConfig().TTL
	}
	return &RuleCacheService{
		cache: opts.Cache,
		ttl:   ttl,
		clock: time.Now,
		local: make(map[string]localRules),
	}
}

// Get returns the cached protocol-mapper rule strings for the role and
// report type, or false when nothing fresh is cached.
func (s *RuleCacheService) Get(ctx context.Context, role, reportType string) ([]string, bool) {
	key := ruleCacheKey(role, reportType)

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil && raw != nil {
			var rules []string
			if err := json.Unmarshal(raw, &rules); err == nil {
				return rules, true
			}
		}
	}

	s.mu.RLock()
	entry, ok := s.local[key]
	s.mu.RUnlock()
	if !ok || s.clock().After(entry.expires) {
		return nil, false
	}
	return entry.rules, true
}

// Put stores the rule strings in both tiers. Redis failures degrade to the
// in-process tier silently; resolution correctness never depends on caching.
func (s *RuleCacheService) Put(ctx context.Context, role, reportType string, rules []string) {
	key := ruleCacheKey(role, reportType)

	s.mu.Lock()
	s.local[key] = localRules{rules: rules, expires: s.clock().Add(s.ttl)}
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	if raw, err := json.Marshal(rules); err == nil {
		_ = s.cache.Set(ctx, key, raw, s.ttl)
	}
}

// Invalidate drops the cached entry for the role and report type.
func (s *RuleCacheService) Invalidate(ctx context.Context, role, reportType string) {
	key := ruleCacheKey(role, reportType)

	s.mu.Lock()
	delete(s.local, key)
	s.mu.Unlock()

	if s.cache != nil {
		_, _ = s.cache.Delete(ctx, key)
	}
}

func ruleCacheKey(role, reportType string) string {
	return "maskrules:" + role + ":" + reportType
}
