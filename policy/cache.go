package policy

import (
	"sync"
	"time"
)

// RuleCache caches applicable-rule lookups so a burst of checks for one
// tenant does not re-query the repository each time. Implementations may be
// swapped for Redis or similar.
type RuleCache interface {
	// Get returns cached rules for a scope key, or nil on miss/expiry.
	Get(key string) []*Rule

	// Set stores rules for a scope key.
	Set(key string, rules []*Rule)

	// Invalidate clears all entries, forcing a repository refresh.
	Invalidate()
}

// CacheConfig holds rule-cache tuning.
type CacheConfig struct {
	// TTL bounds entry staleness. Zero disables caching entirely rather
	// than caching forever: rule edits happen out-of-process, so there is
	// no mutation hook to invalidate on.
	TTL time.Duration
}

// DefaultCacheConfig returns the default rule-cache tuning.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 30 * time.Second}
}

type cacheEntry struct {
	rules    []*Rule
	cachedAt time.Time
}

// InMemoryRuleCache is a TTL-bounded in-memory RuleCache, safe for
// concurrent use.
type InMemoryRuleCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

// NewInMemoryRuleCache creates an in-memory rule cache.
func NewInMemoryRuleCache(config CacheConfig) *InMemoryRuleCache {
	return &InMemoryRuleCache{
		entries: make(map[string]cacheEntry),
		config:  config,
	}
}

func (c *InMemoryRuleCache) Get(key string) []*Rule {
	if c.config.TTL <= 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Since(entry.cachedAt) > c.config.TTL {
		return nil
	}

	// Copy so callers cannot mutate the cached slice.
	rules := make([]*Rule, len(entry.rules))
	copy(rules, entry.rules)
	return rules
}

func (c *InMemoryRuleCache) Set(key string, rules []*Rule) {
	if c.config.TTL <= 0 {
		return
	}

	stored := make([]*Rule, len(rules))
	copy(stored, rules)

	c.mu.Lock()
	c.entries[key] = cacheEntry{rules: stored, cachedAt: time.Now()}
	c.mu.Unlock()
}

func (c *InMemoryRuleCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
