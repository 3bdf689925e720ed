package retrieve

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/streamharvest/streamharvest/internal/rag"
)

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Entries  int     `json:"entries"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRatio float64 `json:"hit_ratio"`
}

type cacheEntry struct {
	items     []rag.ResultItem
	expiresAt time.Time
}

// Cache is an in-memory TTL cache for fused search results, keyed by the
// query plus its canonical filter set. Safe for concurrent use.
type Cache struct {
	mu           sync.RWMutex
	entries      map[string]cacheEntry
	ttl          time.Duration
	recentWindow time.Duration
	hits         int64
	misses       int64
	now          func() time.Time
}

// NewCache creates a cache with the given entry TTL. Queries whose filters
// touch the last recentWindow of content bypass the cache entirely, since
// fresh ingestion makes their results stale faster than the TTL.
func NewCache(ttl, recentWindow time.Duration) *Cache {
	return &Cache{
		entries:      make(map[string]cacheEntry),
		ttl:          ttl,
		recentWindow: recentWindow,
		now:          time.Now,
	}
}

// Key derives the canonical cache key for a query. Filters are rendered
// field-by-field so two equal filter sets always produce the same key.
func (c *Cache) Key(query string, filters rag.Filters, topK int) string {
	canonical := fmt.Sprintf("%s|%s|%s|%d|%d|%d|%d|%d",
		query,
		filters.ChannelID,
		filters.VideoID,
		filters.DateFrom.UnixNano(),
		filters.DateTo.UnixNano(),
		filters.MinDuration,
		filters.MaxDuration,
		topK,
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Bypass reports whether the filter set targets recently ingested content
// and must therefore skip the cache on both read and write.
func (c *Cache) Bypass(filters rag.Filters) bool {
	if !filters.HasDateRange() {
		return false
	}
	cutoff := c.now().Add(-c.recentWindow)
	if !filters.DateFrom.IsZero() && filters.DateFrom.After(cutoff) {
		return true
	}
	if !filters.DateTo.IsZero() && filters.DateTo.After(cutoff) {
		return true
	}
	return false
}

// Get returns the cached items for key, or nil and false on a miss. Expired
// entries count as misses and are dropped lazily.
func (c *Cache) Get(key string) ([]rag.ResultItem, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return copyItems(entry.items), true
	}

	c.mu.Lock()
	c.misses++
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil, false
}

// Set stores items under key for the configured TTL. An existing entry is
// replaced wholesale.
func (c *Cache) Set(key string, items []rag.ResultItem) {
	stored := copyItems(items)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{items: stored, expiresAt: c.now().Add(c.ttl)}
}

// copyItems deep-copies a result set so cached entries and the slices handed
// to callers never share backing storage. Callers are free to mutate their
// results without corrupting later hits.
func copyItems(items []rag.ResultItem) []rag.ResultItem {
	if items == nil {
		return nil
	}
	out := make([]rag.ResultItem, len(items))
	for i, item := range items {
		cp := item
		if item.PublishedAt != nil {
			ts := *item.PublishedAt
			cp.PublishedAt = &ts
		}
		if item.Sources != nil {
			cp.Sources = append([]string(nil), item.Sources...)
		}
		if item.RankPerSource != nil {
			cp.RankPerSource = make(map[string]int, len(item.RankPerSource))
			for k, v := range item.RankPerSource {
				cp.RankPerSource[k] = v
			}
		}
		out[i] = cp
	}
	return out
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.hits = 0
	c.misses = 0
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		s.HitRatio = float64(c.hits) / float64(total)
	}
	return s
}
