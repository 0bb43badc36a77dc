// Package cache is the pipeline's short-TTL decision cache.
//
// Entries are keyed by unit id plus context fingerprint, so no two units ever
// share a cached decision. Staleness is the only cleanup signal the pipeline
// gets: battle state changes with every action, so the default max age is a
// few seconds and entries are invalidated lazily on read.
package cache

import (
	"slices"
	"sync"
	"time"

	"github.com/ashita-ai/sente/internal/model"
)

// Entry is one cached decision together with its bookkeeping fields.
// Mutated only to bump HitCount under the cache lock.
type Entry struct {
	Decision    model.Decision
	Fingerprint string
	CreatedAt   time.Time
	Confidence  float32
	HitCount    int
}

// Cache is a bounded map of composite key -> Entry, guarded by a single
// mutex. One coarse lock is deliberate: cache operations are cheap, the
// decision computation is the bottleneck.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	maxSize int
	maxAge  time.Duration
}

// New creates a cache holding at most maxSize entries, each valid for maxAge
// after insertion.
func New(maxSize int, maxAge time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
		maxSize: maxSize,
		maxAge:  maxAge,
	}
}

// Key builds the composite cache key for a unit's fingerprinted context.
func Key(unitID, fingerprint string) string {
	return unitID + "_" + fingerprint
}

// Lookup returns the cached decision for the unit's fingerprint, bumping the
// entry's hit count. A present-but-stale entry is evicted and reported as a
// miss.
func (c *Cache) Lookup(unitID, fingerprint string) (model.Decision, bool) {
	key := Key(unitID, fingerprint)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return model.Decision{}, false
	}
	if time.Since(e.CreatedAt) > c.maxAge {
		delete(c.entries, key)
		return model.Decision{}, false
	}
	e.HitCount++
	return e.Decision, true
}

// Insert stores a freshly computed decision. Inserts are last-write-wins: a
// late result from an abandoned computation may overwrite a fresher entry,
// but its timestamp makes it age out and the next insert supersedes it.
// If the cache grows past maxSize, the oldest overflow entries are evicted
// in one pass.
func (c *Cache) Insert(unitID, fingerprint string, d model.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[Key(unitID, fingerprint)] = &Entry{
		Decision:    d,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now(),
		Confidence:  d.Confidence,
	}
	c.evictOverflow()
}

// evictOverflow removes exactly len-maxSize oldest entries. Caller holds mu.
func (c *Cache) evictOverflow() {
	overflow := len(c.entries) - c.maxSize
	if overflow <= 0 {
		return
	}

	type aged struct {
		key       string
		createdAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.CreatedAt})
	}
	slices.SortFunc(all, func(a, b aged) int {
		return a.createdAt.Compare(b.createdAt)
	})
	for _, a := range all[:overflow] {
		delete(c.entries, a.key)
	}
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MaxSize returns the configured capacity.
func (c *Cache) MaxSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSize
}

// SetMaxSize adjusts the capacity, evicting oldest entries if the cache is
// already over the new limit. Used by the self-tuning loop.
func (c *Cache) SetMaxSize(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSize = n
	c.evictOverflow()
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
