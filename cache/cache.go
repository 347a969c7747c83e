// Package cache keeps generated project structures in memory, keyed by
// normalized prompt.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/santiagomed/scaff/tree"
)

// Entry is one cached structure. Published entries are never mutated; a
// store or an access replaces the map value instead.
type Entry struct {
	Key         string
	Fingerprint string
	Structure   *tree.ProjectStructure
	StoredAt    time.Time
	LastAccess  time.Time
}

// Fingerprint hashes a normalized prompt.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Cache is safe for concurrent use.
type Cache struct {
	maxEntries int           // 0 means unbounded
	ttl        time.Duration // 0 means entries never expire
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache holding at most maxEntries entries, each living for ttl.
func New(maxEntries int, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		entries:    make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the entry stored under key. The returned structure is a copy
// the caller may keep.
func (c *Cache) Lookup(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	now := c.now()
	if c.expired(entry, now) {
		delete(c.entries, key)
		return Entry{}, false
	}

	touched := *entry
	touched.LastAccess = now
	c.entries[key] = &touched
	return copyEntry(&touched), true
}

// Store saves a copy of ps under key, replacing any previous entry.
func (c *Cache) Store(key string, ps *tree.ProjectStructure) {
	now := c.now()
	entry := &Entry{
		Key:         key,
		Fingerprint: Fingerprint(key),
		Structure:   ps.Clone(),
		StoredAt:    now,
		LastAccess:  now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry
	c.evictLocked(now)
}

// Evict drops expired entries, then the least recently used ones until the
// cache is within its size limit. It returns how many entries were removed.
func (c *Cache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(c.now())
}

// evictLocked must be called with lock held.
func (c *Cache) evictLocked(now time.Time) int {
	removed := 0
	if c.ttl > 0 {
		for key, entry := range c.entries {
			if c.expired(entry, now) {
				delete(c.entries, key)
				removed++
			}
		}
	}
	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		if !c.evictOldest() {
			break
		}
		removed++
	}
	return removed
}

// Entries returns a snapshot of the live entries, most recently used first.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		if c.expired(entry, now) {
			continue
		}
		entries = append(entries, copyEntry(entry))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.After(entries[j].LastAccess)
	})
	return entries
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, entry := range c.entries {
		if !c.expired(entry, now) {
			n++
		}
	}
	return n
}

func (c *Cache) expired(e *Entry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.StoredAt) >= c.ttl
}

// evictOldest removes the least recently accessed entry.
// Must be called with lock held.
func (c *Cache) evictOldest() bool {
	var oldest *Entry
	for _, entry := range c.entries {
		if oldest == nil || entry.LastAccess.Before(oldest.LastAccess) {
			oldest = entry
		}
	}
	if oldest == nil {
		return false
	}
	delete(c.entries, oldest.Key)
	return true
}

func copyEntry(e *Entry) Entry {
	c := *e
	c.Structure = e.Structure.Clone()
	return c
}
