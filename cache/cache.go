// Package cache holds recently computed fingerprints in memory.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/logosim/models"
)

type entry struct {
	fp        *models.Fingerprint
	createdAt time.Time
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Cache maps image URLs to fingerprints. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	now      func() time.Time
	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a cache holding up to maxEntries fingerprints. Entries
// older than ttl are swept every ttl/12 (at least once a minute).
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go c.cleanupLoop(max(ttl/12, time.Minute))
	return c
}

// Key derives the cache key for an image URL. Scheme and host case are
// irrelevant; the rest of the URL is kept verbatim.
func Key(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		rest := url[i+3:]
		host, path := rest, ""
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			host, path = rest[:j], rest[j:]
		}
		url = strings.ToLower(url[:i]) + "://" + strings.ToLower(host) + path
	}
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get returns the fingerprint cached under key if it is younger than
// maxAge. A non-positive maxAge disables the lookup.
func (c *Cache) Get(key string, maxAge time.Duration) (*models.Fingerprint, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) > maxAge {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.fp, true
}

// Set stores fp under key. At capacity an arbitrary entry is evicted.
func (c *Cache) Set(key string, fp *models.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}
	c.store[key] = &entry{fp: fp, createdAt: c.now()}
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.store)
	c.mu.RUnlock()
	return Stats{Entries: n, Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Stop ends the sweep goroutine.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
