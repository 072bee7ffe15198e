package cache

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/connexus-ai/ediscovery-core/internal/search"
)

// ResultCache caches a Search Facade's ranked hits by (query, mode,
// filters), sparing the lexical/dense fan-out on repeated searches within
// a short window. Thread-safe via sync.RWMutex. Entries auto-expire after
// TTL.
type ResultCache struct {
	mu      sync.RWMutex
	entries map[string]*resultEntry
	ttl     time.Duration
	stopCh  chan struct{}
}

type resultEntry struct {
	hits      []search.Hit
	createdAt time.Time
	expiresAt time.Time
}

// NewResultCache creates a ResultCache with the given TTL and starts its
// background cleanup goroutine.
func NewResultCache(ttl time.Duration) *ResultCache {
	c := &ResultCache{
		entries: make(map[string]*resultEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns cached hits for (query, mode, filters) if present and not
// expired.
func (c *ResultCache) Get(query string, mode search.Mode, filters search.Filters) ([]search.Hit, bool) {
	key := resultKey(query, mode, filters)
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	slog.Debug("[DEBUG-RESULT-CACHE] hit", "query_hash", key[strings.LastIndex(key, ":")+1:], "age_ms", time.Since(entry.createdAt).Milliseconds())
	return entry.hits, true
}

// Set stores hits for (query, mode, filters) in the cache.
func (c *ResultCache) Set(query string, mode search.Mode, filters search.Filters, hits []search.Hit) {
	key := resultKey(query, mode, filters)
	now := time.Now()
	c.mu.Lock()
	c.entries[key] = &resultEntry{hits: hits, createdAt: now, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}

// InvalidateAll drops every cached result, for use after an index rebuild
// changes what any query would return.
func (c *ResultCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*resultEntry)
	c.mu.Unlock()
}

// Len returns the number of entries in the cache.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop halts the background cleanup goroutine.
func (c *ResultCache) Stop() {
	close(c.stopCh)
}

func (c *ResultCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

// resultKey builds a deterministic key: "rc:{mode}:{custodian}:{doctype}:{sha256(query)}"
func resultKey(query string, mode search.Mode, filters search.Filters) string {
	h := sha256.Sum256([]byte(query))
	return fmt.Sprintf("rc:%s:%s:%s:%x", mode, filters.Custodian, filters.Doctype, h[:8])
}
