package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/connexus-ai/ediscovery-core/internal/search"
)

// EmbeddingCache stores text→vector mappings keyed by the sha256 of the
// (normalized) text, avoiding redundant calls to the External-Model
// Adapter's embedding backend for repeated or overlapping queries.
// Thread-safe via sync.RWMutex. Entries auto-expire after TTL.
type EmbeddingCache struct {
	mu      sync.RWMutex
	entries map[string]*embeddingEntry
	ttl     time.Duration
	stopCh  chan struct{}
}

type embeddingEntry struct {
	vec       []float32
	createdAt time.Time
	expiresAt time.Time
}

// DefaultEmbeddingTTL is 15 minutes unless overridden by EMBEDDING_CACHE_TTL_SEC.
func DefaultEmbeddingTTL() time.Duration {
	if v := os.Getenv("EMBEDDING_CACHE_TTL_SEC"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 15 * time.Minute
}

// NewEmbeddingCache creates an EmbeddingCache with the given TTL and starts
// its background cleanup goroutine.
func NewEmbeddingCache(ttl time.Duration) *EmbeddingCache {
	c := &EmbeddingCache{
		entries: make(map[string]*embeddingEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get returns a cached embedding vector if present and not expired.
func (c *EmbeddingCache) Get(textHash string) ([]float32, bool) {
	c.mu.RLock()
	entry, ok := c.entries[textHash]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, textHash)
		c.mu.Unlock()
		return nil, false
	}

	slog.Debug("[DEBUG-EMBED-CACHE] hit", "text_hash", textHash, "age_ms", time.Since(entry.createdAt).Milliseconds())
	return entry.vec, true
}

// Set stores an embedding vector in the cache.
func (c *EmbeddingCache) Set(textHash string, vec []float32) {
	now := time.Now()
	c.mu.Lock()
	c.entries[textHash] = &embeddingEntry{vec: vec, createdAt: now, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}

// Len returns the number of entries in the cache.
func (c *EmbeddingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop halts the background cleanup goroutine.
func (c *EmbeddingCache) Stop() {
	close(c.stopCh)
}

func (c *EmbeddingCache) cleanup() {
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

// EmbeddingQueryHash returns a deterministic cache key for a piece of text,
// normalized by lowercasing and trimming whitespace so near-identical
// queries share a cache entry.
func EmbeddingQueryHash(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("emb:%x", sum[:16])
}

// CachingEmbedder wraps a search.QueryEmbedder with an EmbeddingCache, so
// repeated queries (or identical document chunks re-embedded across index
// rebuilds) never re-dial the External-Model Adapter.
type CachingEmbedder struct {
	inner search.QueryEmbedder
	cache *EmbeddingCache
}

// NewCachingEmbedder wraps inner with a cache of the given TTL.
func NewCachingEmbedder(inner search.QueryEmbedder, ttl time.Duration) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, cache: NewEmbeddingCache(ttl)}
}

// Embed satisfies search.QueryEmbedder, serving from cache when possible.
func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := EmbeddingQueryHash(text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec)
	return vec, nil
}
