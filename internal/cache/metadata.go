// Package cache holds process-local caches that sit in front of the index
// and the external-model adapter: the on-disk Metadata Cache (spec §4.6)
// and in-memory embedding and search-result caches. The embedding and
// result caches live in one process only; there is no shared tier.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/connexus-ai/ediscovery-core/internal/model"
)

const metadataCacheFile = "metadata_cache.json"

// MetadataCache answers "what custodians/doctypes exist, how many documents
// are indexed" in O(1), backed by a single JSON file updated atomically
// (write-temp-then-rename) strictly after the index commit it reflects.
type MetadataCache struct {
	mu   sync.RWMutex
	dir  string
	file string

	custodians map[string]struct{}
	doctypes   map[string]struct{}
	docCount   int
	updated    time.Time
}

// Rebuilder reconstructs a cache from the committed index; used when the
// on-disk cache is missing, unparseable, or carries an unknown schema
// version (spec §4.6).
type Rebuilder interface {
	AllEntries() []model.IndexEntry
}

// Open loads dir's metadata cache file. A missing, corrupt, or
// wrong-schema-version file is silently discarded and rebuilt from src
// (spec §4.6); src may be nil if no rebuild source is available yet, in
// which case an empty cache is returned.
func Open(dir string, src Rebuilder) (*MetadataCache, error) {
	c := &MetadataCache{
		dir:        dir,
		file:       filepath.Join(dir, metadataCacheFile),
		custodians: make(map[string]struct{}),
		doctypes:   make(map[string]struct{}),
	}

	state, err := c.load()
	if err != nil || state == nil || state.SchemaVersion != model.CurrentCacheSchemaVersion {
		if src != nil {
			c.rebuildFrom(src)
			if werr := c.flushLocked(); werr != nil {
				return nil, fmt.Errorf("cache.Open: rebuild flush: %w", werr)
			}
		}
		return c, nil
	}

	for _, cu := range state.Custodians {
		c.custodians[cu] = struct{}{}
	}
	for _, dt := range state.Doctypes {
		c.doctypes[dt] = struct{}{}
	}
	c.docCount = state.DocCount
	c.updated = state.LastUpdated
	return c, nil
}

func (c *MetadataCache) load() (*model.CacheState, error) {
	data, err := os.ReadFile(c.file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var state model.CacheState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, nil // corrupt: treat as absent, caller rebuilds
	}
	return &state, nil
}

func (c *MetadataCache) rebuildFrom(src Rebuilder) {
	c.custodians = make(map[string]struct{})
	c.doctypes = make(map[string]struct{})
	entries := src.AllEntries()
	for _, e := range entries {
		if e.Custodian != "" {
			c.custodians[e.Custodian] = struct{}{}
		}
		if e.Doctype != "" {
			c.doctypes[e.Doctype] = struct{}{}
		}
	}
	c.docCount = len(entries)
	c.updated = time.Now().UTC()
}

// UpdateForBatch folds in the custodians/doctypes/count contributed by one
// committed batch. Callers must call Flush afterward to persist.
func (c *MetadataCache) UpdateForBatch(entries []model.IndexEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if e.Custodian != "" {
			c.custodians[e.Custodian] = struct{}{}
		}
		if e.Doctype != "" {
			c.doctypes[e.Doctype] = struct{}{}
		}
	}
	c.docCount += len(entries)
	c.updated = time.Now().UTC()
}

// SetDocCount overrides the tracked document count directly, used when the
// caller already knows the authoritative committed total (e.g. after
// purge/overwrite, where UpdateForBatch's simple addition would drift).
func (c *MetadataCache) SetDocCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docCount = n
	c.updated = time.Now().UTC()
}

// Flush persists the cache atomically: write to a temp file in the same
// directory, fsync it, then rename over the target.
func (c *MetadataCache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *MetadataCache) flushLocked() error {
	state := model.CacheState{
		SchemaVersion: model.CurrentCacheSchemaVersion,
		Custodians:    sortedSet(c.custodians),
		Doctypes:      sortedSet(c.doctypes),
		DocCount:      c.docCount,
		LastUpdated:   c.updated,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("cache.Flush: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".metadata_cache-*.tmp")
	if err != nil {
		return fmt.Errorf("cache.Flush: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cache.Flush: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cache.Flush: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache.Flush: close: %w", err)
	}
	if err := os.Rename(tmpPath, c.file); err != nil {
		return fmt.Errorf("cache.Flush: rename: %w", err)
	}
	return nil
}

// GetCustodians returns the distinct custodians observed so far.
func (c *MetadataCache) GetCustodians() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedSet(c.custodians)
}

// GetDoctypes returns the distinct doctypes observed so far.
func (c *MetadataCache) GetDoctypes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedSet(c.doctypes)
}

// DocCount returns the cached document count.
func (c *MetadataCache) DocCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docCount
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
