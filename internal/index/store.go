package index

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/connexus-ai/ediscovery-core/internal/model"
)

// documentsFile is the on-disk representation of the committed index: one
// IndexEntry per line, append-only, replayed in full on Open to rebuild the
// in-memory BM25 postings (spec §4.5: "committed index on disk").
const documentsFile = "documents.jsonl"

// Store owns the exclusive on-disk index directory for one Engine. Only one
// Store per directory may hold open write access at a time; that exclusion
// is the caller's responsibility (the Index Writer holds it for the
// lifetime of a build).
type Store struct {
	dir    string
	Engine *Engine
}

// Open loads dir's committed documents into a fresh Engine, creating the
// directory if it does not yet exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("index.Open: mkdir: %w", err)
	}

	engine := NewEngine()
	path := filepath.Join(dir, documentsFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Store{dir: dir, Engine: engine}, nil
		}
		return nil, fmt.Errorf("index.Open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		var entry model.IndexEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("index.Open: decode: %w", err)
		}
		engine.Add(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("index.Open: scan: %w", err)
	}

	return &Store{dir: dir, Engine: engine}, nil
}

// Commit appends entries to the on-disk log durably (write, fsync) and
// returns a wrapped error (prefixed "index.Commit") on any failure, per spec §4.5:
// "Writer commit failure: abort the build, leave the last successful commit
// intact." Entries already added to the in-memory Engine by the caller
// before calling Commit remain queryable even if Commit itself fails; only
// durability to disk is at stake here.
func (s *Store) Commit(entries []model.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	path := filepath.Join(s.dir, documentsFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("index.Commit: open: %w", err)
	}
	defer f.Close()

	info, statErr := f.Stat()
	var priorSize int64
	if statErr == nil {
		priorSize = info.Size()
	}

	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			_ = f.Truncate(priorSize)
			return fmt.Errorf("index.Commit: marshal %s: %w", entry.SHA256, err)
		}
		line = append(line, '\n')
		if _, err := f.Write(line); err != nil {
			_ = f.Truncate(priorSize)
			return fmt.Errorf("index.Commit: write: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		_ = f.Truncate(priorSize)
		return fmt.Errorf("index.Commit: fsync: %w", err)
	}
	return nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}
