// Package discovery produces a lazy, restartable sequence of document
// metadata records for all regular files under an allowed root (spec §4.3).
package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/connexus-ai/ediscovery-core/internal/model"
	"github.com/connexus-ai/ediscovery-core/internal/pathguard"
)

// Warning is a non-fatal per-file issue encountered while walking the tree.
type Warning struct {
	Path   string
	Reason string
}

// Stream is a lazy, pull-based iterator. Next returns false once the
// underlying walk is exhausted; it takes no context and cannot be cancelled.
type Stream struct {
	docs []model.Document
	pos  int
}

// Next advances the stream and reports whether a document is available.
func (s *Stream) Next() (model.Document, bool) {
	if s.pos >= len(s.docs) {
		return model.Document{}, false
	}
	d := s.docs[s.pos]
	s.pos++
	return d, true
}

// Len reports the total number of documents the stream will yield.
func (s *Stream) Len() int {
	return len(s.docs)
}

// Discover walks root (through guard, recursively), hashing every regular
// file, deriving custodian/doctype metadata, suppressing within-run
// duplicates, and returning a Stream in the final committed order
// sort_by((sha256, path)).
//
// Discovery itself performs the directory walk eagerly to establish the
// deterministic final order (per spec §4.3, the final *committed* order
// must be deterministic, not the emission order); memory use is bounded by
// one Document record per discovered file, not by file contents.
func Discover(ctx context.Context, guard *pathguard.Guard, ledger pathguard.Auditor, recursive bool) (*Stream, []Warning, error) {
	root := guard.Root()

	type candidate struct {
		sha256    string
		path      string
		sizeBytes int64
		mtime     time.Time
		custodian string
		doctype   string
	}

	var warnings []Warning
	seen := make(map[string]string) // sha256 -> first resolved path (lexicographically)
	var found []candidate

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			warnings = append(warnings, Warning{Path: path, Reason: err.Error()})
			return nil
		}
		if d.IsDir() {
			if !recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		resolved, gerr := guard.ResolveSafe(ctx, path)
		if gerr != nil {
			warnings = append(warnings, Warning{Path: path, Reason: "path traversal rejected"})
			return nil
		}

		info, serr := d.Info()
		if serr != nil {
			warnings = append(warnings, Warning{Path: path, Reason: serr.Error()})
			return nil
		}
		if info.Size() > model.MaxDiscoveryFileBytes {
			warnings = append(warnings, Warning{Path: resolved, Reason: "file exceeds max discovery size"})
			return nil
		}

		sum, herr := hashFile(resolved)
		if herr != nil {
			warnings = append(warnings, Warning{Path: resolved, Reason: herr.Error()})
			return nil
		}

		found = append(found, candidate{
			sha256:    sum,
			path:      resolved,
			sizeBytes: info.Size(),
			mtime:     info.ModTime(),
			custodian: deriveCustodian(root, resolved),
			doctype:   deriveDoctype(resolved),
		})
		return nil
	})
	if walkErr != nil && walkErr != ctx.Err() {
		return nil, warnings, fmt.Errorf("discovery.Discover: walk %s: %w", root, walkErr)
	}
	if ctx.Err() != nil {
		return nil, warnings, fmt.Errorf("discovery.Discover: %w", ctx.Err())
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].sha256 != found[j].sha256 {
			return found[i].sha256 < found[j].sha256
		}
		return found[i].path < found[j].path
	})

	docs := make([]model.Document, 0, len(found))
	for _, c := range found {
		if first, ok := seen[c.sha256]; ok {
			slog.Debug("[DEBUG-DISCOVERY] duplicate suppressed", "sha256", c.sha256, "kept", first, "dropped", c.path)
			if ledger != nil {
				if _, err := ledger.Append(ctx, model.ActionDuplicateSkipped, map[string]any{
					"sha256": c.sha256, "kept": first, "dropped": c.path,
				}); err != nil {
					slog.Error("[DEBUG-DISCOVERY] failed to record duplicate_skipped", "error", err)
				}
			}
			continue
		}
		seen[c.sha256] = c.path
		docs = append(docs, model.Document{
			SHA256:    c.sha256,
			Path:      c.path,
			SizeBytes: c.sizeBytes,
			MTime:     c.mtime,
			Custodian: c.custodian,
			Doctype:   c.doctype,
		})
	}

	return &Stream{docs: docs}, warnings, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// deriveCustodian returns the first path segment beneath root, by
// convention the custodian associated with the document.
func deriveCustodian(root, resolved string) string {
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return ""
	}
	rel = filepath.ToSlash(rel)
	parts := strings.SplitN(rel, "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// deriveDoctype returns the lowercase extension (without the dot), or
// model.DoctypeUnknown if the file has none.
func deriveDoctype(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return model.DoctypeUnknown
	}
	return ext
}
