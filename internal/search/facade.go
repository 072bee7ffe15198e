// Package search implements the Search Facade (spec §4.7): translates a
// query string into a ranked hit list, optionally fusing the lexical
// full-text engine with a dense vector store via Reciprocal Rank Fusion.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/ediscovery-core/internal/audit"
	"github.com/connexus-ai/ediscovery-core/internal/index"
	"github.com/connexus-ai/ediscovery-core/internal/metrics"
	"github.com/connexus-ai/ediscovery-core/internal/model"
)

// Mode selects which retrieval path(s) a query uses.
type Mode string

const (
	ModeLexical Mode = "lexical"
	ModeDense   Mode = "dense"
	ModeHybrid  Mode = "hybrid"
)

// defaultDenseTopK is k' from spec §4.7: the number of dense neighbors
// fetched before fusion or truncation to limit.
const defaultDenseTopK = 100

// Hit is one ranked search result (spec §4.7).
type Hit struct {
	DocID   string  `json:"doc_id"`
	Score   float64 `json:"score"`
	Path    string  `json:"path"`
	Snippet string  `json:"snippet"`
}

// Filters narrows a search to a custodian and/or doctype subset. Empty
// values place no restriction on that dimension.
type Filters struct {
	Custodian string
	Doctype   string
}

// Facade is the query-time entry point wrapping the lexical engine and an
// optional dense backend. Dense and hybrid modes are unavailable until
// both embedder and dense are set via WithDense.
type Facade struct {
	engine   *index.Engine
	ledger   *audit.Ledger
	embedder QueryEmbedder
	dense    DenseStore
	rrfK     int
	metrics  *metrics.Metrics
}

// New builds a Facade over the given lexical engine. rrfK <= 0 uses the
// spec default of 60.
func New(engine *index.Engine, ledger *audit.Ledger, rrfK int, m *metrics.Metrics) *Facade {
	return &Facade{engine: engine, ledger: ledger, rrfK: rrfK, metrics: m}
}

// WithDense attaches an embedder and dense backend, enabling dense and
// hybrid modes.
func (f *Facade) WithDense(embedder QueryEmbedder, dense DenseStore) *Facade {
	f.embedder = embedder
	f.dense = dense
	return f
}

// Search executes query under mode, returning at most limit hits. The
// ledger receives a SEARCH_QUERY entry recording only the query's sha256,
// never the query text itself.
func (f *Facade) Search(ctx context.Context, query string, limit int, filters Filters, mode Mode) ([]Hit, error) {
	if mode == "" {
		mode = ModeLexical
	}
	if (mode == ModeDense || mode == ModeHybrid) && (f.embedder == nil || f.dense == nil) {
		return nil, fmt.Errorf("search.Search: mode %q requires a configured embedder and dense store", mode)
	}

	start := time.Now()

	var lexicalIDs, denseIDs []string
	var hitsByID map[string]index.Hit

	g, gCtx := errgroup.WithContext(ctx)

	if mode == ModeLexical || mode == ModeHybrid {
		g.Go(func() error {
			hits := f.engine.Search(query, 0)
			lexicalIDs = make([]string, 0, len(hits))
			hitsByID = make(map[string]index.Hit, len(hits))
			for _, h := range hits {
				lexicalIDs = append(lexicalIDs, h.SHA256)
				hitsByID[h.SHA256] = h
			}
			return nil
		})
	}

	if mode == ModeDense || mode == ModeHybrid {
		g.Go(func() error {
			vec, err := f.embedder.Embed(gCtx, query)
			if err != nil {
				return fmt.Errorf("embed query: %w", err)
			}
			ids, err := f.dense.Nearest(gCtx, vec, defaultDenseTopK)
			if err != nil {
				return fmt.Errorf("dense search: %w", err)
			}
			denseIDs = ids
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search.Search: %w", err)
	}

	var ordered []string
	var fusedScore map[string]float64
	switch mode {
	case ModeLexical:
		ordered = lexicalIDs
		fusedScore = make(map[string]float64, len(hitsByID))
		for sha256, h := range hitsByID {
			fusedScore[sha256] = h.Score
		}
	case ModeDense:
		ordered = denseIDs
		fusedScore = fusedScores(f.rrfK, nil, denseIDs)
	case ModeHybrid:
		ordered = reciprocalRankFusion(f.rrfK, lexicalIDs, denseIDs)
		fusedScore = fusedScores(f.rrfK, lexicalIDs, denseIDs)
	}

	if filters.Custodian != "" || filters.Doctype != "" {
		ordered = f.applyFilters(ordered, filters)
	}

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}

	results := make([]Hit, 0, len(ordered))
	for _, sha256 := range ordered {
		entry, ok := f.engine.Entry(sha256)
		if !ok {
			continue
		}
		results = append(results, Hit{
			DocID:   sha256,
			Score:   fusedScore[sha256],
			Path:    entry.Path,
			Snippet: snippet(entry.Text, query),
		})
	}

	if f.metrics != nil {
		f.metrics.SearchQueries.WithLabelValues(string(mode)).Inc()
		f.metrics.SearchDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	}

	if f.ledger != nil {
		sum := sha256Hex(query)
		if _, err := f.ledger.Append(ctx, model.ActionSearchQuery, map[string]any{
			"query_hash": sum,
			"mode":       string(mode),
			"limit":      limit,
			"hit_count":  len(results),
		}); err != nil {
			slog.Error("[DEBUG-SEARCH] failed to record search query", "error", err)
		}
	}

	return results, nil
}

func (f *Facade) applyFilters(ids []string, filters Filters) []string {
	out := ids[:0:0]
	for _, sha256 := range ids {
		entry, ok := f.engine.Entry(sha256)
		if !ok {
			continue
		}
		if filters.Custodian != "" && entry.Custodian != filters.Custodian {
			continue
		}
		if filters.Doctype != "" && entry.Doctype != filters.Doctype {
			continue
		}
		out = append(out, sha256)
	}
	return out
}

const snippetRadius = 80

// snippet extracts a short window of text around the query's first
// matching token, or the document's leading characters if no term matches.
func snippet(text, query string) string {
	lower := strings.ToLower(text)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if idx := strings.Index(lower, term); idx >= 0 {
			start := idx - snippetRadius
			if start < 0 {
				start = 0
			}
			end := idx + len(term) + snippetRadius
			if end > len(text) {
				end = len(text)
			}
			return strings.TrimSpace(text[start:end])
		}
	}
	if len(text) > snippetRadius*2 {
		return strings.TrimSpace(text[:snippetRadius*2])
	}
	return strings.TrimSpace(text)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
