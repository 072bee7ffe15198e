package index

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/connexus-ai/ediscovery-core/internal/model"
)

// BM25 tuning constants (Robertson/Sparck-Jones defaults used throughout
// the full-text-search literature and by every BM25 engine this repo's
// corpus references transitively).
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// postingList maps a term to the documents containing it and per-document
// term frequency, keyed by sha256.
type postingList map[string]map[string]int

// Engine is an in-process, exclusively-owned BM25 full-text index. One
// Engine instance holds the single index writer lock for its directory
// (spec §4.5: "the underlying full-text engine requires exclusive write
// access"); see Store for the on-disk persistence this wraps.
type Engine struct {
	mu sync.RWMutex

	postings   postingList
	docLen     map[string]int // sha256 -> token count
	entries    map[string]model.IndexEntry
	totalDocs  int
	totalTerms int64
}

// NewEngine returns an empty in-memory BM25 index.
func NewEngine() *Engine {
	return &Engine{
		postings: make(postingList),
		docLen:   make(map[string]int),
		entries:  make(map[string]model.IndexEntry),
	}
}

// Add indexes entry, overwriting any prior record with the same SHA256
// (spec §3: re-indexing a document overwrites the record atomically).
func (e *Engine) Add(entry model.IndexEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.entries[entry.SHA256]; exists {
		e.removeLocked(entry.SHA256)
	}

	tokens := tokenize(entry.Text)
	e.entries[entry.SHA256] = entry
	e.docLen[entry.SHA256] = len(tokens)
	e.totalDocs++
	e.totalTerms += int64(len(tokens))

	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	for term, count := range freq {
		if e.postings[term] == nil {
			e.postings[term] = make(map[string]int)
		}
		e.postings[term][entry.SHA256] = count
	}
}

// removeLocked drops sha256 from every posting list. Caller must hold mu.
func (e *Engine) removeLocked(sha256 string) {
	if _, ok := e.entries[sha256]; !ok {
		return
	}
	e.totalDocs--
	e.totalTerms -= int64(e.docLen[sha256])
	delete(e.docLen, sha256)
	delete(e.entries, sha256)
	for term, docs := range e.postings {
		delete(docs, sha256)
		if len(docs) == 0 {
			delete(e.postings, term)
		}
	}
}

// Remove purges a document from the index (spec §3: "optionally removed by
// explicit purge").
func (e *Engine) Remove(sha256 string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(sha256)
}

// DocCount returns the number of committed documents.
func (e *Engine) DocCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.totalDocs
}

// Entry returns the IndexEntry for sha256, if present.
func (e *Engine) Entry(sha256 string) (model.IndexEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.entries[sha256]
	return entry, ok
}

// Hit is one lexical search result.
type Hit struct {
	SHA256 string
	Score  float64
}

// Search scores every document containing at least one query term with
// Okapi BM25 and returns the top limit hits, ordered by score descending
// then sha256 ascending (spec §8.6: search determinism; ties broken by
// ascending sha256 throughout this codebase).
func (e *Engine) Search(query string, limit int) []Hit {
	e.mu.RLock()
	defer e.mu.RUnlock()

	terms := tokenize(query)
	if len(terms) == 0 || e.totalDocs == 0 {
		return nil
	}

	avgDocLen := float64(e.totalTerms) / float64(e.totalDocs)
	scores := make(map[string]float64)

	seen := make(map[string]bool)
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true

		docs := e.postings[term]
		if len(docs) == 0 {
			continue
		}
		idf := bm25IDF(e.totalDocs, len(docs))
		for sha256, tf := range docs {
			dl := float64(e.docLen[sha256])
			denom := float64(tf) + bm25K1*(1-bm25B+bm25B*dl/avgDocLen)
			scores[sha256] += idf * (float64(tf) * (bm25K1 + 1)) / denom
		}
	}

	hits := make([]Hit, 0, len(scores))
	for sha256, score := range scores {
		hits = append(hits, Hit{SHA256: sha256, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].SHA256 < hits[j].SHA256
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// bm25IDF is the standard Robertson-Walker IDF with the +1 floor that keeps
// the weight non-negative for terms occurring in more than half the corpus.
func bm25IDF(totalDocs, docsWithTerm int) float64 {
	return math.Log(1 + (float64(totalDocs)-float64(docsWithTerm)+0.5)/(float64(docsWithTerm)+0.5))
}

// Custodians returns the distinct custodian values across all indexed
// documents.
func (e *Engine) Custodians() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	set := make(map[string]struct{})
	for _, entry := range e.entries {
		if entry.Custodian != "" {
			set[entry.Custodian] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// Doctypes returns the distinct doctype values across all indexed
// documents.
func (e *Engine) Doctypes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	set := make(map[string]struct{})
	for _, entry := range e.entries {
		if entry.Doctype != "" {
			set[entry.Doctype] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AllEntries returns every committed entry, for cache rebuild.
func (e *Engine) AllEntries() []model.IndexEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.IndexEntry, 0, len(e.entries))
	for _, entry := range e.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SHA256 < out[j].SHA256 })
	return out
}
