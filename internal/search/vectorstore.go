package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// DenseStore abstracts the optional dense-retrieval backend. Dense mode is
// unavailable unless a DenseStore and an embedding function were both
// configured at index time (spec §4.7).
type DenseStore interface {
	// Nearest returns the sha256 of the topK documents nearest queryVec by
	// cosine similarity, most similar first.
	Nearest(ctx context.Context, queryVec []float32, topK int) ([]string, error)
}

// QueryEmbedder turns query text into a dense vector for DenseStore lookup.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PGVectorStore is a DenseStore backed by a Postgres/pgvector connection
// pool. Every chunk's embedding is stored with its owning document's
// sha256 so Nearest can return document identities directly.
type PGVectorStore struct {
	pool *pgxpool.Pool
}

// NewPGVectorStore wraps an already-open pgvector-enabled pool.
func NewPGVectorStore(pool *pgxpool.Pool) *PGVectorStore {
	return &PGVectorStore{pool: pool}
}

// Nearest runs a cosine-distance ORDER BY against document_vectors, scoped
// to the single-tenant offline corpus (no user/privilege filtering; that is
// the Privilege Service's job downstream of the hit list).
func (s *PGVectorStore) Nearest(ctx context.Context, queryVec []float32, topK int) ([]string, error) {
	embedding := pgvector.NewVector(queryVec)

	rows, err := s.pool.Query(ctx, `
		SELECT sha256
		FROM document_vectors
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("search.Nearest: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sha256 string
		if err := rows.Scan(&sha256); err != nil {
			return nil, fmt.Errorf("search.Nearest: scan: %w", err)
		}
		out = append(out, sha256)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search.Nearest: %w", err)
	}
	return out, nil
}

// flatVector is one entry in FlatDenseStore's brute-force index.
type flatVector struct {
	sha256 string
	vec    []float32
}

// FlatDenseStore is the dense backend used when no Postgres pool is
// configured: an in-memory brute-force cosine scan. Fine for the corpus
// sizes an offline-first single-operator toolkit actually sees; anything
// larger belongs in PGVectorStore.
type FlatDenseStore struct {
	vectors []flatVector
}

// NewFlatDenseStore returns an empty brute-force store.
func NewFlatDenseStore() *FlatDenseStore {
	return &FlatDenseStore{}
}

// Add indexes sha256's embedding, overwriting any prior entry.
func (s *FlatDenseStore) Add(sha256 string, vec []float32) {
	for i, v := range s.vectors {
		if v.sha256 == sha256 {
			s.vectors[i].vec = vec
			return
		}
	}
	s.vectors = append(s.vectors, flatVector{sha256: sha256, vec: vec})
}

// Nearest scores every stored vector by cosine similarity and returns the
// topK sha256 values, most similar first; ties broken by ascending sha256.
func (s *FlatDenseStore) Nearest(ctx context.Context, queryVec []float32, topK int) ([]string, error) {
	type scored struct {
		sha256 string
		score  float64
	}
	scores := make([]scored, 0, len(s.vectors))
	for _, v := range s.vectors {
		scores = append(scores, scored{sha256: v.sha256, score: cosineSimilarity(queryVec, v.vec)})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].sha256 < scores[j].sha256
	})
	if topK > 0 && len(scores) > topK {
		scores = scores[:topK]
	}
	out := make([]string, len(scores))
	for i, s := range scores {
		out[i] = s.sha256
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		slog.Debug("[DEBUG-SEARCH] cosineSimilarity: dimension mismatch", "len_a", len(a), "len_b", len(b))
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
