package modelclient

import (
	"context"
	"fmt"
	"time"

	"github.com/connexus-ai/ediscovery-core/internal/metrics"
)

// ReasoningBackend is satisfied by ChatBackend and GenAIBackend.
type ReasoningBackend interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// EmbeddingBackendPort is satisfied by EmbeddingBackend, isolated so
// Adapter can be unit-tested against a fake.
type EmbeddingBackendPort interface {
	EmbedBatch(ctx context.Context, texts []string, taskType string, maxBatch int) ([][]float32, error)
}

// Config holds the adapter knobs spec §6 documents.
type Config struct {
	OnlineMode              bool
	CallTimeout             time.Duration
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration
	MaxEmbeddingBatch       int
}

// Adapter is the single External-Model Adapter entry point: every outbound
// call to a reasoning or embedding backend passes through here, gated by
// online_mode, the circuit breaker, a per-call timeout, and a retry
// policy (spec §4.9).
type Adapter struct {
	reasoning ReasoningBackend
	embedding EmbeddingBackendPort
	breaker   *Breaker
	cfg       Config
}

// New assembles an Adapter. reasoning and/or embedding may be nil if that
// capability was not configured; calls to the missing capability report a
// configuration error rather than panicking.
func New(reasoning ReasoningBackend, embedding EmbeddingBackendPort, cfg Config, m *metrics.Metrics) *Adapter {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Adapter{
		reasoning: reasoning,
		embedding: embedding,
		breaker:   NewBreaker("external-model", cfg.BreakerFailureThreshold, cfg.BreakerCooldown, m),
		cfg:       cfg,
	}
}

// State reports the breaker's current state, for health/status reporting.
func (a *Adapter) State() State {
	return a.breaker.State()
}

// Reason escalates a document to the reasoning backend for Stage 2
// privilege classification, returning its raw text response (expected to
// be a JSON object the caller parses into labels/confidence/reasoning).
func (a *Adapter) Reason(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if a.reasoning == nil {
		return "", fmt.Errorf("modelclient.Reason: no reasoning backend configured")
	}
	if err := requireOnline(a.cfg.OnlineMode, "Reason"); err != nil {
		return "", err
	}

	result, err := a.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
		defer cancel()
		return withBackoff(callCtx, a.cfg.CallTimeout, func() (string, error) {
			return a.reasoning.Generate(callCtx, systemPrompt, userPrompt)
		})
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Embed satisfies search.QueryEmbedder by delegating to EmbedQuery, so an
// *Adapter can be passed directly to Facade.WithDense.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.EmbedQuery(ctx, text)
}

// EmbedQuery embeds a single query string for dense retrieval.
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.embedTexts(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("modelclient.EmbedQuery: empty response")
	}
	return vecs[0], nil
}

// EmbedDocuments embeds a batch of document texts for dense indexing.
func (a *Adapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return a.embedTexts(ctx, texts, "RETRIEVAL_DOCUMENT")
}

func (a *Adapter) embedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if a.embedding == nil {
		return nil, fmt.Errorf("modelclient.embedTexts: no embedding backend configured")
	}
	if err := requireOnline(a.cfg.OnlineMode, "Embed"); err != nil {
		return nil, err
	}

	result, err := a.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
		defer cancel()
		return withBackoff(callCtx, a.cfg.CallTimeout, func() ([][]float32, error) {
			return a.embedding.EmbedBatch(callCtx, texts, taskType, a.cfg.MaxEmbeddingBatch)
		})
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}
