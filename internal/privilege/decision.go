package privilege

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/connexus-ai/ediscovery-core/internal/audit"
	"github.com/connexus-ai/ediscovery-core/internal/metrics"
	"github.com/connexus-ai/ediscovery-core/internal/model"
)

// reasoningSummaryLimit is the maximum length of a reasoning_summary
// written to the ledger (spec §4.8).
const reasoningSummaryLimit = 200

// backendUnavailableSummary is the fixed reasoning_summary recorded when
// Stage 2 cannot be reached (offline mode, circuit breaker open, or any
// other dispatch failure).
const backendUnavailableSummary = "backend unavailable"

// ModelVersion identifies the reasoning backend/model in force, recorded
// alongside every Stage 2 decision for reproducibility.
type ModelVersion string

// Thresholds holds the two cutoffs spec §4.8 defines. At or above High
// Stage 1 alone decides; any lower Stage 1 confidence escalates to Stage 2,
// whose labels are merged with Stage 1's. Low is compared against Stage 2's
// confidence: a result below it is flagged needs_review. If Stage 2 fails,
// the degraded outcome carries no labels.
type Thresholds struct {
	Low  float64
	High float64
}

// Service ties the Stage 1 pattern pre-filter and Stage 2 model escalation
// together, emitting one PRIVILEGE_DECISION ledger entry per document
// (spec §4.8).
type Service struct {
	policy     *Policy
	reasoning  ReasoningClient
	ledger     *audit.Ledger
	thresholds Thresholds
	effort     ReasoningEffort
	modelVer   ModelVersion
	metrics    *metrics.Metrics
	vault      *Vault
}

// NewService constructs a Service. reasoning may be nil, in which case
// every document needing Stage 2 degrades to the needs-review outcome. m
// may be nil to skip metrics entirely.
func NewService(policy *Policy, reasoning ReasoningClient, ledger *audit.Ledger, thresholds Thresholds, effort ReasoningEffort, modelVer ModelVersion, m *metrics.Metrics) *Service {
	return &Service{
		policy:     policy,
		reasoning:  reasoning,
		ledger:     ledger,
		thresholds: thresholds,
		effort:     effort,
		modelVer:   modelVer,
		metrics:    m,
	}
}

// WithVault opts this Service into retaining Stage 2's unredacted
// full_reasoning text, encrypted under reasoning_hash, for operators who
// need it for a downstream audit. Without this, full_reasoning is
// discarded the moment reduceReasoning computes its hash and summary.
func (s *Service) WithVault(v *Vault) *Service {
	s.vault = v
	return s
}

// Classify runs Stage 1 against doc, escalating to Stage 2 when Stage 1's
// confidence falls short of the high threshold, and records exactly one
// PRIVILEGE_DECISION ledger entry for the final outcome.
func (s *Service) Classify(ctx context.Context, docID string, doc Document) (model.PrivilegeDecision, error) {
	stage1 := EvaluateStage1(s.policy, doc)

	decision := model.PrivilegeDecision{
		DocID:         docID,
		Stage:         1,
		Labels:        stage1.Labels,
		Confidence:    stage1.Confidence,
		PolicyVersion: s.policy.Version,
		DecisionTS:    time.Now().UTC(),
	}

	if stage1.Conclusive || stage1.Confidence >= s.thresholds.High {
		return s.record(ctx, decision)
	}

	stage2Decision, err := s.runStage2(ctx, docID, doc, stage1)
	if err != nil {
		return model.PrivilegeDecision{}, err
	}
	return s.record(ctx, stage2Decision)
}

// runStage2 escalates to the reasoning backend, falling back to the
// needs-review degradation outcome on any dispatch failure: offline mode,
// circuit breaker open, timeout, or malformed response (spec §4.9).
func (s *Service) runStage2(ctx context.Context, docID string, doc Document, stage1 Stage1Result) (model.PrivilegeDecision, error) {
	base := model.PrivilegeDecision{
		DocID:         docID,
		Stage:         2,
		PolicyVersion: s.policy.Version,
		ModelVersion:  string(s.modelVer),
		DecisionTS:    time.Now().UTC(),
	}

	if s.reasoning == nil {
		return degraded(base), nil
	}

	resp, err := escalate(ctx, s.reasoning, s.policy, doc, s.effort)
	if err != nil {
		return degraded(base), nil
	}

	labels := mergeLabels(stage1.Labels, resp.Labels)
	hash, summary := reduceReasoning(resp.FullReasoning, s.policy.Version)

	if s.vault != nil {
		if _, err := s.vault.Seal(ctx, resp.FullReasoning, s.policy.Version); err != nil {
			slog.Warn("[DEBUG-PRIVILEGE] failed to vault full reasoning", "doc_id", docID, "error", err)
		}
	}

	base.Labels = labels
	base.Confidence = resp.Confidence
	base.NeedsReview = resp.Confidence < s.thresholds.Low
	base.ReasoningHash = hash
	base.ReasoningSummary = summary
	return base, nil
}

// degraded returns the fixed failure-degradation outcome spec §4.9
// mandates when Stage 2 is unreachable: no labels, zero confidence,
// flagged for human review.
func degraded(base model.PrivilegeDecision) model.PrivilegeDecision {
	base.Labels = nil
	base.Confidence = 0.0
	base.NeedsReview = true
	base.ReasoningSummary = backendUnavailableSummary
	return base
}

func mergeLabels(stage1, stage2 []string) []string {
	seen := make(map[string]bool, len(stage1)+len(stage2))
	var out []string
	for _, l := range append(append([]string{}, stage1...), stage2...) {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// reduceReasoning implements spec §4.8's reduction of full_reasoning
// before it ever reaches storage: reasoning_hash is a salted digest of the
// full text, and reasoning_summary strips any line quoting the source
// document and is truncated to reasoningSummaryLimit characters.
func reduceReasoning(fullReasoning, policyVersionSalt string) (hash, summary string) {
	sum := sha256.Sum256([]byte(fullReasoning + policyVersionSalt))
	hash = hex.EncodeToString(sum[:])

	var kept []string
	for _, line := range strings.Split(fullReasoning, "\n") {
		if strings.Contains(line, `"`) || strings.Contains(line, "“") {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	summary = strings.Join(kept, " ")
	if len(summary) > reasoningSummaryLimit {
		summary = summary[:reasoningSummaryLimit]
	}
	return hash, summary
}

// record appends the PRIVILEGE_DECISION ledger entry and returns decision
// unchanged, so callers can chain it directly into a return statement.
func (s *Service) record(ctx context.Context, decision model.PrivilegeDecision) (model.PrivilegeDecision, error) {
	details := map[string]any{
		"doc_id":            decision.DocID,
		"stage":             decision.Stage,
		"labels":            decision.Labels,
		"confidence":        decision.Confidence,
		"needs_review":      decision.NeedsReview,
		"reasoning_hash":    decision.ReasoningHash,
		"reasoning_summary": decision.ReasoningSummary,
		"policy_version":    decision.PolicyVersion,
		"model_version":     decision.ModelVersion,
	}
	if _, err := s.ledger.Append(ctx, model.ActionPrivilegeDecision, details); err != nil {
		return model.PrivilegeDecision{}, fmt.Errorf("privilege.Service.Classify: %w", err)
	}

	if s.metrics != nil {
		s.metrics.PrivilegeDecisions.WithLabelValues(fmt.Sprintf("%d", decision.Stage), fmt.Sprintf("%v", decision.NeedsReview)).Inc()
	}

	return decision, nil
}
