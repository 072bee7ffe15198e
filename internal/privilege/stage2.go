package privilege

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ReasoningClient abstracts the External-Model Adapter's reasoning call
// for testability; *modelclient.Adapter satisfies it.
type ReasoningClient interface {
	Reason(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// legalTerms drives the "dynamic" reasoning-effort heuristic: documents
// dense in these terms get more reasoning budget.
var legalTerms = []string{
	"privilege", "privileged", "work product", "attorney", "counsel",
	"confidential", "common interest", "litigation", "subpoena", "discovery",
}

// ReasoningEffort selects how much reasoning budget Stage 2 requests from
// the model. "dynamic" is resolved per-document by effortForText.
type ReasoningEffort string

const (
	EffortLow     ReasoningEffort = "low"
	EffortMedium  ReasoningEffort = "medium"
	EffortHigh    ReasoningEffort = "high"
	EffortDynamic ReasoningEffort = "dynamic"
)

// resolveEffort returns the effort to actually send for this document,
// resolving "dynamic" by length and legal-term density.
func resolveEffort(configured ReasoningEffort, text string) ReasoningEffort {
	if configured != EffortDynamic {
		return configured
	}

	lower := strings.ToLower(text)
	hits := 0
	for _, term := range legalTerms {
		hits += strings.Count(lower, term)
	}
	density := 0.0
	if words := len(strings.Fields(text)); words > 0 {
		density = float64(hits) / float64(words) * 1000
	}

	switch {
	case len(text) > 20000 || density > 8:
		return EffortHigh
	case len(text) > 4000 || density > 3:
		return EffortMedium
	default:
		return EffortLow
	}
}

// stage2Response is the structured object the external model is
// instructed to return (spec §4.8).
type stage2Response struct {
	Labels        []string `json:"labels"`
	Confidence    float64  `json:"confidence"`
	FullReasoning string   `json:"full_reasoning"`
}

const stage2SystemPromptTemplate = `You are a legal document privilege classifier operating under the following policy:

%s

Classify the document the user provides. Respond with a single JSON object
of the exact shape {"labels": [string], "confidence": number between 0 and 1, "full_reasoning": string}.
full_reasoning must explain your classification but must not quote the document verbatim.
Reasoning effort for this call: %s.`

// escalate sends doc's text to client for Stage 2 classification, using
// policy's text as the system instructions.
func escalate(ctx context.Context, client ReasoningClient, policy *Policy, doc Document, effort ReasoningEffort) (stage2Response, error) {
	resolved := resolveEffort(effort, doc.Text)
	systemPrompt := fmt.Sprintf(stage2SystemPromptTemplate, policy.Text, resolved)

	raw, err := client.Reason(ctx, systemPrompt, doc.Text)
	if err != nil {
		return stage2Response{}, fmt.Errorf("privilege.escalate: %w", err)
	}

	var resp stage2Response
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return stage2Response{}, fmt.Errorf("privilege.escalate: decode model response: %w", err)
	}
	return resp, nil
}

// extractJSON trims any prose a model might wrap its JSON object in,
// returning the substring from the first '{' to the last '}'.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
