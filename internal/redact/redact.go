// Package redact scrubs PII/PHI from documents before they leave the core
// in a production set, logging every redaction to the audit ledger so a
// reviewer can later confirm what was stripped without ever storing the
// original text next to it.
package redact

import (
	"context"
	"fmt"
	"sort"

	"github.com/connexus-ai/ediscovery-core/internal/audit"
	"github.com/connexus-ai/ediscovery-core/internal/model"
)

// Finding represents a detected PII/PHI occurrence in text.
type Finding struct {
	InfoType   string  `json:"infoType"`
	Content    string  `json:"content"`
	Likelihood string  `json:"likelihood"`
	StartIndex int     `json:"startIndex"`
	EndIndex   int     `json:"endIndex"`
	Score      float64 `json:"score"`
}

// ScanResult holds the results of a PII/PHI scan over one document.
type ScanResult struct {
	Findings     []Finding `json:"findings"`
	FindingCount int       `json:"findingCount"`
	Types        []string  `json:"types"`
}

// Scanner abstracts PII/PHI detection for testability. A deployment wires
// this to whatever inspection backend it has available; the core ships no
// concrete implementation.
type Scanner interface {
	Scan(ctx context.Context, text string) ([]Finding, error)
}

// defaultInfoTypes lists the info types that have a dedicated redaction
// label. Producer does not filter by it: Produce redacts every finding the
// Scanner returns, whatever its type.
var defaultInfoTypes = []string{
	"PERSON_NAME",
	"EMAIL_ADDRESS",
	"PHONE_NUMBER",
	"US_SOCIAL_SECURITY_NUMBER",
	"CREDIT_CARD_NUMBER",
	"US_INDIVIDUAL_TAXPAYER_IDENTIFICATION_NUMBER",
}

var infoTypeToRedactLabel = map[string]string{
	"PERSON_NAME":                "NAME",
	"EMAIL_ADDRESS":              "EMAIL",
	"PHONE_NUMBER":               "PHONE",
	"US_SOCIAL_SECURITY_NUMBER":  "SSN",
	"CREDIT_CARD_NUMBER":         "CREDIT_CARD",
	"US_INDIVIDUAL_TAXPAYER_IDENTIFICATION_NUMBER": "TIN",
}

// Producer scans documents for PII/PHI and produces redacted copies,
// recording one REDACTION_APPLIED ledger entry per document it touches.
type Producer struct {
	scanner Scanner
	ledger  *audit.Ledger
}

// NewProducer constructs a Producer. scanner may be nil, in which case
// Scan always returns an empty result (no PII/PHI backend configured).
func NewProducer(scanner Scanner, ledger *audit.Ledger) *Producer {
	return &Producer{scanner: scanner, ledger: ledger}
}

// Scan inspects text for PII/PHI without modifying it.
func (p *Producer) Scan(ctx context.Context, text string) (*ScanResult, error) {
	if text == "" || p.scanner == nil {
		return &ScanResult{}, nil
	}

	findings, err := p.scanner.Scan(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("redact.Scan: %w", err)
	}

	typeSet := make(map[string]bool, len(findings))
	for _, f := range findings {
		typeSet[f.InfoType] = true
	}
	types := make([]string, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}
	sort.Strings(types)

	return &ScanResult{Findings: findings, FindingCount: len(findings), Types: types}, nil
}

// Produce scans docText, redacts every finding, and appends a
// REDACTION_APPLIED ledger entry recording what was stripped (type and
// count only, never the original text or the redacted content itself).
func (p *Producer) Produce(ctx context.Context, docID, docText string) (string, *ScanResult, error) {
	result, err := p.Scan(ctx, docText)
	if err != nil {
		return "", nil, err
	}

	redacted := Redact(docText, result.Findings)

	details := map[string]any{
		"doc_id":        docID,
		"finding_count": result.FindingCount,
		"types":         result.Types,
	}
	if _, err := p.ledger.Append(ctx, model.ActionRedactionApplied, details); err != nil {
		return "", nil, fmt.Errorf("redact.Produce: %w", err)
	}

	return redacted, result, nil
}

// Redact replaces every finding in text with a [REDACTED-TYPE] marker.
// Findings need not be pre-sorted; Redact sorts a copy by StartIndex
// descending so earlier replacements don't shift later offsets.
func Redact(text string, findings []Finding) string {
	if len(findings) == 0 {
		return text
	}

	sorted := make([]Finding, len(findings))
	copy(sorted, findings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartIndex > sorted[j].StartIndex })

	result := text
	for _, f := range sorted {
		if f.StartIndex < 0 || f.EndIndex > len(result) || f.StartIndex >= f.EndIndex {
			continue
		}
		label := infoTypeToRedactLabel[f.InfoType]
		if label == "" {
			label = "PII"
		}
		result = result[:f.StartIndex] + fmt.Sprintf("[REDACTED-%s]", label) + result[f.EndIndex:]
	}
	return result
}

// RedactByType redacts only findings whose InfoType is in types, leaving
// everything else in text untouched.
func RedactByType(text string, findings []Finding, types []string) string {
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	filtered := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if typeSet[f.InfoType] {
			filtered = append(filtered, f)
		}
	}
	return Redact(text, filtered)
}
