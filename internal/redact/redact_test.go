package redact

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/connexus-ai/ediscovery-core/internal/audit"
)

type fakeScanner struct {
	findings []Finding
	err      error
}

func (f *fakeScanner) Scan(ctx context.Context, text string) ([]Finding, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.findings, nil
}

func newTestLedger(t *testing.T) *audit.Ledger {
	t.Helper()
	ledger, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	return ledger
}

func TestProducer_ScanDetectsSSNAndEmail(t *testing.T) {
	scanner := &fakeScanner{findings: []Finding{
		{InfoType: "US_SOCIAL_SECURITY_NUMBER", Content: "123-45-6789", StartIndex: 10, EndIndex: 21, Score: 0.95},
		{InfoType: "EMAIL_ADDRESS", Content: "john@example.com", StartIndex: 30, EndIndex: 46, Score: 0.90},
	}}
	p := NewProducer(scanner, newTestLedger(t))

	result, err := p.Scan(context.Background(), "SSN is 123-45-6789 and email john@example.com")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.FindingCount != 2 {
		t.Errorf("FindingCount = %d, want 2", result.FindingCount)
	}
	if len(result.Types) != 2 || result.Types[0] != "EMAIL_ADDRESS" {
		t.Errorf("Types = %v, want sorted [EMAIL_ADDRESS US_SOCIAL_SECURITY_NUMBER]", result.Types)
	}
}

func TestProducer_ScanWithoutBackendReturnsEmpty(t *testing.T) {
	p := NewProducer(nil, newTestLedger(t))
	result, err := p.Scan(context.Background(), "no scanner configured")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.FindingCount != 0 {
		t.Errorf("FindingCount = %d, want 0 when no scanner is configured", result.FindingCount)
	}
}

func TestProducer_ScanEmptyText(t *testing.T) {
	p := NewProducer(&fakeScanner{}, newTestLedger(t))
	result, err := p.Scan(context.Background(), "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if result.FindingCount != 0 {
		t.Errorf("FindingCount = %d, want 0", result.FindingCount)
	}
}

func TestProducer_ScanPropagatesBackendError(t *testing.T) {
	p := NewProducer(&fakeScanner{err: errors.New("scanner unavailable")}, newTestLedger(t))
	if _, err := p.Scan(context.Background(), "some text"); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestProducer_ProduceRedactsAndRecordsLedgerEntry(t *testing.T) {
	ledger := newTestLedger(t)
	scanner := &fakeScanner{findings: []Finding{
		{InfoType: "US_SOCIAL_SECURITY_NUMBER", StartIndex: 7, EndIndex: 18},
	}}
	p := NewProducer(scanner, ledger)

	redacted, result, err := p.Produce(context.Background(), "doc-1", "SSN is 123-45-6789 end")
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if redacted != "SSN is [REDACTED-SSN] end" {
		t.Errorf("redacted = %q", redacted)
	}
	if result.FindingCount != 1 {
		t.Errorf("FindingCount = %d, want 1", result.FindingCount)
	}

	events, err := ledger.ReadRange(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d ledger entries, want 1", len(events))
	}
	if events[0].Details["doc_id"] != "doc-1" {
		t.Errorf("ledger entry missing doc_id: %+v", events[0].Details)
	}
	if _, leaked := events[0].Details["text"]; leaked {
		t.Error("ledger entry must never carry the document text")
	}
}

func TestRedact_SSNAndEmail(t *testing.T) {
	text := "SSN is 123-45-6789 email john@example.com end"
	findings := []Finding{
		{InfoType: "US_SOCIAL_SECURITY_NUMBER", StartIndex: 7, EndIndex: 18},
		{InfoType: "EMAIL_ADDRESS", StartIndex: 25, EndIndex: 41},
	}
	if got := Redact(text, findings); got != "SSN is [REDACTED-SSN] email [REDACTED-EMAIL] end" {
		t.Errorf("Redact() = %q", got)
	}
}

func TestRedact_NoFindings(t *testing.T) {
	text := "clean text with no PII"
	if got := Redact(text, nil); got != text {
		t.Errorf("Redact() = %q, want original text", got)
	}
}

func TestRedact_UnknownTypeFallsBackToPII(t *testing.T) {
	text := "Data: secret123 end"
	findings := []Finding{{InfoType: "CUSTOM_TYPE", StartIndex: 6, EndIndex: 15}}
	if got := Redact(text, findings); got != "Data: [REDACTED-PII] end" {
		t.Errorf("Redact() = %q, want [REDACTED-PII] for an unrecognized type", got)
	}
}

func TestRedactByType_FiltersToRequestedTypes(t *testing.T) {
	text := "SSN: 123-45-6789 email: j@e.com end"
	findings := []Finding{
		{InfoType: "US_SOCIAL_SECURITY_NUMBER", StartIndex: 5, EndIndex: 16},
		{InfoType: "EMAIL_ADDRESS", StartIndex: 24, EndIndex: 31},
	}
	got := RedactByType(text, findings, []string{"US_SOCIAL_SECURITY_NUMBER"})
	if got != "SSN: [REDACTED-SSN] email: j@e.com end" {
		t.Errorf("RedactByType() = %q", got)
	}
}
