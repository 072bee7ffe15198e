package privilege

import (
	"context"
	"errors"
	"strings"
	"testing"
)

var errBoom = errors.New("boom")

type fakeReasoningClient struct {
	response string
	err      error
	gotSystemPrompt string
	gotUserPrompt   string
}

func (f *fakeReasoningClient) Reason(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.gotSystemPrompt = systemPrompt
	f.gotUserPrompt = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestResolveEffort_FixedPassesThrough(t *testing.T) {
	if got := resolveEffort(EffortHigh, "short text"); got != EffortHigh {
		t.Errorf("got %v, want EffortHigh unchanged", got)
	}
}

func TestResolveEffort_DynamicShortLowDensityIsLow(t *testing.T) {
	if got := resolveEffort(EffortDynamic, "a short memo about lunch plans"); got != EffortLow {
		t.Errorf("got %v, want EffortLow", got)
	}
}

func TestResolveEffort_DynamicDenseLegalTermsIsHigh(t *testing.T) {
	dense := strings.Repeat("privilege privileged attorney counsel work product litigation ", 5)
	if got := resolveEffort(EffortDynamic, dense); got != EffortHigh {
		t.Errorf("got %v, want EffortHigh for legal-term-dense text", got)
	}
}

func TestResolveEffort_DynamicLongTextIsHigh(t *testing.T) {
	long := strings.Repeat("x ", 11000)
	if got := resolveEffort(EffortDynamic, long); got != EffortHigh {
		t.Errorf("got %v, want EffortHigh for long document", got)
	}
}

func TestEscalate_ParsesJSONResponse(t *testing.T) {
	policy := mustPolicy(t, DefaultPolicyText)
	client := &fakeReasoningClient{response: `{"labels":["PRIVILEGED:WP"],"confidence":0.72,"full_reasoning":"discusses trial strategy"}`}

	resp, err := escalate(context.Background(), client, policy, Document{Text: "a memo"}, EffortMedium)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if resp.Confidence != 0.72 || len(resp.Labels) != 1 || resp.Labels[0] != "PRIVILEGED:WP" {
		t.Errorf("got %+v", resp)
	}
	if !strings.Contains(client.gotSystemPrompt, policy.Text) {
		t.Error("expected system prompt to embed policy text")
	}
}

func TestEscalate_StripsSurroundingProseFromJSON(t *testing.T) {
	policy := mustPolicy(t, DefaultPolicyText)
	client := &fakeReasoningClient{response: "Here is my answer:\n{\"labels\":[],\"confidence\":0.1,\"full_reasoning\":\"no privilege markers found\"}\nThanks."}

	resp, err := escalate(context.Background(), client, policy, Document{Text: "a memo"}, EffortLow)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if resp.Confidence != 0.1 {
		t.Errorf("confidence = %v, want 0.1", resp.Confidence)
	}
}

func TestEscalate_PropagatesBackendError(t *testing.T) {
	policy := mustPolicy(t, DefaultPolicyText)
	client := &fakeReasoningClient{err: errBoom}

	_, err := escalate(context.Background(), client, policy, Document{Text: "a memo"}, EffortLow)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}
