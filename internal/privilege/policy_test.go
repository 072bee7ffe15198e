package privilege

import "testing"

func TestParsePolicy_ComputesStableVersion(t *testing.T) {
	p1, err := ParsePolicy(DefaultPolicyText)
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}
	p2, err := ParsePolicy(DefaultPolicyText)
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}
	if p1.Version != p2.Version {
		t.Errorf("version not stable across identical text: %q vs %q", p1.Version, p2.Version)
	}
	if len(p1.Version) != 64 {
		t.Errorf("version len = %d, want 64 (hex sha256)", len(p1.Version))
	}
}

func TestParsePolicy_DifferentTextDifferentVersion(t *testing.T) {
	p1, _ := ParsePolicy(DefaultPolicyText)
	p2, err := ParsePolicy(DefaultPolicyText + "\nrule extra phrase=foo label=BAR weight=0.5\n")
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}
	if p1.Version == p2.Version {
		t.Error("expected differing policy text to produce differing versions")
	}
}

func TestParsePolicy_SkipsBlankAndCommentLines(t *testing.T) {
	p, err := ParsePolicy("# comment\n\nrule a phrase=foo label=BAR weight=0.5\n")
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}
	if len(p.Rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(p.Rules))
	}
}

func TestParsePolicy_RejectsUnknownAttribute(t *testing.T) {
	_, err := ParsePolicy("rule a phrase=foo label=BAR bogus=1\n")
	if err == nil {
		t.Fatal("expected error for unknown rule attribute")
	}
}

func TestParsePolicy_RejectsMissingLabel(t *testing.T) {
	_, err := ParsePolicy("rule a phrase=foo weight=0.5\n")
	if err == nil {
		t.Fatal("expected error for rule missing a label")
	}
}

func TestParsePolicy_DefaultWeightIsOne(t *testing.T) {
	p, err := ParsePolicy("rule a phrase=foo label=BAR\n")
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}
	if p.Rules[0].Weight != 1.0 {
		t.Errorf("default weight = %v, want 1.0", p.Rules[0].Weight)
	}
}

func TestParsePolicy_ConclusiveFlag(t *testing.T) {
	p, err := ParsePolicy("rule a phrase=foo label=BAR conclusive=true\n")
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}
	if !p.Rules[0].Conclusive {
		t.Error("expected conclusive=true to be parsed")
	}
}
