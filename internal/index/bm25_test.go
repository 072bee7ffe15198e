package index

import (
	"testing"

	"github.com/connexus-ai/ediscovery-core/internal/model"
)

func TestEngine_SearchRanksByRelevance(t *testing.T) {
	e := NewEngine()
	e.Add(model.IndexEntry{SHA256: "a", Text: "the quick brown fox jumps over the lazy dog"})
	e.Add(model.IndexEntry{SHA256: "b", Text: "fox fox fox fox sighting report"})
	e.Add(model.IndexEntry{SHA256: "c", Text: "completely unrelated document about taxes"})

	hits := e.Search("fox", 10)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].SHA256 != "b" {
		t.Errorf("top hit = %q, want %q (higher term frequency)", hits[0].SHA256, "b")
	}
}

func TestEngine_SearchTiesBrokenBySHA256Ascending(t *testing.T) {
	e := NewEngine()
	e.Add(model.IndexEntry{SHA256: "zzz", Text: "apple"})
	e.Add(model.IndexEntry{SHA256: "aaa", Text: "apple"})

	hits := e.Search("apple", 10)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].SHA256 != "aaa" || hits[1].SHA256 != "zzz" {
		t.Errorf("order = [%s, %s], want ascending sha256 on tie", hits[0].SHA256, hits[1].SHA256)
	}
}

func TestEngine_AddOverwritesSameSHA256(t *testing.T) {
	e := NewEngine()
	e.Add(model.IndexEntry{SHA256: "a", Text: "original text"})
	e.Add(model.IndexEntry{SHA256: "a", Text: "updated text"})

	if e.DocCount() != 1 {
		t.Fatalf("DocCount() = %d, want 1", e.DocCount())
	}
	entry, ok := e.Entry("a")
	if !ok || entry.Text != "updated text" {
		t.Errorf("Entry(a) = %+v, want updated text", entry)
	}
}

func TestEngine_CustodiansAndDoctypes(t *testing.T) {
	e := NewEngine()
	e.Add(model.IndexEntry{SHA256: "a", Custodian: "bob", Doctype: "txt", Text: "x"})
	e.Add(model.IndexEntry{SHA256: "b", Custodian: "alice", Doctype: "pdf", Text: "y"})

	custodians := e.Custodians()
	if len(custodians) != 2 || custodians[0] != "alice" {
		t.Errorf("Custodians() = %v, want sorted [alice bob]", custodians)
	}
	doctypes := e.Doctypes()
	if len(doctypes) != 2 || doctypes[0] != "pdf" {
		t.Errorf("Doctypes() = %v, want sorted [pdf txt]", doctypes)
	}
}

func TestEngine_SearchEmptyQuery(t *testing.T) {
	e := NewEngine()
	e.Add(model.IndexEntry{SHA256: "a", Text: "content"})
	if hits := e.Search("", 10); hits != nil {
		t.Errorf("Search(\"\") = %v, want nil", hits)
	}
}
