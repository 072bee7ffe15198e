package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/connexus-ai/ediscovery-core/internal/model"
)

func TestAppend_GenesisLinkage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	hash, err := l.Append(context.Background(), "INDEX_BUILD_COMPLETE", map[string]any{"indexed": 0})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}

	entries, err := l.ReadRange(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].PreviousHash != model.GenesisHash {
		t.Errorf("PreviousHash = %q, want genesis", entries[0].PreviousHash)
	}
	if entries[0].Hash != hash {
		t.Errorf("Hash = %q, want %q", entries[0].Hash, hash)
	}
}

func TestAppend_ChainLinkage(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var hashes []string
	for i := 0; i < 5; i++ {
		h, err := l.Append(context.Background(), "INDEX_BATCH_COMMIT", map[string]any{"count": i})
		if err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		hashes = append(hashes, h)
	}

	entries, err := l.ReadRange(context.Background(), 0, 5)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("got %d entries, want 5", len(entries))
	}
	for i := 1; i < 5; i++ {
		if entries[i].PreviousHash != entries[i-1].Hash {
			t.Errorf("entry %d: previous_hash %q != entry %d hash %q", i, entries[i].PreviousHash, i-1, entries[i-1].Hash)
		}
	}
	for i, h := range hashes {
		if entries[i].Hash != h {
			t.Errorf("entry %d: Hash = %q, want %q", i, entries[i].Hash, h)
		}
	}
}

func TestVerify_CleanChain(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := l.Append(context.Background(), "INDEX_BATCH_COMMIT", map[string]any{"count": i}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	result, err := l.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid chain, got break at %d kind %s", result.BreakAt, result.Kind)
	}
	if result.EntriesChecked != 10 {
		t.Errorf("EntriesChecked = %d, want 10", result.EntriesChecked)
	}
}

func TestVerify_DetectsTamperedDetails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := l.Append(context.Background(), "INDEX_BATCH_COMMIT", map[string]any{"count": i}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := splitLines(raw)
	if len(lines) < 5 {
		t.Fatalf("expected at least 5 lines, got %d", len(lines))
	}
	tampered := []byte(lines[3])
	for i, b := range tampered {
		if b >= '0' && b <= '9' {
			if b == '0' {
				tampered[i] = '1'
			} else {
				tampered[i] = '0'
			}
			break
		}
	}
	lines[3] = string(tampered)

	if err := os.WriteFile(path, []byte(joinLines(lines)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fresh, err := Open(path)
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	result, err := fresh.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Valid {
		t.Fatal("expected tampering to be detected")
	}
	if result.BreakAt > 3 {
		t.Errorf("BreakAt = %d, want <= 3", result.BreakAt)
	}
}

func splitLines(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	return out
}

func joinLines(lines []string) string {
	s := ""
	for _, l := range lines {
		s += l + "\n"
	}
	return s
}

func TestOpen_ResumesFromExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	l1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h1, err := l1.Append(context.Background(), "INDEX_BUILD_COMPLETE", map[string]any{"indexed": 1})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("Open (resume): %v", err)
	}
	h2, err := l2.Append(context.Background(), "INDEX_BUILD_COMPLETE", map[string]any{"indexed": 2})
	if err != nil {
		t.Fatalf("Append (resume): %v", err)
	}

	entries, err := l2.ReadRange(context.Background(), 0, 2)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Hash != h1 {
		t.Errorf("entries[0].Hash = %q, want %q", entries[0].Hash, h1)
	}
	if entries[1].PreviousHash != h1 {
		t.Errorf("entries[1].PreviousHash = %q, want %q", entries[1].PreviousHash, h1)
	}
	if entries[1].Hash != h2 {
		t.Errorf("entries[1].Hash = %q, want %q", entries[1].Hash, h2)
	}
}
