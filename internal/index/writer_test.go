package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/connexus-ai/ediscovery-core/internal/audit"
	"github.com/connexus-ai/ediscovery-core/internal/cache"
	"github.com/connexus-ai/ediscovery-core/internal/discovery"
	"github.com/connexus-ai/ediscovery-core/internal/index/workerproto"
	"github.com/connexus-ai/ediscovery-core/internal/pathguard"
)

// fakePool extracts synchronously by reading job.Path, standing in for the
// real OS-process WorkerPool in unit tests.
type fakePool struct {
	results chan workerproto.Result
	fail    map[string]string // sha256 -> reason, for simulated extraction failures
}

func newFakePool() *fakePool {
	return &fakePool{results: make(chan workerproto.Result, 256), fail: map[string]string{}}
}

func (f *fakePool) Submit(ctx context.Context, job workerproto.Job) error {
	if reason, ok := f.fail[job.SHA256]; ok {
		f.results <- workerproto.Result{SHA256: job.SHA256, SkipReason: reason}
		return nil
	}
	data, err := os.ReadFile(job.Path)
	if err != nil {
		f.results <- workerproto.Result{SHA256: job.SHA256, SkipReason: err.Error()}
		return nil
	}
	f.results <- workerproto.Result{SHA256: job.SHA256, Text: string(data)}
	return nil
}

func (f *fakePool) Results() <-chan workerproto.Result {
	return f.results
}

func setupWriter(t *testing.T, pool Pool) (*Writer, string) {
	t.Helper()
	dataRoot := t.TempDir()
	indexDir := filepath.Join(dataRoot, "index")

	store, err := Open(indexDir)
	if err != nil {
		t.Fatalf("Open store: %v", err)
	}
	mc, err := cache.Open(indexDir, store.Engine)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	ledger, err := audit.Open(filepath.Join(dataRoot, "audit.jsonl"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	return NewWriter(store, mc, ledger, pool, 2), dataRoot
}

func mustDiscover(t *testing.T, root string) *discovery.Stream {
	t.Helper()
	g, err := pathguard.New(root, nil)
	if err != nil {
		t.Fatalf("pathguard.New: %v", err)
	}
	stream, _, err := discovery.Discover(context.Background(), g, nil, true)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return stream
}

func TestWriter_Build_EmptyCorpus(t *testing.T) {
	root := t.TempDir()
	w, _ := setupWriter(t, newFakePool())

	report, err := w.Build(context.Background(), mustDiscover(t, root))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if report.Indexed != 0 || report.Skipped != 0 || report.Errors != 0 {
		t.Errorf("report = %+v, want all zero", report)
	}
	if w.store.Engine.DocCount() != 0 {
		t.Errorf("DocCount() = %d, want 0", w.store.Engine.DocCount())
	}
}

func TestWriter_Build_IndexesAllDocuments(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("content of "+name), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	w, _ := setupWriter(t, newFakePool())
	report, err := w.Build(context.Background(), mustDiscover(t, root))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if report.Indexed != 3 {
		t.Errorf("Indexed = %d, want 3", report.Indexed)
	}
	if w.cache.DocCount() != 3 {
		t.Errorf("cache DocCount() = %d, want 3 (index-cache agreement)", w.cache.DocCount())
	}
}

func TestWriter_Build_ExtractionFailureCountsAsSkipped(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "good.txt"), []byte("fine"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "bad.txt"), []byte("bad content"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	pool := newFakePool()
	stream := mustDiscover(t, root)

	// Find the sha256 of bad.txt to mark it as a forced extraction failure.
	var docs []struct{ sha256, path string }
	for {
		d, ok := stream.Next()
		if !ok {
			break
		}
		docs = append(docs, struct{ sha256, path string }{d.SHA256, d.Path})
	}
	for _, d := range docs {
		if filepath.Base(d.path) == "bad.txt" {
			pool.fail[d.sha256] = "simulated extractor failure"
		}
	}

	w, dataRoot := setupWriter(t, pool)
	// Rebuild a fresh stream since the first was drained above.
	report, err := w.Build(context.Background(), mustDiscover(t, root))
	_ = dataRoot
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if report.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", report.Indexed)
	}
	if report.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", report.Skipped)
	}
}
