// Package index implements the Parallel Index Builder (spec §4.5): a
// coordinator holding the single BM25 Engine's write access, fanning
// extraction work out to a WorkerPool of OS processes and committing
// completed documents in durable batches.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/ediscovery-core/internal/audit"
	"github.com/connexus-ai/ediscovery-core/internal/cache"
	"github.com/connexus-ai/ediscovery-core/internal/discovery"
	"github.com/connexus-ai/ediscovery-core/internal/index/workerproto"
	"github.com/connexus-ai/ediscovery-core/internal/model"
)

// DefaultBatchSize is the commit batch size used when the caller does not
// configure one (spec §4.5 default 1000).
const DefaultBatchSize = 1000

// Pool abstracts the extraction worker pool so Writer can be tested without
// spawning real OS processes; *WorkerPool satisfies it directly.
type Pool interface {
	Submit(ctx context.Context, job workerproto.Job) error
	Results() <-chan workerproto.Result
}

// Writer is the single coordinator for one index directory. It owns the
// Store's Engine exclusively for the duration of a Build.
type Writer struct {
	store     *Store
	cache     *cache.MetadataCache
	ledger    *audit.Ledger
	pool      Pool
	batchSize int
}

// NewWriter assembles a Writer from its already-open dependencies.
func NewWriter(store *Store, mc *cache.MetadataCache, ledger *audit.Ledger, pool Pool, batchSize int) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Writer{store: store, cache: mc, ledger: ledger, pool: pool, batchSize: batchSize}
}

// Build consumes stream to exhaustion (or until ctx is cancelled), extracting
// each document through the worker pool and committing in batches of
// batchSize. On cancellation it stops submitting new jobs, drains whatever
// was already in flight, commits the partial batch, and emits
// INDEX_BUILD_CANCELLED rather than INDEX_BUILD_COMPLETE.
func (w *Writer) Build(ctx context.Context, stream *discovery.Stream) (model.BuildReport, error) {
	start := time.Now()
	report := model.BuildReport{RunID: uuid.New().String()}

	var docs []model.Document
	for {
		d, ok := stream.Next()
		if !ok {
			break
		}
		docs = append(docs, d)
	}
	docByHash := make(map[string]model.Document, len(docs))
	for _, d := range docs {
		docByHash[d.SHA256] = d
	}

	var submitted int64
	submitDone := make(chan struct{})
	go func() {
		defer close(submitDone)
		for _, d := range docs {
			job := workerproto.Job{SHA256: d.SHA256, Path: d.Path, Doctype: d.Doctype}
			if err := w.pool.Submit(ctx, job); err != nil {
				return
			}
			atomic.AddInt64(&submitted, 1)
		}
	}()

	var pending []model.IndexEntry
	received := 0
	cancelled := false

	if len(docs) == 0 {
		<-submitDone
	} else {
	loop:
		for {
			select {
			case res := <-w.pool.Results():
				received++
				w.applyResult(context.Background(), res, docByHash, &pending, &report)
				if len(pending) >= w.batchSize {
					if err := w.commitBatch(context.Background(), pending, &report); err != nil {
						return report, w.abort(report, err)
					}
					pending = pending[:0]
				}
			case <-ctx.Done():
				cancelled = true
				break loop
			}
			if received >= len(docs) {
				<-submitDone
				break loop
			}
		}
	}

	if cancelled {
		<-submitDone
		for int64(received) < atomic.LoadInt64(&submitted) {
			res := <-w.pool.Results()
			received++
			w.applyResult(context.Background(), res, docByHash, &pending, &report)
		}
	}

	if err := w.commitBatch(context.Background(), pending, &report); err != nil {
		return report, w.abort(report, err)
	}

	report.Elapsed = time.Since(start)

	if cancelled {
		if _, err := w.ledger.Append(context.Background(), model.ActionIndexBuildCancelled, map[string]any{
			"run_id": report.RunID, "indexed": report.Indexed, "skipped": report.Skipped,
		}); err != nil {
			slog.Error("[DEBUG-INDEX] failed to record build cancellation", "error", err)
		}
		return report, context.Canceled
	}

	if _, err := w.ledger.Append(context.Background(), model.ActionIndexBuildComplete, map[string]any{
		"run_id": report.RunID, "indexed": report.Indexed, "skipped": report.Skipped,
	}); err != nil {
		return report, fmt.Errorf("index.Build: final ledger append: %w", err)
	}
	return report, nil
}

func (w *Writer) applyResult(ctx context.Context, res workerproto.Result, docByHash map[string]model.Document, pending *[]model.IndexEntry, report *model.BuildReport) {
	doc := docByHash[res.SHA256]
	if res.SkipReason != "" {
		report.Skipped++
		if _, err := w.ledger.Append(ctx, model.ActionExtractionFailed, map[string]any{
			"path": doc.Path, "reason": res.SkipReason,
		}); err != nil {
			slog.Error("[DEBUG-INDEX] failed to record extraction failure", "error", err)
		}
		return
	}

	entry := model.IndexEntry{
		SHA256:    doc.SHA256,
		Path:      doc.Path,
		Custodian: doc.Custodian,
		Doctype:   doc.Doctype,
		Text:      res.Text,
	}
	w.store.Engine.Add(entry)
	*pending = append(*pending, entry)
	report.Indexed++
}

// commitBatch durably commits pending to the store, refreshes the metadata
// cache, and appends INDEX_BATCH_COMMIT — strictly in that order, per §5's
// ordering guarantee that the cache never reflects a newer state than the
// index.
func (w *Writer) commitBatch(ctx context.Context, pending []model.IndexEntry, report *model.BuildReport) error {
	if len(pending) == 0 {
		return nil
	}
	if err := w.store.Commit(pending); err != nil {
		return fmt.Errorf("index.commitBatch: %w", err)
	}
	w.cache.UpdateForBatch(pending)
	w.cache.SetDocCount(w.store.Engine.DocCount())
	if err := w.cache.Flush(); err != nil {
		return fmt.Errorf("index.commitBatch: cache flush: %w", err)
	}
	if _, err := w.ledger.Append(ctx, model.ActionIndexBatchCommit, map[string]any{
		"run_id":     report.RunID,
		"count":      len(pending),
		"cumulative": report.Indexed,
		"last_hash":  w.ledger.Tip(),
	}); err != nil {
		return fmt.Errorf("index.commitBatch: ledger: %w", err)
	}
	return nil
}

func (w *Writer) abort(report model.BuildReport, cause error) error {
	if _, err := w.ledger.Append(context.Background(), model.ActionIndexBuildAbort, map[string]any{
		"run_id": report.RunID, "cause": cause.Error(), "indexed": report.Indexed, "skipped": report.Skipped,
	}); err != nil {
		slog.Error("[DEBUG-INDEX] failed to record build abort", "error", err)
	}
	return fmt.Errorf("index.Build: %w", cause)
}
