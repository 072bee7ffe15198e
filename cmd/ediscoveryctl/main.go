// Command ediscoveryctl is the operator-facing entry point for the core:
// it builds an index over an allowed root, serves ad hoc searches against
// it, and runs the privilege pipeline over a single document. It wires the
// same components a long-running service would (Path Guard, Index Writer,
// Search Facade, External-Model Adapter, Privilege Service) behind one
// small CLI rather than a daemon, since nothing in this core requires a
// persistent process between runs.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/ediscovery-core/internal/audit"
	"github.com/connexus-ai/ediscovery-core/internal/cache"
	"github.com/connexus-ai/ediscovery-core/internal/config"
	"github.com/connexus-ai/ediscovery-core/internal/discovery"
	"github.com/connexus-ai/ediscovery-core/internal/index"
	"github.com/connexus-ai/ediscovery-core/internal/metrics"
	"github.com/connexus-ai/ediscovery-core/internal/modelclient"
	"github.com/connexus-ai/ediscovery-core/internal/pathguard"
	"github.com/connexus-ai/ediscovery-core/internal/privilege"
	"github.com/connexus-ai/ediscovery-core/internal/redact"
	"github.com/connexus-ai/ediscovery-core/internal/repository"
	"github.com/connexus-ai/ediscovery-core/internal/search"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("[DEBUG-CTL] config.Load", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var runErr error
	switch os.Args[1] {
	case "index":
		runErr = runIndex(ctx, cfg, os.Args[2:])
	case "search":
		runErr = runSearch(ctx, cfg, os.Args[2:])
	case "classify":
		runErr = runClassify(ctx, cfg, os.Args[2:])
	case "redact":
		runErr = runRedact(ctx, cfg, os.Args[2:])
	case "serve-metrics":
		runErr = runServeMetrics(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if runErr != nil {
		slog.Error("[DEBUG-CTL] command failed", "command", os.Args[1], "error", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ediscoveryctl <index|search|classify|redact|serve-metrics> [flags]")
}

func ledgerPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataRoot, "audit.jsonl")
}

func indexDir(cfg *config.Config) string {
	return filepath.Join(cfg.DataRoot, "index")
}

// runIndex discovers every file under cfg.DataRoot through the Path Guard
// and commits it into the on-disk index via the Index Writer's worker pool.
func runIndex(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	workerBinary := fs.String("extract-worker", "./extractworker", "path to the extraction worker binary")
	recursive := fs.Bool("recursive", true, "walk subdirectories")
	fs.Parse(args)

	ledger, err := audit.Open(ledgerPath(cfg))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	guard, err := pathguard.New(cfg.DataRoot, ledger)
	if err != nil {
		return fmt.Errorf("pathguard.New: %w", err)
	}

	stream, warnings, err := discovery.Discover(ctx, guard, ledger, *recursive)
	if err != nil {
		return fmt.Errorf("discovery.Discover: %w", err)
	}
	for _, w := range warnings {
		slog.Warn("[DEBUG-CTL] discovery warning", "path", w.Path, "reason", w.Reason)
	}

	store, err := index.Open(indexDir(cfg))
	if err != nil {
		return fmt.Errorf("index.Open: %w", err)
	}

	mc, err := cache.Open(indexDir(cfg), store.Engine)
	if err != nil {
		return fmt.Errorf("cache.Open: %w", err)
	}

	pool, err := index.NewWorkerPool(*workerBinary, cfg.Workers)
	if err != nil {
		return fmt.Errorf("index.NewWorkerPool: %w", err)
	}
	defer pool.Close()

	writer := index.NewWriter(store, mc, ledger, pool, cfg.BatchSize)
	report, err := writer.Build(ctx, stream)
	if err != nil {
		return fmt.Errorf("writer.Build: %w", err)
	}

	slog.Info("[DEBUG-CTL] index build complete",
		"indexed", report.Indexed, "skipped", report.Skipped, "errors", report.Errors, "elapsed", report.Elapsed)
	return nil
}

// buildModelAdapter constructs the External-Model Adapter from cfg. With
// online mode off it returns an adapter with no backends, whose online gate
// rejects every call; no GCP client is constructed in that case.
func buildModelAdapter(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*modelclient.Adapter, error) {
	mcCfg := modelclient.Config{
		OnlineMode:              cfg.OnlineMode,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
		BreakerCooldown:         time.Duration(cfg.BreakerCooldownSec) * time.Second,
		MaxEmbeddingBatch:       32,
	}
	if !cfg.OnlineMode {
		return modelclient.New(nil, nil, mcCfg, m), nil
	}

	reasoning, err := modelclient.NewGenAIBackend(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel)
	if err != nil {
		return nil, fmt.Errorf("modelclient.NewGenAIBackend: %w", err)
	}
	embedding, err := modelclient.NewEmbeddingBackend(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("modelclient.NewEmbeddingBackend: %w", err)
	}
	return modelclient.New(reasoning, embedding, mcCfg, m), nil
}

// buildDenseStore wires a dense backend appropriate to cfg: pgvector when
// a database is configured, an in-memory flat scan otherwise.
func buildDenseStore(ctx context.Context, cfg *config.Config) (search.DenseStore, error) {
	if cfg.DatabaseURL == "" {
		return search.NewFlatDenseStore(), nil
	}
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("repository.NewPool: %w", err)
	}
	return search.NewPGVectorStore(pool), nil
}

func runSearch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	query := fs.String("q", "", "search query")
	mode := fs.String("mode", "lexical", "lexical|dense|hybrid")
	limit := fs.Int("limit", 20, "max results")
	custodian := fs.String("custodian", "", "restrict to custodian")
	doctype := fs.String("doctype", "", "restrict to doctype")
	fs.Parse(args)

	if *query == "" {
		return fmt.Errorf("runSearch: -q is required")
	}

	ledger, err := audit.Open(ledgerPath(cfg))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	store, err := index.Open(indexDir(cfg))
	if err != nil {
		return fmt.Errorf("index.Open: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	facade := search.New(store.Engine, ledger, cfg.SearchRRFK, m)

	if *mode != string(search.ModeLexical) {
		adapter, err := buildModelAdapter(ctx, cfg, m)
		if err != nil {
			return fmt.Errorf("buildModelAdapter: %w", err)
		}
		dense, err := buildDenseStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("buildDenseStore: %w", err)
		}
		embedder := cache.NewCachingEmbedder(adapter, cache.DefaultEmbeddingTTL())
		facade.WithDense(embedder, dense)
	}

	hits, err := facade.Search(ctx, *query, *limit, search.Filters{Custodian: *custodian, Doctype: *doctype}, search.Mode(*mode))
	if err != nil {
		return fmt.Errorf("facade.Search: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(hits)
}

func runClassify(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	docID := fs.String("doc-id", "", "document identifier recorded on the decision")
	path := fs.String("path", "", "path to the document's extracted text")
	headersPath := fs.String("headers", "", "optional path to a header block (e.g. email headers)")
	fs.Parse(args)

	if *docID == "" || *path == "" {
		return fmt.Errorf("runClassify: -doc-id and -path are required")
	}

	text, err := os.ReadFile(*path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	var headers []byte
	if *headersPath != "" {
		headers, err = os.ReadFile(*headersPath)
		if err != nil {
			return fmt.Errorf("read headers: %w", err)
		}
	}

	policy, err := privilege.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("privilege.LoadPolicy: %w", err)
	}

	ledger, err := audit.Open(ledgerPath(cfg))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	adapter, err := buildModelAdapter(ctx, cfg, m)
	if err != nil {
		return fmt.Errorf("buildModelAdapter: %w", err)
	}

	thresholds := privilege.Thresholds{Low: cfg.PrivilegeThresholdLow, High: cfg.PrivilegeThresholdHigh}
	svc := privilege.NewService(policy, adapter, ledger, thresholds, privilege.ReasoningEffort(cfg.PrivilegeReasoningEffort), privilege.ModelVersion(cfg.VertexAIModel), m)

	if cfg.PrivilegeLogFullCoT && cfg.VaultKey != "" {
		vault, err := buildVault(cfg)
		if err != nil {
			return fmt.Errorf("buildVault: %w", err)
		}
		svc = svc.WithVault(vault)
	}

	decision, err := svc.Classify(ctx, *docID, privilege.Document{Headers: string(headers), Text: string(text)})
	if err != nil {
		return fmt.Errorf("svc.Classify: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(decision)
}

// runRedact scans a single document for PII/PHI and writes a redacted copy
// next to it (suffixed .redacted), for building a production set. No
// scanning backend ships with the core; without one every document passes
// through with an empty finding set.
func runRedact(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("redact", flag.ExitOnError)
	docID := fs.String("doc-id", "", "document identifier recorded on the ledger entry")
	path := fs.String("path", "", "path to the document's extracted text")
	out := fs.String("out", "", "output path for the redacted copy (default: <path>.redacted)")
	fs.Parse(args)

	if *docID == "" || *path == "" {
		return fmt.Errorf("runRedact: -doc-id and -path are required")
	}

	text, err := os.ReadFile(*path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	ledger, err := audit.Open(ledgerPath(cfg))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	producer := redact.NewProducer(nil, ledger)
	redacted, result, err := producer.Produce(ctx, *docID, string(text))
	if err != nil {
		return fmt.Errorf("producer.Produce: %w", err)
	}

	outPath := *out
	if outPath == "" {
		outPath = *path + ".redacted"
	}
	if err := os.WriteFile(outPath, []byte(redacted), 0o644); err != nil {
		return fmt.Errorf("write redacted copy: %w", err)
	}

	slog.Info("[DEBUG-CTL] redaction complete", "doc_id", *docID, "findings", result.FindingCount, "out", outPath)
	return nil
}

// buildVault constructs the opt-in reasoning vault: Redis-backed when
// cfg.VaultRedisAddr is set, process-local otherwise.
func buildVault(cfg *config.Config) (*privilege.Vault, error) {
	key, err := hex.DecodeString(cfg.VaultKey)
	if err != nil {
		return nil, fmt.Errorf("decode EDISCOVERY_VAULT_KEY (want hex): %w", err)
	}

	var store privilege.ReasoningStore
	if cfg.VaultRedisAddr != "" {
		store = privilege.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.VaultRedisAddr}), "privilege-vault:")
	} else {
		store = privilege.NewMemoryStore()
	}

	return privilege.NewVault(key, store)
}

// runServeMetrics serves a freshly registered set of the core's Prometheus
// collectors over HTTP. It runs no index, search or model work itself, and
// the other subcommands use their own registries, so the collectors it
// serves stay at their initial values.
func runServeMetrics(args []string) error {
	fs := flag.NewFlagSet("serve-metrics", flag.ExitOnError)
	addr := fs.String("addr", ":9090", "listen address")
	fs.Parse(args)

	reg := prometheus.NewRegistry()
	metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	slog.Info("[DEBUG-CTL] serving metrics", "addr", *addr)
	return http.ListenAndServe(*addr, mux)
}
