package model

import "time"

// Document is the metadata record emitted by Discovery for one file under
// the allowed root. SHA256 is the stable identity; Path is recorded but
// never used as a key.
type Document struct {
	SHA256    string    `json:"sha256"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"sizeBytes"`
	MTime     time.Time `json:"mtime"`
	Custodian string    `json:"custodian,omitempty"`
	Doctype   string    `json:"doctype"`
}

// IndexEntry is the per-document record held by the full-text engine. It is
// created during build and never modified in place; re-indexing the same
// SHA256 overwrites the record atomically.
type IndexEntry struct {
	SHA256    string            `json:"sha256"`
	Path      string            `json:"path"`
	Custodian string            `json:"custodian,omitempty"`
	Doctype   string            `json:"doctype"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DocumentChunk is an optional dense-retrieval unit over an IndexEntry's
// text, used only when the Search Facade is configured with a vector store.
type DocumentChunk struct {
	DocumentSHA256 string    `json:"documentSha256"`
	ChunkIndex     int       `json:"chunkIndex"`
	Content        string    `json:"content"`
	ContentHash    string    `json:"contentHash"`
	Embedding      []float32 `json:"-"`
}

// BuildReport summarizes one Index Writer build run (spec §4.5). RunID
// correlates this run's batch-commit ledger entries for an operator
// reading the ledger back linearly.
type BuildReport struct {
	RunID   string        `json:"run_id"`
	Indexed int           `json:"indexed"`
	Skipped int           `json:"skipped"`
	Errors  int           `json:"errors"`
	Elapsed time.Duration `json:"elapsed"`
}

// CacheState is the Metadata Cache's persisted shape (spec §3, §6).
type CacheState struct {
	SchemaVersion int       `json:"schema_version"`
	Custodians    []string  `json:"custodians"`
	Doctypes      []string  `json:"doctypes"`
	DocCount      int       `json:"doc_count"`
	LastUpdated   time.Time `json:"last_updated"`
}

// CurrentCacheSchemaVersion is the major schema version written by this
// build of the Metadata Cache. A cache file carrying a different major
// version triggers a full rebuild from the index on next open.
const CurrentCacheSchemaVersion = 1

// Doctype tags recognized by the Text Extraction Facade's local backends.
// Unrecognized extensions fall through to DoctypeUnknown.
const (
	DoctypeTXT     = "txt"
	DoctypeMD      = "md"
	DoctypeCSV     = "csv"
	DoctypePDF     = "pdf"
	DoctypeDOCX    = "docx"
	DoctypeUnknown = "unknown"
)

// MaxDiscoveryFileBytes bounds a single file Discovery will hash and admit;
// larger files are skipped with a warning rather than risk one pathological
// input starving the extraction worker pool.
const MaxDiscoveryFileBytes = 512 * 1024 * 1024
