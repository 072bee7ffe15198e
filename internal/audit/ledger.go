// Package audit implements the append-only, hash-chained, fsync-durable
// event log (spec §3, §4.2). Every meaningful action in the core is
// recorded through a Ledger; the chain makes undetected tampering
// cryptographically infeasible and the advisory file lock makes
// concurrent writers from separate processes safe.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/connexus-ai/ediscovery-core/internal/model"
)

// ErrLedgerDurability is raised when a write could not be made durable
// (fsync failure). The in-memory chain tip is never advanced on this path.
var ErrLedgerDurability = errors.New("audit: ledger durability failure")

// ErrLedgerClosed marks a ledger that stopped accepting appends after
// Verify found a break; an operator must acknowledge before further writes.
var ErrLedgerClosed = errors.New("audit: ledger closed pending operator acknowledgement")

const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Ledger is a single-writer-per-process, append-only JSONL hash chain
// backed by one file. Multiple processes sharing the same file coordinate
// through the advisory OS lock (github.com/gofrs/flock).
type Ledger struct {
	path string
	lock *flock.Flock

	mu       sync.Mutex
	lastHash string
	lastTS   time.Time
	closed   bool
}

// Open opens (creating if necessary) the ledger file at path and primes the
// in-memory chain tip from its last line, or the genesis hash if empty.
func Open(path string) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit.Open: %w", err)
	}

	l := &Ledger{
		path:     path,
		lock:     flock.New(path + ".lock"),
		lastHash: model.GenesisHash,
	}

	last, err := lastEvent(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("audit.Open: reading last entry: %w", err)
	}
	if last != nil {
		l.lastHash = last.Hash
		l.lastTS = last.Timestamp
	}

	return l, nil
}

// Append computes previous_hash from the current chain tip, serializes the
// entry canonically, writes the line, flushes, and fsyncs before returning.
// The returned hash is the new chain tip.
func (l *Ledger) Append(ctx context.Context, action string, details map[string]any) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return "", ErrLedgerClosed
	}

	if err := l.lock.Lock(); err != nil {
		return "", fmt.Errorf("audit.Append: acquire lock: %w", err)
	}
	defer l.lock.Unlock()

	ts := l.nextTimestamp()
	tsStr := ts.UTC().Format(timestampLayout)

	canon, err := canonicalBytes(tsStr, action, details, l.lastHash)
	if err != nil {
		return "", fmt.Errorf("audit.Append: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canon)
	hash := hex.EncodeToString(sum[:])

	line, err := fullLineBytes(canon, hash)
	if err != nil {
		return "", fmt.Errorf("audit.Append: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("audit.Append: open: %w", err)
	}
	defer f.Close()

	info, statErr := f.Stat()
	var priorSize int64
	if statErr == nil {
		priorSize = info.Size()
	}

	n, err := f.Write(line)
	if err != nil {
		_ = f.Truncate(priorSize)
		return "", fmt.Errorf("audit.Append: write: %w: %w", ErrLedgerDurability, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Truncate(priorSize)
		return "", fmt.Errorf("audit.Append: fsync: %w: %w", ErrLedgerDurability, err)
	}
	if n != len(line) {
		_ = f.Truncate(priorSize)
		return "", fmt.Errorf("audit.Append: short write: %w", ErrLedgerDurability)
	}

	l.lastHash = hash
	l.lastTS = ts

	slog.Debug("[DEBUG-AUDIT] entry appended", "action", action, "hash", hash[:12])

	return hash, nil
}

// nextTimestamp returns a timestamp strictly greater than the last one
// recorded, enforcing the "monotonic per process" invariant even on clocks
// with coarse resolution.
func (l *Ledger) nextTimestamp() time.Time {
	now := time.Now().UTC()
	if !now.After(l.lastTS) {
		now = l.lastTS.Add(time.Microsecond)
	}
	return now
}

// BreakKind enumerates how Verify found the chain broken.
type BreakKind string

const (
	BreakBadHash       BreakKind = "bad_hash"
	BreakBrokenLink    BreakKind = "broken_link"
	BreakMissingGenesis BreakKind = "missing_genesis"
)

// VerificationResult reports the outcome of Verify.
type VerificationResult struct {
	Valid          bool
	EntriesChecked int
	BreakAt        int
	Kind           BreakKind
}

// Verify reads the ledger sequentially, recomputing each entry's hash and
// checking linkage, and reports the first break found. A break closes the
// ledger: later Appends fail with ErrLedgerClosed.
func (l *Ledger) Verify(ctx context.Context) (res *VerificationResult, err error) {
	defer func() {
		if res != nil && !res.Valid {
			l.MarkClosed()
		}
	}()

	if err := l.lock.RLock(); err != nil {
		return nil, fmt.Errorf("audit.Verify: acquire shared lock: %w", err)
	}
	defer l.lock.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &VerificationResult{Valid: true}, nil
		}
		return nil, fmt.Errorf("audit.Verify: open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)

	prevHash := model.GenesisHash
	idx := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		var w wireEvent
		if err := json.Unmarshal(line, &w); err != nil {
			return &VerificationResult{Valid: false, EntriesChecked: idx + 1, BreakAt: idx, Kind: BreakBadHash}, nil
		}

		if idx == 0 && w.PreviousHash != model.GenesisHash {
			return &VerificationResult{Valid: false, EntriesChecked: 1, BreakAt: 0, Kind: BreakMissingGenesis}, nil
		}
		if w.PreviousHash != prevHash {
			return &VerificationResult{Valid: false, EntriesChecked: idx + 1, BreakAt: idx, Kind: BreakBrokenLink}, nil
		}

		canon, err := canonicalBytes(w.Timestamp, w.Action, w.Details, w.PreviousHash)
		if err != nil {
			return nil, fmt.Errorf("audit.Verify: canonicalize line %d: %w", idx, err)
		}
		sum := sha256.Sum256(canon)
		expected := hex.EncodeToString(sum[:])
		if expected != w.Hash {
			return &VerificationResult{Valid: false, EntriesChecked: idx + 1, BreakAt: idx, Kind: BreakBadHash}, nil
		}

		prevHash = w.Hash
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit.Verify: scan: %w", err)
	}

	return &VerificationResult{Valid: true, EntriesChecked: idx}, nil
}

// Tip returns the current chain tip hash (the genesis constant if the
// ledger is empty).
func (l *Ledger) Tip() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

// MarkClosed prevents further appends after an operator-visible integrity
// break. There is no automatic repair; an operator must replace or
// truncate the file and construct a fresh Ledger.
func (l *Ledger) MarkClosed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

// ReadRange returns entries with 0-based index in [from, to).
func (l *Ledger) ReadRange(ctx context.Context, from, to int) ([]model.AuditEvent, error) {
	if err := l.lock.RLock(); err != nil {
		return nil, fmt.Errorf("audit.ReadRange: acquire shared lock: %w", err)
	}
	defer l.lock.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit.ReadRange: open: %w", err)
	}
	defer f.Close()

	var out []model.AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	idx := 0
	for scanner.Scan() {
		if idx >= to {
			break
		}
		if idx >= from {
			var w wireEvent
			if err := json.Unmarshal(scanner.Bytes(), &w); err != nil {
				return nil, fmt.Errorf("audit.ReadRange: decode line %d: %w", idx, err)
			}
			ts, err := time.Parse(timestampLayout, w.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("audit.ReadRange: parse timestamp line %d: %w", idx, err)
			}
			out = append(out, model.AuditEvent{
				Timestamp:    ts,
				Action:       w.Action,
				Details:      w.Details,
				PreviousHash: w.PreviousHash,
				Hash:         w.Hash,
			})
		}
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit.ReadRange: scan: %w", err)
	}
	return out, nil
}

// wireEvent mirrors model.AuditEvent but keeps Timestamp as the literal
// on-disk string so hash recomputation operates on exactly what was
// written, never a reformatted value.
type wireEvent struct {
	Timestamp    string         `json:"timestamp"`
	Action       string         `json:"action"`
	Details      map[string]any `json:"details"`
	PreviousHash string         `json:"previous_hash"`
	Hash         string         `json:"hash"`
}

// lastEvent returns the last decodable line of the file, or nil if empty.
func lastEvent(f *os.File) (*wireEvent, error) {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	var last []byte
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		last = append(last[:0], line...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	var w wireEvent
	if err := json.Unmarshal(last, &w); err != nil {
		return nil, fmt.Errorf("decode last entry: %w", err)
	}
	return &w, nil
}
