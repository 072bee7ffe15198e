// Package pathguard resolves candidate paths against an allowed root,
// following symlinks, and refuses anything that would escape it. No code
// outside this package is permitted to construct a file path that is later
// opened by the core (spec §4.1).
package pathguard

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a candidate resolves outside the
// allowed root, or when the candidate cannot be made absolute.
var ErrPathTraversal = errors.New("pathguard: path escapes allowed root")

// Auditor records a PATH_TRAVERSAL_ATTEMPT event. Implemented by
// *audit.Ledger in production; a no-op or spy in tests.
type Auditor interface {
	Append(ctx context.Context, action string, details map[string]any) (string, error)
}

// Guard resolves candidate paths against a fixed allowed root.
type Guard struct {
	root   string
	ledger Auditor
}

// New resolves allowedRoot to its canonical absolute form (following
// symlinks) and returns a Guard bound to it.
func New(allowedRoot string, ledger Auditor) (*Guard, error) {
	resolvedRoot, err := canonicalize(allowedRoot)
	if err != nil {
		return nil, fmt.Errorf("pathguard.New: resolve root %q: %w", allowedRoot, err)
	}
	return &Guard{root: resolvedRoot, ledger: ledger}, nil
}

// Root returns the guard's canonical allowed root.
func (g *Guard) Root() string {
	return g.root
}

// ResolveSafe resolves candidate to an absolute, symlink-resolved path and
// verifies it lies within the guard's root. On failure it emits a
// PATH_TRAVERSAL_ATTEMPT audit entry (best-effort: an audit failure does not
// mask the original error) and returns ErrPathTraversal.
func (g *Guard) ResolveSafe(ctx context.Context, candidate string) (string, error) {
	resolved, err := canonicalize(candidate)
	if err != nil {
		g.audit(ctx, candidate, candidate)
		return "", fmt.Errorf("pathguard.ResolveSafe: %w: %v", ErrPathTraversal, err)
	}

	if !isWithinRoot(resolved, g.root) {
		g.audit(ctx, candidate, resolved)
		return "", fmt.Errorf("pathguard.ResolveSafe: %w: %s", ErrPathTraversal, candidate)
	}

	return resolved, nil
}

func (g *Guard) audit(ctx context.Context, original, resolved string) {
	if g.ledger == nil {
		return
	}
	_, _ = g.ledger.Append(ctx, "PATH_TRAVERSAL_ATTEMPT", map[string]any{
		"original": original,
		"resolved": resolved,
	})
}

// canonicalize returns the absolute, symlink-resolved form of p. If
// EvalSymlinks fails (e.g. a dangling symlink or a not-yet-existing path),
// the absolute, cleaned path is used as the best available resolution —
// matching the fallback behavior a resolver must have for paths discovered
// before they are known to exist.
func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// isWithinRoot reports whether candidate (already canonical) lies within
// root (already canonical), rejecting any relative computation that leads
// upward out of root.
func isWithinRoot(candidate, root string) bool {
	c := filepath.Clean(candidate)
	r := filepath.Clean(root)
	if c == r {
		return true
	}
	rel, err := filepath.Rel(r, c)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
