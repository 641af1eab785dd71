// Package suppress decides whether a newly reported finding is covered by a
// stored suppression. Matching is by location and attributes rather than by
// finding identity: re-running agents produces new identifiers for
// conceptually the same issue, so identity can never be the join key.
package suppress

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jamesbinford/LGTM/internal/models"
)

// Lister is the slice of the store the registry loads from.
type Lister interface {
	ListSuppressions(ctx context.Context) ([]*models.Suppression, error)
}

// Registry is an immutable snapshot of the suppression store, indexed by
// file path. A snapshot is taken once per ingestion pass; suppressions
// written concurrently during the same pass are intentionally not observed.
type Registry struct {
	byFile map[string][]*models.Suppression
}

// NewRegistry builds a snapshot registry from the given suppressions.
// Entries are ordered by creation time per file so the earliest-created
// match is always attributed, keeping audit reasons deterministic.
func NewRegistry(sups []*models.Suppression) *Registry {
	r := &Registry{byFile: make(map[string][]*models.Suppression)}
	for _, s := range sups {
		r.byFile[s.File] = append(r.byFile[s.File], s)
	}
	for _, list := range r.byFile {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		})
	}
	return r
}

// Snapshot loads all suppressions from the store into a registry.
func Snapshot(ctx context.Context, l Lister) (*Registry, error) {
	sups, err := l.ListSuppressions(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot suppressions: %w", err)
	}
	return NewRegistry(sups), nil
}

// Len returns the number of indexed suppressions.
func (r *Registry) Len() int {
	n := 0
	for _, list := range r.byFile {
		n += len(list)
	}
	return n
}

// Match returns the earliest-created suppression covering the finding, or
// nil when the finding is not suppressed. A suppression covers a finding
// when it names the same file, its line range overlaps, its category filter
// is unset or equal, its text pattern is unset or contained in the finding's
// description, and it has not expired.
//
// Expiry has two triggers: an explicit expiry timestamp in the past, or a
// recorded content hash that no longer matches the code currently occupying
// the range. A hash mismatch (including an unreadable range: the code is
// gone) is the intended expiry signal, not an error.
func (r *Registry) Match(f *models.Finding, now time.Time, h Hasher) *models.Suppression {
	for _, s := range r.byFile[f.File] {
		if !s.Overlaps(f.LineStart, f.LineEnd) {
			continue
		}
		if s.Category != "" && s.Category != f.Category {
			continue
		}
		if s.Pattern != "" && !strings.Contains(f.Description, s.Pattern) {
			continue
		}
		if r.expired(s, now, h) {
			continue
		}
		return s
	}
	return nil
}

// IsSuppressed reports whether any stored suppression covers the finding.
func (r *Registry) IsSuppressed(f *models.Finding, now time.Time, h Hasher) bool {
	return r.Match(f, now, h) != nil
}

func (r *Registry) expired(s *models.Suppression, now time.Time, h Hasher) bool {
	if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
		return true
	}
	if s.ContentHash != "" && h != nil {
		current, err := h.Hash(s.File, s.LineStart, s.LineEnd)
		if err != nil || current != s.ContentHash {
			return true
		}
	}
	return false
}
