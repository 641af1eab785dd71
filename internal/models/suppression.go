package models

import "time"

// Suppression is a durable record preventing a semantically equivalent
// finding from resurfacing at a location. Suppressions match by location and
// attributes rather than finding identity, because re-running agents assigns
// new identifiers to conceptually the same issue.
//
// Suppressions are immutable once created. They become logically inactive
// through expiry (explicit timestamp or content-hash mismatch) and are never
// physically removed, preserving audit history.
type Suppression struct {
	ID        string
	File      string
	LineStart int
	LineEnd   int
	Category  Category // empty = any category
	Pattern   string   // empty = any description; otherwise substring match
	Reason    string
	CreatedBy string
	CreatedAt time.Time

	// ContentHash, when set, pins the suppression to the code that occupied
	// the recorded range at creation time. A later mismatch means the code
	// changed and the suppression has expired.
	ContentHash string

	ExpiresAt *time.Time
}

// Overlaps reports whether the suppression's line range overlaps [start,end].
func (s *Suppression) Overlaps(start, end int) bool {
	return s.LineStart <= end && start <= s.LineEnd
}
