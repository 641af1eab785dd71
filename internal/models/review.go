package models

import "time"

// ReviewStatus represents the state of a review.
type ReviewStatus string

const (
	ReviewStatusPending ReviewStatus = "pending"
	ReviewStatusDecided ReviewStatus = "decided"
	ReviewStatusApplied ReviewStatus = "applied"
	ReviewStatusStale   ReviewStatus = "stale"
)

// ActiveStatuses are the statuses that count against the one-active-review-
// per-key rule. A stale review is a closed record and never blocks a new one.
var ActiveStatuses = []ReviewStatus{ReviewStatusPending, ReviewStatusDecided, ReviewStatusApplied}

// IsActive reports whether the status participates in the uniqueness rule.
func (s ReviewStatus) IsActive() bool {
	return s == ReviewStatusPending || s == ReviewStatusDecided || s == ReviewStatusApplied
}

// Review represents one agent review pass over a PR or commit.
type Review struct {
	ID        string
	PRNumber  int // linked PR number (0 = commit-keyed review)
	Repo      string
	Branch    string
	CommitSHA string
	Status    ReviewStatus
	CreatedAt time.Time
	UpdatedAt time.Time

	// Findings are loaded by Store.GetReview; list operations leave this nil.
	Findings []*Finding
}

// Key returns the uniqueness key for the review: (repo, PR) when the review
// is tied to a pull request, otherwise (repo, commit).
func (r *Review) Key() ReviewKey {
	k := ReviewKey{Repo: r.Repo, PRNumber: r.PRNumber}
	if r.PRNumber == 0 {
		k.CommitSHA = r.CommitSHA
	}
	return k
}

// ReviewKey identifies the unit the one-active-review invariant applies to.
type ReviewKey struct {
	Repo      string
	PRNumber  int
	CommitSHA string
}

// FullyDecided reports whether every loaded finding carries a decision.
// A review with no findings is trivially decided.
func (r *Review) FullyDecided() bool {
	for _, f := range r.Findings {
		if f.Decision == nil {
			return false
		}
	}
	return true
}

// UndecidedFindings returns the loaded findings without a decision.
func (r *Review) UndecidedFindings() []*Finding {
	var out []*Finding
	for _, f := range r.Findings {
		if f.Decision == nil {
			out = append(out, f)
		}
	}
	return out
}
