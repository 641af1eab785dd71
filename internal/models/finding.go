package models

import "time"

// Severity represents the severity level of a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SeverityRank returns a numeric rank for ordering (higher = more severe).
// Unknown severities rank below low.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ValidSeverity reports whether s is one of the known severity levels.
func ValidSeverity(s Severity) bool {
	return SeverityRank(s) > 0
}

// Category represents the type of finding.
type Category string

const (
	CategorySecurity      Category = "security"
	CategoryPerformance   Category = "performance"
	CategoryStyle         Category = "style"
	CategoryLogic         Category = "logic"
	CategoryDocumentation Category = "documentation"
)

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategorySecurity, CategoryPerformance, CategoryStyle, CategoryLogic, CategoryDocumentation:
		return true
	}
	return false
}

// RecommendedAction is an evaluating agent's verdict on a finding.
type RecommendedAction string

const (
	ActionAccept RecommendedAction = "accept"
	ActionReject RecommendedAction = "reject"
	ActionModify RecommendedAction = "modify"
)

// DecisionOutcome is the authoritative outcome for a finding.
type DecisionOutcome string

const (
	OutcomeAccepted DecisionOutcome = "accepted"
	OutcomeRejected DecisionOutcome = "rejected"
	OutcomeDeferred DecisionOutcome = "deferred"
)

// DeciderAutoRules is the sentinel decider identity for rule-made decisions.
// Human deciders are usernames and never collide with it.
const DeciderAutoRules = "auto-rules"

// Recommendation is an agent's evaluation of a finding.
type Recommendation struct {
	Action      RecommendedAction
	Confidence  float64 // in [0,1]
	Rationale   string
	ModifiedFix string
}

// Decision is the accepted/rejected/deferred outcome for a finding.
type Decision struct {
	Outcome   DecisionOutcome
	Reason    string
	DecidedBy string
	DecidedAt time.Time
}

// ByRules reports whether the decision was made by the rule engine.
func (d *Decision) ByRules() bool {
	return d != nil && d.DecidedBy == DeciderAutoRules
}

// Finding is a single reported issue within a review. The reporter-origin
// fields (category, severity, location, description, proposed fix) are
// immutable after first ingestion; only Recommendation and Decision may be
// attached later.
type Finding struct {
	ID          string
	ReviewID    string
	ExternalID  string // reporter-assigned id, unique within the review (e.g. S001)
	Category    Category
	Severity    Severity
	File        string
	LineStart   int
	LineEnd     int
	Description string
	ProposedFix string

	Recommendation *Recommendation
	Decision       *Decision

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SameContent reports whether the immutable reporter-origin fields of the
// two findings are identical.
func (f *Finding) SameContent(other *Finding) bool {
	return f.Category == other.Category &&
		f.Severity == other.Severity &&
		f.File == other.File &&
		f.LineStart == other.LineStart &&
		f.LineEnd == other.LineEnd &&
		f.Description == other.Description &&
		f.ProposedFix == other.ProposedFix
}
