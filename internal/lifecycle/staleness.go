package lifecycle

import "time"

// Staleness is the time-based classification of an undecided review.
type Staleness string

const (
	StalenessFresh    Staleness = "fresh"
	StalenessWarn     Staleness = "warn"
	StalenessEscalate Staleness = "escalate"
)

// Classify is a pure function of the review's age against the configured
// thresholds. Reporting paths may use the result for display; only the
// lifecycle manager may turn an escalate classification into the stale
// state.
func Classify(createdAt, now time.Time, warnAfterDays, escalateAfterDays int) Staleness {
	ageDays := int(now.Sub(createdAt).Hours() / 24)
	switch {
	case escalateAfterDays > 0 && ageDays >= escalateAfterDays:
		return StalenessEscalate
	case warnAfterDays > 0 && ageDays >= warnAfterDays:
		return StalenessWarn
	default:
		return StalenessFresh
	}
}
