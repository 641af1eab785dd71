package rules

import (
	"fmt"
	"time"

	"github.com/jamesbinford/LGTM/internal/config"
	"github.com/jamesbinford/LGTM/internal/models"
)

// Rule is a parsed auto-decision rule.
type Rule struct {
	Condition Condition
	Outcome   models.DecisionOutcome
	Reason    string
}

// Engine evaluates the configured auto-rules against undecided findings.
// Rules are consulted in declared order; the first match wins.
type Engine struct {
	rules []Rule
}

// New parses and validates the configured rules. A malformed condition or
// unknown action fails the whole load, so a broken configuration is caught
// before any pipeline run mutates the ledger.
func New(cfgRules []config.AutoRule) (*Engine, error) {
	e := &Engine{}
	for i, r := range cfgRules {
		cond, err := ParseCondition(r.Condition)
		if err != nil {
			return nil, fmt.Errorf("auto rule %d: %w", i+1, err)
		}

		var outcome models.DecisionOutcome
		switch r.Action {
		case "auto_accept":
			outcome = models.OutcomeAccepted
		case "auto_dismiss":
			outcome = models.OutcomeRejected
		case "auto_defer":
			outcome = models.OutcomeDeferred
		default:
			return nil, fmt.Errorf("auto rule %d: unknown action %q", i+1, r.Action)
		}

		e.rules = append(e.rules, Rule{Condition: cond, Outcome: outcome, Reason: r.Reason})
	}
	return e, nil
}

// Len returns the number of loaded rules.
func (e *Engine) Len() int { return len(e.rules) }

// AgeDays returns the whole days elapsed between the review's creation and
// now, truncated.
func AgeDays(reviewCreatedAt, now time.Time) int {
	return int(now.Sub(reviewCreatedAt).Hours() / 24)
}

// Evaluate runs the rules against one finding. It returns the decision the
// first matching rule produces, or ok=false when no rule fires. The caller
// owns the sticky-decision policy: the engine never looks at an existing
// decision.
func (e *Engine) Evaluate(f *models.Finding, reviewCreatedAt, now time.Time) (*models.Decision, bool) {
	ageDays := AgeDays(reviewCreatedAt, now)

	for _, rule := range e.rules {
		if rule.Condition.Matches(f, ageDays) {
			return &models.Decision{
				Outcome:   rule.Outcome,
				Reason:    "[auto] " + rule.Reason,
				DecidedBy: models.DeciderAutoRules,
				DecidedAt: now,
			}, true
		}
	}
	return nil, false
}
