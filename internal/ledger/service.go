// Package ledger is the serialization layer over the review store. It owns
// the review-scoped locks: within one review, ingestion, recommendation
// merge, decision recording, and rule application run one at a time, while
// distinct reviews proceed fully in parallel. Locks are never held across a
// call to an external collaborator; agent and VCS traffic happens before a
// service method is entered.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesbinford/LGTM/internal/models"
	"github.com/jamesbinford/LGTM/internal/rules"
	"github.com/jamesbinford/LGTM/internal/store"
	"github.com/jamesbinford/LGTM/internal/suppress"
)

// Service wraps a Store with per-review serialization.
type Service struct {
	store store.Store
	locks *reviewLocks
}

// NewService creates a ledger service over the given store.
func NewService(s store.Store) *Service {
	return &Service{store: s, locks: newReviewLocks()}
}

// Store exposes the underlying store for read-only callers.
func (s *Service) Store() store.Store { return s.store }

// SuppressedFinding reports one finding dropped at ingestion, attributing
// the earliest-created suppression that covered it.
type SuppressedFinding struct {
	ExternalID    string
	SuppressionID string
	Reason        string
}

// IngestReport summarizes one suppression-filtered batch ingestion.
type IngestReport struct {
	Inserted   int
	Unchanged  int
	Suppressed []SuppressedFinding
	Conflicts  []store.FindingConflict
}

// Evaluation pairs a recommendation with the finding it evaluates.
type Evaluation struct {
	ExternalID     string
	Recommendation models.Recommendation
}

// MergeReport summarizes a recommendation merge pass.
type MergeReport struct {
	Merged  int
	Unknown []string // external ids the agent referenced that are not in the review
}

// CreateReview opens a new pending review. The store's create-if-absent
// enforces the one-active-review-per-key rule, so no review lock is needed
// before the review exists.
func (s *Service) CreateReview(ctx context.Context, r *models.Review) error {
	return s.store.CreateReview(ctx, r)
}

// IngestBatch admits a batch of raw findings into a review. Findings covered
// by a suppression are dropped before the batch is written; the rest commit
// atomically, so readers never observe a half-ingested review. The registry
// is a snapshot taken by the caller at the start of the ingestion pass.
func (s *Service) IngestBatch(ctx context.Context, reviewID string, findings []*models.Finding,
	reg *suppress.Registry, hasher suppress.Hasher, now time.Time) (*IngestReport, error) {

	release, err := s.locks.acquire(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	defer release()

	report := &IngestReport{}
	var admitted []*models.Finding
	for _, f := range findings {
		if sup := reg.Match(f, now, hasher); sup != nil {
			report.Suppressed = append(report.Suppressed, SuppressedFinding{
				ExternalID:    f.ExternalID,
				SuppressionID: sup.ID,
				Reason:        sup.Reason,
			})
			continue
		}
		admitted = append(admitted, f)
	}

	result, err := s.store.IngestFindings(ctx, reviewID, admitted)
	if err != nil {
		return nil, fmt.Errorf("ingest batch for review %s: %w", reviewID, err)
	}
	report.Inserted = result.Inserted
	report.Unchanged = result.Unchanged
	report.Conflicts = result.Conflicts
	return report, nil
}

// MergeEvaluations attaches agent evaluations to their findings. An
// evaluation referencing an unknown external id is reported, not fatal: the
// rest of the batch still merges.
func (s *Service) MergeEvaluations(ctx context.Context, reviewID string, evals []Evaluation) (*MergeReport, error) {
	release, err := s.locks.acquire(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	defer release()

	report := &MergeReport{}
	for _, e := range evals {
		rec := e.Recommendation
		if err := s.store.MergeRecommendation(ctx, reviewID, e.ExternalID, &rec); err != nil {
			if errors.Is(err, store.ErrUnknownFinding) {
				report.Unknown = append(report.Unknown, e.ExternalID)
				continue
			}
			return nil, fmt.Errorf("merge evaluation for review %s: %w", reviewID, err)
		}
		report.Merged++
	}
	return report, nil
}

// Decide records a human (or externally supplied) decision on a finding. An
// existing decision is rejected with store.ErrDecisionAlreadyExists unless
// override is set; the overridden decision lands in the audit trail.
func (s *Service) Decide(ctx context.Context, reviewID, externalID string, d *models.Decision, override bool) error {
	release, err := s.locks.acquire(ctx, reviewID)
	if err != nil {
		return err
	}
	defer release()

	return s.store.RecordDecision(ctx, reviewID, externalID, d, override)
}

// ApplyRules evaluates the engine over the review's findings and records the
// resulting decisions. Human decisions are never re-evaluated or changed.
// Rule-made decisions are re-evaluated: age and confidence move between
// runs, so a later run may replace an earlier rule decision (the replaced
// one is preserved in the audit trail). It returns the number of decisions
// written.
func (s *Service) ApplyRules(ctx context.Context, reviewID string, engine *rules.Engine, now time.Time) (int, error) {
	release, err := s.locks.acquire(ctx, reviewID)
	if err != nil {
		return 0, err
	}
	defer release()

	r, err := s.store.GetReview(ctx, reviewID)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, f := range r.Findings {
		if f.Decision != nil && !f.Decision.ByRules() {
			continue // human decisions are sticky
		}

		d, ok := engine.Evaluate(f, r.CreatedAt, now)
		if !ok {
			continue
		}
		if f.Decision != nil && f.Decision.Outcome == d.Outcome && f.Decision.Reason == d.Reason {
			continue // same rule outcome as last run, nothing to rewrite
		}

		override := f.Decision != nil
		if err := s.store.RecordDecision(ctx, reviewID, f.ExternalID, d, override); err != nil {
			return applied, fmt.Errorf("apply rules to review %s: %w", reviewID, err)
		}
		applied++
	}
	return applied, nil
}
