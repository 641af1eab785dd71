// Package pipeline runs one review pass end to end: agent findings are
// ingested through the suppression filter, agent evaluations are merged,
// auto-rules fill in decisions nobody has made, and the lifecycle manager
// advances the review's status. The agents themselves are external
// collaborators behind interfaces; the pipeline never parses their output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesbinford/LGTM/internal/ledger"
	"github.com/jamesbinford/LGTM/internal/lifecycle"
	"github.com/jamesbinford/LGTM/internal/models"
	"github.com/jamesbinford/LGTM/internal/rules"
	"github.com/jamesbinford/LGTM/internal/store"
	"github.com/jamesbinford/LGTM/internal/suppress"
)

// ReviewContext identifies what is being reviewed.
type ReviewContext struct {
	Repo      string
	PRNumber  int // 0 for push/commit reviews
	Branch    string
	CommitSHA string
}

// Key returns the ledger uniqueness key for the context.
func (rc ReviewContext) Key() models.ReviewKey {
	k := models.ReviewKey{Repo: rc.Repo, PRNumber: rc.PRNumber}
	if rc.PRNumber == 0 {
		k.CommitSHA = rc.CommitSHA
	}
	return k
}

// FindingSource produces structured findings for a diff. Implementations
// wrap the reviewing agent; the caller supplies the timeout through ctx, and
// no ledger lock is held while the source runs.
type FindingSource interface {
	Review(ctx context.Context, diff string, rc ReviewContext) ([]*models.Finding, error)
}

// Recommender evaluates already-ingested findings. Same collaborator rules
// as FindingSource.
type Recommender interface {
	Evaluate(ctx context.Context, review *models.Review) ([]ledger.Evaluation, error)
}

// Orchestrator wires the pipeline stages together. One Run call is the unit
// of work for a single review; distinct reviews may Run concurrently.
type Orchestrator struct {
	svc         *ledger.Service
	lifecycle   *lifecycle.Manager
	engine      *rules.Engine
	hasher      suppress.Hasher
	source      FindingSource
	recommender Recommender // optional; nil skips the evaluation stage
}

// New creates an orchestrator. The rules engine must already be built, so a
// malformed rule configuration aborts before any ledger write.
func New(svc *ledger.Service, lm *lifecycle.Manager, engine *rules.Engine,
	hasher suppress.Hasher, source FindingSource, recommender Recommender) *Orchestrator {
	return &Orchestrator{
		svc:         svc,
		lifecycle:   lm,
		engine:      engine,
		hasher:      hasher,
		source:      source,
		recommender: recommender,
	}
}

// RunReport is the per-run result handed back for presentation.
type RunReport struct {
	Review        *models.Review
	Ingest        *ledger.IngestReport
	Merge         *ledger.MergeReport
	AutoDecisions int
	Decided       bool
	Staleness     lifecycle.Staleness
	Superseded    string // id of the review closed in favor of this one, if any
}

// Run executes the full pipeline for one diff. A review already covering the
// same commit is reused; a review covering an older commit is superseded
// (marked stale) and a fresh one opened, keeping the one-active-review
// invariant intact. All collaborator calls happen before any ledger
// mutation for the batch: a timeout aborts the run with the review exactly
// as it was, and a later run retries the whole ingestion from scratch.
func (o *Orchestrator) Run(ctx context.Context, diff string, rc ReviewContext) (*RunReport, error) {
	report := &RunReport{}

	review, err := o.resolveReview(ctx, rc, report)
	if err != nil {
		return nil, err
	}
	report.Review = review

	// Collaborator call, no lock held.
	findings, err := o.source.Review(ctx, diff, rc)
	if err != nil {
		return nil, fmt.Errorf("finding source for review %s (no state changed): %w", review.ID, err)
	}

	now := time.Now().UTC()
	reg, err := suppress.Snapshot(ctx, o.svc.Store())
	if err != nil {
		return nil, err
	}

	report.Ingest, err = o.svc.IngestBatch(ctx, review.ID, findings, reg, o.hasher, now)
	if err != nil {
		return nil, err
	}

	if o.recommender != nil {
		loaded, err := o.svc.Store().GetReview(ctx, review.ID)
		if err != nil {
			return nil, err
		}
		// Collaborator call, no lock held.
		evals, err := o.recommender.Evaluate(ctx, loaded)
		if err != nil {
			return nil, fmt.Errorf("recommender for review %s (findings ingested, no evaluation merged): %w", review.ID, err)
		}
		report.Merge, err = o.svc.MergeEvaluations(ctx, review.ID, evals)
		if err != nil {
			return nil, err
		}
	}

	report.AutoDecisions, err = o.svc.ApplyRules(ctx, review.ID, o.engine, now)
	if err != nil {
		return nil, err
	}

	report.Decided, err = o.lifecycle.TryDecide(ctx, review.ID)
	if err != nil {
		return nil, err
	}

	final, err := o.svc.Store().GetReview(ctx, review.ID)
	if err != nil {
		return nil, err
	}
	report.Review = final
	report.Staleness = o.lifecycle.Classify(final, now)
	return report, nil
}

// resolveReview finds or opens the active review for the context. An active
// review on the same commit is reused; one on an older commit is superseded.
func (o *Orchestrator) resolveReview(ctx context.Context, rc ReviewContext, report *RunReport) (*models.Review, error) {
	existing, err := o.svc.Store().GetActiveReview(ctx, rc.Key())
	switch {
	case err == nil:
		if existing.CommitSHA == rc.CommitSHA {
			return existing, nil
		}
		if _, err := o.lifecycle.Supersede(ctx, existing.ID); err != nil {
			return nil, err
		}
		report.Superseded = existing.ID
	case errors.Is(err, store.ErrUnknownReview):
		// no active review yet
	default:
		return nil, err
	}

	r := &models.Review{
		PRNumber:  rc.PRNumber,
		Repo:      rc.Repo,
		Branch:    rc.Branch,
		CommitSHA: rc.CommitSHA,
	}
	if err := o.svc.CreateReview(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}
