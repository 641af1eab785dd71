// Package lifecycle owns the review state machine:
//
//	pending → decided → applied
//	pending → stale (terminal alternate branch)
//
// Reviews only ever progress forward. A stale review is a closed record; it
// is excluded from the one-active-review-per-key rule so a fresh review can
// be opened for the same PR or commit.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/jamesbinford/LGTM/internal/config"
	"github.com/jamesbinford/LGTM/internal/models"
	"github.com/jamesbinford/LGTM/internal/store"
)

// Manager drives review status transitions. Every transition is a
// compare-and-set on the stored status, so re-applying one to a review that
// has already moved on is a no-op rather than an error.
type Manager struct {
	store store.Store
	cfg   config.StalenessConfig
}

// NewManager creates a lifecycle manager with the given staleness thresholds.
func NewManager(s store.Store, cfg config.StalenessConfig) *Manager {
	return &Manager{store: s, cfg: cfg}
}

// TryDecide transitions a pending review to decided when every finding
// carries a decision. The scan is exhaustive and fails closed: a single
// undecided finding keeps the review pending. The scan and the transition
// are a single atomic store operation, so a batch ingested concurrently
// cannot land inside a review that just flipped to decided. It returns
// whether the transition happened.
func (m *Manager) TryDecide(ctx context.Context, reviewID string) (bool, error) {
	return m.store.TryDecideReview(ctx, reviewID)
}

// MarkApplied transitions decided → applied. It is triggered only by an
// external collaborator confirming the accepted fixes were committed; the
// manager itself never applies code changes.
func (m *Manager) MarkApplied(ctx context.Context, reviewID string) error {
	ok, err := m.store.TransitionReview(ctx, reviewID, models.ReviewStatusDecided, models.ReviewStatusApplied)
	if err != nil {
		return err
	}
	if !ok {
		r, err := m.store.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		return fmt.Errorf("review %s is %s, not decided; cannot mark applied", reviewID, r.Status)
	}
	return nil
}

// Classify returns the staleness classification for a review at the given
// instant, using the manager's configured thresholds.
func (m *Manager) Classify(r *models.Review, now time.Time) Staleness {
	return Classify(r.CreatedAt, now, m.cfg.WarnAfterDays, m.cfg.EscalateAfterDays)
}

// EscalateIfStale moves a pending review to stale when its staleness
// classification has reached escalate. Already-stale or non-pending reviews
// are left untouched. It returns whether the transition happened.
func (m *Manager) EscalateIfStale(ctx context.Context, r *models.Review, now time.Time) (bool, error) {
	if r.Status != models.ReviewStatusPending {
		return false, nil
	}
	if m.Classify(r, now) != StalenessEscalate {
		return false, nil
	}
	return m.store.TransitionReview(ctx, r.ID, models.ReviewStatusPending, models.ReviewStatusStale)
}

// Supersede closes a review whose commit has been out-paced by a newer
// push, freeing the key for a fresh review. Whatever state the old review
// reached, it only moves forward, to stale; the new review record is opened
// by the caller and there is no resurrection of the old one.
func (m *Manager) Supersede(ctx context.Context, reviewID string) (bool, error) {
	for _, from := range []models.ReviewStatus{
		models.ReviewStatusPending, models.ReviewStatusDecided, models.ReviewStatusApplied,
	} {
		ok, err := m.store.TransitionReview(ctx, reviewID, from, models.ReviewStatusStale)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// SweepStale applies the staleness classifier to every pending review and
// escalates the ones past the threshold. It returns the ids of the reviews
// that transitioned. Re-running the sweep is idempotent: already-stale
// reviews are skipped by the compare-and-set.
func (m *Manager) SweepStale(ctx context.Context, now time.Time) ([]string, error) {
	pending, err := m.store.ListReviews(ctx, store.ReviewListFilter{Status: models.ReviewStatusPending})
	if err != nil {
		return nil, err
	}

	var escalated []string
	for _, r := range pending {
		ok, err := m.EscalateIfStale(ctx, r, now)
		if err != nil {
			return escalated, err
		}
		if ok {
			escalated = append(escalated, r.ID)
		}
	}
	return escalated, nil
}
