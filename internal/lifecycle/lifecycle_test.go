package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesbinford/LGTM/internal/config"
	"github.com/jamesbinford/LGTM/internal/models"
	"github.com/jamesbinford/LGTM/internal/store"
)

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	m := NewManager(s, config.StalenessConfig{WarnAfterDays: 3, EscalateAfterDays: 7})
	return m, s
}

func createReview(t *testing.T, s store.Store, createdAt time.Time) *models.Review {
	t.Helper()
	r := &models.Review{
		PRNumber:  7,
		Repo:      "acme/widgets",
		CommitSHA: "abc123",
		CreatedAt: createdAt,
	}
	require.NoError(t, s.CreateReview(context.Background(), r))
	return r
}

func ingestOne(t *testing.T, s store.Store, reviewID, externalID string) {
	t.Helper()
	_, err := s.IngestFindings(context.Background(), reviewID, []*models.Finding{{
		ExternalID:  externalID,
		Category:    models.CategoryLogic,
		Severity:    models.SeverityMedium,
		File:        "main.go",
		LineStart:   1,
		LineEnd:     2,
		Description: "off by one in loop bound",
	}})
	require.NoError(t, err)
}

func decide(t *testing.T, s store.Store, reviewID, externalID string) {
	t.Helper()
	d := &models.Decision{Outcome: models.OutcomeAccepted, Reason: "fine", DecidedBy: "alice"}
	require.NoError(t, s.RecordDecision(context.Background(), reviewID, externalID, d, false))
}

func TestTryDecide(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	r := createReview(t, s, time.Time{})
	ingestOne(t, s, r.ID, "S001")
	ingestOne(t, s, r.ID, "S002")

	// One finding still undecided: stays pending.
	decide(t, s, r.ID, "S001")
	ok, err := m.TryDecide(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	decide(t, s, r.ID, "S002")
	ok, err = m.TryDecide(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusDecided, got.Status)

	// Repeating is a no-op, not an error.
	ok, err = m.TryDecide(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTryDecide_EmptyReview(t *testing.T) {
	m, s := newTestManager(t)
	r := createReview(t, s, time.Time{})

	// No findings yet: vacuously fully decided.
	ok, err := m.TryDecide(context.Background(), r.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryDecide_LateBatchHoldsReviewOpen(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	r := createReview(t, s, time.Time{})
	ingestOne(t, s, r.ID, "S001")
	decide(t, s, r.ID, "S001")

	// A batch that lands any time before the transition holds the review
	// open. The fully-decided scan and the status flip are one atomic store
	// operation, so there is no window for the batch to slip through.
	ingestOne(t, s, r.ID, "S002")

	ok, err := m.TryDecide(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusPending, got.Status)
	assert.False(t, got.FullyDecided())
}

func TestMarkApplied(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	r := createReview(t, s, time.Time{})

	// Pending reviews cannot be applied.
	err := m.MarkApplied(ctx, r.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pending")

	_, err = s.TransitionReview(ctx, r.ID, models.ReviewStatusPending, models.ReviewStatusDecided)
	require.NoError(t, err)

	require.NoError(t, m.MarkApplied(ctx, r.ID))

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusApplied, got.Status)
}

func TestEscalateIfStale(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// 10 days old with escalate=7: escalates to stale.
	r := createReview(t, s, now.AddDate(0, 0, -10))
	ok, err := m.EscalateIfStale(ctx, r, now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetReview(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusStale, got.Status)

	// Idempotent on the already-stale record.
	ok, err = m.EscalateIfStale(ctx, got, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEscalateIfStale_FreshAndDecidedUntouched(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	fresh := createReview(t, s, now)
	ok, err := m.EscalateIfStale(ctx, fresh, now)
	require.NoError(t, err)
	assert.False(t, ok)

	// Decided reviews are never escalated regardless of age.
	old := &models.Review{PRNumber: 8, Repo: "acme/widgets", CommitSHA: "def", CreatedAt: now.AddDate(0, 0, -30)}
	require.NoError(t, s.CreateReview(ctx, old))
	_, err = s.TransitionReview(ctx, old.ID, models.ReviewStatusPending, models.ReviewStatusDecided)
	require.NoError(t, err)

	old.Status = models.ReviewStatusDecided
	ok, err = m.EscalateIfStale(ctx, old, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSupersede(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	for _, from := range []models.ReviewStatus{
		models.ReviewStatusPending, models.ReviewStatusDecided, models.ReviewStatusApplied,
	} {
		r := createReview(t, s, time.Time{})
		if from != models.ReviewStatusPending {
			_, err := s.TransitionReview(ctx, r.ID, models.ReviewStatusPending, models.ReviewStatusDecided)
			require.NoError(t, err)
		}
		if from == models.ReviewStatusApplied {
			_, err := s.TransitionReview(ctx, r.ID, models.ReviewStatusDecided, models.ReviewStatusApplied)
			require.NoError(t, err)
		}

		ok, err := m.Supersede(ctx, r.ID)
		require.NoError(t, err)
		assert.True(t, ok, "supersede from %s", from)

		got, err := s.GetReview(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ReviewStatusStale, got.Status)

		// Superseding again is a no-op.
		ok, err = m.Supersede(ctx, r.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestSweepStale(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := createReview(t, s, now.AddDate(0, 0, -10))
	fresh := &models.Review{PRNumber: 8, Repo: "acme/widgets", CommitSHA: "def", CreatedAt: now}
	require.NoError(t, s.CreateReview(ctx, fresh))

	escalated, err := m.SweepStale(ctx, now)
	require.NoError(t, err)
	require.Len(t, escalated, 1)
	assert.Equal(t, stale.ID, escalated[0])

	// Second sweep finds nothing left to escalate.
	escalated, err = m.SweepStale(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, escalated)
}

func TestClassifyWithManagerThresholds(t *testing.T) {
	m, _ := newTestManager(t)
	now := time.Now()

	r := &models.Review{CreatedAt: now.AddDate(0, 0, -5)}
	assert.Equal(t, StalenessWarn, m.Classify(r, now))
}
