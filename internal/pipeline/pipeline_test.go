package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesbinford/LGTM/internal/config"
	"github.com/jamesbinford/LGTM/internal/ledger"
	"github.com/jamesbinford/LGTM/internal/lifecycle"
	"github.com/jamesbinford/LGTM/internal/models"
	"github.com/jamesbinford/LGTM/internal/rules"
	"github.com/jamesbinford/LGTM/internal/store"
)

type fakeSource struct {
	findings []*models.Finding
	err      error
	calls    int
}

func (f *fakeSource) Review(ctx context.Context, diff string, rc ReviewContext) ([]*models.Finding, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	// Fresh copies per call, the way a real agent re-reports findings.
	out := make([]*models.Finding, len(f.findings))
	for i, orig := range f.findings {
		cp := *orig
		out[i] = &cp
	}
	return out, nil
}

type fakeRecommender struct {
	evals []ledger.Evaluation
	err   error
}

func (f *fakeRecommender) Evaluate(ctx context.Context, review *models.Review) ([]ledger.Evaluation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.evals, nil
}

func sourceFinding(externalID string, severity models.Severity, category models.Category) *models.Finding {
	return &models.Finding{
		ExternalID:  externalID,
		Category:    category,
		Severity:    severity,
		File:        "internal/api/handler.go",
		LineStart:   40,
		LineEnd:     45,
		Description: "unchecked error from Close",
	}
}

func newTestOrchestrator(t *testing.T, src FindingSource, rec Recommender, cfgRules ...config.AutoRule) (*Orchestrator, *ledger.Service) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	svc := ledger.NewService(s)
	lm := lifecycle.NewManager(s, config.StalenessConfig{WarnAfterDays: 3, EscalateAfterDays: 7})
	engine, err := rules.New(cfgRules)
	require.NoError(t, err)

	return New(svc, lm, engine, nil, src, rec), svc
}

func prContext() ReviewContext {
	return ReviewContext{Repo: "acme/widgets", PRNumber: 7, Branch: "feature/x", CommitSHA: "aaa111"}
}

func TestRun_IngestsAndClassifies(t *testing.T) {
	src := &fakeSource{findings: []*models.Finding{
		sourceFinding("S001", models.SeverityHigh, models.CategoryLogic),
		sourceFinding("S002", models.SeverityLow, models.CategoryStyle),
	}}
	o, _ := newTestOrchestrator(t, src, nil)

	report, err := o.Run(context.Background(), "diff text", prContext())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Ingest.Inserted)
	assert.Equal(t, 0, report.AutoDecisions)
	assert.False(t, report.Decided)
	assert.Equal(t, models.ReviewStatusPending, report.Review.Status)
	assert.Equal(t, lifecycle.StalenessFresh, report.Staleness)
	assert.Len(t, report.Review.Findings, 2)
}

func TestRun_ReusesActiveReviewOnSameCommit(t *testing.T) {
	src := &fakeSource{findings: []*models.Finding{
		sourceFinding("S001", models.SeverityHigh, models.CategoryLogic),
	}}
	o, _ := newTestOrchestrator(t, src, nil)
	ctx := context.Background()

	first, err := o.Run(ctx, "diff", prContext())
	require.NoError(t, err)

	second, err := o.Run(ctx, "diff", prContext())
	require.NoError(t, err)

	assert.Equal(t, first.Review.ID, second.Review.ID)
	assert.Empty(t, second.Superseded)
	assert.Equal(t, 0, second.Ingest.Inserted)
	assert.Equal(t, 1, second.Ingest.Unchanged)
}

func TestRun_SupersedesOlderCommit(t *testing.T) {
	src := &fakeSource{findings: []*models.Finding{
		sourceFinding("S001", models.SeverityHigh, models.CategoryLogic),
	}}
	o, svc := newTestOrchestrator(t, src, nil)
	ctx := context.Background()

	first, err := o.Run(ctx, "diff", prContext())
	require.NoError(t, err)

	pushed := prContext()
	pushed.CommitSHA = "bbb222"
	second, err := o.Run(ctx, "diff", pushed)
	require.NoError(t, err)

	assert.NotEqual(t, first.Review.ID, second.Review.ID)
	assert.Equal(t, first.Review.ID, second.Superseded)

	old, err := svc.Store().GetReview(ctx, first.Review.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusStale, old.Status)

	fresh, err := svc.Store().GetReview(ctx, second.Review.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReviewStatusPending, fresh.Status)
	assert.Equal(t, "bbb222", fresh.CommitSHA)
}

func TestRun_SourceFailureLeavesNoState(t *testing.T) {
	src := &fakeSource{err: errors.New("agent timed out")}
	o, svc := newTestOrchestrator(t, src, nil)
	ctx := context.Background()

	_, err := o.Run(ctx, "diff", prContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no state changed")

	// The review record exists but holds nothing; a later run retries from
	// scratch against it.
	r, err := svc.Store().GetActiveReview(ctx, prContext().Key())
	require.NoError(t, err)
	assert.Empty(t, r.Findings)

	src.err = nil
	src.findings = []*models.Finding{sourceFinding("S001", models.SeverityHigh, models.CategoryLogic)}
	report, err := o.Run(ctx, "diff", prContext())
	require.NoError(t, err)
	assert.Equal(t, r.ID, report.Review.ID)
	assert.Equal(t, 1, report.Ingest.Inserted)
}

func TestRun_RecommenderMergesEvaluations(t *testing.T) {
	src := &fakeSource{findings: []*models.Finding{
		sourceFinding("S001", models.SeverityHigh, models.CategoryLogic),
	}}
	rec := &fakeRecommender{evals: []ledger.Evaluation{
		{ExternalID: "S001", Recommendation: models.Recommendation{Action: models.ActionAccept, Confidence: 0.95, Rationale: "clear fix"}},
	}}
	o, svc := newTestOrchestrator(t, src, rec)

	report, err := o.Run(context.Background(), "diff", prContext())
	require.NoError(t, err)
	require.NotNil(t, report.Merge)
	assert.Equal(t, 1, report.Merge.Merged)

	f, err := svc.Store().GetFinding(context.Background(), report.Review.ID, "S001")
	require.NoError(t, err)
	require.NotNil(t, f.Recommendation)
	assert.InDelta(t, 0.95, f.Recommendation.Confidence, 1e-9)
}

func TestRun_RecommenderFailureKeepsIngestedFindings(t *testing.T) {
	src := &fakeSource{findings: []*models.Finding{
		sourceFinding("S001", models.SeverityHigh, models.CategoryLogic),
	}}
	rec := &fakeRecommender{err: errors.New("evaluation agent timed out")}
	o, svc := newTestOrchestrator(t, src, rec)
	ctx := context.Background()

	_, err := o.Run(ctx, "diff", prContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "findings ingested")

	r, err := svc.Store().GetActiveReview(ctx, prContext().Key())
	require.NoError(t, err)
	require.Len(t, r.Findings, 1)
	assert.Nil(t, r.Findings[0].Recommendation)
}

func TestRun_AutoRulesDecideReview(t *testing.T) {
	src := &fakeSource{findings: []*models.Finding{
		sourceFinding("S001", models.SeverityLow, models.CategoryStyle),
	}}
	o, _ := newTestOrchestrator(t, src, nil, config.AutoRule{
		Condition: "severity == low AND category == style",
		Action:    "auto_dismiss",
		Reason:    "style nits",
	})

	report, err := o.Run(context.Background(), "diff", prContext())
	require.NoError(t, err)

	assert.Equal(t, 1, report.AutoDecisions)
	assert.True(t, report.Decided, "all findings decided, review advances")
	assert.Equal(t, models.ReviewStatusDecided, report.Review.Status)
}

func TestRun_UndecidedFindingKeepsReviewPending(t *testing.T) {
	src := &fakeSource{findings: []*models.Finding{
		sourceFinding("S001", models.SeverityLow, models.CategoryStyle),
		sourceFinding("S002", models.SeverityCritical, models.CategorySecurity),
	}}
	o, _ := newTestOrchestrator(t, src, nil, config.AutoRule{
		Condition: "severity == low AND category == style",
		Action:    "auto_dismiss",
		Reason:    "style nits",
	})

	report, err := o.Run(context.Background(), "diff", prContext())
	require.NoError(t, err)

	assert.Equal(t, 1, report.AutoDecisions)
	assert.False(t, report.Decided)
	assert.Equal(t, models.ReviewStatusPending, report.Review.Status)
}

func TestReviewContext_Key(t *testing.T) {
	pr := ReviewContext{Repo: "acme/widgets", PRNumber: 7, CommitSHA: "aaa"}
	assert.Equal(t, models.ReviewKey{Repo: "acme/widgets", PRNumber: 7}, pr.Key())

	push := ReviewContext{Repo: "acme/widgets", CommitSHA: "aaa"}
	assert.Equal(t, models.ReviewKey{Repo: "acme/widgets", CommitSHA: "aaa"}, push.Key())
}
