package store

import (
	"context"
	"errors"
	"time"

	"github.com/jamesbinford/LGTM/internal/models"
)

// Sentinel errors returned by Store implementations. Callers match them with
// errors.Is; the wrapped message always names the review/finding affected.
var (
	// ErrDuplicateActiveReview is returned by CreateReview when an active
	// (non-stale) review already exists for the same (repo, PR-or-commit) key.
	ErrDuplicateActiveReview = errors.New("duplicate active review")

	// ErrUnknownReview is returned when no review exists with the given id.
	ErrUnknownReview = errors.New("unknown review")

	// ErrUnknownFinding is returned when a finding lookup by external id
	// misses within the review.
	ErrUnknownFinding = errors.New("unknown finding")

	// ErrDecisionAlreadyExists is returned by RecordDecision when the finding
	// is already decided and no override was requested. Nothing is mutated.
	ErrDecisionAlreadyExists = errors.New("decision already exists")
)

// FindingConflict reports an ingested finding whose external id is already
// known but whose immutable reporter-origin content differs from the stored
// record. The item is skipped; the batch otherwise proceeds.
type FindingConflict struct {
	ExternalID string
	Detail     string
}

// IngestResult summarizes one atomic finding-batch ingestion.
type IngestResult struct {
	Inserted  int
	Unchanged int
	Conflicts []FindingConflict
}

// ReviewListFilter specifies filters for listing reviews.
type ReviewListFilter struct {
	Repo   string
	Status models.ReviewStatus
}

// DecisionAuditEntry is a superseded decision preserved when an override
// replaces it.
type DecisionAuditEntry struct {
	ID         string
	FindingID  string
	Decision   models.Decision
	ReplacedAt time.Time
}

// Store defines the persistence interface for the review ledger.
type Store interface {
	// Reviews
	CreateReview(ctx context.Context, r *models.Review) error
	GetReview(ctx context.Context, id string) (*models.Review, error)
	GetActiveReview(ctx context.Context, key models.ReviewKey) (*models.Review, error)
	ListReviews(ctx context.Context, filter ReviewListFilter) ([]*models.Review, error)
	TransitionReview(ctx context.Context, id string, from, to models.ReviewStatus) (bool, error)
	TryDecideReview(ctx context.Context, id string) (bool, error)
	DeleteReview(ctx context.Context, id string) error

	// Findings
	IngestFindings(ctx context.Context, reviewID string, findings []*models.Finding) (*IngestResult, error)
	GetFinding(ctx context.Context, reviewID, externalID string) (*models.Finding, error)
	MergeRecommendation(ctx context.Context, reviewID, externalID string, rec *models.Recommendation) error
	RecordDecision(ctx context.Context, reviewID, externalID string, d *models.Decision, override bool) error
	ListDecisionAudit(ctx context.Context, findingID string) ([]*DecisionAuditEntry, error)

	// Suppressions
	CreateSuppression(ctx context.Context, sup *models.Suppression) error
	ListSuppressions(ctx context.Context) ([]*models.Suppression, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
