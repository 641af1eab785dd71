package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jamesbinford/LGTM/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool, which
	// also makes create-if-absent checks atomic across pipeline runs.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Reviews ---

// CreateReview inserts a new pending review. It fails with
// ErrDuplicateActiveReview when an active review already exists for the same
// (repo, PR-or-commit) key; the check and the insert run in one transaction,
// giving the atomic create-if-absent the lifecycle invariant requires.
func (s *SQLiteStore) CreateReview(ctx context.Context, r *models.Review) error {
	if r.ID == "" {
		r.ID = newULID()
	}
	if r.Status == "" {
		r.Status = models.ReviewStatusPending
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	key := r.Key()
	if key.PRNumber != 0 {
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reviews WHERE repo = ? AND pr_number = ? AND status != 'stale'`,
			key.Repo, key.PRNumber).Scan(&count)
	} else {
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM reviews WHERE repo = ? AND pr_number = 0 AND commit_sha = ? AND status != 'stale'`,
			key.Repo, key.CommitSHA).Scan(&count)
	}
	if err != nil {
		return fmt.Errorf("check active review: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("repo %s pr %d commit %s: %w", r.Repo, r.PRNumber, r.CommitSHA, ErrDuplicateActiveReview)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reviews (id, pr_number, repo, branch, commit_sha, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PRNumber, r.Repo, r.Branch, r.CommitSHA, string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const reviewColumns = "id, pr_number, repo, branch, commit_sha, status, created_at, updated_at"

func scanReview(row interface{ Scan(...any) error }) (*models.Review, error) {
	r := &models.Review{}
	var status string
	if err := row.Scan(&r.ID, &r.PRNumber, &r.Repo, &r.Branch, &r.CommitSHA, &status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = models.ReviewStatus(status)
	return r, nil
}

// GetReview fetches a review with all of its findings.
func (s *SQLiteStore) GetReview(ctx context.Context, id string) (*models.Review, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id)
	r, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("review %s: %w", id, ErrUnknownReview)
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}

	findings, err := s.listFindings(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Findings = findings
	return r, nil
}

// GetActiveReview fetches the single non-stale review for the key, or
// ErrUnknownReview if none exists.
func (s *SQLiteStore) GetActiveReview(ctx context.Context, key models.ReviewKey) (*models.Review, error) {
	var row *sql.Row
	if key.PRNumber != 0 {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+reviewColumns+` FROM reviews WHERE repo = ? AND pr_number = ? AND status != 'stale'`,
			key.Repo, key.PRNumber)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+reviewColumns+` FROM reviews WHERE repo = ? AND pr_number = 0 AND commit_sha = ? AND status != 'stale'`,
			key.Repo, key.CommitSHA)
	}
	r, err := scanReview(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("repo %s pr %d commit %s: %w", key.Repo, key.PRNumber, key.CommitSHA, ErrUnknownReview)
	}
	if err != nil {
		return nil, fmt.Errorf("get active review: %w", err)
	}

	findings, err := s.listFindings(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Findings = findings
	return r, nil
}

// ListReviews lists reviews matching the filter, newest first. Findings are
// not loaded.
func (s *SQLiteStore) ListReviews(ctx context.Context, filter ReviewListFilter) ([]*models.Review, error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews`
	var conditions []string
	var args []any

	if filter.Repo != "" {
		conditions = append(conditions, "repo = ?")
		args = append(args, filter.Repo)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var reviews []*models.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

// TransitionReview moves a review from one status to another with a
// compare-and-set; it returns false when the review was not in the expected
// status, which makes repeated transitions idempotent no-ops.
func (s *SQLiteStore) TransitionReview(ctx context.Context, id string, from, to models.ReviewStatus) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reviews SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition review %s %s->%s: %w", id, from, to, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		// Distinguish a missing review from a CAS miss.
		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews WHERE id = ?", id).Scan(&count); err != nil {
			return false, fmt.Errorf("transition review %s: %w", id, err)
		}
		if count == 0 {
			return false, fmt.Errorf("review %s: %w", id, ErrUnknownReview)
		}
		return false, nil
	}
	return true, nil
}

// TryDecideReview moves a pending review to decided when every finding carries
// a decision. The fully-decided scan and the status flip run in one statement,
// so a finding ingested concurrently can never end up inside a decided review.
func (s *SQLiteStore) TryDecideReview(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reviews SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?
		 AND NOT EXISTS (SELECT 1 FROM findings WHERE review_id = reviews.id AND decision_outcome IS NULL)`,
		string(models.ReviewStatusDecided), time.Now().UTC(), id, string(models.ReviewStatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("decide review %s: %w", id, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews WHERE id = ?", id).Scan(&count); err != nil {
			return false, fmt.Errorf("decide review %s: %w", id, err)
		}
		if count == 0 {
			return false, fmt.Errorf("review %s: %w", id, ErrUnknownReview)
		}
		return false, nil
	}
	return true, nil
}

// DeleteReview removes a review; findings and audit rows cascade.
func (s *SQLiteStore) DeleteReview(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM reviews WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("review %s: %w", id, ErrUnknownReview)
	}
	return nil
}

// --- Findings ---

const findingColumns = `id, review_id, external_id, category, severity, file, line_start, line_end,
	description, proposed_fix, rec_action, rec_confidence, rec_rationale, rec_modified_fix,
	decision_outcome, decision_reason, decided_by, decided_at, created_at, updated_at`

func scanFinding(row interface{ Scan(...any) error }) (*models.Finding, error) {
	f := &models.Finding{}
	var category, severity string
	var recAction, recRationale, recModifiedFix sql.NullString
	var recConfidence sql.NullFloat64
	var decOutcome, decReason, decBy sql.NullString
	var decAt sql.NullTime

	if err := row.Scan(&f.ID, &f.ReviewID, &f.ExternalID, &category, &severity,
		&f.File, &f.LineStart, &f.LineEnd, &f.Description, &f.ProposedFix,
		&recAction, &recConfidence, &recRationale, &recModifiedFix,
		&decOutcome, &decReason, &decBy, &decAt, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}

	f.Category = models.Category(category)
	f.Severity = models.Severity(severity)
	if recAction.Valid {
		f.Recommendation = &models.Recommendation{
			Action:      models.RecommendedAction(recAction.String),
			Confidence:  recConfidence.Float64,
			Rationale:   recRationale.String,
			ModifiedFix: recModifiedFix.String,
		}
	}
	if decOutcome.Valid {
		f.Decision = &models.Decision{
			Outcome:   models.DecisionOutcome(decOutcome.String),
			Reason:    decReason.String,
			DecidedBy: decBy.String,
			DecidedAt: decAt.Time,
		}
	}
	return f, nil
}

func (s *SQLiteStore) listFindings(ctx context.Context, reviewID string) ([]*models.Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+findingColumns+` FROM findings WHERE review_id = ? ORDER BY external_id`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var findings []*models.Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// IngestFindings admits a batch of findings into a review atomically: either
// the whole batch commits or none of it does. Re-ingesting a known external
// id with identical reporter-origin content is a no-op; conflicting content
// is skipped and reported in the result, and never overwrites the stored
// record.
func (s *SQLiteStore) IngestFindings(ctx context.Context, reviewID string, findings []*models.Finding) (*IngestResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews WHERE id = ?", reviewID).Scan(&count); err != nil {
		return nil, fmt.Errorf("check review: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("review %s: %w", reviewID, ErrUnknownReview)
	}

	result := &IngestResult{}
	now := time.Now().UTC()

	for _, f := range findings {
		row := tx.QueryRowContext(ctx,
			`SELECT `+findingColumns+` FROM findings WHERE review_id = ? AND external_id = ?`,
			reviewID, f.ExternalID)
		existing, err := scanFinding(row)
		if err == nil {
			if existing.SameContent(f) {
				result.Unchanged++
			} else {
				result.Conflicts = append(result.Conflicts, FindingConflict{
					ExternalID: f.ExternalID,
					Detail:     fmt.Sprintf("finding %s of review %s re-ingested with different content; keeping original", f.ExternalID, reviewID),
				})
			}
			continue
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("check finding %s: %w", f.ExternalID, err)
		}

		if f.ID == "" {
			f.ID = newULID()
		}
		f.ReviewID = reviewID
		f.CreatedAt = now
		f.UpdatedAt = now

		_, err = tx.ExecContext(ctx,
			`INSERT INTO findings (id, review_id, external_id, category, severity, file, line_start, line_end, description, proposed_fix, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.ReviewID, f.ExternalID, string(f.Category), string(f.Severity),
			f.File, f.LineStart, f.LineEnd, f.Description, f.ProposedFix, f.CreatedAt, f.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert finding %s: %w", f.ExternalID, err)
		}
		result.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

// GetFinding fetches one finding by its external id within a review.
func (s *SQLiteStore) GetFinding(ctx context.Context, reviewID, externalID string) (*models.Finding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+findingColumns+` FROM findings WHERE review_id = ? AND external_id = ?`,
		reviewID, externalID)
	f, err := scanFinding(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("finding %s of review %s: %w", externalID, reviewID, ErrUnknownFinding)
	}
	if err != nil {
		return nil, fmt.Errorf("get finding: %w", err)
	}
	return f, nil
}

// MergeRecommendation attaches an agent evaluation to an ingested finding.
func (s *SQLiteStore) MergeRecommendation(ctx context.Context, reviewID, externalID string, rec *models.Recommendation) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE findings SET rec_action=?, rec_confidence=?, rec_rationale=?, rec_modified_fix=?, updated_at=?
		WHERE review_id = ? AND external_id = ?`,
		string(rec.Action), rec.Confidence, rec.Rationale, rec.ModifiedFix, time.Now().UTC(),
		reviewID, externalID,
	)
	if err != nil {
		return fmt.Errorf("merge recommendation: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("finding %s of review %s: %w", externalID, reviewID, ErrUnknownFinding)
	}
	return nil
}

// RecordDecision writes the outcome for a finding. An existing decision is
// rejected with ErrDecisionAlreadyExists unless override is set, in which
// case the previous decision moves to the audit trail before being replaced.
func (s *SQLiteStore) RecordDecision(ctx context.Context, reviewID, externalID string, d *models.Decision, override bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+findingColumns+` FROM findings WHERE review_id = ? AND external_id = ?`,
		reviewID, externalID)
	existing, err := scanFinding(row)
	if err == sql.ErrNoRows {
		return fmt.Errorf("finding %s of review %s: %w", externalID, reviewID, ErrUnknownFinding)
	}
	if err != nil {
		return fmt.Errorf("get finding: %w", err)
	}

	now := time.Now().UTC()
	if existing.Decision != nil {
		if !override {
			return fmt.Errorf("finding %s of review %s already decided by %s: %w",
				externalID, reviewID, existing.Decision.DecidedBy, ErrDecisionAlreadyExists)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO decision_audit (id, finding_id, outcome, reason, decided_by, decided_at, replaced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			newULID(), existing.ID, string(existing.Decision.Outcome), existing.Decision.Reason,
			existing.Decision.DecidedBy, existing.Decision.DecidedAt, now,
		)
		if err != nil {
			return fmt.Errorf("audit previous decision: %w", err)
		}
	}

	if d.DecidedAt.IsZero() {
		d.DecidedAt = now
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE findings SET decision_outcome=?, decision_reason=?, decided_by=?, decided_at=?, updated_at=?
		WHERE id = ?`,
		string(d.Outcome), d.Reason, d.DecidedBy, d.DecidedAt, now, existing.ID,
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListDecisionAudit returns superseded decisions for a finding, oldest first.
func (s *SQLiteStore) ListDecisionAudit(ctx context.Context, findingID string) ([]*DecisionAuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, finding_id, outcome, reason, decided_by, decided_at, replaced_at
		FROM decision_audit WHERE finding_id = ? ORDER BY replaced_at`, findingID)
	if err != nil {
		return nil, fmt.Errorf("list decision audit: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*DecisionAuditEntry
	for rows.Next() {
		e := &DecisionAuditEntry{}
		var outcome string
		if err := rows.Scan(&e.ID, &e.FindingID, &outcome, &e.Decision.Reason,
			&e.Decision.DecidedBy, &e.Decision.DecidedAt, &e.ReplacedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Decision.Outcome = models.DecisionOutcome(outcome)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Suppressions ---

// CreateSuppression stores an immutable suppression record.
func (s *SQLiteStore) CreateSuppression(ctx context.Context, sup *models.Suppression) error {
	if sup.ID == "" {
		sup.ID = newULID()
	}
	if sup.CreatedAt.IsZero() {
		sup.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suppressions (id, file, line_start, line_end, category, pattern, reason, created_by, created_at, content_hash, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sup.ID, sup.File, sup.LineStart, sup.LineEnd, string(sup.Category), sup.Pattern,
		sup.Reason, sup.CreatedBy, sup.CreatedAt, sup.ContentHash, sup.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create suppression: %w", err)
	}
	return nil
}

// ListSuppressions returns every suppression, oldest first. Expired entries
// are included: expiry is a matching-time concern, and history is preserved.
func (s *SQLiteStore) ListSuppressions(ctx context.Context) ([]*models.Suppression, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file, line_start, line_end, category, pattern, reason, created_by, created_at, content_hash, expires_at
		FROM suppressions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list suppressions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sups []*models.Suppression
	for rows.Next() {
		sup := &models.Suppression{}
		var category string
		var expiresAt sql.NullTime
		if err := rows.Scan(&sup.ID, &sup.File, &sup.LineStart, &sup.LineEnd, &category,
			&sup.Pattern, &sup.Reason, &sup.CreatedBy, &sup.CreatedAt, &sup.ContentHash, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		sup.Category = models.Category(category)
		if expiresAt.Valid {
			sup.ExpiresAt = &expiresAt.Time
		}
		sups = append(sups, sup)
	}
	return sups, rows.Err()
}
