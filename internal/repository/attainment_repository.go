package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
)

// AttainmentRepository stores derived attainment results and the audited
// override trail. Results for a scope are replaced wholesale: a recompute
// stages its rows and swaps them in a single transaction, so readers never
// observe a half-written scope.
type AttainmentRepository struct {
	db *sqlx.DB
}

// NewAttainmentRepository creates a new attainment repository.
func NewAttainmentRepository(db *sqlx.DB) *AttainmentRepository {
	return &AttainmentRepository{db: db}
}

const attainmentColumns = `id, subject_kind, subject_id, outcome_id, outcome_code, tier, attainment, level, strategy, counts, overridden, computed_at`

// Get returns the cached result for a subject+outcome, if present.
func (r *AttainmentRepository) Get(ctx context.Context, kind models.SubjectKind, subjectID, outcomeID string) (*models.AttainmentResult, error) {
	query := fmt.Sprintf(`SELECT %s FROM attainment_results WHERE subject_kind = $1 AND subject_id = $2 AND outcome_id = $3`, attainmentColumns)
	var result models.AttainmentResult
	if err := r.db.GetContext(ctx, &result, query, kind, subjectID, outcomeID); err != nil {
		return nil, fmt.Errorf("get attainment result: %w", err)
	}
	return &result, nil
}

// ListByOutcomes returns results for the given outcomes, ordered by outcome
// code then subject id so downstream shapes are reproducible.
func (r *AttainmentRepository) ListByOutcomes(ctx context.Context, kind models.SubjectKind, outcomeIDs []string) ([]models.AttainmentResult, error) {
	if len(outcomeIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(outcomeIDs))
	args := make([]interface{}, 0, len(outcomeIDs)+1)
	args = append(args, kind)
	for i, id := range outcomeIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query := fmt.Sprintf(`SELECT %s FROM attainment_results WHERE subject_kind = $1 AND outcome_id IN (%s)
ORDER BY outcome_code ASC, subject_id ASC`, attainmentColumns, strings.Join(placeholders, ","))
	var results []models.AttainmentResult
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("list attainment results: %w", err)
	}
	return results, nil
}

// ListBySubject returns all results for one subject, ordered by outcome code.
func (r *AttainmentRepository) ListBySubject(ctx context.Context, kind models.SubjectKind, subjectID string) ([]models.AttainmentResult, error) {
	query := fmt.Sprintf(`SELECT %s FROM attainment_results WHERE subject_kind = $1 AND subject_id = $2 ORDER BY outcome_code ASC`, attainmentColumns)
	var results []models.AttainmentResult
	if err := r.db.SelectContext(ctx, &results, query, kind, subjectID); err != nil {
		return nil, fmt.Errorf("list subject results: %w", err)
	}
	return results, nil
}

// ScopeFingerprint summarises the hierarchy, edge, and allocation state that
// a recompute run depends on. A run captures it at start and ReplaceScope
// re-checks it at commit time; any drift means the scope changed mid-run.
func (r *AttainmentRepository) ScopeFingerprint(ctx context.Context, outcomeIDs []string) (string, error) {
	return scopeFingerprint(ctx, r.db, outcomeIDs)
}

func scopeFingerprint(ctx context.Context, q sqlx.QueryerContext, outcomeIDs []string) (string, error) {
	if len(outcomeIDs) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(outcomeIDs))
	args := make([]interface{}, len(outcomeIDs))
	for i, id := range outcomeIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	in := strings.Join(placeholders, ",")

	type stamp struct {
		Outcomes    int     `db:"outcomes"`
		LatestEdit  *string `db:"latest_edit"`
		EdgeDigest  string  `db:"edge_digest"`
		Allocations int     `db:"allocations"`
		Allocated   float64 `db:"allocated"`
		LatestAlloc *string `db:"latest_alloc"`
	}
	// Counts alone cannot detect a redistribution that keeps totals intact:
	// the edge digest covers mapping tuples including weights, and
	// MAX(created_at) moves on every allocation rewrite because rows are
	// replaced by delete+insert.
	query := fmt.Sprintf(`SELECT
  (SELECT COUNT(*) FROM outcomes WHERE id IN (%[1]s)) AS outcomes,
  (SELECT MAX(updated_at)::text FROM outcomes WHERE id IN (%[1]s)) AS latest_edit,
  (SELECT COALESCE(STRING_AGG(child_id || '>' || parent_id || ':' || weight::text, '|' ORDER BY child_id, parent_id), '') FROM outcome_mappings WHERE child_id IN (%[1]s) OR parent_id IN (%[1]s)) AS edge_digest,
  (SELECT COUNT(*) FROM clo_allocations WHERE clo_id IN (%[1]s)) AS allocations,
  (SELECT COALESCE(SUM(marks_allocated), 0) FROM clo_allocations WHERE clo_id IN (%[1]s)) AS allocated,
  (SELECT MAX(created_at)::text FROM clo_allocations WHERE clo_id IN (%[1]s)) AS latest_alloc`, in)
	var s stamp
	if err := sqlx.GetContext(ctx, q, &s, query, args...); err != nil {
		return "", fmt.Errorf("scope fingerprint: %w", err)
	}
	latest := ""
	if s.LatestEdit != nil {
		latest = *s.LatestEdit
	}
	latestAlloc := ""
	if s.LatestAlloc != nil {
		latestAlloc = *s.LatestAlloc
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%d|%.6f|%s", s.Outcomes, latest, s.EdgeDigest, s.Allocations, s.Allocated, latestAlloc)))
	return hex.EncodeToString(sum[:]), nil
}

// ReplaceScope atomically swaps the results of a recompute run into
// visibility. The expected fingerprint is re-evaluated inside the
// transaction; a mismatch aborts with StaleScope and leaves prior results
// untouched, so callers retry the whole run.
func (r *AttainmentRepository) ReplaceScope(ctx context.Context, outcomeIDs []string, expectedFingerprint string, results []models.AttainmentResult) error {
	if len(outcomeIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace scope: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := scopeFingerprint(ctx, tx, outcomeIDs)
	if err != nil {
		return err
	}
	if current != expectedFingerprint {
		return appErrors.Clone(appErrors.ErrStaleScope, "outcomes or allocations changed during recomputation")
	}

	placeholders := make([]string, len(outcomeIDs))
	args := make([]interface{}, len(outcomeIDs))
	for i, id := range outcomeIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	deleteQuery := fmt.Sprintf(`DELETE FROM attainment_results WHERE outcome_id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, deleteQuery, args...); err != nil {
		return fmt.Errorf("clear scope results: %w", err)
	}

	now := time.Now().UTC()
	for i := range results {
		if results[i].ID == "" {
			results[i].ID = uuid.NewString()
		}
		if results[i].ComputedAt.IsZero() {
			results[i].ComputedAt = now
		}
		const query = `INSERT INTO attainment_results (id, subject_kind, subject_id, outcome_id, outcome_code, tier, attainment, level, strategy, counts, overridden, computed_at)
VALUES (:id, :subject_kind, :subject_id, :outcome_id, :outcome_code, :tier, :attainment, :level, :strategy, :counts, :overridden, :computed_at)`
		if _, err := tx.NamedExecContext(ctx, query, results[i]); err != nil {
			return fmt.Errorf("insert attainment result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace scope: %w", err)
	}
	return nil
}

// AppendHistory writes periodised snapshots for trend views. Rows for the
// same period and subject are upserted so a re-run of the same period does
// not duplicate the series.
func (r *AttainmentRepository) AppendHistory(ctx context.Context, period string, results []models.AttainmentResult) error {
	if period == "" || len(results) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append history: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO attainment_history (id, period, subject_kind, subject_id, outcome_id, outcome_code, attainment, level, computed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (period, subject_kind, subject_id, outcome_id)
DO UPDATE SET attainment = EXCLUDED.attainment, level = EXCLUDED.level, computed_at = EXCLUDED.computed_at`
	for i := range results {
		res := &results[i]
		computedAt := res.ComputedAt
		if computedAt.IsZero() {
			computedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), period, res.SubjectKind, res.SubjectID,
			res.OutcomeID, res.OutcomeCode, res.Attainment, res.Level, computedAt); err != nil {
			return fmt.Errorf("insert history row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append history: %w", err)
	}
	return nil
}

// ListHistory returns snapshots for the given outcomes ordered by period then
// outcome code, ready to pivot into a trend matrix.
func (r *AttainmentRepository) ListHistory(ctx context.Context, kind models.SubjectKind, subjectID string, outcomeIDs []string) ([]models.AttainmentHistoryRow, error) {
	if len(outcomeIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, period, subject_kind, subject_id, outcome_id, outcome_code, attainment, level, computed_at
FROM attainment_history WHERE subject_kind = ? AND subject_id = ? AND outcome_id IN (?)
ORDER BY period ASC, outcome_code ASC`, kind, subjectID, outcomeIDs)
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}
	var rows []models.AttainmentHistoryRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return rows, nil
}

// SaveOverride records the manual correction and applies it to the cached
// result in one transaction, preserving the original computed value. A scope
// that was never recomputed has no cached row to update; the overridden
// result is inserted then, so reads see the override either way.
func (r *AttainmentRepository) SaveOverride(ctx context.Context, override *models.AttainmentOverride, applied *models.AttainmentResult) error {
	if override.ID == "" {
		override.ID = uuid.NewString()
	}
	if override.CreatedAt.IsZero() {
		override.CreatedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin override: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO attainment_overrides (id, subject_kind, subject_id, outcome_id, value, original, reason, actor_id, created_at)
VALUES (:id, :subject_kind, :subject_id, :outcome_id, :value, :original, :reason, :actor_id, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, override); err != nil {
		return fmt.Errorf("insert override: %w", err)
	}

	const update = `UPDATE attainment_results SET attainment = $1, level = $2, overridden = TRUE, computed_at = $3
WHERE subject_kind = $4 AND subject_id = $5 AND outcome_id = $6`
	res, err := tx.ExecContext(ctx, update, override.Value, applied.Level, override.CreatedAt,
		override.SubjectKind, override.SubjectID, override.OutcomeID)
	if err != nil {
		return fmt.Errorf("apply override: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("apply override: %w", err)
	}
	if affected == 0 {
		row := *applied
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		row.Overridden = true
		row.ComputedAt = override.CreatedAt
		const insertResult = `INSERT INTO attainment_results (id, subject_kind, subject_id, outcome_id, outcome_code, tier, attainment, level, strategy, counts, overridden, computed_at)
VALUES (:id, :subject_kind, :subject_id, :outcome_id, :outcome_code, :tier, :attainment, :level, :strategy, :counts, :overridden, :computed_at)`
		if _, err := tx.NamedExecContext(ctx, insertResult, row); err != nil {
			return fmt.Errorf("insert overridden result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit override: %w", err)
	}
	return nil
}

// ListOverrides returns the override history for one outcome, newest first.
func (r *AttainmentRepository) ListOverrides(ctx context.Context, outcomeID string) ([]models.AttainmentOverride, error) {
	const query = `SELECT id, subject_kind, subject_id, outcome_id, value, original, reason, actor_id, created_at
FROM attainment_overrides WHERE outcome_id = $1 ORDER BY created_at DESC`
	var overrides []models.AttainmentOverride
	if err := r.db.SelectContext(ctx, &overrides, query, outcomeID); err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	return overrides, nil
}
