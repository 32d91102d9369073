package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
)

// ScoreRepository is the default score ingestion adapter, backed by the
// score_records table. Reads are bulk per aggregation scope; no per-student
// round trips.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository creates a new score repository.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// FetchScores returns score records for the given items, optionally filtered
// to a student subset, in a single query.
func (r *ScoreRepository) FetchScores(ctx context.Context, itemIDs []string, studentIDs []string) ([]models.ScoreRecord, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(itemIDs))
	args := make([]interface{}, 0, len(itemIDs)+len(studentIDs))
	for i, id := range itemIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	query := fmt.Sprintf(`SELECT id, student_id, assessment_item_id, obtained_marks, recorded_at
FROM score_records WHERE assessment_item_id IN (%s)`, strings.Join(placeholders, ","))
	if len(studentIDs) > 0 {
		studentPlaceholders := make([]string, len(studentIDs))
		for i, id := range studentIDs {
			studentPlaceholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, id)
		}
		query += fmt.Sprintf(" AND student_id IN (%s)", strings.Join(studentPlaceholders, ","))
	}
	query += " ORDER BY student_id ASC, assessment_item_id ASC"
	var records []models.ScoreRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("fetch scores: %w", err)
	}
	return records, nil
}

// BulkUpsert inserts or updates score records in one transaction. The
// (student, item) pair is the natural key.
func (r *ScoreRepository) BulkUpsert(ctx context.Context, records []models.ScoreRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert scores: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].RecordedAt.IsZero() {
			records[i].RecordedAt = now
		}
		const query = `INSERT INTO score_records (id, student_id, assessment_item_id, obtained_marks, recorded_at)
VALUES (:id, :student_id, :assessment_item_id, :obtained_marks, :recorded_at)
ON CONFLICT (student_id, assessment_item_id)
DO UPDATE SET obtained_marks = EXCLUDED.obtained_marks, recorded_at = EXCLUDED.recorded_at`
		if _, err := tx.NamedExecContext(ctx, query, records[i]); err != nil {
			return fmt.Errorf("upsert score record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scores: %w", err)
	}
	return nil
}

// ListStudents returns the distinct students with scores on the given items,
// sorted for deterministic cohort iteration.
func (r *ScoreRepository) ListStudents(ctx context.Context, itemIDs []string) ([]string, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(itemIDs))
	args := make([]interface{}, len(itemIDs))
	for i, id := range itemIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT DISTINCT student_id FROM score_records WHERE assessment_item_id IN (%s) ORDER BY student_id ASC`,
		strings.Join(placeholders, ","))
	var students []string
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}
