package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
)

// AssessmentRepository persists assessment items and their CLO allocations.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository creates a new assessment repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// CreateItem inserts an assessment item.
func (r *AssessmentRepository) CreateItem(ctx context.Context, item *models.AssessmentItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	const query = `INSERT INTO assessment_items (id, course_offering_id, name, kind, total_marks, created_at, updated_at)
VALUES (:id, :course_offering_id, :name, :kind, :total_marks, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create assessment item: %w", err)
	}
	return nil
}

// FindItem returns one assessment item.
func (r *AssessmentRepository) FindItem(ctx context.Context, id string) (*models.AssessmentItem, error) {
	const query = `SELECT id, course_offering_id, name, kind, total_marks, created_at, updated_at
FROM assessment_items WHERE id = $1`
	var item models.AssessmentItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, fmt.Errorf("find assessment item: %w", err)
	}
	return &item, nil
}

// ListItems returns the items of a course offering, ordered by name.
func (r *AssessmentRepository) ListItems(ctx context.Context, courseOfferingID string) ([]models.AssessmentItem, error) {
	const query = `SELECT id, course_offering_id, name, kind, total_marks, created_at, updated_at
FROM assessment_items WHERE course_offering_id = $1 ORDER BY name ASC`
	var items []models.AssessmentItem
	if err := r.db.SelectContext(ctx, &items, query, courseOfferingID); err != nil {
		return nil, fmt.Errorf("list assessment items: %w", err)
	}
	return items, nil
}

// UpdateItemTotal changes an item's total marks. Shrinking the total below
// the currently allocated sum would break conservation, so the check runs
// against the locked item row.
func (r *AssessmentRepository) UpdateItemTotal(ctx context.Context, id string, totalMarks float64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update item total: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current models.AssessmentItem
	if err := tx.GetContext(ctx, &current, `SELECT id, course_offering_id, name, kind, total_marks, created_at, updated_at
FROM assessment_items WHERE id = $1 FOR UPDATE`, id); err != nil {
		return fmt.Errorf("lock assessment item: %w", err)
	}

	var allocated float64
	if err := tx.GetContext(ctx, &allocated, `SELECT COALESCE(SUM(marks_allocated), 0) FROM clo_allocations WHERE assessment_item_id = $1`, id); err != nil {
		return fmt.Errorf("sum allocations: %w", err)
	}
	if allocated > totalMarks {
		return appErrors.Clone(appErrors.ErrOverAllocated,
			fmt.Sprintf("allocated %.2f exceeds proposed total %.2f", allocated, totalMarks))
	}

	if _, err := tx.ExecContext(ctx, `UPDATE assessment_items SET total_marks = $1, updated_at = $2 WHERE id = $3`,
		totalMarks, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update item total: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update item total: %w", err)
	}
	return nil
}

// ReplaceAllocations atomically swaps the full allocation set of one item.
// The item row is locked first, serializing concurrent replacements on the
// same item while leaving other items untouched. The conservation invariant
// is verified against the locked total before any write; on violation the
// transaction rolls back and prior rows remain intact.
func (r *AssessmentRepository) ReplaceAllocations(ctx context.Context, itemID string, rows []models.AllocationRow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace allocations: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var item models.AssessmentItem
	if err := tx.GetContext(ctx, &item, `SELECT id, course_offering_id, name, kind, total_marks, created_at, updated_at
FROM assessment_items WHERE id = $1 FOR UPDATE`, itemID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "assessment item not found")
		}
		return fmt.Errorf("lock assessment item: %w", err)
	}

	total := 0.0
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.MarksAllocated < 0 || row.MarksAllocated > item.TotalMarks {
			return appErrors.Clone(appErrors.ErrMarksOutOfRange,
				fmt.Sprintf("allocation %.2f for outcome %s outside [0, %.2f]", row.MarksAllocated, row.CLOID, item.TotalMarks))
		}
		if seen[row.CLOID] {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate allocation for outcome %s", row.CLOID))
		}
		seen[row.CLOID] = true
		total += row.MarksAllocated
	}
	if total > item.TotalMarks {
		return appErrors.Clone(appErrors.ErrOverAllocated,
			fmt.Sprintf("proposed total %.2f exceeds item total %.2f", total, item.TotalMarks))
	}

	if len(rows) > 0 {
		if err := r.verifyCLOs(ctx, tx, rows); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM clo_allocations WHERE assessment_item_id = $1`, itemID); err != nil {
		return fmt.Errorf("clear allocations: %w", err)
	}
	now := time.Now().UTC()
	for i := range rows {
		rows[i].ID = uuid.NewString()
		rows[i].AssessmentItemID = itemID
		rows[i].CreatedAt = now
		const query = `INSERT INTO clo_allocations (id, assessment_item_id, clo_id, marks_allocated, created_at)
VALUES (:id, :assessment_item_id, :clo_id, :marks_allocated, :created_at)`
		if _, err := tx.NamedExecContext(ctx, query, rows[i]); err != nil {
			return fmt.Errorf("insert allocation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace allocations: %w", err)
	}
	return nil
}

func (r *AssessmentRepository) verifyCLOs(ctx context.Context, tx *sqlx.Tx, rows []models.AllocationRow) error {
	ids := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows))
	for i, row := range rows {
		ids = append(ids, fmt.Sprintf("$%d", i+1))
		args = append(args, row.CLOID)
	}
	query := fmt.Sprintf(`SELECT id FROM outcomes WHERE tier = 'CLO' AND id IN (%s)`, strings.Join(ids, ","))
	var found []string
	if err := tx.SelectContext(ctx, &found, query, args...); err != nil {
		return fmt.Errorf("verify allocation outcomes: %w", err)
	}
	if len(found) != len(rows) {
		known := make(map[string]bool, len(found))
		for _, id := range found {
			known[id] = true
		}
		for _, row := range rows {
			if !known[row.CLOID] {
				return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("outcome %s is not a known CLO", row.CLOID))
			}
		}
	}
	return nil
}

// GetAllocations returns the allocation rows of one item, ordered by the
// CLO code they target.
func (r *AssessmentRepository) GetAllocations(ctx context.Context, itemID string) ([]models.AllocationRow, error) {
	const query = `SELECT a.id, a.assessment_item_id, a.clo_id, a.marks_allocated, a.created_at, o.code AS clo_code
FROM clo_allocations a
JOIN outcomes o ON o.id = a.clo_id
WHERE a.assessment_item_id = $1
ORDER BY o.code ASC`
	var rows []models.AllocationRow
	if err := r.db.SelectContext(ctx, &rows, query, itemID); err != nil {
		return nil, fmt.Errorf("get allocations: %w", err)
	}
	return rows, nil
}

// GetAllocationsForCLOs returns every allocation targeting the given CLOs
// together with item totals, in one round trip. This is the aggregator's
// weighting basis.
func (r *AssessmentRepository) GetAllocationsForCLOs(ctx context.Context, cloIDs []string) ([]models.CLOAllocation, error) {
	if len(cloIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(cloIDs))
	args := make([]interface{}, len(cloIDs))
	for i, id := range cloIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT a.assessment_item_id, i.name AS item_name, i.course_offering_id, a.clo_id, a.marks_allocated, i.total_marks
FROM clo_allocations a
JOIN assessment_items i ON i.id = a.assessment_item_id
WHERE a.clo_id IN (%s)
ORDER BY i.name ASC`, strings.Join(placeholders, ","))
	var allocations []models.CLOAllocation
	if err := r.db.SelectContext(ctx, &allocations, query, args...); err != nil {
		return nil, fmt.Errorf("get allocations for outcomes: %w", err)
	}
	return allocations, nil
}
