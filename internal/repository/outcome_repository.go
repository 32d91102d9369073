package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
)

// OutcomeRepository persists outcomes and their cascade semantics.
type OutcomeRepository struct {
	db *sqlx.DB
}

// NewOutcomeRepository creates a new outcome repository.
func NewOutcomeRepository(db *sqlx.DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// Create inserts a new outcome. ErrCodeTaken is signalled via CodeExists,
// which the service checks first inside the same logical flow.
func (r *OutcomeRepository) Create(ctx context.Context, outcome *models.Outcome) error {
	if outcome.ID == "" {
		outcome.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = now
	}
	outcome.UpdatedAt = now
	const query = `INSERT INTO outcomes (id, tier, scope_id, code, description, created_at, updated_at)
VALUES (:id, :tier, :scope_id, :code, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, outcome); err != nil {
		return fmt.Errorf("create outcome: %w", err)
	}
	return nil
}

// CodeExists reports whether a code is already taken within the scope+tier.
func (r *OutcomeRepository) CodeExists(ctx context.Context, tier models.OutcomeTier, scopeID, code string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM outcomes WHERE tier = $1 AND scope_id = $2 AND code = $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tier, scopeID, code); err != nil {
		return false, fmt.Errorf("check outcome code: %w", err)
	}
	return exists, nil
}

// FindByID returns a single outcome.
func (r *OutcomeRepository) FindByID(ctx context.Context, id string) (*models.Outcome, error) {
	const query = `SELECT id, tier, scope_id, code, description, created_at, updated_at FROM outcomes WHERE id = $1`
	var outcome models.Outcome
	if err := r.db.GetContext(ctx, &outcome, query, id); err != nil {
		return nil, fmt.Errorf("find outcome: %w", err)
	}
	return &outcome, nil
}

// List returns outcomes matching the filter, ordered by code.
func (r *OutcomeRepository) List(ctx context.Context, filter models.OutcomeFilter) ([]models.Outcome, error) {
	query := `SELECT id, tier, scope_id, code, description, created_at, updated_at FROM outcomes WHERE 1=1`
	var args []interface{}
	if filter.Tier != "" {
		query += fmt.Sprintf(" AND tier = $%d", len(args)+1)
		args = append(args, filter.Tier)
	}
	if filter.ScopeID != "" {
		query += fmt.Sprintf(" AND scope_id = $%d", len(args)+1)
		args = append(args, filter.ScopeID)
	}
	query += " ORDER BY code ASC"
	var outcomes []models.Outcome
	if err := r.db.SelectContext(ctx, &outcomes, query, args...); err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	return outcomes, nil
}

// UpdateDescription changes an outcome's description.
func (r *OutcomeRepository) UpdateDescription(ctx context.Context, id, description string) error {
	const query = `UPDATE outcomes SET description = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, description, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update outcome: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteCascade removes the outcome together with every mapping edge and
// allocation row referencing it, all inside one transaction, and reports the
// cascaded counts for audit purposes.
func (r *OutcomeRepository) DeleteCascade(ctx context.Context, id string) (*models.CascadeResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete outcome: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM outcomes WHERE id = $1)`, id); err != nil {
		return nil, fmt.Errorf("check outcome: %w", err)
	}
	if !exists {
		return nil, sql.ErrNoRows
	}

	result := &models.CascadeResult{OutcomeID: id}

	edges, err := tx.ExecContext(ctx, `DELETE FROM outcome_mappings WHERE child_id = $1 OR parent_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("cascade mapping edges: %w", err)
	}
	result.MappingEdges, _ = edges.RowsAffected()

	allocations, err := tx.ExecContext(ctx, `DELETE FROM clo_allocations WHERE clo_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("cascade allocation rows: %w", err)
	}
	result.AllocationRows, _ = allocations.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attainment_results WHERE outcome_id = $1`, id); err != nil {
		return nil, fmt.Errorf("cascade attainment results: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete outcome: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete outcome: %w", err)
	}
	return result, nil
}
