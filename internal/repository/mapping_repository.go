package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
)

// MappingRepository maintains the edge list between adjacent outcome tiers.
// Edges are keyed by (child_id, parent_id) so both traversal directions stay
// cheap and cascade deletes touch only the edge table.
type MappingRepository struct {
	db *sqlx.DB
}

// NewMappingRepository creates a new mapping repository.
func NewMappingRepository(db *sqlx.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Upsert inserts the edge if absent. The unique (child_id, parent_id)
// constraint makes the toggle idempotent.
func (r *MappingRepository) Upsert(ctx context.Context, edge *models.MappingEdge) error {
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	}
	if edge.Weight <= 0 {
		edge.Weight = 1
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO outcome_mappings (id, child_id, parent_id, weight, created_at)
VALUES (:id, :child_id, :parent_id, :weight, :created_at)
ON CONFLICT (child_id, parent_id) DO UPDATE SET weight = EXCLUDED.weight`
	if _, err := r.db.NamedExecContext(ctx, query, edge); err != nil {
		return fmt.Errorf("upsert mapping edge: %w", err)
	}
	return nil
}

// Delete removes the edge; deleting an absent edge is a no-op.
func (r *MappingRepository) Delete(ctx context.Context, childID, parentID string) error {
	const query = `DELETE FROM outcome_mappings WHERE child_id = $1 AND parent_id = $2`
	if _, err := r.db.ExecContext(ctx, query, childID, parentID); err != nil {
		return fmt.Errorf("delete mapping edge: %w", err)
	}
	return nil
}

// ListChildren returns the child outcomes of a parent, ordered by code.
func (r *MappingRepository) ListChildren(ctx context.Context, parentID string) ([]models.MappedOutcome, error) {
	const query = `SELECT o.id, o.tier, o.scope_id, o.code, o.description, o.created_at, o.updated_at, m.weight
FROM outcome_mappings m
JOIN outcomes o ON o.id = m.child_id
WHERE m.parent_id = $1
ORDER BY o.code ASC`
	var children []models.MappedOutcome
	if err := r.db.SelectContext(ctx, &children, query, parentID); err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return children, nil
}

// ListParents returns the parent outcomes of a child, ordered by code.
func (r *MappingRepository) ListParents(ctx context.Context, childID string) ([]models.MappedOutcome, error) {
	const query = `SELECT o.id, o.tier, o.scope_id, o.code, o.description, o.created_at, o.updated_at, m.weight
FROM outcome_mappings m
JOIN outcomes o ON o.id = m.parent_id
WHERE m.child_id = $1
ORDER BY o.code ASC`
	var parents []models.MappedOutcome
	if err := r.db.SelectContext(ctx, &parents, query, childID); err != nil {
		return nil, fmt.Errorf("list parents: %w", err)
	}
	return parents, nil
}
