package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
)

// ThresholdRepository stores per-outcome threshold overrides. The default
// band scheme lives in configuration; only deviations are persisted.
type ThresholdRepository struct {
	db *sqlx.DB
}

// NewThresholdRepository creates a new threshold repository.
func NewThresholdRepository(db *sqlx.DB) *ThresholdRepository {
	return &ThresholdRepository{db: db}
}

type thresholdRow struct {
	OutcomeID string    `db:"outcome_id"`
	Bands     []byte    `db:"bands"`
	UpdatedAt time.Time `db:"updated_at"`
}

// FindByOutcome returns the override for one outcome, or sql.ErrNoRows.
func (r *ThresholdRepository) FindByOutcome(ctx context.Context, outcomeID string) (*models.ThresholdConfig, error) {
	const query = `SELECT outcome_id, bands, updated_at FROM threshold_configs WHERE outcome_id = $1`
	var row thresholdRow
	if err := r.db.GetContext(ctx, &row, query, outcomeID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find threshold config: %w", err)
	}
	cfg := models.ThresholdConfig{OutcomeID: row.OutcomeID}
	if err := json.Unmarshal(row.Bands, &cfg.Bands); err != nil {
		return nil, fmt.Errorf("unmarshal threshold bands: %w", err)
	}
	return &cfg, nil
}

// FindByOutcomes returns overrides for many outcomes keyed by outcome id.
func (r *ThresholdRepository) FindByOutcomes(ctx context.Context, outcomeIDs []string) (map[string]models.ThresholdConfig, error) {
	configs := make(map[string]models.ThresholdConfig, len(outcomeIDs))
	if len(outcomeIDs) == 0 {
		return configs, nil
	}
	query, args, err := sqlx.In(`SELECT outcome_id, bands, updated_at FROM threshold_configs WHERE outcome_id IN (?)`, outcomeIDs)
	if err != nil {
		return nil, fmt.Errorf("build threshold query: %w", err)
	}
	query = r.db.Rebind(query)
	var rows []thresholdRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find threshold configs: %w", err)
	}
	for _, row := range rows {
		cfg := models.ThresholdConfig{OutcomeID: row.OutcomeID}
		if err := json.Unmarshal(row.Bands, &cfg.Bands); err != nil {
			return nil, fmt.Errorf("unmarshal threshold bands: %w", err)
		}
		configs[row.OutcomeID] = cfg
	}
	return configs, nil
}

// Upsert stores or replaces the override for an outcome.
func (r *ThresholdRepository) Upsert(ctx context.Context, cfg models.ThresholdConfig) error {
	bands, err := json.Marshal(cfg.Bands)
	if err != nil {
		return fmt.Errorf("marshal threshold bands: %w", err)
	}
	const query = `INSERT INTO threshold_configs (outcome_id, bands, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (outcome_id) DO UPDATE SET bands = EXCLUDED.bands, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, cfg.OutcomeID, bands, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert threshold config: %w", err)
	}
	return nil
}

// Delete removes the override, restoring the default scheme for the outcome.
func (r *ThresholdRepository) Delete(ctx context.Context, outcomeID string) error {
	const query = `DELETE FROM threshold_configs WHERE outcome_id = $1`
	if _, err := r.db.ExecContext(ctx, query, outcomeID); err != nil {
		return fmt.Errorf("delete threshold config: %w", err)
	}
	return nil
}
