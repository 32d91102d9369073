package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
)

type thresholdStore interface {
	FindByOutcome(ctx context.Context, outcomeID string) (*models.ThresholdConfig, error)
	FindByOutcomes(ctx context.Context, outcomeIDs []string) (map[string]models.ThresholdConfig, error)
	Upsert(ctx context.Context, cfg models.ThresholdConfig) error
	Delete(ctx context.Context, outcomeID string) error
}

// ThresholdService resolves the active classification bands for outcomes.
// Programs may tighten the default scheme per outcome; the classifier itself
// always receives the resolved config, never a global.
type ThresholdService struct {
	store        thresholdStore
	defaultBands models.ThresholdConfig
	logger       *zap.Logger
}

// NewThresholdService constructs ThresholdService.
func NewThresholdService(store thresholdStore, defaults models.ThresholdConfig, logger *zap.Logger) *ThresholdService {
	if len(defaults.Bands) == 0 {
		defaults = models.DefaultThresholds()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThresholdService{store: store, defaultBands: defaults, logger: logger}
}

// Resolve returns the active threshold config for an outcome, falling back
// to the default scheme when no override exists.
func (s *ThresholdService) Resolve(ctx context.Context, outcomeID string) (models.ThresholdConfig, error) {
	if s.store == nil || outcomeID == "" {
		return s.defaultBands, nil
	}
	cfg, err := s.store.FindByOutcome(ctx, outcomeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.defaultBands, nil
		}
		return models.ThresholdConfig{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve thresholds")
	}
	return *cfg, nil
}

// ResolveMany returns active configs for a batch of outcomes in one read.
func (s *ThresholdService) ResolveMany(ctx context.Context, outcomeIDs []string) (map[string]models.ThresholdConfig, error) {
	resolved := make(map[string]models.ThresholdConfig, len(outcomeIDs))
	for _, id := range outcomeIDs {
		resolved[id] = s.defaultBands
	}
	if s.store == nil || len(outcomeIDs) == 0 {
		return resolved, nil
	}
	overrides, err := s.store.FindByOutcomes(ctx, outcomeIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve thresholds")
	}
	for id, cfg := range overrides {
		resolved[id] = cfg
	}
	return resolved, nil
}

// Classify maps the attainment onto a level using the outcome's active bands.
func (s *ThresholdService) Classify(ctx context.Context, outcomeID string, a models.Attainment) (models.AttainmentLevel, error) {
	cfg, err := s.Resolve(ctx, outcomeID)
	if err != nil {
		return "", err
	}
	return models.Classify(a, cfg), nil
}

// SetOverride validates and stores a per-outcome band scheme.
func (s *ThresholdService) SetOverride(ctx context.Context, cfg models.ThresholdConfig) error {
	if cfg.OutcomeID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "outcome id required")
	}
	if len(cfg.Bands) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "at least one band required")
	}
	seen := make(map[float64]bool, len(cfg.Bands))
	for _, band := range cfg.Bands {
		if band.Min < 0 || band.Min > 100 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("band bound %.2f outside [0,100]", band.Min))
		}
		if band.Level == models.LevelUnknown {
			return appErrors.Clone(appErrors.ErrValidation, "unknown is reserved for unmeasured outcomes")
		}
		if seen[band.Min] {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate band bound %.2f", band.Min))
		}
		seen[band.Min] = true
	}
	sort.Slice(cfg.Bands, func(i, j int) bool { return cfg.Bands[i].Min > cfg.Bands[j].Min })
	if err := s.store.Upsert(ctx, cfg); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store thresholds")
	}
	return nil
}

// ClearOverride removes the per-outcome scheme, restoring the default.
func (s *ThresholdService) ClearOverride(ctx context.Context, outcomeID string) error {
	if outcomeID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "outcome id required")
	}
	if err := s.store.Delete(ctx, outcomeID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear thresholds")
	}
	return nil
}

// Defaults exposes the configured default scheme.
func (s *ThresholdService) Defaults() models.ThresholdConfig {
	return s.defaultBands
}
