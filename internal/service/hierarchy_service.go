package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
)

type outcomeStore interface {
	Create(ctx context.Context, outcome *models.Outcome) error
	CodeExists(ctx context.Context, tier models.OutcomeTier, scopeID, code string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Outcome, error)
	List(ctx context.Context, filter models.OutcomeFilter) ([]models.Outcome, error)
	UpdateDescription(ctx context.Context, id, description string) error
	DeleteCascade(ctx context.Context, id string) (*models.CascadeResult, error)
}

type mappingStore interface {
	Upsert(ctx context.Context, edge *models.MappingEdge) error
	Delete(ctx context.Context, childID, parentID string) error
	ListChildren(ctx context.Context, parentID string) ([]models.MappedOutcome, error)
	ListParents(ctx context.Context, childID string) ([]models.MappedOutcome, error)
}

type summaryInvalidator interface {
	InvalidateScope(ctx context.Context, scopeID string)
}

// CreateOutcomeRequest is the payload for outcome creation.
type CreateOutcomeRequest struct {
	Tier        models.OutcomeTier `json:"tier" validate:"required"`
	ScopeID     string             `json:"scope_id" validate:"required"`
	Code        string             `json:"code" validate:"required"`
	Description string             `json:"description" validate:"required"`
}

// SetMappingRequest toggles one edge between adjacent tiers.
type SetMappingRequest struct {
	ChildID  string  `json:"child_id" validate:"required"`
	ParentID string  `json:"parent_id" validate:"required"`
	Present  bool    `json:"present"`
	Weight   float64 `json:"weight" validate:"omitempty,gt=0"`
}

// HierarchyService maintains the PEO <- PLO <- CLO hierarchy and its edges.
type HierarchyService struct {
	outcomes  outcomeStore
	mappings  mappingStore
	summaries summaryInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewHierarchyService constructs HierarchyService.
func NewHierarchyService(outcomes outcomeStore, mappings mappingStore, summaries summaryInvalidator, validate *validator.Validate, logger *zap.Logger) *HierarchyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HierarchyService{outcomes: outcomes, mappings: mappings, summaries: summaries, validator: validate, logger: logger}
}

// CreateOutcome registers a new outcome, enforcing code uniqueness within
// its scope and tier.
func (s *HierarchyService) CreateOutcome(ctx context.Context, req CreateOutcomeRequest) (*models.Outcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid outcome payload")
	}
	if !req.Tier.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown tier %q", req.Tier))
	}
	code := strings.TrimSpace(req.Code)
	taken, err := s.outcomes.CodeExists(ctx, req.Tier, req.ScopeID, code)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check outcome code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrDuplicateCode, fmt.Sprintf("code %s already exists for %s in scope %s", code, req.Tier, req.ScopeID))
	}
	outcome := &models.Outcome{Tier: req.Tier, ScopeID: req.ScopeID, Code: code, Description: req.Description}
	if err := s.outcomes.Create(ctx, outcome); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create outcome")
	}
	return outcome, nil
}

// GetOutcome returns one outcome.
func (s *HierarchyService) GetOutcome(ctx context.Context, id string) (*models.Outcome, error) {
	outcome, err := s.outcomes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "outcome not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load outcome")
	}
	return outcome, nil
}

// ListOutcomes returns outcomes for a tier and scope, ordered by code.
func (s *HierarchyService) ListOutcomes(ctx context.Context, filter models.OutcomeFilter) ([]models.Outcome, error) {
	if filter.Tier != "" && !filter.Tier.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown tier %q", filter.Tier))
	}
	outcomes, err := s.outcomes.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list outcomes")
	}
	return outcomes, nil
}

// UpdateDescription edits an outcome's description text.
func (s *HierarchyService) UpdateDescription(ctx context.Context, id, description string) error {
	if strings.TrimSpace(description) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "description required")
	}
	if err := s.outcomes.UpdateDescription(ctx, id, description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "outcome not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update outcome")
	}
	return nil
}

// SetMapping toggles the edge between a child and parent on adjacent tiers.
// The operation is idempotent in both directions.
func (s *HierarchyService) SetMapping(ctx context.Context, req SetMappingRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mapping payload")
	}
	child, err := s.loadForMapping(ctx, req.ChildID, "child")
	if err != nil {
		return err
	}
	parent, err := s.loadForMapping(ctx, req.ParentID, "parent")
	if err != nil {
		return err
	}
	if child.Tier.ParentTier() != parent.Tier {
		return appErrors.Clone(appErrors.ErrTierMismatch,
			fmt.Sprintf("%s (%s) cannot map to %s (%s)", child.Code, child.Tier, parent.Code, parent.Tier))
	}
	if req.Present {
		edge := &models.MappingEdge{ChildID: child.ID, ParentID: parent.ID, Weight: req.Weight}
		if err := s.mappings.Upsert(ctx, edge); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create mapping")
		}
	} else {
		if err := s.mappings.Delete(ctx, child.ID, parent.ID); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove mapping")
		}
	}
	s.invalidate(ctx, parent.ScopeID)
	return nil
}

// DeleteOutcome removes the outcome and cascades its edges and allocation
// rows, returning the cascade counts for the audit trail.
func (s *HierarchyService) DeleteOutcome(ctx context.Context, id string) (*models.CascadeResult, error) {
	outcome, err := s.GetOutcome(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.outcomes.DeleteCascade(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "outcome not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete outcome")
	}
	s.logger.Info("outcome deleted",
		zap.String("outcome_id", id),
		zap.String("code", outcome.Code),
		zap.Int64("cascaded_edges", result.MappingEdges),
		zap.Int64("cascaded_allocations", result.AllocationRows))
	s.invalidate(ctx, outcome.ScopeID)
	return result, nil
}

// ListChildren returns the mapped child outcomes ordered by code.
func (s *HierarchyService) ListChildren(ctx context.Context, parentID string) ([]models.MappedOutcome, error) {
	if _, err := s.GetOutcome(ctx, parentID); err != nil {
		return nil, err
	}
	children, err := s.mappings.ListChildren(ctx, parentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list children")
	}
	return children, nil
}

// ListParents returns the mapped parent outcomes ordered by code.
func (s *HierarchyService) ListParents(ctx context.Context, childID string) ([]models.MappedOutcome, error) {
	if _, err := s.GetOutcome(ctx, childID); err != nil {
		return nil, err
	}
	parents, err := s.mappings.ListParents(ctx, childID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list parents")
	}
	return parents, nil
}

func (s *HierarchyService) loadForMapping(ctx context.Context, id, role string) (*models.Outcome, error) {
	outcome, err := s.outcomes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s outcome %s not found", role, id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load outcome")
	}
	return outcome, nil
}

func (s *HierarchyService) invalidate(ctx context.Context, scopeID string) {
	if s.summaries != nil {
		s.summaries.InvalidateScope(ctx, scopeID)
	}
}
