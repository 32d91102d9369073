package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
)

type allocationStore interface {
	CreateItem(ctx context.Context, item *models.AssessmentItem) error
	FindItem(ctx context.Context, id string) (*models.AssessmentItem, error)
	ListItems(ctx context.Context, courseOfferingID string) ([]models.AssessmentItem, error)
	UpdateItemTotal(ctx context.Context, id string, totalMarks float64) error
	ReplaceAllocations(ctx context.Context, itemID string, rows []models.AllocationRow) error
	GetAllocations(ctx context.Context, itemID string) ([]models.AllocationRow, error)
	GetAllocationsForCLOs(ctx context.Context, cloIDs []string) ([]models.CLOAllocation, error)
}

// CreateItemRequest registers a gradable unit.
type CreateItemRequest struct {
	CourseOfferingID string                    `json:"course_offering_id" validate:"required"`
	Name             string                    `json:"name" validate:"required"`
	Kind             models.AssessmentItemKind `json:"kind" validate:"required,oneof=COMPONENT QUESTION"`
	TotalMarks       float64                   `json:"total_marks" validate:"required,gt=0"`
}

// AllocationInput is one proposed row inside a full-set replacement.
type AllocationInput struct {
	CLOID string  `json:"clo_id" validate:"required"`
	Marks float64 `json:"marks" validate:"gte=0"`
}

// SetAllocationsRequest replaces the complete allocation set of one item.
// Full-set replacement keeps the conservation invariant checkable in a
// single pass instead of against interleaved deltas.
type SetAllocationsRequest struct {
	AssessmentItemID string            `json:"assessment_item_id" validate:"required"`
	Allocations      []AllocationInput `json:"allocations" validate:"dive"`
}

// AllocationService is the mark allocation ledger.
type AllocationService struct {
	store     allocationStore
	summaries summaryInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAllocationService constructs AllocationService.
func NewAllocationService(store allocationStore, summaries summaryInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AllocationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{store: store, summaries: summaries, metrics: metrics, validator: validate, logger: logger}
}

// CreateItem registers an assessment item.
func (s *AllocationService) CreateItem(ctx context.Context, req CreateItemRequest) (*models.AssessmentItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid item payload")
	}
	item := &models.AssessmentItem{
		CourseOfferingID: req.CourseOfferingID,
		Name:             req.Name,
		Kind:             req.Kind,
		TotalMarks:       req.TotalMarks,
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assessment item")
	}
	return item, nil
}

// GetItem returns one assessment item.
func (s *AllocationService) GetItem(ctx context.Context, id string) (*models.AssessmentItem, error) {
	item, err := s.store.FindItem(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment item not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment item")
	}
	return item, nil
}

// ListItems returns the items of a course offering.
func (s *AllocationService) ListItems(ctx context.Context, courseOfferingID string) ([]models.AssessmentItem, error) {
	if courseOfferingID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course offering id required")
	}
	items, err := s.store.ListItems(ctx, courseOfferingID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessment items")
	}
	return items, nil
}

// UpdateItemTotal changes an item's total marks; shrinking below the
// allocated sum is rejected by the ledger.
func (s *AllocationService) UpdateItemTotal(ctx context.Context, id string, totalMarks float64) error {
	if totalMarks <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "total marks must be positive")
	}
	if err := s.store.UpdateItemTotal(ctx, id, totalMarks); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			if appErr.Code == appErrors.ErrOverAllocated.Code && s.metrics != nil {
				s.metrics.RecordAllocationRejection()
			}
			return appErr
		}
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assessment item not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update item total")
	}
	return nil
}

// SetAllocations atomically replaces the allocation set for one item. On any
// conservation violation the whole call is rejected and prior rows survive.
func (s *AllocationService) SetAllocations(ctx context.Context, req SetAllocationsRequest) ([]models.AllocationRow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid allocations payload")
	}
	rows := make([]models.AllocationRow, 0, len(req.Allocations))
	for _, input := range req.Allocations {
		rows = append(rows, models.AllocationRow{CLOID: input.CLOID, MarksAllocated: input.Marks})
	}
	if err := s.store.ReplaceAllocations(ctx, req.AssessmentItemID, rows); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			if s.metrics != nil && (appErr.Code == appErrors.ErrOverAllocated.Code || appErr.Code == appErrors.ErrMarksOutOfRange.Code) {
				s.metrics.RecordAllocationRejection()
			}
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace allocations")
	}
	stored, err := s.store.GetAllocations(ctx, req.AssessmentItemID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations")
	}
	item, err := s.GetItem(ctx, req.AssessmentItemID)
	if err == nil && s.summaries != nil {
		s.summaries.InvalidateScope(ctx, item.CourseOfferingID)
	}
	return stored, nil
}

// GetAllocations returns the current allocation set of one item.
func (s *AllocationService) GetAllocations(ctx context.Context, itemID string) ([]models.AllocationRow, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	rows, err := s.store.GetAllocations(ctx, itemID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations")
	}
	return rows, nil
}

// GetAllocationsForCLO returns every item that allocates marks to the CLO,
// with item totals, as the aggregation weighting basis.
func (s *AllocationService) GetAllocationsForCLO(ctx context.Context, cloID string) ([]models.CLOAllocation, error) {
	if cloID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "clo id required")
	}
	allocations, err := s.store.GetAllocationsForCLOs(ctx, []string{cloID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations for outcome")
	}
	return allocations, nil
}
