package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
)

// ScoreSource is the consumed score ingestion interface. Reads are bulk per
// aggregation scope to honour the single-read contract.
type ScoreSource interface {
	FetchScores(ctx context.Context, itemIDs []string, studentIDs []string) ([]models.ScoreRecord, error)
	ListStudents(ctx context.Context, itemIDs []string) ([]string, error)
}

type scoreWriter interface {
	BulkUpsert(ctx context.Context, records []models.ScoreRecord) error
}

type itemReader interface {
	FindItem(ctx context.Context, id string) (*models.AssessmentItem, error)
}

// ScoreEntry is one score within an ingestion batch.
type ScoreEntry struct {
	StudentID     string  `json:"student_id" validate:"required"`
	ObtainedMarks float64 `json:"obtained_marks" validate:"gte=0"`
}

// IngestScoresRequest pushes a batch of scores for one assessment item.
type IngestScoresRequest struct {
	AssessmentItemID string       `json:"assessment_item_id" validate:"required"`
	Scores           []ScoreEntry `json:"scores" validate:"required,dive"`
}

// ScoreService accepts score batches from the surrounding system and exposes
// bulk reads to the aggregator.
type ScoreService struct {
	scores    scoreWriter
	source    ScoreSource
	items     itemReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScoreService constructs ScoreService.
func NewScoreService(scores scoreWriter, source ScoreSource, items itemReader, validate *validator.Validate, logger *zap.Logger) *ScoreService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreService{scores: scores, source: source, items: items, validator: validate, logger: logger}
}

// Ingest validates and stores a batch of scores for one item. Obtained marks
// are bounded by the item's total.
func (s *ScoreService) Ingest(ctx context.Context, req IngestScoresRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scores payload")
	}
	item, err := s.items.FindItem(ctx, req.AssessmentItemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "assessment item not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment item")
	}
	records := make([]models.ScoreRecord, 0, len(req.Scores))
	seen := make(map[string]bool, len(req.Scores))
	for _, entry := range req.Scores {
		if entry.ObtainedMarks > item.TotalMarks {
			return 0, appErrors.Clone(appErrors.ErrMarksOutOfRange,
				fmt.Sprintf("obtained %.2f for student %s exceeds item total %.2f", entry.ObtainedMarks, entry.StudentID, item.TotalMarks))
		}
		if seen[entry.StudentID] {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate score for student %s", entry.StudentID))
		}
		seen[entry.StudentID] = true
		records = append(records, models.ScoreRecord{
			StudentID:        entry.StudentID,
			AssessmentItemID: item.ID,
			ObtainedMarks:    entry.ObtainedMarks,
		})
	}
	if err := s.scores.BulkUpsert(ctx, records); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store scores")
	}
	return len(records), nil
}

// FetchScores proxies the bulk read for callers outside the aggregator.
func (s *ScoreService) FetchScores(ctx context.Context, itemIDs []string, studentIDs []string) ([]models.ScoreRecord, error) {
	records, err := s.source.FetchScores(ctx, itemIDs, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch scores")
	}
	return records, nil
}
