package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
)

type mockScoreWriter struct {
	stored []models.ScoreRecord
}

func (m *mockScoreWriter) BulkUpsert(ctx context.Context, records []models.ScoreRecord) error {
	m.stored = append(m.stored, records...)
	return nil
}

type mockItemReader struct {
	items map[string]models.AssessmentItem
}

func (m *mockItemReader) FindItem(ctx context.Context, id string) (*models.AssessmentItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func newScoreFixture() (*ScoreService, *mockScoreWriter) {
	writer := &mockScoreWriter{}
	items := &mockItemReader{items: map[string]models.AssessmentItem{
		"item-1": {ID: "item-1", CourseOfferingID: "co-1", Name: "Quiz 1", TotalMarks: 10},
	}}
	return NewScoreService(writer, &mockScoreSource{}, items, nil, nil), writer
}

func TestIngestStoresBatch(t *testing.T) {
	svc, writer := newScoreFixture()

	stored, err := svc.Ingest(context.Background(), IngestScoresRequest{
		AssessmentItemID: "item-1",
		Scores: []ScoreEntry{
			{StudentID: "s1", ObtainedMarks: 7},
			{StudentID: "s2", ObtainedMarks: 10},
			{StudentID: "s3", ObtainedMarks: 0},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, stored)
	require.Len(t, writer.stored, 3)
	assert.Equal(t, "item-1", writer.stored[0].AssessmentItemID)
}

func TestIngestRejectsMarksAboveItemTotal(t *testing.T) {
	svc, writer := newScoreFixture()

	_, err := svc.Ingest(context.Background(), IngestScoresRequest{
		AssessmentItemID: "item-1",
		Scores:           []ScoreEntry{{StudentID: "s1", ObtainedMarks: 10.5}},
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrMarksOutOfRange.Code, appErr.Code)
	assert.Empty(t, writer.stored)
}

func TestIngestRejectsDuplicateStudents(t *testing.T) {
	svc, writer := newScoreFixture()

	_, err := svc.Ingest(context.Background(), IngestScoresRequest{
		AssessmentItemID: "item-1",
		Scores: []ScoreEntry{
			{StudentID: "s1", ObtainedMarks: 5},
			{StudentID: "s1", ObtainedMarks: 6},
		},
	})
	require.Error(t, err)
	assert.Empty(t, writer.stored)
}

func TestIngestUnknownItemIsNotFound(t *testing.T) {
	svc, _ := newScoreFixture()

	_, err := svc.Ingest(context.Background(), IngestScoresRequest{
		AssessmentItemID: "missing",
		Scores:           []ScoreEntry{{StudentID: "s1", ObtainedMarks: 5}},
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
