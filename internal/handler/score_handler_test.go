package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	"github.com/SaddamHosen42/obe-engine-api/internal/service"
)

type scoreWriterStub struct {
	stored []models.ScoreRecord
}

func (s *scoreWriterStub) BulkUpsert(ctx context.Context, records []models.ScoreRecord) error {
	s.stored = append(s.stored, records...)
	return nil
}

type itemReaderStub struct {
	items map[string]models.AssessmentItem
}

func (s *itemReaderStub) FindItem(ctx context.Context, id string) (*models.AssessmentItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func newScoreHandlerForTest() (*ScoreHandler, *scoreWriterStub) {
	writer := &scoreWriterStub{}
	items := &itemReaderStub{items: map[string]models.AssessmentItem{
		"item-1": {ID: "item-1", CourseOfferingID: "co-1", Name: "Quiz 1", TotalMarks: 10},
	}}
	svc := service.NewScoreService(writer, nil, items, nil, nil)
	return NewScoreHandler(svc), writer
}

func TestScoreHandlerIngest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, writer := newScoreHandlerForTest()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.IngestScoresRequest{
		AssessmentItemID: "item-1",
		Scores: []service.ScoreEntry{
			{StudentID: "s1", ObtainedMarks: 7},
			{StudentID: "s2", ObtainedMarks: 5},
		},
	})
	req, _ := http.NewRequest(http.MethodPost, "/scores", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Ingest(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, writer.stored, 2)
}

func TestScoreHandlerIngestAboveTotal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, writer := newScoreHandlerForTest()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.IngestScoresRequest{
		AssessmentItemID: "item-1",
		Scores:           []service.ScoreEntry{{StudentID: "s1", ObtainedMarks: 12}},
	})
	req, _ := http.NewRequest(http.MethodPost, "/scores", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Ingest(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, writer.stored)
}

func TestScoreHandlerIngestInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _ := newScoreHandlerForTest()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/scores", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Ingest(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
