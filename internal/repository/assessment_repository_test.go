package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
)

func newAssessmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func assessmentItemRows(id string, total float64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "course_offering_id", "name", "kind", "total_marks", "created_at", "updated_at"}).
		AddRow(id, "co-1", "Quiz 1", "quiz", total, time.Now(), time.Now())
}

func TestAssessmentRepositoryCreateItem(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assessment_items")).
		WithArgs(sqlmock.AnyArg(), "co-1", "Quiz 1", "quiz", 10.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	item := &models.AssessmentItem{CourseOfferingID: "co-1", Name: "Quiz 1", Kind: "quiz", TotalMarks: 10}
	require.NoError(t, repo.CreateItem(context.Background(), item))
	require.NotEmpty(t, item.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryReplaceAllocations(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM assessment_items WHERE id = $1 FOR UPDATE")).
		WithArgs("item-1").
		WillReturnRows(assessmentItemRows("item-1", 10))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM outcomes WHERE tier = 'CLO' AND id IN ($1,$2)")).
		WithArgs("clo-1", "clo-2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("clo-1").AddRow("clo-2"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM clo_allocations WHERE assessment_item_id = $1")).
		WithArgs("item-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO clo_allocations")).
		WithArgs(sqlmock.AnyArg(), "item-1", "clo-1", 6.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO clo_allocations")).
		WithArgs(sqlmock.AnyArg(), "item-1", "clo-2", 4.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ReplaceAllocations(context.Background(), "item-1", []models.AllocationRow{
		{CLOID: "clo-1", MarksAllocated: 6},
		{CLOID: "clo-2", MarksAllocated: 4},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryReplaceAllocationsOverAllocated(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM assessment_items WHERE id = $1 FOR UPDATE")).
		WithArgs("item-1").
		WillReturnRows(assessmentItemRows("item-1", 10))
	mock.ExpectRollback()

	// 6 + 5 exceeds the item total of 10; nothing is written.
	err := repo.ReplaceAllocations(context.Background(), "item-1", []models.AllocationRow{
		{CLOID: "clo-1", MarksAllocated: 6},
		{CLOID: "clo-2", MarksAllocated: 5},
	})
	require.ErrorIs(t, err, appErrors.ErrOverAllocated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryReplaceAllocationsDuplicateOutcome(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM assessment_items WHERE id = $1 FOR UPDATE")).
		WithArgs("item-1").
		WillReturnRows(assessmentItemRows("item-1", 10))
	mock.ExpectRollback()

	err := repo.ReplaceAllocations(context.Background(), "item-1", []models.AllocationRow{
		{CLOID: "clo-1", MarksAllocated: 3},
		{CLOID: "clo-1", MarksAllocated: 4},
	})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryUpdateItemTotalShrinkRejected(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM assessment_items WHERE id = $1 FOR UPDATE")).
		WithArgs("item-1").
		WillReturnRows(assessmentItemRows("item-1", 20))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(marks_allocated), 0) FROM clo_allocations WHERE assessment_item_id = $1")).
		WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(10.0))
	mock.ExpectRollback()

	err := repo.UpdateItemTotal(context.Background(), "item-1", 8)
	require.ErrorIs(t, err, appErrors.ErrOverAllocated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryUpdateItemTotalGrow(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM assessment_items WHERE id = $1 FOR UPDATE")).
		WithArgs("item-1").
		WillReturnRows(assessmentItemRows("item-1", 10))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(marks_allocated), 0) FROM clo_allocations WHERE assessment_item_id = $1")).
		WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(10.0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assessment_items SET total_marks = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(25.0, sqlmock.AnyArg(), "item-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpdateItemTotal(context.Background(), "item-1", 25))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryGetAllocationsForCLOs(t *testing.T) {
	db, mock, cleanup := newAssessmentRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	rows := sqlmock.NewRows([]string{"assessment_item_id", "item_name", "course_offering_id", "clo_id", "marks_allocated", "total_marks"}).
		AddRow("item-1", "Quiz 1", "co-1", "clo-1", 6.0, 10.0).
		AddRow("item-2", "Midterm", "co-1", "clo-1", 10.0, 20.0)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE a.clo_id IN ($1)")).
		WithArgs("clo-1").
		WillReturnRows(rows)

	allocations, err := repo.GetAllocationsForCLOs(context.Background(), []string{"clo-1"})
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	require.Equal(t, 6.0, allocations[0].MarksAllocated)
	require.NoError(t, mock.ExpectationsWereMet())
}
