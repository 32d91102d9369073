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
)

func newJobRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestJobRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()

	repo := NewJobRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO engine_jobs")).
		WithArgs(sqlmock.AnyArg(), "recompute", sqlmock.AnyArg(), "QUEUED", 0, nil, "actor-1", sqlmock.AnyArg(), nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.EngineJob{
		Type:      models.JobTypeRecompute,
		Params:    models.JobParams{Scope: models.RecomputeScope{CourseOfferingID: "co-1"}},
		CreatedBy: "actor-1",
	}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NotEmpty(t, job.ID)

	rows := sqlmock.NewRows([]string{"id", "type", "params", "status", "progress", "result_url", "created_by", "created_at", "finished_at", "error_message"}).
		AddRow(job.ID, "recompute", `{"scope":{"course_offering_id":"co-1"}}`, "QUEUED", 0, nil, "actor-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM engine_jobs WHERE id = $1")).
		WithArgs(job.ID).
		WillReturnRows(rows)

	fetched, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, job.ID, fetched.ID)
	require.Equal(t, "co-1", fetched.Params.Scope.CourseOfferingID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryUpdatePartial(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	status := models.JobStatusProcessing
	progress := 10
	mock.ExpectExec(regexp.QuoteMeta("UPDATE engine_jobs SET status = $1, progress = $2 WHERE id = $3")).
		WithArgs(status, progress, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateJobParams{
		Status:   &status,
		Progress: &progress,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryUpdateAllFields(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	now := time.Now()
	status := models.JobStatusFinished
	progress := 100
	result := "/api/v1/exports/download/token"
	msg := ""
	mock.ExpectExec(regexp.QuoteMeta("UPDATE engine_jobs SET status = $1, progress = $2, result_url = $3, error_message = $4, finished_at = $5 WHERE id = $6")).
		WithArgs(status, progress, result, msg, now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateJobParams{
		Status:       &status,
		Progress:     &progress,
		ResultURL:    &result,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryUpdateNoFieldsIsNoop(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	rows := sqlmock.NewRows([]string{"id", "type", "params", "status", "progress", "result_url", "created_by", "created_at", "finished_at", "error_message"}).
		AddRow("job-1", "export", `{"scope":{"program_id":"prog-1"},"format":"csv"}`, "QUEUED", 0, nil, "actor-1", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(rows)

	jobs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, models.JobTypeExport, jobs[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryListFinishedBefore(t *testing.T) {
	db, mock, cleanup := newJobRepoMock(t)
	defer cleanup()
	repo := NewJobRepository(db)

	rows := sqlmock.NewRows([]string{"id", "type", "params", "status", "progress", "result_url", "created_by", "created_at", "finished_at", "error_message"}).
		AddRow("job-1", "export", `{"scope":{"course_offering_id":"co-1"},"format":"pdf"}`, "FINISHED", 100, "/api/v1/exports/download/token", "actor-1", time.Now().Add(-48*time.Hour), time.Now().Add(-25*time.Hour), nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2")).
		WithArgs(sqlmock.AnyArg(), 50).
		WillReturnRows(rows)

	jobs, err := repo.ListFinishedBefore(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
