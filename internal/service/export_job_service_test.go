package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SaddamHosen42/obe-engine-api/internal/dto"
	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
	"github.com/SaddamHosen42/obe-engine-api/pkg/jobs"
)

type mockExportJobStore struct {
	mockEngineJobStore
}

func (m *mockExportJobStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.EngineJob, error) {
	var result []models.EngineJob
	for _, job := range m.jobs {
		if job.Status == models.JobStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			result = append(result, job)
		}
	}
	return result, nil
}

type failingGenerator struct {
	calls int
}

func (g *failingGenerator) Generate(ctx context.Context, job *models.EngineJob) (*ExportResult, error) {
	g.calls++
	return nil, errors.New("render failed")
}

func newExportJobFixture(t *testing.T) (*ExportJobService, *mockExportJobStore, *mockQueueDispatcher, *ExportService) {
	t.Helper()
	exporter, _ := newExportServiceForTest(t)
	store := &mockExportJobStore{}
	queue := &mockQueueDispatcher{}
	svc := NewExportJobService(store, queue, exporter, zap.NewNop(), ExportJobConfig{ResultTTL: time.Hour, MaxRetries: 2})
	return svc, store, queue, exporter
}

func TestExportRequestQueuesJob(t *testing.T) {
	svc, store, queue, _ := newExportJobFixture(t)

	resp, err := svc.Request(context.Background(), dto.ExportRequest{
		CourseOfferingID: "co-1",
		Format:           models.ExportFormatCSV,
	}, "actor-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, resp.Status)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, string(models.JobTypeExport), queue.enqueued[0].Type)

	stored, err := store.GetByID(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "actor-1", stored.CreatedBy)
	assert.Equal(t, "co-1", stored.Params.Scope.CourseOfferingID)
}

func TestExportRequestValidation(t *testing.T) {
	svc, _, _, _ := newExportJobFixture(t)
	ctx := context.Background()

	_, err := svc.Request(ctx, dto.ExportRequest{Format: models.ExportFormatCSV}, "actor-1")
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Request(ctx, dto.ExportRequest{
		CourseOfferingID: "co-1",
		ProgramID:        "prog-1",
		Format:           models.ExportFormatCSV,
	}, "actor-1")
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Request(ctx, dto.ExportRequest{CourseOfferingID: "co-1", Format: "xlsx"}, "actor-1")
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Request(ctx, dto.ExportRequest{ProgramID: "prog-1", Tier: "DLO", Format: models.ExportFormatPDF}, "actor-1")
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestExportRequestEnqueueFailureMarksJobFailed(t *testing.T) {
	svc, store, queue, _ := newExportJobFixture(t)
	queue.err = errors.New("queue closed")

	_, err := svc.Request(context.Background(), dto.ExportRequest{
		CourseOfferingID: "co-1",
		Format:           models.ExportFormatCSV,
	}, "actor-1")
	require.Error(t, err)

	stored, err := store.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
}

func TestExportWorkerFinishesJob(t *testing.T) {
	_, store, _, exporter := newExportJobFixture(t)
	job := &models.EngineJob{
		Type:   models.JobTypeExport,
		Params: models.JobParams{Scope: models.RecomputeScope{CourseOfferingID: "co-1"}, Format: models.ExportFormatCSV},
		Status: models.JobStatusQueued,
	}
	require.NoError(t, store.Create(context.Background(), job))

	worker := NewExportWorker(store, exporter, 2, zap.NewNop())
	err := worker.Handle(context.Background(), jobs.Job{ID: job.ID, Type: string(job.Type), Attempt: 1})
	require.NoError(t, err)

	stored, err := store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFinished, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	require.NotNil(t, stored.ResultURL)
	assert.Contains(t, *stored.ResultURL, "/exports/download/")
}

func TestExportWorkerRetriesThenFails(t *testing.T) {
	store := &mockExportJobStore{}
	gen := &failingGenerator{}
	job := &models.EngineJob{
		Type:   models.JobTypeExport,
		Params: models.JobParams{Scope: models.RecomputeScope{CourseOfferingID: "co-1"}, Format: models.ExportFormatCSV},
		Status: models.JobStatusQueued,
	}
	require.NoError(t, store.Create(context.Background(), job))

	worker := NewExportWorker(store, gen, 2, zap.NewNop())

	// First attempt requeues the job for another try.
	err := worker.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 1})
	require.Error(t, err)
	stored, _ := store.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusQueued, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "render failed", *stored.ErrorMessage)

	// Final attempt exhausts retries.
	err = worker.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 2})
	require.Error(t, err)
	stored, _ = store.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, 2, gen.calls)
}

func TestResolveDownloadRoundTrip(t *testing.T) {
	svc, store, _, exporter := newExportJobFixture(t)
	ctx := context.Background()

	job := &models.EngineJob{
		Type:   models.JobTypeExport,
		Params: models.JobParams{Scope: models.RecomputeScope{CourseOfferingID: "co-1"}, Format: models.ExportFormatCSV},
		Status: models.JobStatusQueued,
	}
	require.NoError(t, store.Create(ctx, job))

	result, err := exporter.Generate(ctx, job)
	require.NoError(t, err)

	finished := models.JobStatusFinished
	stored := store.jobs[job.ID]
	stored.Status = finished
	stored.ResultURL = &result.URL
	store.jobs[job.ID] = stored

	download, err := svc.ResolveDownload(ctx, result.Token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, models.ExportFormatCSV, download.Format)
	assert.NotEmpty(t, download.Filename)
}

func TestResolveDownloadRejectsBadToken(t *testing.T) {
	svc, _, _, _ := newExportJobFixture(t)

	_, err := svc.ResolveDownload(context.Background(), "not-a-token")
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestResolveDownloadRejectsUnfinishedJob(t *testing.T) {
	svc, store, _, exporter := newExportJobFixture(t)
	ctx := context.Background()

	job := &models.EngineJob{
		Type:   models.JobTypeExport,
		Params: models.JobParams{Scope: models.RecomputeScope{CourseOfferingID: "co-1"}, Format: models.ExportFormatCSV},
		Status: models.JobStatusProcessing,
	}
	require.NoError(t, store.Create(ctx, job))

	result, err := exporter.Generate(ctx, job)
	require.NoError(t, err)
	stored := store.jobs[job.ID]
	stored.ResultURL = &result.URL
	store.jobs[job.ID] = stored

	_, err = svc.ResolveDownload(ctx, result.Token)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestRecoverPendingExportJobs(t *testing.T) {
	svc, store, queue, _ := newExportJobFixture(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &models.EngineJob{Type: models.JobTypeExport, Status: models.JobStatusQueued}))
	require.NoError(t, store.Create(ctx, &models.EngineJob{Type: models.JobTypeRecompute, Status: models.JobStatusQueued}))
	require.NoError(t, store.Create(ctx, &models.EngineJob{Type: models.JobTypeExport, Status: models.JobStatusFinished}))

	svc.RecoverPendingJobs(ctx)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, string(models.JobTypeExport), queue.enqueued[0].Type)
}
