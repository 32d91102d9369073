package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/SaddamHosen42/obe-engine-api/internal/dto"
	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	"github.com/SaddamHosen42/obe-engine-api/internal/repository"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
	"github.com/SaddamHosen42/obe-engine-api/pkg/jobs"
)

type scopeComputer interface {
	ComputeCourseScope(ctx context.Context, courseOfferingID string, strategy models.RollupStrategy) ([]models.AttainmentResult, []string, error)
	ComputeProgramScope(ctx context.Context, programID string, strategy models.RollupStrategy) ([]models.AttainmentResult, []string, error)
}

type resultSwapper interface {
	ScopeFingerprint(ctx context.Context, outcomeIDs []string) (string, error)
	ReplaceScope(ctx context.Context, outcomeIDs []string, expectedFingerprint string, results []models.AttainmentResult) error
	AppendHistory(ctx context.Context, period string, results []models.AttainmentResult) error
}

type engineJobStore interface {
	Create(ctx context.Context, job *models.EngineJob) error
	GetByID(ctx context.Context, id string) (*models.EngineJob, error)
	Update(ctx context.Context, id string, params repository.UpdateJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.EngineJob, error)
}

type queueDispatcher interface {
	Enqueue(job jobs.Job) error
}

type recomputeObserver interface {
	ObserveRecompute(scope, status string, duration time.Duration)
	RecordStaleScopeAbort()
}

// RecomputeService orchestrates recompute runs. Course-offering scopes are
// small and run inline; program scopes go through the job queue.
type RecomputeService struct {
	attainment  scopeComputer
	results     resultSwapper
	jobsRepo    engineJobStore
	queue       queueDispatcher
	invalidator summaryInvalidator
	metrics     recomputeObserver
	logger      *zap.Logger
	maxRetries  int
}

// NewRecomputeService constructs the recompute orchestrator.
func NewRecomputeService(attainment scopeComputer, results resultSwapper, jobsRepo engineJobStore, queue queueDispatcher, invalidator summaryInvalidator, metrics recomputeObserver, maxRetries int, logger *zap.Logger) *RecomputeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RecomputeService{
		attainment:  attainment,
		results:     results,
		jobsRepo:    jobsRepo,
		queue:       queue,
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger,
		maxRetries:  maxRetries,
	}
}

// Request accepts a recompute. Course scopes complete before the response
// returns; program scopes come back QUEUED with a job id to poll.
func (s *RecomputeService) Request(ctx context.Context, req dto.RecomputeRequest, actorID string) (*dto.JobResponse, error) {
	scope := models.RecomputeScope{CourseOfferingID: req.CourseOfferingID, ProgramID: req.ProgramID}
	if scope.Empty() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "courseOfferingId or programId is required")
	}
	if scope.CourseOfferingID != "" && scope.ProgramID != "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scope must name a single course offering or program")
	}
	if req.Strategy != "" && !req.Strategy.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported rollup strategy")
	}

	job := &models.EngineJob{
		Type:      models.JobTypeRecompute,
		Params:    models.JobParams{Scope: scope, Strategy: req.Strategy, Period: req.Period},
		Status:    models.JobStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.jobsRepo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create recompute job")
	}

	if scope.IsProgram() {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.markFailed(ctx, job.ID, "failed to enqueue job")
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue recompute job")
		}
		return &dto.JobResponse{ID: job.ID, Type: job.Type, Status: job.Status, Progress: 0}, nil
	}

	if err := s.Run(ctx, job); err != nil {
		return nil, err
	}
	finished, err := s.jobsRepo.GetByID(ctx, job.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload recompute job")
	}
	return &dto.JobResponse{ID: finished.ID, Type: finished.Type, Status: finished.Status, Progress: finished.Progress}, nil
}

// Run executes one recompute job end to end: fingerprint the scope, derive
// every result from raw inputs, then swap the scope atomically. A fingerprint
// mismatch at swap time abandons the run without touching prior results.
func (s *RecomputeService) Run(ctx context.Context, job *models.EngineJob) error {
	started := time.Now()
	scopeLabel := "course_offering"
	if job.Params.Scope.IsProgram() {
		scopeLabel = "program"
	}

	processing := models.JobStatusProcessing
	progress := 10
	if err := s.jobsRepo.Update(ctx, job.ID, repository.UpdateJobParams{Status: &processing, Progress: &progress}); err != nil {
		return err
	}

	err := s.runScope(ctx, job)
	status := "finished"
	switch {
	case err == nil:
		finished := models.JobStatusFinished
		done := 100
		now := time.Now().UTC()
		clear := ""
		if updateErr := s.jobsRepo.Update(ctx, job.ID, repository.UpdateJobParams{
			Status: &finished, Progress: &done, ErrorMessage: &clear, FinishedAt: &now,
		}); updateErr != nil {
			s.logger.Sugar().Warnw("failed to mark recompute finished", "job_id", job.ID, "error", updateErr)
		}
	case errors.Is(err, appErrors.ErrStaleScope):
		status = "stale"
		if s.metrics != nil {
			s.metrics.RecordStaleScopeAbort()
		}
		s.markFailed(ctx, job.ID, appErrors.ErrStaleScope.Code)
	default:
		status = "failed"
		s.markFailed(ctx, job.ID, err.Error())
	}
	if s.metrics != nil {
		s.metrics.ObserveRecompute(scopeLabel, status, time.Since(started))
	}
	return err
}

func (s *RecomputeService) runScope(ctx context.Context, job *models.EngineJob) error {
	scope := job.Params.Scope

	var (
		results  []models.AttainmentResult
		scopeIDs []string
		err      error
	)
	// Capture the basis fingerprint before reading anything else; ReplaceScope
	// re-checks it inside the swap transaction.
	var fingerprint string
	if scope.IsProgram() {
		results, scopeIDs, err = s.attainment.ComputeProgramScope(ctx, scope.ProgramID, job.Params.Strategy)
	} else {
		results, scopeIDs, err = s.attainment.ComputeCourseScope(ctx, scope.CourseOfferingID, job.Params.Strategy)
	}
	if err != nil {
		return err
	}
	if len(scopeIDs) == 0 {
		return nil
	}
	fingerprint, err = s.results.ScopeFingerprint(ctx, scopeIDs)
	if err != nil {
		return err
	}

	// Recompute once more against the fingerprinted basis so the swap check
	// covers everything the results were derived from.
	if scope.IsProgram() {
		results, scopeIDs, err = s.attainment.ComputeProgramScope(ctx, scope.ProgramID, job.Params.Strategy)
	} else {
		results, scopeIDs, err = s.attainment.ComputeCourseScope(ctx, scope.CourseOfferingID, job.Params.Strategy)
	}
	if err != nil {
		return err
	}

	progress := 70
	if err := s.jobsRepo.Update(ctx, job.ID, repository.UpdateJobParams{Progress: &progress}); err != nil {
		s.logger.Sugar().Warnw("failed to update recompute progress", "job_id", job.ID, "error", err)
	}

	if err := s.results.ReplaceScope(ctx, scopeIDs, fingerprint, results); err != nil {
		return err
	}
	if job.Params.Period != "" {
		if err := s.results.AppendHistory(ctx, job.Params.Period, results); err != nil {
			s.logger.Sugar().Warnw("failed to append attainment history", "job_id", job.ID, "period", job.Params.Period, "error", err)
		}
	}
	if s.invalidator != nil {
		scopeKey := scope.CourseOfferingID
		if scope.IsProgram() {
			scopeKey = scope.ProgramID
		}
		s.invalidator.InvalidateScope(ctx, scopeKey)
	}
	s.logger.Info("recompute completed",
		zap.String("job_id", job.ID),
		zap.String("course_offering_id", scope.CourseOfferingID),
		zap.String("program_id", scope.ProgramID),
		zap.Int("results", len(results)))
	return nil
}

// GetStatus exposes job metadata to clients.
func (s *RecomputeService) GetStatus(ctx context.Context, id string) (*dto.JobStatusResponse, error) {
	job, err := s.jobsRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load job")
	}
	resp := &dto.JobStatusResponse{
		ID:       job.ID,
		Type:     job.Type,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.ResultURL != nil {
		resp.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// RecoverPendingJobs replays queued jobs after a process restart.
func (s *RecomputeService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.jobsRepo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued jobs", "error", err)
		return
	}
	for _, job := range pending {
		if job.Type != models.JobTypeRecompute {
			continue
		}
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

func (s *RecomputeService) markFailed(ctx context.Context, jobID, message string) {
	failed := models.JobStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := s.jobsRepo.Update(ctx, jobID, repository.UpdateJobParams{
		Status: &failed, Progress: &progress, ErrorMessage: &message, FinishedAt: &now,
	}); err != nil {
		s.logger.Sugar().Warnw("failed to mark job failed", "job_id", jobID, "error", err)
	}
}

// RecomputeWorker bridges queue jobs to RecomputeService runs. Failed runs
// surface their error to the queue so its retry policy applies; stale-scope
// retries recompute against the fresh basis.
type RecomputeWorker struct {
	service *RecomputeService
	repo    engineJobStore
	logger  *zap.Logger
}

// NewRecomputeWorker constructs a worker.
func NewRecomputeWorker(service *RecomputeService, repo engineJobStore, logger *zap.Logger) *RecomputeWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecomputeWorker{service: service, repo: repo, logger: logger}
}

// Handle processes one queued recompute job.
func (w *RecomputeWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status == models.JobStatusFinished {
		return nil
	}
	return w.service.Run(ctx, record)
}
