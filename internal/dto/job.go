package dto

import "github.com/SaddamHosen42/obe-engine-api/internal/models"

// RecomputeRequest captures POST /attainment/recompute payload. Exactly one
// of courseOfferingId or programId must be set.
type RecomputeRequest struct {
	CourseOfferingID string                `json:"courseOfferingId,omitempty"`
	ProgramID        string                `json:"programId,omitempty"`
	Strategy         models.RollupStrategy `json:"strategy,omitempty"`
	Period           string                `json:"period,omitempty"`
}

// ExportRequest captures POST /exports payload.
type ExportRequest struct {
	CourseOfferingID string              `json:"courseOfferingId,omitempty"`
	ProgramID        string              `json:"programId,omitempty"`
	Tier             models.OutcomeTier  `json:"tier,omitempty"`
	Format           models.ExportFormat `json:"format"`
}

// JobResponse is returned after a job is accepted or completed inline.
type JobResponse struct {
	ID       string           `json:"id"`
	Type     models.JobType   `json:"type"`
	Status   models.JobStatus `json:"status"`
	Progress int              `json:"progress"`
}

// JobStatusResponse exposes job progress metadata.
type JobStatusResponse struct {
	ID        string           `json:"id"`
	Type      models.JobType   `json:"type"`
	Status    models.JobStatus `json:"status"`
	Progress  int              `json:"progress"`
	ResultURL *string          `json:"resultUrl,omitempty"`
	Error     *string          `json:"error,omitempty"`
}
