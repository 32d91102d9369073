package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobType enumerates supported background job categories.
type JobType string

const (
	// JobTypeRecompute recomputes attainment results for a scope.
	JobTypeRecompute JobType = "recompute"
	// JobTypeExport renders a summary report into CSV or PDF.
	JobTypeExport JobType = "export"
)

// ExportFormat enumerates supported export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// JobStatus captures background job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusFinished   JobStatus = "FINISHED"
	JobStatusFailed     JobStatus = "FAILED"
)

// EngineJob is the persisted handle for an asynchronous recompute or export.
type EngineJob struct {
	ID           string    `db:"id" json:"id"`
	Type         JobType   `db:"type" json:"type"`
	Params       JobParams `db:"params" json:"params"`
	Status       JobStatus `db:"status" json:"status"`
	Progress     int       `db:"progress" json:"progress"`
	ResultURL    *string   `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string    `db:"created_by" json:"created_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
}

// JobParams stores request-scoped options persisted as JSONB.
type JobParams struct {
	Scope    RecomputeScope `json:"scope"`
	Strategy RollupStrategy `json:"strategy,omitempty"`
	Period   string         `json:"period,omitempty"`
	Tier     OutcomeTier    `json:"tier,omitempty"`
	Format   ExportFormat   `json:"format,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p JobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *JobParams) Scan(value interface{}) error {
	if value == nil {
		*p = JobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for JobParams", value)
	}
	if len(data) == 0 {
		*p = JobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal job params: %w", err)
	}
	return nil
}
