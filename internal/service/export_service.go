package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	"github.com/SaddamHosen42/obe-engine-api/pkg/export"
	"github.com/SaddamHosen42/obe-engine-api/pkg/storage"
)

type summarySource interface {
	CourseSummary(ctx context.Context, courseOfferingID string) ([]models.ChartPoint, bool, error)
	ProgramSummary(ctx context.Context, programID string, tier models.OutcomeTier) ([]models.ChartPoint, bool, error)
	Trend(ctx context.Context, programID string) ([]models.TrendRow, bool, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders attainment summaries into downloadable files.
type ExportService struct {
	summaries summarySource
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(summaries summarySource, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		summaries: summaries,
		storage:   storage,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Generate builds the dataset for an export job and stores the rendered file.
func (s *ExportService) Generate(ctx context.Context, job *models.EngineJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job.Params)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/exports/download/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.EngineJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := job.Params.Scope.CourseOfferingID
	if job.Params.Scope.IsProgram() {
		scope = job.Params.Scope.ProgramID
	}
	return fmt.Sprintf("attainment_%s_%s.%s", sanitizeFilename(scope), timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, params models.JobParams) (export.Dataset, string, error) {
	scope := params.Scope
	switch {
	case scope.IsProgram():
		return s.buildProgramDataset(ctx, scope.ProgramID, params.Tier)
	case scope.CourseOfferingID != "":
		return s.buildCourseDataset(ctx, scope.CourseOfferingID)
	default:
		return export.Dataset{}, "", fmt.Errorf("export scope is empty")
	}
}

func (s *ExportService) buildCourseDataset(ctx context.Context, courseOfferingID string) (export.Dataset, string, error) {
	points, _, err := s.summaries.CourseSummary(ctx, courseOfferingID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	title := fmt.Sprintf("Course Attainment %s", courseOfferingID)
	return pointsDataset(points), title, nil
}

func (s *ExportService) buildProgramDataset(ctx context.Context, programID string, tier models.OutcomeTier) (export.Dataset, string, error) {
	if tier != models.TierPEO {
		tier = models.TierPLO
	}
	points, _, err := s.summaries.ProgramSummary(ctx, programID, tier)
	if err != nil {
		return export.Dataset{}, "", err
	}
	title := fmt.Sprintf("Program %s Attainment %s", tier, programID)
	return pointsDataset(points), title, nil
}

func pointsDataset(points []models.ChartPoint) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"Outcome", "Attainment %", "Level", "Overridden"},
		Rows:    make([]map[string]string, 0, len(points)),
	}
	for _, point := range points {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Outcome":      point.Name,
			"Attainment %": formatAttainment(point.Value),
			"Level":        string(point.Level),
			"Overridden":   formatBool(point.Overridden),
		})
	}
	return dataset
}

func formatAttainment(a models.Attainment) string {
	if !a.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", a.Percent)
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
