package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
)

type summaryResultStore interface {
	ListByOutcomes(ctx context.Context, kind models.SubjectKind, outcomeIDs []string) ([]models.AttainmentResult, error)
	ListBySubject(ctx context.Context, kind models.SubjectKind, subjectID string) ([]models.AttainmentResult, error)
	ListHistory(ctx context.Context, kind models.SubjectKind, subjectID string, outcomeIDs []string) ([]models.AttainmentHistoryRow, error)
}

// SummaryService shapes persisted attainment results into chart-ready
// payloads. It only reads what recompute runs have written; nothing here
// recomputes attainment.
type SummaryService struct {
	outcomes outcomeReader
	results  summaryResultStore
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewSummaryService constructs a summary service.
func NewSummaryService(outcomes outcomeReader, results summaryResultStore, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *SummaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryService{outcomes: outcomes, results: results, cache: cache, metrics: metrics, logger: logger}
}

// CourseSummary returns the cohort CLO series for one course offering. The
// boolean indicates whether data originated from cache.
func (s *SummaryService) CourseSummary(ctx context.Context, courseOfferingID string) ([]models.ChartPoint, bool, error) {
	cacheKey := makeSummaryCacheKey("course", courseOfferingID)
	var cached []models.ChartPoint
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, true, nil
		}
	}

	points, err := s.cohortSeries(ctx, models.TierCLO, courseOfferingID)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, points, 0); err != nil {
			s.logger.Warn("cache course summary", zap.Error(err))
		}
	}
	return points, false, nil
}

// ProgramSummary returns the cohort series for a program at PLO or PEO tier.
func (s *SummaryService) ProgramSummary(ctx context.Context, programID string, tier models.OutcomeTier) ([]models.ChartPoint, bool, error) {
	if tier != models.TierPLO && tier != models.TierPEO {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "program summaries cover PLO or PEO tiers")
	}
	cacheKey := makeSummaryCacheKey("program", programID, string(tier))
	var cached []models.ChartPoint
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, true, nil
		}
	}

	points, err := s.cohortSeries(ctx, tier, programID)
	if err != nil {
		return nil, false, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, points, 0); err != nil {
			s.logger.Warn("cache program summary", zap.Error(err))
		}
	}
	return points, false, nil
}

func (s *SummaryService) cohortSeries(ctx context.Context, tier models.OutcomeTier, scopeID string) ([]models.ChartPoint, error) {
	outcomes, err := s.outcomes.List(ctx, models.OutcomeFilter{Tier: tier, ScopeID: scopeID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list outcomes")
	}
	outcomeIDs := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		outcomeIDs = append(outcomeIDs, outcome.ID)
	}

	start := time.Now()
	results, err := s.results.ListByOutcomes(ctx, models.SubjectCohort, outcomeIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load results")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("summary_cohort_series", time.Since(start))
	}

	byOutcome := make(map[string]*models.AttainmentResult, len(results))
	for i := range results {
		byOutcome[results[i].OutcomeID] = &results[i]
	}
	// Every outcome appears in the series; an outcome with no stored result
	// renders as an unmeasured point rather than disappearing.
	points := make([]models.ChartPoint, 0, len(outcomes))
	for _, outcome := range outcomes {
		point := models.ChartPoint{
			Name:      outcome.Code,
			OutcomeID: outcome.ID,
			Value:     models.Undefined(),
			Level:     models.LevelUnknown,
		}
		if result, ok := byOutcome[outcome.ID]; ok {
			point.Value = result.Attainment
			point.Level = result.Level
			point.SubjectID = result.SubjectID
			point.Overridden = result.Overridden
		}
		points = append(points, point)
	}
	return points, nil
}

// Trend pivots the program's PLO history into one row per period. Periods
// with no snapshot are simply absent; rows never interpolate.
func (s *SummaryService) Trend(ctx context.Context, programID string) ([]models.TrendRow, bool, error) {
	cacheKey := makeSummaryCacheKey("trend", programID)
	var cached []models.TrendRow
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, true, nil
		}
	}

	plos, err := s.outcomes.List(ctx, models.OutcomeFilter{Tier: models.TierPLO, ScopeID: programID})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list program outcomes")
	}
	outcomeIDs := make([]string, 0, len(plos))
	for _, plo := range plos {
		outcomeIDs = append(outcomeIDs, plo.ID)
	}

	history, err := s.results.ListHistory(ctx, models.SubjectCohort, programID, outcomeIDs)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}

	byPeriod := make(map[string]map[string]models.Attainment)
	periods := make([]string, 0)
	for _, row := range history {
		values, ok := byPeriod[row.Period]
		if !ok {
			values = make(map[string]models.Attainment, len(plos))
			byPeriod[row.Period] = values
			periods = append(periods, row.Period)
		}
		values[row.OutcomeCode] = row.Attainment
	}
	sort.Strings(periods)

	rows := make([]models.TrendRow, 0, len(periods))
	for _, period := range periods {
		rows = append(rows, models.TrendRow{Period: period, Values: byPeriod[period]})
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, rows, 0); err != nil {
			s.logger.Warn("cache trend", zap.Error(err))
		}
	}
	return rows, false, nil
}

// StudentBreakdown builds the nested student -> course -> CLO table from
// stored per-student results.
func (s *SummaryService) StudentBreakdown(ctx context.Context, studentID string) (*models.StudentBreakdown, bool, error) {
	cacheKey := makeSummaryCacheKey("student", studentID)
	var cached models.StudentBreakdown
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	results, err := s.results.ListBySubject(ctx, models.SubjectStudent, studentID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student results")
	}

	clos, err := s.outcomes.List(ctx, models.OutcomeFilter{Tier: models.TierCLO})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list outcomes")
	}
	courseByOutcome := make(map[string]string, len(clos))
	for _, clo := range clos {
		courseByOutcome[clo.ID] = clo.ScopeID
	}

	grouped := make(map[string][]models.CLOBreakdownCell)
	courses := make([]string, 0)
	for _, result := range results {
		if result.Tier != models.TierCLO {
			continue
		}
		courseID := courseByOutcome[result.OutcomeID]
		if courseID == "" {
			continue
		}
		if _, ok := grouped[courseID]; !ok {
			courses = append(courses, courseID)
		}
		grouped[courseID] = append(grouped[courseID], models.CLOBreakdownCell{
			OutcomeID:  result.OutcomeID,
			Code:       result.OutcomeCode,
			Attainment: result.Attainment,
			Level:      result.Level,
		})
	}
	sort.Strings(courses)

	breakdown := &models.StudentBreakdown{StudentID: studentID, Courses: make([]models.CourseBreakdown, 0, len(courses))}
	for _, courseID := range courses {
		breakdown.Courses = append(breakdown.Courses, models.CourseBreakdown{
			CourseOfferingID: courseID,
			CLOs:             grouped[courseID],
		})
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, breakdown, 0); err != nil {
			s.logger.Warn("cache student breakdown", zap.Error(err))
		}
	}
	return breakdown, false, nil
}

// InvalidateScope drops cached summaries affected by edits inside one scope.
// Student breakdown keys cannot be mapped back to a scope cheaply, so those
// are dropped wholesale.
func (s *SummaryService) InvalidateScope(ctx context.Context, scopeID string) {
	if s.cache == nil {
		return
	}
	patterns := []string{
		fmt.Sprintf("summary:*:%s*", scopeID),
		"summary:student:*",
	}
	for _, pattern := range patterns {
		if err := s.cache.Invalidate(ctx, pattern); err != nil {
			s.logger.Warn("summary invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}

func makeSummaryCacheKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts)+1)
	cleaned = append(cleaned, "summary")
	for _, part := range parts {
		if part == "" {
			part = "-"
		}
		cleaned = append(cleaned, strings.ReplaceAll(part, " ", "_"))
	}
	return strings.Join(cleaned, ":")
}
