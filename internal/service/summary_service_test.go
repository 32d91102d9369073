package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
)

// orderedOutcomes returns outcomes in a fixed order so series assertions
// stay positional.
type orderedOutcomes struct {
	outcomes []models.Outcome
}

func (m *orderedOutcomes) FindByID(ctx context.Context, id string) (*models.Outcome, error) {
	for _, outcome := range m.outcomes {
		if outcome.ID == id {
			o := outcome
			return &o, nil
		}
	}
	return nil, context.Canceled
}

func (m *orderedOutcomes) List(ctx context.Context, filter models.OutcomeFilter) ([]models.Outcome, error) {
	var result []models.Outcome
	for _, outcome := range m.outcomes {
		if filter.Tier != "" && outcome.Tier != filter.Tier {
			continue
		}
		if filter.ScopeID != "" && outcome.ScopeID != filter.ScopeID {
			continue
		}
		result = append(result, outcome)
	}
	return result, nil
}

type mockSummaryResultStore struct {
	results []models.AttainmentResult
	history []models.AttainmentHistoryRow
}

func (m *mockSummaryResultStore) ListByOutcomes(ctx context.Context, kind models.SubjectKind, outcomeIDs []string) ([]models.AttainmentResult, error) {
	wanted := make(map[string]bool, len(outcomeIDs))
	for _, id := range outcomeIDs {
		wanted[id] = true
	}
	var result []models.AttainmentResult
	for _, record := range m.results {
		if record.SubjectKind == kind && wanted[record.OutcomeID] {
			result = append(result, record)
		}
	}
	return result, nil
}

func (m *mockSummaryResultStore) ListBySubject(ctx context.Context, kind models.SubjectKind, subjectID string) ([]models.AttainmentResult, error) {
	var result []models.AttainmentResult
	for _, record := range m.results {
		if record.SubjectKind == kind && record.SubjectID == subjectID {
			result = append(result, record)
		}
	}
	return result, nil
}

func (m *mockSummaryResultStore) ListHistory(ctx context.Context, kind models.SubjectKind, subjectID string, outcomeIDs []string) ([]models.AttainmentHistoryRow, error) {
	return m.history, nil
}

func newSummaryFixture(results *mockSummaryResultStore) *SummaryService {
	outcomes := &orderedOutcomes{outcomes: []models.Outcome{
		{ID: "clo-1", Tier: models.TierCLO, ScopeID: "co-1", Code: "CLO1"},
		{ID: "clo-2", Tier: models.TierCLO, ScopeID: "co-1", Code: "CLO2"},
		{ID: "clo-9", Tier: models.TierCLO, ScopeID: "co-2", Code: "CLO1"},
		{ID: "plo-1", Tier: models.TierPLO, ScopeID: "prog-1", Code: "PLO1"},
		{ID: "plo-2", Tier: models.TierPLO, ScopeID: "prog-1", Code: "PLO2"},
	}}
	return NewSummaryService(outcomes, results, nil, nil, nil)
}

func TestCourseSummaryIncludesUnmeasuredOutcomes(t *testing.T) {
	store := &mockSummaryResultStore{results: []models.AttainmentResult{
		{SubjectKind: models.SubjectCohort, SubjectID: "co-1", OutcomeID: "clo-1", OutcomeCode: "CLO1", Tier: models.TierCLO, Attainment: models.Measured(66.8), Level: models.LevelMedium},
	}}
	svc := newSummaryFixture(store)

	points, cached, err := svc.CourseSummary(context.Background(), "co-1")
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, points, 2)

	assert.Equal(t, "CLO1", points[0].Name)
	assert.True(t, points[0].Value.Defined)
	assert.Equal(t, models.LevelMedium, points[0].Level)

	// clo-2 has no stored result: it still appears, unmeasured.
	assert.Equal(t, "CLO2", points[1].Name)
	assert.False(t, points[1].Value.Defined)
	assert.Equal(t, models.LevelUnknown, points[1].Level)
}

func TestProgramSummaryRejectsCLOTier(t *testing.T) {
	svc := newSummaryFixture(&mockSummaryResultStore{})

	_, _, err := svc.ProgramSummary(context.Background(), "prog-1", models.TierCLO)
	require.Error(t, err)

	points, _, err := svc.ProgramSummary(context.Background(), "prog-1", models.TierPLO)
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestTrendPivotsHistoryByPeriod(t *testing.T) {
	store := &mockSummaryResultStore{history: []models.AttainmentHistoryRow{
		{Period: "2025-FALL", OutcomeCode: "PLO1", Attainment: models.Measured(72)},
		{Period: "2025-FALL", OutcomeCode: "PLO2", Attainment: models.Measured(64)},
		{Period: "2024-FALL", OutcomeCode: "PLO1", Attainment: models.Measured(68)},
	}}
	svc := newSummaryFixture(store)

	rows, cached, err := svc.Trend(context.Background(), "prog-1")
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, rows, 2)

	// Periods sort ascending; absent PLO2 in 2024 is simply not a key.
	assert.Equal(t, "2024-FALL", rows[0].Period)
	assert.InDelta(t, 68.0, rows[0].Values["PLO1"].Percent, 1e-9)
	_, present := rows[0].Values["PLO2"]
	assert.False(t, present)

	assert.Equal(t, "2025-FALL", rows[1].Period)
	assert.InDelta(t, 72.0, rows[1].Values["PLO1"].Percent, 1e-9)
	assert.InDelta(t, 64.0, rows[1].Values["PLO2"].Percent, 1e-9)
}

func TestStudentBreakdownGroupsByCourse(t *testing.T) {
	store := &mockSummaryResultStore{results: []models.AttainmentResult{
		{SubjectKind: models.SubjectStudent, SubjectID: "s1", OutcomeID: "clo-9", OutcomeCode: "CLO1", Tier: models.TierCLO, Attainment: models.Measured(55), Level: models.LevelLow},
		{SubjectKind: models.SubjectStudent, SubjectID: "s1", OutcomeID: "clo-1", OutcomeCode: "CLO1", Tier: models.TierCLO, Attainment: models.Measured(73.125), Level: models.LevelHigh},
		{SubjectKind: models.SubjectStudent, SubjectID: "s1", OutcomeID: "clo-2", OutcomeCode: "CLO2", Tier: models.TierCLO, Attainment: models.Undefined(), Level: models.LevelUnknown},
		// Cohort rows never leak into a student breakdown.
		{SubjectKind: models.SubjectCohort, SubjectID: "co-1", OutcomeID: "clo-1", OutcomeCode: "CLO1", Tier: models.TierCLO, Attainment: models.Measured(60)},
	}}
	svc := newSummaryFixture(store)

	breakdown, _, err := svc.StudentBreakdown(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, breakdown.Courses, 2)
	assert.Equal(t, "co-1", breakdown.Courses[0].CourseOfferingID)
	assert.Len(t, breakdown.Courses[0].CLOs, 2)
	assert.Equal(t, "co-2", breakdown.Courses[1].CourseOfferingID)
	require.Len(t, breakdown.Courses[1].CLOs, 1)
	assert.InDelta(t, 55.0, breakdown.Courses[1].CLOs[0].Attainment.Percent, 1e-9)
}

func TestSummaryCacheKeyShape(t *testing.T) {
	assert.Equal(t, "summary:course:co-1", makeSummaryCacheKey("course", "co-1"))
	assert.Equal(t, "summary:program:prog-1:PLO", makeSummaryCacheKey("program", "prog-1", "PLO"))
	assert.Equal(t, "summary:trend:-", makeSummaryCacheKey("trend", ""))
}
