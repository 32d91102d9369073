package service

import (
	"context"
	"database/sql"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
)

type mockOutcomeReader struct {
	outcomes map[string]models.Outcome
}

func (m *mockOutcomeReader) FindByID(ctx context.Context, id string) (*models.Outcome, error) {
	outcome, ok := m.outcomes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &outcome, nil
}

func (m *mockOutcomeReader) List(ctx context.Context, filter models.OutcomeFilter) ([]models.Outcome, error) {
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
	// The real repository returns outcomes ORDER BY code ASC; match that
	// contract so map iteration order does not leak into results.
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

type mockChildLister struct {
	children map[string][]models.MappedOutcome
}

func (m *mockChildLister) ListChildren(ctx context.Context, parentID string) ([]models.MappedOutcome, error) {
	return m.children[parentID], nil
}

type mockAllocationSource struct {
	allocations []models.CLOAllocation
}

func (m *mockAllocationSource) GetAllocationsForCLOs(ctx context.Context, cloIDs []string) ([]models.CLOAllocation, error) {
	wanted := make(map[string]bool, len(cloIDs))
	for _, id := range cloIDs {
		wanted[id] = true
	}
	var result []models.CLOAllocation
	for _, alloc := range m.allocations {
		if wanted[alloc.CLOID] {
			result = append(result, alloc)
		}
	}
	return result, nil
}

type mockScoreSource struct {
	records []models.ScoreRecord
}

func (m *mockScoreSource) FetchScores(ctx context.Context, itemIDs []string, studentIDs []string) ([]models.ScoreRecord, error) {
	items := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		items[id] = true
	}
	students := make(map[string]bool, len(studentIDs))
	for _, id := range studentIDs {
		students[id] = true
	}
	var result []models.ScoreRecord
	for _, record := range m.records {
		if !items[record.AssessmentItemID] {
			continue
		}
		if len(students) > 0 && !students[record.StudentID] {
			continue
		}
		result = append(result, record)
	}
	return result, nil
}

func (m *mockScoreSource) ListStudents(ctx context.Context, itemIDs []string) ([]string, error) {
	seen := make(map[string]bool)
	var result []string
	for _, record := range m.records {
		if !seen[record.StudentID] {
			seen[record.StudentID] = true
			result = append(result, record.StudentID)
		}
	}
	return result, nil
}

type mockThresholdResolver struct {
	bands models.ThresholdConfig
}

func (m *mockThresholdResolver) ResolveMany(ctx context.Context, outcomeIDs []string) (map[string]models.ThresholdConfig, error) {
	resolved := make(map[string]models.ThresholdConfig, len(outcomeIDs))
	for _, id := range outcomeIDs {
		resolved[id] = m.bands
	}
	return resolved, nil
}

func (m *mockThresholdResolver) Classify(ctx context.Context, outcomeID string, a models.Attainment) (models.AttainmentLevel, error) {
	return models.Classify(a, m.bands), nil
}

type mockResultCache struct {
	results   map[string]models.AttainmentResult
	overrides []models.AttainmentOverride
}

func (m *mockResultCache) Get(ctx context.Context, kind models.SubjectKind, subjectID, outcomeID string) (*models.AttainmentResult, error) {
	result, ok := m.results[string(kind)+subjectID+outcomeID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &result, nil
}

func (m *mockResultCache) SaveOverride(ctx context.Context, override *models.AttainmentOverride, applied *models.AttainmentResult) error {
	m.overrides = append(m.overrides, *override)
	if m.results == nil {
		m.results = make(map[string]models.AttainmentResult)
	}
	row := *applied
	row.Overridden = true
	m.results[string(override.SubjectKind)+override.SubjectID+override.OutcomeID] = row
	return nil
}

func (m *mockResultCache) ListOverrides(ctx context.Context, outcomeID string) ([]models.AttainmentOverride, error) {
	var result []models.AttainmentOverride
	for _, override := range m.overrides {
		if override.OutcomeID == outcomeID {
			result = append(result, override)
		}
	}
	return result, nil
}

// newCourseFixture builds a two-item course: item-1 carries 10 marks split
// 6/4 between clo-1 and clo-2, item-2 carries 20 marks with 10 on clo-1.
// Student s1 scored 7/10 and 15/20; student s2 scored only 5/10 on item-1.
func newCourseFixture() (*mockOutcomeReader, *mockChildLister, *mockAllocationSource, *mockScoreSource) {
	outcomes := &mockOutcomeReader{outcomes: map[string]models.Outcome{
		"clo-1": {ID: "clo-1", Tier: models.TierCLO, ScopeID: "co-1", Code: "CLO1"},
		"clo-2": {ID: "clo-2", Tier: models.TierCLO, ScopeID: "co-1", Code: "CLO2"},
		"clo-3": {ID: "clo-3", Tier: models.TierCLO, ScopeID: "co-1", Code: "CLO3"},
		"plo-1": {ID: "plo-1", Tier: models.TierPLO, ScopeID: "prog-1", Code: "PLO1"},
		"peo-1": {ID: "peo-1", Tier: models.TierPEO, ScopeID: "prog-1", Code: "PEO1"},
	}}
	mappings := &mockChildLister{children: map[string][]models.MappedOutcome{
		"plo-1": {
			{Outcome: models.Outcome{ID: "clo-1", Tier: models.TierCLO, Code: "CLO1"}, Weight: 1},
			{Outcome: models.Outcome{ID: "clo-2", Tier: models.TierCLO, Code: "CLO2"}, Weight: 1},
		},
		"peo-1": {
			{Outcome: models.Outcome{ID: "plo-1", Tier: models.TierPLO, Code: "PLO1"}, Weight: 1},
		},
	}}
	allocations := &mockAllocationSource{allocations: []models.CLOAllocation{
		{AssessmentItemID: "item-1", CLOID: "clo-1", MarksAllocated: 6, TotalMarks: 10},
		{AssessmentItemID: "item-1", CLOID: "clo-2", MarksAllocated: 4, TotalMarks: 10},
		{AssessmentItemID: "item-2", CLOID: "clo-1", MarksAllocated: 10, TotalMarks: 20},
	}}
	scores := &mockScoreSource{records: []models.ScoreRecord{
		{StudentID: "s1", AssessmentItemID: "item-1", ObtainedMarks: 7},
		{StudentID: "s1", AssessmentItemID: "item-2", ObtainedMarks: 15},
		{StudentID: "s2", AssessmentItemID: "item-1", ObtainedMarks: 5},
	}}
	return outcomes, mappings, allocations, scores
}

func newAttainmentFixture() (*AttainmentService, *mockResultCache) {
	outcomes, mappings, allocations, scores := newCourseFixture()
	results := &mockResultCache{results: map[string]models.AttainmentResult{}}
	thresholds := &mockThresholdResolver{bands: models.DefaultThresholds()}
	svc := NewAttainmentService(outcomes, mappings, allocations, scores, thresholds, results, models.RollupMarksFirst, zap.NewNop())
	return svc, results
}

func TestComputeStudentCLOSplitsMarksByAllocation(t *testing.T) {
	svc, _ := newAttainmentFixture()

	// s1 on clo-1: 7*(6/10) + 15*(10/20) = 11.7 of 16 allocated marks.
	result, err := svc.Compute(context.Background(), models.SubjectStudent, "s1", "clo-1", "")
	require.NoError(t, err)
	require.True(t, result.Attainment.Defined)
	assert.InDelta(t, 73.125, result.Attainment.Percent, 1e-9)
	assert.Equal(t, models.LevelHigh, result.Level)
	assert.Equal(t, 2, result.Counts.AssessmentItems)

	// s1 on clo-2: 7*(4/10) = 2.8 of 4.
	result, err = svc.Compute(context.Background(), models.SubjectStudent, "s1", "clo-2", "")
	require.NoError(t, err)
	assert.InDelta(t, 70.0, result.Attainment.Percent, 1e-9)
}

func TestComputeStudentCLOExcludesUnscoredItems(t *testing.T) {
	svc, _ := newAttainmentFixture()

	// s2 never sat item-2, so clo-1 is measured from item-1 alone: 3 of 6.
	result, err := svc.Compute(context.Background(), models.SubjectStudent, "s2", "clo-1", "")
	require.NoError(t, err)
	require.True(t, result.Attainment.Defined)
	assert.InDelta(t, 50.0, result.Attainment.Percent, 1e-9)
	assert.Equal(t, 1, result.Counts.AssessmentItems)
}

func TestComputeUnallocatedCLOIsUndefined(t *testing.T) {
	svc, _ := newAttainmentFixture()

	result, err := svc.Compute(context.Background(), models.SubjectStudent, "s1", "clo-3", "")
	require.NoError(t, err)
	assert.False(t, result.Attainment.Defined)
	assert.Equal(t, models.LevelUnknown, result.Level)
}

func TestCohortStrategiesDiverge(t *testing.T) {
	svc, _ := newAttainmentFixture()

	// Pooled: (11.7 + 3) / (16 + 6) = 66.8181...%
	marksFirst, err := svc.Compute(context.Background(), models.SubjectCohort, "co-1", "clo-1", models.RollupMarksFirst)
	require.NoError(t, err)
	require.True(t, marksFirst.Attainment.Defined)
	assert.InDelta(t, 100*14.7/22.0, marksFirst.Attainment.Percent, 1e-9)
	assert.Equal(t, 2, marksFirst.Counts.Students)

	// Mean of per-student percentages: (73.125 + 50) / 2.
	studentFirst, err := svc.Compute(context.Background(), models.SubjectCohort, "co-1", "clo-1", models.RollupStudentFirst)
	require.NoError(t, err)
	require.True(t, studentFirst.Attainment.Defined)
	assert.InDelta(t, 61.5625, studentFirst.Attainment.Percent, 1e-9)

	assert.NotEqual(t, marksFirst.Attainment.Percent, studentFirst.Attainment.Percent)
}

func TestComputeIsDeterministic(t *testing.T) {
	svc, _ := newAttainmentFixture()

	first, err := svc.Compute(context.Background(), models.SubjectCohort, "co-1", "plo-1", "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := svc.Compute(context.Background(), models.SubjectCohort, "co-1", "plo-1", "")
		require.NoError(t, err)
		assert.Equal(t, first.Attainment, again.Attainment)
		assert.Equal(t, first.Level, again.Level)
		assert.Equal(t, first.Counts, again.Counts)
	}
}

func TestComputeIgnoresInputOrder(t *testing.T) {
	baselineSvc, _ := newAttainmentFixture()
	baseline, err := baselineSvc.Compute(context.Background(), models.SubjectCohort, "co-1", "plo-1", "")
	require.NoError(t, err)

	for seed := int64(1); seed <= 5; seed++ {
		outcomes, mappings, allocations, scores := newCourseFixture()
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(allocations.allocations), func(i, j int) {
			allocations.allocations[i], allocations.allocations[j] = allocations.allocations[j], allocations.allocations[i]
		})
		rng.Shuffle(len(scores.records), func(i, j int) {
			scores.records[i], scores.records[j] = scores.records[j], scores.records[i]
		})
		thresholds := &mockThresholdResolver{bands: models.DefaultThresholds()}
		svc := NewAttainmentService(outcomes, mappings, allocations, scores, thresholds,
			&mockResultCache{}, models.RollupMarksFirst, zap.NewNop())

		again, err := svc.Compute(context.Background(), models.SubjectCohort, "co-1", "plo-1", "")
		require.NoError(t, err)
		assert.Equal(t, baseline.Attainment, again.Attainment)
		assert.Equal(t, baseline.Level, again.Level)
		assert.Equal(t, baseline.Counts, again.Counts)

		scopeResults, _, err := svc.ComputeCourseScope(context.Background(), "co-1", models.RollupMarksFirst)
		require.NoError(t, err)
		baselineScope, _, err := baselineSvc.ComputeCourseScope(context.Background(), "co-1", models.RollupMarksFirst)
		require.NoError(t, err)
		require.Len(t, scopeResults, len(baselineScope))
		for i := range baselineScope {
			assert.Equal(t, baselineScope[i].OutcomeCode, scopeResults[i].OutcomeCode)
			assert.Equal(t, baselineScope[i].SubjectID, scopeResults[i].SubjectID)
			assert.Equal(t, baselineScope[i].Attainment, scopeResults[i].Attainment)
		}
	}
}

func TestRollupSkipsUnmeasuredChildren(t *testing.T) {
	attainments := map[string]models.Attainment{
		"clo-1": models.Measured(80),
		"clo-2": models.Measured(50),
		"clo-3": models.Undefined(),
	}
	children := []models.MappedOutcome{
		{Outcome: models.Outcome{ID: "clo-1"}, Weight: 2},
		{Outcome: models.Outcome{ID: "clo-2"}, Weight: 0}, // missing weight behaves as 1
		{Outcome: models.Outcome{ID: "clo-3"}, Weight: 5},
	}

	attainment, counts := rollupChildren(children, attainments)
	require.True(t, attainment.Defined)
	assert.InDelta(t, (80*2+50*1)/3.0, attainment.Percent, 1e-9)
	assert.Equal(t, 2, counts.ChildrenMeasured)
	assert.Equal(t, 1, counts.ChildrenUnmeasured)
}

func TestRollupAllUndefinedChildrenIsUndefined(t *testing.T) {
	attainments := map[string]models.Attainment{
		"clo-1": models.Undefined(),
		"clo-2": models.Undefined(),
	}
	children := []models.MappedOutcome{
		{Outcome: models.Outcome{ID: "clo-1"}, Weight: 1},
		{Outcome: models.Outcome{ID: "clo-2"}, Weight: 1},
	}

	attainment, counts := rollupChildren(children, attainments)
	assert.False(t, attainment.Defined)
	assert.Equal(t, 0, counts.ChildrenMeasured)
	assert.Equal(t, 2, counts.ChildrenUnmeasured)
}

func TestComputePLORecursesThroughCLOs(t *testing.T) {
	svc, _ := newAttainmentFixture()

	result, err := svc.Compute(context.Background(), models.SubjectCohort, "co-1", "plo-1", models.RollupMarksFirst)
	require.NoError(t, err)
	require.True(t, result.Attainment.Defined)
	// clo-1 pooled 66.8181..., clo-2 pooled (2.8+2.0)/8 = 60, equal weights.
	clo1 := 100 * 14.7 / 22.0
	clo2 := 100 * 4.8 / 8.0
	assert.InDelta(t, (clo1+clo2)/2, result.Attainment.Percent, 1e-9)
	assert.Equal(t, 2, result.Counts.ChildrenMeasured)
}

func TestComputeUnknownOutcomeIsNotFound(t *testing.T) {
	svc, _ := newAttainmentFixture()

	_, err := svc.Compute(context.Background(), models.SubjectStudent, "s1", "missing", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOverridePreservesComputedOriginal(t *testing.T) {
	svc, results := newAttainmentFixture()

	override, err := svc.Override(context.Background(), OverrideRequest{
		SubjectKind: models.SubjectStudent,
		SubjectID:   "s1",
		OutcomeID:   "clo-1",
		Value:       90,
		Reason:      "regrade after appeal",
		ActorID:     "coordinator-1",
	})
	require.NoError(t, err)
	require.Len(t, results.overrides, 1)
	assert.Equal(t, 90.0, override.Value)
	require.True(t, override.Original.Defined)
	assert.InDelta(t, 73.125, override.Original.Percent, 1e-9)
	assert.Equal(t, "coordinator-1", override.ActorID)
}

func TestOverrideVisibleWithoutPriorRecompute(t *testing.T) {
	svc, results := newAttainmentFixture()

	// No cached result exists for the subject yet; the override must still
	// land where subsequent reads can see it.
	_, err := svc.Override(context.Background(), OverrideRequest{
		SubjectKind: models.SubjectStudent,
		SubjectID:   "s1",
		OutcomeID:   "clo-1",
		Value:       90,
		Reason:      "regrade after appeal",
		ActorID:     "coordinator-1",
	})
	require.NoError(t, err)

	stored, ok := results.results[string(models.SubjectStudent)+"s1"+"clo-1"]
	require.True(t, ok)
	assert.True(t, stored.Overridden)
	assert.InDelta(t, 90.0, stored.Attainment.Percent, 1e-9)
	assert.Equal(t, models.LevelExcellent, stored.Level)

	got, err := svc.GetAttainment(context.Background(), models.SubjectStudent, "s1", "clo-1", "")
	require.NoError(t, err)
	assert.True(t, got.Overridden)
	assert.InDelta(t, 90.0, got.Attainment.Percent, 1e-9)
}

func TestOverrideRejectsOutOfRangeValue(t *testing.T) {
	svc, results := newAttainmentFixture()

	_, err := svc.Override(context.Background(), OverrideRequest{
		SubjectKind: models.SubjectStudent,
		SubjectID:   "s1",
		OutcomeID:   "clo-1",
		Value:       120,
		Reason:      "typo",
	})
	require.Error(t, err)
	assert.Empty(t, results.overrides)
}

func TestGetAttainmentPrefersOverriddenResult(t *testing.T) {
	svc, results := newAttainmentFixture()
	results.results[string(models.SubjectStudent)+"s1"+"clo-1"] = models.AttainmentResult{
		SubjectKind: models.SubjectStudent,
		SubjectID:   "s1",
		OutcomeID:   "clo-1",
		Attainment:  models.Measured(95),
		Level:       models.LevelExcellent,
		Overridden:  true,
	}

	result, err := svc.GetAttainment(context.Background(), models.SubjectStudent, "s1", "clo-1", "")
	require.NoError(t, err)
	assert.True(t, result.Overridden)
	assert.InDelta(t, 95.0, result.Attainment.Percent, 1e-9)
}

func TestGetAttainmentRecomputesWhenNotOverridden(t *testing.T) {
	svc, results := newAttainmentFixture()
	results.results[string(models.SubjectStudent)+"s1"+"clo-1"] = models.AttainmentResult{
		SubjectKind: models.SubjectStudent,
		SubjectID:   "s1",
		OutcomeID:   "clo-1",
		Attainment:  models.Measured(12),
		Overridden:  false,
	}

	result, err := svc.GetAttainment(context.Background(), models.SubjectStudent, "s1", "clo-1", "")
	require.NoError(t, err)
	assert.False(t, result.Overridden)
	assert.InDelta(t, 73.125, result.Attainment.Percent, 1e-9)
}

func TestComputeCourseScopeEmitsCohortAndStudentRows(t *testing.T) {
	svc, _ := newAttainmentFixture()

	results, cloIDs, err := svc.ComputeCourseScope(context.Background(), "co-1", models.RollupMarksFirst)
	require.NoError(t, err)
	assert.Len(t, cloIDs, 3)
	// 3 CLOs x (1 cohort row + 2 student rows).
	assert.Len(t, results, 9)

	byKey := make(map[string]models.AttainmentResult, len(results))
	for _, result := range results {
		byKey[string(result.SubjectKind)+result.SubjectID+result.OutcomeID] = result
	}
	cohort := byKey[string(models.SubjectCohort)+"co-1"+"clo-1"]
	assert.InDelta(t, 100*14.7/22.0, cohort.Attainment.Percent, 1e-9)
	unmapped := byKey[string(models.SubjectCohort)+"co-1"+"clo-3"]
	assert.False(t, unmapped.Attainment.Defined)
	assert.Equal(t, models.LevelUnknown, unmapped.Level)
}

func TestComputeProgramScopeRollsUpToPEOs(t *testing.T) {
	svc, _ := newAttainmentFixture()

	results, scopeIDs, err := svc.ComputeProgramScope(context.Background(), "prog-1", models.RollupMarksFirst)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"plo-1", "peo-1"}, scopeIDs)
	require.Len(t, results, 2)

	byOutcome := make(map[string]models.AttainmentResult, len(results))
	for _, result := range results {
		byOutcome[result.OutcomeID] = result
	}
	plo := byOutcome["plo-1"]
	require.True(t, plo.Attainment.Defined)
	clo1 := 100 * 14.7 / 22.0
	clo2 := 100 * 4.8 / 8.0
	assert.InDelta(t, (clo1+clo2)/2, plo.Attainment.Percent, 1e-9)

	peo := byOutcome["peo-1"]
	require.True(t, peo.Attainment.Defined)
	assert.InDelta(t, plo.Attainment.Percent, peo.Attainment.Percent, 1e-9)
	assert.Equal(t, models.SubjectCohort, peo.SubjectKind)
	assert.Equal(t, "prog-1", peo.SubjectID)
}
