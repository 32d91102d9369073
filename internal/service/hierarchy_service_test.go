package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
)

type mockOutcomeStore struct {
	outcomes map[string]models.Outcome
	deleted  []string
	cascade  models.CascadeResult
}

func (m *mockOutcomeStore) Create(ctx context.Context, outcome *models.Outcome) error {
	if m.outcomes == nil {
		m.outcomes = make(map[string]models.Outcome)
	}
	outcome.ID = fmt.Sprintf("out-%d", len(m.outcomes)+1)
	m.outcomes[outcome.ID] = *outcome
	return nil
}

func (m *mockOutcomeStore) CodeExists(ctx context.Context, tier models.OutcomeTier, scopeID, code string) (bool, error) {
	for _, outcome := range m.outcomes {
		if outcome.Tier == tier && outcome.ScopeID == scopeID && outcome.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockOutcomeStore) FindByID(ctx context.Context, id string) (*models.Outcome, error) {
	outcome, ok := m.outcomes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &outcome, nil
}

func (m *mockOutcomeStore) List(ctx context.Context, filter models.OutcomeFilter) ([]models.Outcome, error) {
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

func (m *mockOutcomeStore) UpdateDescription(ctx context.Context, id, description string) error {
	outcome, ok := m.outcomes[id]
	if !ok {
		return sql.ErrNoRows
	}
	outcome.Description = description
	m.outcomes[id] = outcome
	return nil
}

func (m *mockOutcomeStore) DeleteCascade(ctx context.Context, id string) (*models.CascadeResult, error) {
	if _, ok := m.outcomes[id]; !ok {
		return nil, sql.ErrNoRows
	}
	delete(m.outcomes, id)
	m.deleted = append(m.deleted, id)
	result := m.cascade
	result.OutcomeID = id
	return &result, nil
}

type mockMappingStore struct {
	edges   map[string]models.MappingEdge // childID|parentID
	deletes []string
}

func (m *mockMappingStore) Upsert(ctx context.Context, edge *models.MappingEdge) error {
	if m.edges == nil {
		m.edges = make(map[string]models.MappingEdge)
	}
	m.edges[edge.ChildID+"|"+edge.ParentID] = *edge
	return nil
}

func (m *mockMappingStore) Delete(ctx context.Context, childID, parentID string) error {
	delete(m.edges, childID+"|"+parentID)
	m.deletes = append(m.deletes, childID+"|"+parentID)
	return nil
}

func (m *mockMappingStore) ListChildren(ctx context.Context, parentID string) ([]models.MappedOutcome, error) {
	var result []models.MappedOutcome
	for _, edge := range m.edges {
		if edge.ParentID == parentID {
			result = append(result, models.MappedOutcome{Outcome: models.Outcome{ID: edge.ChildID}, Weight: edge.Weight})
		}
	}
	return result, nil
}

func (m *mockMappingStore) ListParents(ctx context.Context, childID string) ([]models.MappedOutcome, error) {
	var result []models.MappedOutcome
	for _, edge := range m.edges {
		if edge.ChildID == childID {
			result = append(result, models.MappedOutcome{Outcome: models.Outcome{ID: edge.ParentID}, Weight: edge.Weight})
		}
	}
	return result, nil
}

type mockSummaryInvalidator struct {
	scopes []string
}

func (m *mockSummaryInvalidator) InvalidateScope(ctx context.Context, scopeID string) {
	m.scopes = append(m.scopes, scopeID)
}

func newHierarchyFixture() (*HierarchyService, *mockOutcomeStore, *mockMappingStore, *mockSummaryInvalidator) {
	outcomes := &mockOutcomeStore{outcomes: map[string]models.Outcome{
		"clo-1": {ID: "clo-1", Tier: models.TierCLO, ScopeID: "co-1", Code: "CLO1"},
		"plo-1": {ID: "plo-1", Tier: models.TierPLO, ScopeID: "prog-1", Code: "PLO1"},
		"peo-1": {ID: "peo-1", Tier: models.TierPEO, ScopeID: "prog-1", Code: "PEO1"},
	}}
	mappings := &mockMappingStore{}
	invalidator := &mockSummaryInvalidator{}
	return NewHierarchyService(outcomes, mappings, invalidator, nil, nil), outcomes, mappings, invalidator
}

func TestCreateOutcomeRejectsDuplicateCodeInScope(t *testing.T) {
	svc, _, _, _ := newHierarchyFixture()

	created, err := svc.CreateOutcome(context.Background(), CreateOutcomeRequest{
		Tier: models.TierCLO, ScopeID: "co-2", Code: "CLO1", Description: "analyse requirements",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	// Same code in the same scope and tier is refused.
	_, err = svc.CreateOutcome(context.Background(), CreateOutcomeRequest{
		Tier: models.TierCLO, ScopeID: "co-1", Code: "CLO1", Description: "duplicate",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrDuplicateCode.Code, appErr.Code)
}

func TestSetMappingEnforcesAdjacentTiers(t *testing.T) {
	svc, _, mappings, _ := newHierarchyFixture()

	// CLO -> PEO skips a tier.
	err := svc.SetMapping(context.Background(), SetMappingRequest{ChildID: "clo-1", ParentID: "peo-1", Present: true})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrTierMismatch.Code, appErr.Code)
	assert.Empty(t, mappings.edges)

	// CLO -> PLO is the adjacent pair.
	err = svc.SetMapping(context.Background(), SetMappingRequest{ChildID: "clo-1", ParentID: "plo-1", Present: true, Weight: 2})
	require.NoError(t, err)
	require.Len(t, mappings.edges, 1)
	assert.Equal(t, 2.0, mappings.edges["clo-1|plo-1"].Weight)
}

func TestSetMappingRemovalIsIdempotent(t *testing.T) {
	svc, _, mappings, invalidator := newHierarchyFixture()
	require.NoError(t, svc.SetMapping(context.Background(), SetMappingRequest{ChildID: "clo-1", ParentID: "plo-1", Present: true}))

	require.NoError(t, svc.SetMapping(context.Background(), SetMappingRequest{ChildID: "clo-1", ParentID: "plo-1", Present: false}))
	assert.Empty(t, mappings.edges)

	// Removing an absent edge is not an error.
	require.NoError(t, svc.SetMapping(context.Background(), SetMappingRequest{ChildID: "clo-1", ParentID: "plo-1", Present: false}))
	assert.NotEmpty(t, invalidator.scopes)
}

func TestDeleteOutcomeReportsCascadeCounts(t *testing.T) {
	svc, outcomes, _, invalidator := newHierarchyFixture()
	outcomes.cascade = models.CascadeResult{MappingEdges: 3, AllocationRows: 5}

	result, err := svc.DeleteOutcome(context.Background(), "clo-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.MappingEdges)
	assert.Equal(t, int64(5), result.AllocationRows)
	assert.Equal(t, int64(8), result.Total())
	assert.Contains(t, invalidator.scopes, "co-1")

	_, err = svc.GetOutcome(context.Background(), "clo-1")
	require.Error(t, err)
}

func TestUpdateDescriptionRequiresText(t *testing.T) {
	svc, outcomes, _, _ := newHierarchyFixture()

	err := svc.UpdateDescription(context.Background(), "clo-1", "   ")
	require.Error(t, err)

	require.NoError(t, svc.UpdateDescription(context.Background(), "clo-1", "design concurrent systems"))
	assert.Equal(t, "design concurrent systems", outcomes.outcomes["clo-1"].Description)
}
