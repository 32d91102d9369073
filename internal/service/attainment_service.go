package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/SaddamHosen42/obe-engine-api/internal/models"
	appErrors "github.com/SaddamHosen42/obe-engine-api/pkg/errors"
)

type outcomeReader interface {
	FindByID(ctx context.Context, id string) (*models.Outcome, error)
	List(ctx context.Context, filter models.OutcomeFilter) ([]models.Outcome, error)
}

type childLister interface {
	ListChildren(ctx context.Context, parentID string) ([]models.MappedOutcome, error)
}

type allocationSource interface {
	GetAllocationsForCLOs(ctx context.Context, cloIDs []string) ([]models.CLOAllocation, error)
}

type thresholdResolver interface {
	ResolveMany(ctx context.Context, outcomeIDs []string) (map[string]models.ThresholdConfig, error)
	Classify(ctx context.Context, outcomeID string, a models.Attainment) (models.AttainmentLevel, error)
}

type resultCache interface {
	Get(ctx context.Context, kind models.SubjectKind, subjectID, outcomeID string) (*models.AttainmentResult, error)
	SaveOverride(ctx context.Context, override *models.AttainmentOverride, applied *models.AttainmentResult) error
	ListOverrides(ctx context.Context, outcomeID string) ([]models.AttainmentOverride, error)
}

// OverrideRequest is the audited manual-correction payload.
type OverrideRequest struct {
	SubjectKind models.SubjectKind `json:"subject_kind" validate:"required,oneof=STUDENT COHORT"`
	SubjectID   string             `json:"subject_id" validate:"required"`
	OutcomeID   string             `json:"outcome_id" validate:"required"`
	Value       float64            `json:"value" validate:"gte=0,lte=100"`
	Reason      string             `json:"reason" validate:"required"`
	ActorID     string             `json:"-"`
}

// AttainmentService is the aggregation core. Every computation is a pure
// function of stored scores, allocations and mapping edges; nothing is ever
// derived from a previous AttainmentResult.
type AttainmentService struct {
	outcomes        outcomeReader
	mappings        childLister
	allocations     allocationSource
	scores          ScoreSource
	thresholds      thresholdResolver
	results         resultCache
	logger          *zap.Logger
	defaultStrategy models.RollupStrategy
}

// NewAttainmentService constructs AttainmentService.
func NewAttainmentService(outcomes outcomeReader, mappings childLister, allocations allocationSource, scores ScoreSource, thresholds thresholdResolver, results resultCache, defaultStrategy models.RollupStrategy, logger *zap.Logger) *AttainmentService {
	if !defaultStrategy.Valid() {
		defaultStrategy = models.RollupMarksFirst
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttainmentService{
		outcomes:        outcomes,
		mappings:        mappings,
		allocations:     allocations,
		scores:          scores,
		thresholds:      thresholds,
		results:         results,
		logger:          logger,
		defaultStrategy: defaultStrategy,
	}
}

// cloBasis is the bulk-read weighting basis for one aggregation pass: every
// allocation touching the target CLOs plus every score on the touched items.
type cloBasis struct {
	allocations map[string][]models.CLOAllocation // keyed by CLO id, item-sorted
	scores      map[string]map[string]float64     // student -> item -> obtained
	students    []string                          // sorted
}

func (s *AttainmentService) loadBasis(ctx context.Context, cloIDs []string, studentIDs []string) (*cloBasis, error) {
	basis := &cloBasis{
		allocations: make(map[string][]models.CLOAllocation, len(cloIDs)),
		scores:      make(map[string]map[string]float64),
	}
	if len(cloIDs) == 0 {
		return basis, nil
	}
	allocs, err := s.allocations.GetAllocationsForCLOs(ctx, cloIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load allocations")
	}
	itemSet := make(map[string]bool)
	for _, alloc := range allocs {
		if alloc.MarksAllocated <= 0 || alloc.TotalMarks <= 0 {
			continue
		}
		basis.allocations[alloc.CLOID] = append(basis.allocations[alloc.CLOID], alloc)
		itemSet[alloc.AssessmentItemID] = true
	}
	// Fixed iteration order keeps float accumulation bit-identical between
	// runs regardless of input ordering.
	for cloID := range basis.allocations {
		rows := basis.allocations[cloID]
		sort.Slice(rows, func(i, j int) bool { return rows[i].AssessmentItemID < rows[j].AssessmentItemID })
	}
	if len(itemSet) == 0 {
		return basis, nil
	}
	itemIDs := make([]string, 0, len(itemSet))
	for id := range itemSet {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)
	records, err := s.scores.FetchScores(ctx, itemIDs, studentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch scores")
	}
	studentSet := make(map[string]bool)
	for _, record := range records {
		byItem := basis.scores[record.StudentID]
		if byItem == nil {
			byItem = make(map[string]float64)
			basis.scores[record.StudentID] = byItem
		}
		byItem[record.AssessmentItemID] = record.ObtainedMarks
		studentSet[record.StudentID] = true
	}
	basis.students = make([]string, 0, len(studentSet))
	for id := range studentSet {
		basis.students = append(basis.students, id)
	}
	sort.Strings(basis.students)
	return basis, nil
}

// studentCLO computes one student's CLO attainment. Items the student has no
// score for are excluded from both the shares and the max-possible sums;
// a CLO with no measurable item yields Undefined, never 0.
func (b *cloBasis) studentCLO(cloID, studentID string) (models.Attainment, int) {
	byItem := b.scores[studentID]
	shares, max := 0.0, 0.0
	items := 0
	for _, alloc := range b.allocations[cloID] {
		obtained, ok := byItem[alloc.AssessmentItemID]
		if !ok {
			continue
		}
		shares += obtained * (alloc.MarksAllocated / alloc.TotalMarks)
		max += alloc.MarksAllocated
		items++
	}
	if max == 0 {
		return models.Undefined(), items
	}
	return models.Measured(100 * shares / max), items
}

// cohortCLO pools the whole cohort under the requested rollup strategy.
func (b *cloBasis) cohortCLO(cloID string, strategy models.RollupStrategy) (models.Attainment, models.SupportingCounts) {
	counts := models.SupportingCounts{AssessmentItems: len(b.allocations[cloID])}
	switch strategy {
	case models.RollupStudentFirst:
		sum := 0.0
		measured := 0
		for _, studentID := range b.students {
			attainment, _ := b.studentCLO(cloID, studentID)
			if !attainment.Defined {
				continue
			}
			sum += attainment.Percent
			measured++
		}
		counts.Students = measured
		if measured == 0 {
			return models.Undefined(), counts
		}
		return models.Measured(sum / float64(measured)), counts
	default: // marks-first
		shares, max := 0.0, 0.0
		contributing := make(map[string]bool)
		for _, studentID := range b.students {
			byItem := b.scores[studentID]
			for _, alloc := range b.allocations[cloID] {
				obtained, ok := byItem[alloc.AssessmentItemID]
				if !ok {
					continue
				}
				shares += obtained * (alloc.MarksAllocated / alloc.TotalMarks)
				max += alloc.MarksAllocated
				contributing[studentID] = true
			}
		}
		counts.Students = len(contributing)
		if max == 0 {
			return models.Undefined(), counts
		}
		return models.Measured(100 * shares / max), counts
	}
}

// rollupChildren folds child attainments into the parent as a weighted mean
// over measured children. All-Undefined children yield Undefined, never a
// zero and never a division error.
func rollupChildren(children []models.MappedOutcome, attainments map[string]models.Attainment) (models.Attainment, models.SupportingCounts) {
	var counts models.SupportingCounts
	weightedSum, weightTotal := 0.0, 0.0
	for _, child := range children {
		attainment := attainments[child.ID]
		if !attainment.Defined {
			counts.ChildrenUnmeasured++
			continue
		}
		weight := child.Weight
		if weight <= 0 {
			weight = 1
		}
		weightedSum += attainment.Percent * weight
		weightTotal += weight
		counts.ChildrenMeasured++
	}
	if weightTotal == 0 {
		return models.Undefined(), counts
	}
	return models.Measured(weightedSum / weightTotal), counts
}

// Compute derives one subject's attainment for one outcome, recursing down
// the mapping edges for PLO and PEO targets.
func (s *AttainmentService) Compute(ctx context.Context, kind models.SubjectKind, subjectID, outcomeID string, strategy models.RollupStrategy) (*models.AttainmentResult, error) {
	strategy = s.normalise(strategy)
	outcome, err := s.loadOutcome(ctx, outcomeID)
	if err != nil {
		return nil, err
	}
	attainment, counts, err := s.computeOutcome(ctx, kind, subjectID, outcome, strategy)
	if err != nil {
		return nil, err
	}
	level, err := s.thresholds.Classify(ctx, outcome.ID, attainment)
	if err != nil {
		return nil, err
	}
	return &models.AttainmentResult{
		SubjectKind: kind,
		SubjectID:   subjectID,
		OutcomeID:   outcome.ID,
		OutcomeCode: outcome.Code,
		Tier:        outcome.Tier,
		Attainment:  attainment,
		Level:       level,
		Strategy:    strategy,
		Counts:      counts,
	}, nil
}

func (s *AttainmentService) computeOutcome(ctx context.Context, kind models.SubjectKind, subjectID string, outcome *models.Outcome, strategy models.RollupStrategy) (models.Attainment, models.SupportingCounts, error) {
	if err := ctx.Err(); err != nil {
		return models.Undefined(), models.SupportingCounts{}, err
	}
	if outcome.Tier == models.TierCLO {
		var studentFilter []string
		if kind == models.SubjectStudent {
			studentFilter = []string{subjectID}
		}
		basis, err := s.loadBasis(ctx, []string{outcome.ID}, studentFilter)
		if err != nil {
			return models.Undefined(), models.SupportingCounts{}, err
		}
		if kind == models.SubjectStudent {
			attainment, items := basis.studentCLO(outcome.ID, subjectID)
			return attainment, models.SupportingCounts{AssessmentItems: items, Students: 1}, nil
		}
		attainment, counts := basis.cohortCLO(outcome.ID, strategy)
		return attainment, counts, nil
	}

	children, err := s.mappings.ListChildren(ctx, outcome.ID)
	if err != nil {
		return models.Undefined(), models.SupportingCounts{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list children")
	}
	attainments := make(map[string]models.Attainment, len(children))
	for i := range children {
		childAttainment, _, err := s.computeOutcome(ctx, kind, subjectID, &children[i].Outcome, strategy)
		if err != nil {
			return models.Undefined(), models.SupportingCounts{}, err
		}
		attainments[children[i].ID] = childAttainment
	}
	attainment, counts := rollupChildren(children, attainments)
	return attainment, counts, nil
}

// GetAttainment returns the subject's attainment: the persisted result when
// a manual override is in force, otherwise a fresh on-demand computation.
func (s *AttainmentService) GetAttainment(ctx context.Context, kind models.SubjectKind, subjectID, outcomeID string, strategy models.RollupStrategy) (*models.AttainmentResult, error) {
	if s.results != nil {
		cached, err := s.results.Get(ctx, kind, subjectID, outcomeID)
		if err == nil && cached.Overridden {
			return cached, nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("result cache read failed", zap.Error(err))
		}
	}
	return s.Compute(ctx, kind, subjectID, outcomeID, strategy)
}

// Override records a manual correction through the audited path, preserving
// the computed value it replaces.
func (s *AttainmentService) Override(ctx context.Context, req OverrideRequest) (*models.AttainmentOverride, error) {
	if req.SubjectID == "" || req.OutcomeID == "" || req.Reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject, outcome and reason required")
	}
	if req.Value < 0 || req.Value > 100 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "override value must be within [0,100]")
	}
	computed, err := s.Compute(ctx, req.SubjectKind, req.SubjectID, req.OutcomeID, "")
	if err != nil {
		return nil, err
	}
	level, err := s.thresholds.Classify(ctx, req.OutcomeID, models.Measured(req.Value))
	if err != nil {
		return nil, err
	}
	override := &models.AttainmentOverride{
		SubjectKind: req.SubjectKind,
		SubjectID:   req.SubjectID,
		OutcomeID:   req.OutcomeID,
		Value:       req.Value,
		Original:    computed.Attainment,
		Reason:      req.Reason,
		ActorID:     req.ActorID,
	}
	applied := *computed
	applied.Attainment = models.Measured(req.Value)
	applied.Level = level
	applied.Overridden = true
	if err := s.results.SaveOverride(ctx, override, &applied); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store override")
	}
	s.logger.Info("attainment overridden",
		zap.String("outcome_id", req.OutcomeID),
		zap.String("subject_id", req.SubjectID),
		zap.Float64("value", req.Value),
		zap.String("actor_id", req.ActorID),
		zap.String("reason", req.Reason))
	return override, nil
}

// Overrides returns the override history for one outcome, newest first.
func (s *AttainmentService) Overrides(ctx context.Context, outcomeID string) ([]models.AttainmentOverride, error) {
	overrides, err := s.results.ListOverrides(ctx, outcomeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list overrides")
	}
	return overrides, nil
}

// ComputeCourseScope derives cohort and per-student CLO results for one
// course offering using a single allocations read and a single scores read.
func (s *AttainmentService) ComputeCourseScope(ctx context.Context, courseOfferingID string, strategy models.RollupStrategy) ([]models.AttainmentResult, []string, error) {
	strategy = s.normalise(strategy)
	clos, err := s.outcomes.List(ctx, models.OutcomeFilter{Tier: models.TierCLO, ScopeID: courseOfferingID})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course outcomes")
	}
	cloIDs := make([]string, 0, len(clos))
	for _, clo := range clos {
		cloIDs = append(cloIDs, clo.ID)
	}
	basis, err := s.loadBasis(ctx, cloIDs, nil)
	if err != nil {
		return nil, nil, err
	}
	bands, err := s.thresholds.ResolveMany(ctx, cloIDs)
	if err != nil {
		return nil, nil, err
	}

	results := make([]models.AttainmentResult, 0, len(clos)*(len(basis.students)+1))
	for _, clo := range clos {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		cohort, counts := basis.cohortCLO(clo.ID, strategy)
		results = append(results, models.AttainmentResult{
			SubjectKind: models.SubjectCohort,
			SubjectID:   courseOfferingID,
			OutcomeID:   clo.ID,
			OutcomeCode: clo.Code,
			Tier:        clo.Tier,
			Attainment:  cohort,
			Level:       models.Classify(cohort, bands[clo.ID]),
			Strategy:    strategy,
			Counts:      counts,
		})
		for _, studentID := range basis.students {
			attainment, items := basis.studentCLO(clo.ID, studentID)
			results = append(results, models.AttainmentResult{
				SubjectKind: models.SubjectStudent,
				SubjectID:   studentID,
				OutcomeID:   clo.ID,
				OutcomeCode: clo.Code,
				Tier:        clo.Tier,
				Attainment:  attainment,
				Level:       models.Classify(attainment, bands[clo.ID]),
				Strategy:    strategy,
				Counts:      models.SupportingCounts{AssessmentItems: items, Students: 1},
			})
		}
	}
	return results, cloIDs, nil
}

// ComputeProgramScope derives cohort PLO and PEO results for one program.
// Child CLO attainments are pooled in one bulk pass across every PLO.
func (s *AttainmentService) ComputeProgramScope(ctx context.Context, programID string, strategy models.RollupStrategy) ([]models.AttainmentResult, []string, error) {
	strategy = s.normalise(strategy)
	plos, err := s.outcomes.List(ctx, models.OutcomeFilter{Tier: models.TierPLO, ScopeID: programID})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list program outcomes")
	}
	peos, err := s.outcomes.List(ctx, models.OutcomeFilter{Tier: models.TierPEO, ScopeID: programID})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list program objectives")
	}

	ploChildren := make(map[string][]models.MappedOutcome, len(plos))
	cloSet := make(map[string]bool)
	for _, plo := range plos {
		children, err := s.mappings.ListChildren(ctx, plo.ID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list children")
		}
		ploChildren[plo.ID] = children
		for _, child := range children {
			cloSet[child.ID] = true
		}
	}
	cloIDs := make([]string, 0, len(cloSet))
	for id := range cloSet {
		cloIDs = append(cloIDs, id)
	}
	sort.Strings(cloIDs)

	basis, err := s.loadBasis(ctx, cloIDs, nil)
	if err != nil {
		return nil, nil, err
	}

	scopeIDs := make([]string, 0, len(plos)+len(peos))
	cloAttainments := make(map[string]models.Attainment, len(cloIDs))
	for _, id := range cloIDs {
		attainment, _ := basis.cohortCLO(id, strategy)
		cloAttainments[id] = attainment
	}

	outcomeIDs := make([]string, 0, len(plos)+len(peos))
	for _, plo := range plos {
		outcomeIDs = append(outcomeIDs, plo.ID)
	}
	for _, peo := range peos {
		outcomeIDs = append(outcomeIDs, peo.ID)
	}
	bands, err := s.thresholds.ResolveMany(ctx, outcomeIDs)
	if err != nil {
		return nil, nil, err
	}

	results := make([]models.AttainmentResult, 0, len(plos)+len(peos))
	ploAttainments := make(map[string]models.Attainment, len(plos))
	for _, plo := range plos {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		attainment, counts := rollupChildren(ploChildren[plo.ID], cloAttainments)
		ploAttainments[plo.ID] = attainment
		scopeIDs = append(scopeIDs, plo.ID)
		results = append(results, models.AttainmentResult{
			SubjectKind: models.SubjectCohort,
			SubjectID:   programID,
			OutcomeID:   plo.ID,
			OutcomeCode: plo.Code,
			Tier:        plo.Tier,
			Attainment:  attainment,
			Level:       models.Classify(attainment, bands[plo.ID]),
			Strategy:    strategy,
			Counts:      counts,
		})
	}
	for _, peo := range peos {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		children, err := s.mappings.ListChildren(ctx, peo.ID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list children")
		}
		attainment, counts := rollupChildren(children, ploAttainments)
		scopeIDs = append(scopeIDs, peo.ID)
		results = append(results, models.AttainmentResult{
			SubjectKind: models.SubjectCohort,
			SubjectID:   programID,
			OutcomeID:   peo.ID,
			OutcomeCode: peo.Code,
			Tier:        peo.Tier,
			Attainment:  attainment,
			Level:       models.Classify(attainment, bands[peo.ID]),
			Strategy:    strategy,
			Counts:      counts,
		})
	}
	return results, scopeIDs, nil
}

func (s *AttainmentService) normalise(strategy models.RollupStrategy) models.RollupStrategy {
	if !strategy.Valid() {
		return s.defaultStrategy
	}
	return strategy
}

func (s *AttainmentService) loadOutcome(ctx context.Context, id string) (*models.Outcome, error) {
	outcome, err := s.outcomes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("outcome %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load outcome")
	}
	return outcome, nil
}
