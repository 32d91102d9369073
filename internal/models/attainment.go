package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Attainment is a measured percentage or Undefined. Undefined means no
// assessment maps to the outcome; it is distinct from a measured 0% and must
// never collapse into one.
type Attainment struct {
	Defined bool
	Percent float64
}

// Measured wraps a percentage as a defined attainment.
func Measured(percent float64) Attainment {
	return Attainment{Defined: true, Percent: percent}
}

// Undefined is the attainment of an outcome with no measurement basis.
func Undefined() Attainment {
	return Attainment{}
}

// MarshalJSON renders Undefined as null so clients cannot read it as 0.
func (a Attainment) MarshalJSON() ([]byte, error) {
	if !a.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(a.Percent)
}

// UnmarshalJSON accepts null or a number.
func (a *Attainment) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Attainment{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Measured(v)
	return nil
}

// Value persists Undefined as SQL NULL.
func (a Attainment) Value() (driver.Value, error) {
	if !a.Defined {
		return nil, nil
	}
	return a.Percent, nil
}

// Scan reads a nullable numeric column.
func (a *Attainment) Scan(src interface{}) error {
	if src == nil {
		*a = Attainment{}
		return nil
	}
	switch v := src.(type) {
	case float64:
		*a = Measured(v)
	case []byte:
		var f float64
		if _, err := fmt.Sscanf(string(v), "%f", &f); err != nil {
			return fmt.Errorf("scan attainment %q: %w", v, err)
		}
		*a = Measured(f)
	case int64:
		*a = Measured(float64(v))
	default:
		return fmt.Errorf("scan attainment: unsupported type %T", src)
	}
	return nil
}

// RollupStrategy selects how cohort CLO attainment pools student scores.
type RollupStrategy string

const (
	// RollupMarksFirst pools shares and max-possible marks across the cohort
	// before dividing. Students missing a score for an item simply do not
	// contribute to that item. Default.
	RollupMarksFirst RollupStrategy = "marks-first"
	// RollupStudentFirst averages per-student percentages; students with no
	// measurable attainment are excluded rather than counted as zero.
	RollupStudentFirst RollupStrategy = "student-first"
)

// Valid reports whether the strategy is known.
func (r RollupStrategy) Valid() bool {
	return r == RollupMarksFirst || r == RollupStudentFirst
}

// SubjectKind distinguishes per-student results from cohort results.
type SubjectKind string

const (
	SubjectStudent SubjectKind = "STUDENT"
	SubjectCohort  SubjectKind = "COHORT"
)

// SupportingCounts records the measurement basis behind a result.
type SupportingCounts struct {
	AssessmentItems    int `json:"assessment_items"`
	Students           int `json:"students"`
	ChildrenMeasured   int `json:"children_measured,omitempty"`
	ChildrenUnmeasured int `json:"children_unmeasured,omitempty"`
}

// Value marshals counts to JSON for persistence.
func (s SupportingCounts) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan unmarshals counts from a JSONB column.
func (s *SupportingCounts) Scan(src interface{}) error {
	if src == nil {
		*s = SupportingCounts{}
		return nil
	}
	raw, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("scan supporting counts: unsupported type %T", src)
	}
	return json.Unmarshal(raw, s)
}

// AttainmentResult is a derived, cache-like record. It is recomputed from raw
// scores and allocations, never incrementally updated.
type AttainmentResult struct {
	ID          string           `db:"id" json:"id"`
	SubjectKind SubjectKind      `db:"subject_kind" json:"subject_kind"`
	SubjectID   string           `db:"subject_id" json:"subject_id"`
	OutcomeID   string           `db:"outcome_id" json:"outcome_id"`
	OutcomeCode string           `db:"outcome_code" json:"outcome_code"`
	Tier        OutcomeTier      `db:"tier" json:"tier"`
	Attainment  Attainment       `db:"attainment" json:"attainment_percentage"`
	Level       AttainmentLevel  `db:"level" json:"level"`
	Strategy    RollupStrategy   `db:"strategy" json:"strategy"`
	Counts      SupportingCounts `db:"counts" json:"supporting_counts"`
	Overridden  bool             `db:"overridden" json:"overridden"`
	ComputedAt  time.Time        `db:"computed_at" json:"computed_at"`
}

// AttainmentOverride is the audited record of a manual correction.
type AttainmentOverride struct {
	ID          string      `db:"id" json:"id"`
	SubjectKind SubjectKind `db:"subject_kind" json:"subject_kind"`
	SubjectID   string      `db:"subject_id" json:"subject_id"`
	OutcomeID   string      `db:"outcome_id" json:"outcome_id"`
	Value       float64     `db:"value" json:"value"`
	Original    Attainment  `db:"original" json:"original"`
	Reason      string      `db:"reason" json:"reason"`
	ActorID     string      `db:"actor_id" json:"actor_id"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// RecomputeScope bounds a recomputation run: one course offering (small,
// synchronous) or a whole program (large, queued).
type RecomputeScope struct {
	CourseOfferingID string `json:"course_offering_id,omitempty"`
	ProgramID        string `json:"program_id,omitempty"`
}

// IsProgram reports whether the scope spans a whole program.
func (s RecomputeScope) IsProgram() bool {
	return s.ProgramID != ""
}

// Empty reports whether no scope was provided.
func (s RecomputeScope) Empty() bool {
	return s.CourseOfferingID == "" && s.ProgramID == ""
}
