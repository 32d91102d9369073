package models

import "time"

// AttainmentHistoryRow is one periodised snapshot written at recompute time.
// Trend views are read from these rows, never recomputed retroactively.
type AttainmentHistoryRow struct {
	ID          string      `db:"id" json:"id"`
	Period      string      `db:"period" json:"period"`
	SubjectKind SubjectKind `db:"subject_kind" json:"subject_kind"`
	SubjectID   string      `db:"subject_id" json:"subject_id"`
	OutcomeID   string      `db:"outcome_id" json:"outcome_id"`
	OutcomeCode string      `db:"outcome_code" json:"outcome_code"`
	Attainment  Attainment  `db:"attainment" json:"attainment_percentage"`
	Level       AttainmentLevel `db:"level" json:"level"`
	ComputedAt  time.Time   `db:"computed_at" json:"computed_at"`
}

// ChartPoint is the flat {name, value} shape consumed by bar/line/pie charts.
// Value is null when the outcome is unmeasured.
type ChartPoint struct {
	Name       string          `json:"name"`
	Value      Attainment      `json:"value"`
	Level      AttainmentLevel `json:"level"`
	OutcomeID  string          `json:"outcome_id"`
	SubjectID  string          `json:"subject_id,omitempty"`
	Overridden bool            `json:"overridden,omitempty"`
}

// TrendRow is one period of the PLO-by-period trend matrix. Values are keyed
// by PLO code.
type TrendRow struct {
	Period string                `json:"period"`
	Values map[string]Attainment `json:"values"`
}

// CLOBreakdownCell is a single CLO result within a student breakdown.
type CLOBreakdownCell struct {
	OutcomeID  string          `json:"outcome_id"`
	Code       string          `json:"code"`
	Attainment Attainment      `json:"attainment"`
	Level      AttainmentLevel `json:"level"`
}

// CourseBreakdown groups a student's CLO results for one course offering.
type CourseBreakdown struct {
	CourseOfferingID string             `json:"course_offering_id"`
	CLOs             []CLOBreakdownCell `json:"clos"`
}

// StudentBreakdown is the nested student -> course -> CLO table.
type StudentBreakdown struct {
	StudentID string            `json:"student_id"`
	Courses   []CourseBreakdown `json:"courses"`
}
