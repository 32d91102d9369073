package models

import "time"

// AssessmentItemKind distinguishes gradable unit granularity.
type AssessmentItemKind string

const (
	// ItemKindComponent is an assessment component (quiz, midterm, project).
	ItemKindComponent AssessmentItemKind = "COMPONENT"
	// ItemKindQuestion is an individual question within an assessment.
	ItemKindQuestion AssessmentItemKind = "QUESTION"
)

// AssessmentItem is a gradable unit belonging to exactly one course offering.
type AssessmentItem struct {
	ID               string             `db:"id" json:"id"`
	CourseOfferingID string             `db:"course_offering_id" json:"course_offering_id"`
	Name             string             `db:"name" json:"name"`
	Kind             AssessmentItemKind `db:"kind" json:"kind"`
	TotalMarks       float64            `db:"total_marks" json:"total_marks"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_at"`
}

// AllocationRow assigns a portion of an assessment item's marks to one CLO.
// The ledger guarantees sum(marks_allocated) <= total_marks per item.
type AllocationRow struct {
	ID               string    `db:"id" json:"id"`
	AssessmentItemID string    `db:"assessment_item_id" json:"assessment_item_id"`
	CLOID            string    `db:"clo_id" json:"clo_id"`
	MarksAllocated   float64   `db:"marks_allocated" json:"marks_allocated"`
	CLOCode          string    `db:"clo_code" json:"clo_code,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// CLOAllocation pairs an allocation row with its item's total marks. It is
// the weighting basis the aggregator consumes.
type CLOAllocation struct {
	AssessmentItemID string  `db:"assessment_item_id" json:"assessment_item_id"`
	ItemName         string  `db:"item_name" json:"item_name"`
	CourseOfferingID string  `db:"course_offering_id" json:"course_offering_id"`
	CLOID            string  `db:"clo_id" json:"clo_id"`
	MarksAllocated   float64 `db:"marks_allocated" json:"marks_allocated"`
	TotalMarks       float64 `db:"total_marks" json:"total_marks"`
}

// ScoreRecord is a student's obtained marks for one assessment item.
// Records are supplied by the score ingestion adapter; obtained marks are
// bounded by the item's total.
type ScoreRecord struct {
	ID               string    `db:"id" json:"id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	AssessmentItemID string    `db:"assessment_item_id" json:"assessment_item_id"`
	ObtainedMarks    float64   `db:"obtained_marks" json:"obtained_marks"`
	RecordedAt       time.Time `db:"recorded_at" json:"recorded_at"`
}
