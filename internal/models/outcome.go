package models

import "time"

// OutcomeTier identifies a level in the PEO <- PLO <- CLO hierarchy.
type OutcomeTier string

const (
	// TierCLO is a course learning outcome scoped to one course offering.
	TierCLO OutcomeTier = "CLO"
	// TierPLO is a program learning outcome composed from CLOs.
	TierPLO OutcomeTier = "PLO"
	// TierPEO is a program educational objective composed from PLOs.
	TierPEO OutcomeTier = "PEO"
)

// Valid reports whether the tier is one of the known values.
func (t OutcomeTier) Valid() bool {
	switch t {
	case TierCLO, TierPLO, TierPEO:
		return true
	}
	return false
}

// ParentTier returns the tier immediately above, or "" for the top tier.
func (t OutcomeTier) ParentTier() OutcomeTier {
	switch t {
	case TierCLO:
		return TierPLO
	case TierPLO:
		return TierPEO
	}
	return ""
}

// Outcome is a capability statement at one tier of the hierarchy. CLOs are
// scoped to a course offering; PLOs and PEOs to a degree program.
type Outcome struct {
	ID          string      `db:"id" json:"id"`
	Tier        OutcomeTier `db:"tier" json:"tier"`
	ScopeID     string      `db:"scope_id" json:"scope_id"`
	Code        string      `db:"code" json:"code"`
	Description string      `db:"description" json:"description"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// MappingEdge links a child outcome to a parent on the adjacent tier.
// Weight participates in the parent rollup as a weighted mean; 1 keeps the
// historical equal-weight behaviour.
type MappingEdge struct {
	ID        string    `db:"id" json:"id"`
	ChildID   string    `db:"child_id" json:"child_id"`
	ParentID  string    `db:"parent_id" json:"parent_id"`
	Weight    float64   `db:"weight" json:"weight"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MappedOutcome is an outcome joined with the weight of the edge that
// reached it, as returned by child/parent listings.
type MappedOutcome struct {
	Outcome
	Weight float64 `db:"weight" json:"weight"`
}

// CascadeResult reports rows removed by a cascading outcome delete.
type CascadeResult struct {
	OutcomeID      string `json:"outcome_id"`
	MappingEdges   int64  `json:"mapping_edges"`
	AllocationRows int64  `json:"allocation_rows"`
}

// Total returns the number of cascaded rows for audit purposes.
func (c CascadeResult) Total() int64 {
	return c.MappingEdges + c.AllocationRows
}

// OutcomeFilter scopes outcome listings.
type OutcomeFilter struct {
	Tier    OutcomeTier
	ScopeID string
}
