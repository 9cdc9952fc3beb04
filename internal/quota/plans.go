// Package quota authorizes note creation against the limits of the caller's
// entitlement plan.
package quota

import "simplenotes/internal/types"

// DefaultFreeNoteLimit is the number of notes a free-tier user may own.
const DefaultFreeNoteLimit = 3

// Limits describes what a plan allows. MaxNotes of 0 means unlimited.
type Limits struct {
	MaxNotes int
}

// Unlimited reports whether the limits place no cap on notes.
func (l Limits) Unlimited() bool {
	return l.MaxNotes == 0
}

// PlanRegistry defines the authoritative limits for each plan.
type PlanRegistry interface {
	// GetLimits returns the limits for plan. Unknown plans get the free
	// limits so enforcement fails safe.
	GetLimits(plan types.Plan) Limits
}

type staticPlanRegistry struct {
	limits map[types.Plan]Limits
	free   Limits
}

// NewStaticPlanRegistry returns a PlanRegistry with freeNoteLimit notes on
// the free plan and no cap on pro. A non-positive freeNoteLimit falls back
// to DefaultFreeNoteLimit.
func NewStaticPlanRegistry(freeNoteLimit int) PlanRegistry {
	if freeNoteLimit <= 0 {
		freeNoteLimit = DefaultFreeNoteLimit
	}
	free := Limits{MaxNotes: freeNoteLimit}
	return &staticPlanRegistry{
		limits: map[types.Plan]Limits{
			types.PlanFree: free,
			types.PlanPro:  {MaxNotes: 0},
		},
		free: free,
	}
}

func (r *staticPlanRegistry) GetLimits(plan types.Plan) Limits {
	if limits, ok := r.limits[plan]; ok {
		return limits
	}
	return r.free
}
