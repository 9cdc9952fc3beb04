// Package entitlement implements subscription reconciliation: deriving the
// (subscription_status, plan) pair from the billing provider's view of a
// customer and persisting it as a full replace.
//
// Derivation is always recomputed from provider truth. There is no
// transition guard; out-of-order redelivery converges because every write
// is source-derived and idempotent.
package entitlement

import (
	"sort"

	"simplenotes/internal/types"
)

// entitlingRank orders entitling statuses when more than one subscription
// grants access. Lower wins.
var entitlingRank = map[types.SubscriptionStatus]int{
	types.SubStatusActive:   0,
	types.SubStatusTrialing: 1,
	types.SubStatusPastDue:  2,
}

// Derive computes the target state from every subscription known for a
// customer.
//
// If any subscription is entitling the plan is pro and the status is taken
// from the best entitling subscription (active > trialing > past_due, newest
// first within a rank). Otherwise the plan is free and the status is that of
// the most recently created subscription, or nil when there are none.
// Subscriptions whose status is outside the known enumeration are ignored.
func Derive(subs []types.Subscription) types.EntitlementState {
	known := make([]types.Subscription, 0, len(subs))
	for _, s := range subs {
		if s.Status.IsValid() {
			known = append(known, s)
		}
	}

	if best, ok := bestEntitling(known); ok {
		return types.EntitlementState{
			Status: types.StatusPtr(best.Status),
			Plan:   types.PlanPro,
		}
	}

	if latest, ok := mostRecent(known); ok {
		return types.EntitlementState{
			Status: types.StatusPtr(latest.Status),
			Plan:   types.PlanFree,
		}
	}

	return types.EntitlementState{Plan: types.PlanFree}
}

// DeriveOne computes the target state from a single subscription object,
// trusting its status directly. ok is false for statuses outside the
// enumeration.
func DeriveOne(sub types.Subscription) (types.EntitlementState, bool) {
	if !sub.Status.IsValid() {
		return types.EntitlementState{}, false
	}
	return types.EntitlementState{
		Status: types.StatusPtr(sub.Status),
		Plan:   types.PlanFor(&sub.Status),
	}, true
}

// Canceled is the forced target applied when the provider reports a
// subscription deletion.
func Canceled() types.EntitlementState {
	return types.EntitlementState{
		Status: types.StatusPtr(types.SubStatusCanceled),
		Plan:   types.PlanFree,
	}
}

func bestEntitling(subs []types.Subscription) (types.Subscription, bool) {
	var candidates []types.Subscription
	for _, s := range subs {
		if s.Status.IsEntitling() {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return types.Subscription{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := entitlingRank[candidates[i].Status], entitlingRank[candidates[j].Status]
		if ri != rj {
			return ri < rj
		}
		return newer(candidates[i], candidates[j])
	})
	return candidates[0], true
}

func mostRecent(subs []types.Subscription) (types.Subscription, bool) {
	if len(subs) == 0 {
		return types.Subscription{}, false
	}
	latest := subs[0]
	for _, s := range subs[1:] {
		if newer(s, latest) {
			latest = s
		}
	}
	return latest, true
}

// newer reports whether a was created after b. Equal timestamps fall back to
// the larger ID so the result does not depend on input order.
func newer(a, b types.Subscription) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
