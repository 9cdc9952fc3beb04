package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"simplenotes/internal/types"
)

// ErrCustomerNotFound is returned when no entitlement record matches the
// billing customer reference. No write is performed.
var ErrCustomerNotFound = types.NewAppError(
	types.ErrCodeNotFoundCustomer,
	"no entitlement record for billing customer",
	nil,
)

// ErrUnknownStatus is returned by ReconcileOne when the subscription carries
// a status outside the known enumeration.
var ErrUnknownStatus = types.NewAppError(
	types.ErrCodeValidationInvalidStatus,
	"subscription status is not recognized",
	nil,
)

// Store is the persistence contract used by the Engine.
type Store interface {
	// SetStatusAndPlan replaces both fields on the record owning customerRef.
	// Returns false when no record matches.
	SetStatusAndPlan(ctx context.Context, customerRef string, status *types.SubscriptionStatus, plan types.Plan) (bool, error)
}

// Engine applies derived entitlement state to the Store.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// NewEngine creates an Engine. If logger is nil, slog.Default() is used.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Reconcile derives state from the full subscription list for customerRef
// and writes it. This is the authoritative path.
func (e *Engine) Reconcile(ctx context.Context, customerRef string, subs []types.Subscription) (types.EntitlementState, error) {
	owned := subs[:0:0]
	for _, s := range subs {
		if s.CustomerRef != "" && s.CustomerRef != customerRef {
			e.logger.WarnContext(ctx, "ignoring subscription owned by another customer",
				"customer_ref", customerRef,
				"subscription_id", s.ID,
				"subscription_customer", s.CustomerRef,
			)
			continue
		}
		owned = append(owned, s)
	}
	return e.apply(ctx, customerRef, Derive(owned), "list")
}

// ReconcileOne writes the state implied by a single subscription object.
// Stored state is not consulted, so a stale event may later be corrected by
// Reconcile.
func (e *Engine) ReconcileOne(ctx context.Context, customerRef string, sub types.Subscription) (types.EntitlementState, error) {
	state, ok := DeriveOne(sub)
	if !ok {
		e.logger.WarnContext(ctx, "subscription status not recognized; skipping",
			"customer_ref", customerRef,
			"subscription_id", sub.ID,
			"status", string(sub.Status),
		)
		return types.EntitlementState{}, ErrUnknownStatus
	}
	return e.apply(ctx, customerRef, state, "single")
}

// Force writes an explicit target regardless of provider lists. Used for
// subscription deletion, which may already be absent from later lists.
func (e *Engine) Force(ctx context.Context, customerRef string, state types.EntitlementState) (types.EntitlementState, error) {
	if state.Plan != types.PlanFor(state.Status) {
		return types.EntitlementState{}, fmt.Errorf("forced state violates plan derivation: plan=%s status=%s", state.Plan, state.StatusOrEmpty())
	}
	return e.apply(ctx, customerRef, state, "forced")
}

func (e *Engine) apply(ctx context.Context, customerRef string, state types.EntitlementState, mode string) (types.EntitlementState, error) {
	if customerRef == "" {
		return types.EntitlementState{}, ErrCustomerNotFound
	}

	found, err := e.store.SetStatusAndPlan(ctx, customerRef, state.Status, state.Plan)
	if err != nil {
		return types.EntitlementState{}, fmt.Errorf("write entitlement for %s: %w", customerRef, err)
	}
	if !found {
		e.logger.WarnContext(ctx, "reconciliation target not found",
			"customer_ref", customerRef,
			"mode", mode,
		)
		return types.EntitlementState{}, ErrCustomerNotFound
	}

	e.logger.InfoContext(ctx, "entitlement reconciled",
		"customer_ref", customerRef,
		"mode", mode,
		"plan", string(state.Plan),
		"subscription_status", state.StatusOrEmpty(),
	)
	return state, nil
}

// IsCustomerNotFound reports whether err is (or wraps) ErrCustomerNotFound.
func IsCustomerNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound)
}
