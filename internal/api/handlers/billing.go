package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"simplenotes/internal/core"
	"simplenotes/internal/types"
)

// BillingService is the subset of billing.Service the billing endpoints use.
type BillingService interface {
	Status(ctx context.Context, userID string) (*types.EntitlementRecord, error)
	StartCheckout(ctx context.Context, userID, email string) (string, error)
	OpenPortal(ctx context.Context, userID string) (string, error)
	ManualResync(ctx context.Context, userID string) (types.EntitlementState, error)
	ConfirmCheckout(ctx context.Context, userID, sessionID string) (types.EntitlementState, error)
}

// ConfirmCheckoutRequest is the body of POST /v1/billing/checkout/confirm.
type ConfirmCheckoutRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// URLResponse carries a redirect target for checkout and portal sessions.
type URLResponse struct {
	URL string `json:"url"`
}

// EntitlementResponse is the (plan, status) view returned after a resync.
type EntitlementResponse struct {
	Plan               types.Plan                `json:"plan"`
	SubscriptionStatus *types.SubscriptionStatus `json:"subscription_status"`
}

// BillingStatusResponse is the caller's stored entitlement.
type BillingStatusResponse struct {
	Plan               types.Plan                `json:"plan"`
	SubscriptionStatus *types.SubscriptionStatus `json:"subscription_status"`
	HasBillingAccount  bool                      `json:"has_billing_account"`
}

// BillingHandler serves the authenticated billing endpoints.
type BillingHandler struct {
	service   BillingService
	validator *core.Validator
	logger    *slog.Logger
}

// NewBillingHandler creates a BillingHandler.
func NewBillingHandler(svc BillingService, v *core.Validator, l *slog.Logger) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{service: svc, validator: v, logger: l}
}

// RegisterRoutes mounts the billing endpoints.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Post("/checkout", h.CreateCheckout)
		r.Post("/checkout/confirm", h.ConfirmCheckout)
		r.Post("/portal", h.CreatePortal)
		r.Post("/sync", h.Sync)
	})
}

// GetStatus handles GET /v1/billing/status.
func (h *BillingHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Status(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, BillingStatusResponse{
		Plan:               rec.Plan,
		SubscriptionStatus: rec.SubscriptionStatus,
		HasBillingAccount:  rec.HasCustomerRef(),
	})
}

// CreateCheckout handles POST /v1/billing/checkout.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	url, err := h.service.StartCheckout(r.Context(), actor.ID, actor.Email)
	if err != nil {
		h.logger.WarnContext(r.Context(), "checkout session not created",
			"user_id", actor.ID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, URLResponse{URL: url})
}

// ConfirmCheckout handles POST /v1/billing/checkout/confirm.
func (h *BillingHandler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req ConfirmCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	state, err := h.service.ConfirmCheckout(r.Context(), actor.ID, req.SessionID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, entitlementResponse(state))
}

// CreatePortal handles POST /v1/billing/portal.
func (h *BillingHandler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	url, err := h.service.OpenPortal(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, URLResponse{URL: url})
}

// Sync handles POST /v1/billing/sync, the user-initiated manual resync.
func (h *BillingHandler) Sync(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	state, err := h.service.ManualResync(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "manual resync completed",
		"user_id", actor.ID,
		"plan", string(state.Plan),
		"subscription_status", state.StatusOrEmpty(),
	)
	core.Data(w, r, http.StatusOK, entitlementResponse(state))
}

func entitlementResponse(state types.EntitlementState) EntitlementResponse {
	return EntitlementResponse{Plan: state.Plan, SubscriptionStatus: state.Status}
}

// requireUser returns the authenticated user actor or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok || actor.Type != types.ActorTypeUser || actor.ID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return types.Actor{}, false
	}
	return actor, true
}
