package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"simplenotes/internal/core"
	"simplenotes/internal/entitlement"
	"simplenotes/internal/external"
	"simplenotes/internal/types"
)

// maxWebhookBodySize is the maximum accepted Stripe webhook payload (64 KiB).
const maxWebhookBodySize = 64 * 1024

// WebhookApplier applies verified billing events to entitlement state.
// Implemented by billing.Service.
type WebhookApplier interface {
	HandleCheckoutCompleted(ctx context.Context, session *types.CheckoutSession) (types.EntitlementState, error)
	ApplySubscriptionEvent(ctx context.Context, eventType string, sub types.Subscription) (types.EntitlementState, error)
	HandleInvoiceEvent(ctx context.Context, eventType, eventID, customerRef string) error
}

// StripeWebhookHandler receives asynchronous events from Stripe. It sits on
// a public path; the Stripe-Signature header is the only authentication.
type StripeWebhookHandler struct {
	verifier external.WebhookVerifier
	applier  WebhookApplier
	secret   string
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	applier WebhookApplier,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		applier:  applier,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// stripeWebhookEvent is the envelope of a Stripe event. The data object is
// decoded by the external package once the type is known.
type stripeWebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Handle verifies the signature, decodes the event and routes it. Any
// processing failure is returned as a non-2xx status so Stripe redelivers.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSignatureMiss,
			"missing Stripe-Signature header",
			nil,
		))
		return
	}

	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeAuthSignature,
			"webhook signature verification failed",
			err,
		))
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil || event.Type == "" {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	logger := h.logger.With("event_id", event.ID, "event_type", event.Type)
	logger.InfoContext(r.Context(), "processing stripe webhook event")

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.writeProcessingError(w, r, logger, err)
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}

// routeEvent dispatches the event to the matching trigger adapter. Unknown
// types are acknowledged.
func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	object := []byte(event.Data.Object)

	switch event.Type {
	case external.EventStripeCheckoutCompleted:
		session, err := external.ParseCheckoutSession(object)
		if err != nil {
			return malformed(err)
		}
		if !session.IsSubscription() {
			h.logger.InfoContext(ctx, "ignoring non-subscription checkout session",
				"session_id", session.ID, "mode", session.Mode)
			return nil
		}
		_, err = h.applier.HandleCheckoutCompleted(ctx, session)
		return err

	case external.EventStripeSubCreated, external.EventStripeSubUpdated, external.EventStripeSubDeleted:
		sub, err := external.ParseSubscription(object)
		if err != nil {
			return malformed(err)
		}
		if sub.CustomerRef == "" {
			return malformed(fmt.Errorf("subscription %s has no customer", sub.ID))
		}
		_, err = h.applier.ApplySubscriptionEvent(ctx, event.Type, *sub)
		return err

	case external.EventStripePaymentSucceeded, external.EventStripePaymentFailed:
		customerRef, err := external.ParseInvoiceCustomer(object)
		if err != nil {
			return malformed(err)
		}
		return h.applier.HandleInvoiceEvent(ctx, event.Type, event.ID, customerRef)

	default:
		h.logger.InfoContext(ctx, "ignoring unhandled webhook event type", "event_type", event.Type)
		return nil
	}
}

func malformed(err error) error {
	return types.NewAppError(types.ErrCodeValidationMissingField, "malformed event object", err)
}

// writeProcessingError maps an adapter failure to the status Stripe sees.
// Malformed objects get a 400; Stripe retries those like any other non-2xx,
// so the warning log is where they surface.
// An unknown customer is a 500 so the event is retried once the customer is
// linked. Provider errors are 503; everything else is 500.
func (h *StripeWebhookHandler) writeProcessingError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := types.CodeOf(err)

	switch {
	case strings.HasPrefix(string(code), "validation_"):
		logger.WarnContext(r.Context(), "webhook event rejected", "error", err)
		core.Error(w, r, err)

	case entitlement.IsCustomerNotFound(err):
		logger.WarnContext(r.Context(), "webhook event for unknown billing customer", "error", err)
		core.JSON(w, r, http.StatusInternalServerError, core.APIErrorResponse{
			Error: core.ErrorDetail{
				Code:      string(types.ErrCodeNotFoundCustomer),
				Message:   "billing customer is not linked to an account",
				RequestID: types.GetRequestID(r.Context()),
			},
		})

	case strings.HasPrefix(string(code), "upstream_"):
		logger.ErrorContext(r.Context(), "webhook event processing failed upstream", "error", err)
		core.JSON(w, r, http.StatusServiceUnavailable, core.APIErrorResponse{
			Error: core.ErrorDetail{
				Code:      string(code),
				Message:   "billing provider unavailable",
				RequestID: types.GetRequestID(r.Context()),
			},
		})

	default:
		logger.ErrorContext(r.Context(), "webhook event processing failed", "error", err)
		core.JSON(w, r, http.StatusInternalServerError, core.APIErrorResponse{
			Error: core.ErrorDetail{
				Code:      string(types.ErrCodeInternalUnexpected),
				Message:   "webhook processing failed",
				RequestID: types.GetRequestID(r.Context()),
			},
		})
	}
}
