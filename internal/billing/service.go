// Package billing implements the trigger adapters that keep a user's
// entitlement in step with the billing provider: the post-checkout
// confirmation, the manual resync, provider webhook events and queued or
// scheduled resyncs. It also orchestrates checkout and portal sessions.
//
// Every adapter fetches provider truth through the injected BillingGateway
// and hands it to the reconciliation engine. None of them retries
// internally; retries come from webhook redelivery, the resync queue or the
// user repeating the request.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"simplenotes/internal/entitlement"
	"simplenotes/internal/external"
	"simplenotes/internal/types"
)

// ErrNoBillingRelationship is returned when an operation needs a billing
// customer reference and the user has none yet.
var ErrNoBillingRelationship = types.NewAppError(
	types.ErrCodeConflictNoBilling,
	"No billing relationship yet. Start a checkout to subscribe.",
	nil,
)

// Outcome labels recorded for each reconciliation attempt.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// EntitlementStore is the subset of the entitlement repository the adapters
// need. Implemented by db.EntitlementRepo.
type EntitlementStore interface {
	Get(ctx context.Context, userID string) (*types.EntitlementRecord, error)
	GetByCustomerRef(ctx context.Context, customerRef string) (*types.EntitlementRecord, error)
	// SetCustomerRef is first-write-wins and returns the effective reference.
	SetCustomerRef(ctx context.Context, userID, ref string) (string, error)
}

// Reconciler applies provider truth to the store. Implemented by
// *entitlement.Engine.
type Reconciler interface {
	Reconcile(ctx context.Context, customerRef string, subs []types.Subscription) (types.EntitlementState, error)
	ReconcileOne(ctx context.Context, customerRef string, sub types.Subscription) (types.EntitlementState, error)
	Force(ctx context.Context, customerRef string, state types.EntitlementState) (types.EntitlementState, error)
}

// ResyncPublisher defers a list-based resync to the reconciler worker.
type ResyncPublisher interface {
	PublishResync(ctx context.Context, req types.ResyncRequest) error
}

// Recorder counts reconciliation outcomes per trigger.
type Recorder interface {
	RecordReconcile(trigger types.ReconcileTrigger, outcome string)
}

// Config holds the checkout settings.
type Config struct {
	PriceID string
	SiteURL string
}

// Service implements the billing trigger adapters.
type Service struct {
	gateway   external.BillingGateway
	store     EntitlementStore
	engine    Reconciler
	publisher ResyncPublisher
	recorder  Recorder
	cfg       Config
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithResyncPublisher enables deferring invoice-driven resyncs to a queue.
func WithResyncPublisher(p ResyncPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithRecorder reports reconciliation outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService creates a Service. The gateway is injected; there is no
// package-level provider client.
func NewService(gateway external.BillingGateway, store EntitlementStore, engine Reconciler, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		gateway: gateway,
		store:   store,
		engine:  engine,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the caller's stored entitlement record.
func (s *Service) Status(ctx context.Context, userID string) (*types.EntitlementRecord, error) {
	return s.store.Get(ctx, userID)
}

// StartCheckout ensures the user has a billing customer and returns the URL
// of a subscription checkout session for the configured price.
func (s *Service) StartCheckout(ctx context.Context, userID, email string) (string, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if rec.Plan == types.PlanPro {
		return "", types.NewAppError(types.ErrCodeConflictAlreadySubscribed, "Already subscribed to pro", nil)
	}

	ref, err := s.gateway.CreateOrGetCustomer(ctx, email, userID, rec.CustomerRef)
	if err != nil {
		return "", err
	}
	ref, err = s.store.SetCustomerRef(ctx, userID, ref)
	if err != nil {
		return "", err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, external.CheckoutParams{
		CustomerRef: ref,
		PriceID:     s.cfg.PriceID,
		UserID:      userID,
		SuccessURL:  s.cfg.SiteURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   s.cfg.SiteURL + "/cancel",
	})
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"user_id", userID,
		"customer_ref", ref,
		"session_id", session.ID,
	)
	return session.URL, nil
}

// OpenPortal returns a self-serve billing portal URL.
func (s *Service) OpenPortal(ctx context.Context, userID string) (string, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if !rec.HasCustomerRef() {
		return "", ErrNoBillingRelationship
	}
	return s.gateway.CreatePortalSession(ctx, *rec.CustomerRef, s.cfg.SiteURL+"/billing")
}

// ManualResync reconciles the caller's entitlement from the provider's full
// subscription list. The provider is not contacted when the user has no
// billing customer yet.
func (s *Service) ManualResync(ctx context.Context, userID string) (types.EntitlementState, error) {
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return types.EntitlementState{}, err
	}
	if !rec.HasCustomerRef() {
		return types.EntitlementState{}, ErrNoBillingRelationship
	}
	return s.ResyncCustomer(ctx, *rec.CustomerRef, types.TriggerManual)
}

// ResyncCustomer lists every subscription for customerRef and runs the
// authoritative list-based reconciliation.
func (s *Service) ResyncCustomer(ctx context.Context, customerRef string, trigger types.ReconcileTrigger) (types.EntitlementState, error) {
	subs, err := s.gateway.ListSubscriptions(ctx, customerRef)
	if err != nil {
		s.record(trigger, err)
		return types.EntitlementState{}, err
	}
	state, err := s.engine.Reconcile(ctx, customerRef, subs)
	s.record(trigger, err)
	return state, err
}

// ConfirmCheckout handles the synchronous return from a completed checkout.
// The session must belong to the caller and be complete. The customer
// reference is persisted before reconciling because this may be the first
// time it is known.
func (s *Service) ConfirmCheckout(ctx context.Context, userID, sessionID string) (types.EntitlementState, error) {
	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return types.EntitlementState{}, err
	}
	rec, err := s.store.Get(ctx, userID)
	if err != nil {
		return types.EntitlementState{}, err
	}

	owned := session.ClientReferenceID == userID ||
		(rec.HasCustomerRef() && *rec.CustomerRef == session.CustomerRef)
	if !owned || session.CustomerRef == "" {
		s.logger.WarnContext(ctx, "checkout session does not belong to caller",
			"user_id", userID,
			"session_id", sessionID,
		)
		return types.EntitlementState{}, types.NewAppError(types.ErrCodeForbiddenSessionMismatch, "Checkout session does not belong to this account", nil)
	}
	if !session.IsComplete() {
		return types.EntitlementState{}, types.NewAppErrorWithDetails(
			types.ErrCodeConflictCheckoutIncomplete,
			"Checkout session is not complete",
			nil,
			map[string]any{"status": session.Status},
		)
	}

	state, err := s.linkAndResync(ctx, userID, session.CustomerRef, types.TriggerCheckout)
	if err != nil {
		s.logger.ErrorContext(ctx, "checkout confirmed at provider but entitlement not reconciled",
			"priority", "high",
			"user_id", userID,
			"session_id", sessionID,
			"customer_ref", session.CustomerRef,
			"error", err,
		)
		return types.EntitlementState{}, err
	}
	return state, nil
}

// linkAndResync persists customerRef for userID (first-write-wins) and then
// runs a list-based reconciliation for it.
func (s *Service) linkAndResync(ctx context.Context, userID, customerRef string, trigger types.ReconcileTrigger) (types.EntitlementState, error) {
	if err := s.link(ctx, userID, customerRef); err != nil {
		s.record(trigger, err)
		return types.EntitlementState{}, err
	}
	return s.ResyncCustomer(ctx, customerRef, trigger)
}

func (s *Service) link(ctx context.Context, userID, customerRef string) error {
	effective, err := s.store.SetCustomerRef(ctx, userID, customerRef)
	if err != nil {
		return err
	}
	if effective != customerRef {
		return types.NewAppErrorWithDetails(
			types.ErrCodeConflictCustomerLinked,
			"account is already linked to a different billing customer",
			nil,
			map[string]any{"customer_ref": customerRef},
		)
	}
	return nil
}

// HandleCheckoutCompleted applies a checkout.session.completed event. When
// the customer is not yet linked, the owning user is resolved from the
// session's client reference or the customer's metadata.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, session *types.CheckoutSession) (types.EntitlementState, error) {
	if session.CustomerRef == "" {
		return types.EntitlementState{}, types.NewAppError(types.ErrCodeValidationMissingField, "checkout session has no customer", nil)
	}

	_, err := s.store.GetByCustomerRef(ctx, session.CustomerRef)
	switch {
	case err == nil:
	case types.CodeOf(err) == types.ErrCodeNotFoundCustomer:
		userID, resolveErr := s.resolveUser(ctx, session)
		if resolveErr != nil {
			s.record(types.TriggerWebhook, resolveErr)
			return types.EntitlementState{}, resolveErr
		}
		if linkErr := s.link(ctx, userID, session.CustomerRef); linkErr != nil {
			s.record(types.TriggerWebhook, linkErr)
			return types.EntitlementState{}, linkErr
		}
	default:
		s.record(types.TriggerWebhook, err)
		return types.EntitlementState{}, err
	}

	if session.SubscriptionID == "" {
		return s.ResyncCustomer(ctx, session.CustomerRef, types.TriggerWebhook)
	}

	sub, err := s.gateway.GetSubscription(ctx, session.SubscriptionID)
	if err != nil {
		s.record(types.TriggerWebhook, err)
		return types.EntitlementState{}, err
	}
	return s.applyOne(ctx, session.CustomerRef, *sub)
}

func (s *Service) resolveUser(ctx context.Context, session *types.CheckoutSession) (string, error) {
	if session.ClientReferenceID != "" {
		return session.ClientReferenceID, nil
	}
	customer, err := s.gateway.GetCustomer(ctx, session.CustomerRef)
	if err != nil {
		return "", err
	}
	if userID := customer.Metadata["user_id"]; userID != "" {
		return userID, nil
	}
	s.logger.WarnContext(ctx, "cannot resolve user for checkout session",
		"session_id", session.ID,
		"customer_ref", session.CustomerRef,
	)
	return "", entitlement.ErrCustomerNotFound
}

// ApplySubscriptionEvent applies a customer.subscription.* event. Created and
// updated events trust the event's subscription object; deleted forces
// {canceled, free} since the subscription may be missing from later lists.
func (s *Service) ApplySubscriptionEvent(ctx context.Context, eventType string, sub types.Subscription) (types.EntitlementState, error) {
	switch eventType {
	case external.EventStripeSubCreated, external.EventStripeSubUpdated:
		return s.applyOne(ctx, sub.CustomerRef, sub)
	case external.EventStripeSubDeleted:
		state, err := s.engine.Force(ctx, sub.CustomerRef, entitlement.Canceled())
		s.record(types.TriggerWebhook, err)
		return state, err
	default:
		return types.EntitlementState{}, fmt.Errorf("unsupported subscription event %q", eventType)
	}
}

// applyOne runs the single-object reconciliation. A status outside the
// enumeration is skipped rather than failed so the event is not redelivered
// forever; the next list-based resync ignores it too.
func (s *Service) applyOne(ctx context.Context, customerRef string, sub types.Subscription) (types.EntitlementState, error) {
	state, err := s.engine.ReconcileOne(ctx, customerRef, sub)
	if errors.Is(err, entitlement.ErrUnknownStatus) {
		s.recordOutcome(types.TriggerWebhook, OutcomeSkipped)
		return types.EntitlementState{}, nil
	}
	s.record(types.TriggerWebhook, err)
	return state, err
}

// HandleInvoiceEvent logs an invoice payment event and, when a queue is
// configured, defers a list-based resync for the customer.
func (s *Service) HandleInvoiceEvent(ctx context.Context, eventType, eventID, customerRef string) error {
	level := slog.LevelInfo
	if eventType == external.EventStripePaymentFailed {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "invoice event received",
		"event_type", eventType,
		"event_id", eventID,
		"customer_ref", customerRef,
	)

	if s.publisher == nil || customerRef == "" {
		return nil
	}
	return s.publisher.PublishResync(ctx, types.ResyncRequest{
		CustomerRef: customerRef,
		Reason:      eventType,
		Trigger:     types.TriggerQueue,
		EventID:     eventID,
	})
}

func (s *Service) record(trigger types.ReconcileTrigger, err error) {
	switch {
	case err == nil:
		s.recordOutcome(trigger, OutcomeSuccess)
	case entitlement.IsCustomerNotFound(err):
		s.recordOutcome(trigger, OutcomeSkipped)
	default:
		s.recordOutcome(trigger, OutcomeFailure)
	}
}

func (s *Service) recordOutcome(trigger types.ReconcileTrigger, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordReconcile(trigger, outcome)
	}
}
