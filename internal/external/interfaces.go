package external

import (
	"context"

	"simplenotes/internal/types"
)

// BillingGateway abstracts interactions with the payment provider (Stripe).
// Implementations translate between domain types and vendor-specific APIs.
// A gateway is constructed once at startup and passed to every caller.
type BillingGateway interface {
	// CreateOrGetCustomer returns existingRef when it names a live customer,
	// otherwise creates a customer tagged with metadata[user_id].
	CreateOrGetCustomer(ctx context.Context, email, userID string, existingRef *string) (string, error)

	// CreateCheckoutSession creates a subscription-mode checkout session.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*types.CheckoutSession, error)

	// CreatePortalSession generates a billing portal URL for self-serve
	// subscription management.
	CreatePortalSession(ctx context.Context, customerRef, returnURL string) (string, error)

	// ListSubscriptions returns every subscription for the customer, in any
	// status, following pagination to the end.
	ListSubscriptions(ctx context.Context, customerRef string) ([]types.Subscription, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*types.Subscription, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSession, error)
	GetCustomer(ctx context.Context, customerRef string) (*types.Customer, error)
}

// CheckoutParams carries the inputs for a checkout session.
type CheckoutParams struct {
	CustomerRef string
	PriceID     string
	UserID      string
	SuccessURL  string
	CancelURL   string
}

// WebhookVerifier abstracts Stripe webhook signature checking.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature header
	// and signing secret. Returns nil on success, an error on failure.
	Verify(payload []byte, header string, secret string) error
}

// Stripe event type constants prevent magic strings in webhook handlers.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeSubCreated        = "customer.subscription.created"
	EventStripeSubUpdated        = "customer.subscription.updated"
	EventStripeSubDeleted        = "customer.subscription.deleted"
	EventStripePaymentSucceeded  = "invoice.payment_succeeded"
	EventStripePaymentFailed     = "invoice.payment_failed"
)
