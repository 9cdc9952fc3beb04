package types

import "time"

// Plan is the entitlement tier derived from subscription status.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// SubscriptionStatus mirrors the billing provider's closed status enumeration.
type SubscriptionStatus string

const (
	SubStatusActive            SubscriptionStatus = "active"
	SubStatusTrialing          SubscriptionStatus = "trialing"
	SubStatusPastDue           SubscriptionStatus = "past_due"
	SubStatusCanceled          SubscriptionStatus = "canceled"
	SubStatusIncomplete        SubscriptionStatus = "incomplete"
	SubStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubStatusUnpaid            SubscriptionStatus = "unpaid"
)

// AllSubscriptionStatuses lists every known status in provider order.
var AllSubscriptionStatuses = []SubscriptionStatus{
	SubStatusActive,
	SubStatusTrialing,
	SubStatusPastDue,
	SubStatusCanceled,
	SubStatusIncomplete,
	SubStatusIncompleteExpired,
	SubStatusUnpaid,
}

// IsValid reports whether s is a member of the status enumeration.
func (s SubscriptionStatus) IsValid() bool {
	for _, known := range AllSubscriptionStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsEntitling reports whether s grants the pro plan.
func (s SubscriptionStatus) IsEntitling() bool {
	switch s {
	case SubStatusActive, SubStatusTrialing, SubStatusPastDue:
		return true
	default:
		return false
	}
}

// PlanFor returns the plan implied by an optional status. A nil status
// (no subscription ever seen) is free.
func PlanFor(status *SubscriptionStatus) Plan {
	if status != nil && status.IsEntitling() {
		return PlanPro
	}
	return PlanFree
}

// EntitlementRecord is the per-user persisted entitlement state.
// SubscriptionStatus and CustomerRef are nil until first observed.
type EntitlementRecord struct {
	UserID             string              `json:"user_id"`
	CustomerRef        *string             `json:"billing_customer_ref,omitempty"`
	SubscriptionStatus *SubscriptionStatus `json:"subscription_status"`
	Plan               Plan                `json:"plan"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// HasCustomerRef reports whether a billing relationship exists.
func (r *EntitlementRecord) HasCustomerRef() bool {
	return r != nil && r.CustomerRef != nil && *r.CustomerRef != ""
}

// Subscription is the provider-side subscription view consumed by reconciliation.
type Subscription struct {
	ID          string             `json:"id"`
	Status      SubscriptionStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	CustomerRef string             `json:"customer_ref"`
}

// EntitlementState is the (status, plan) pair written by a reconciliation.
type EntitlementState struct {
	Status *SubscriptionStatus `json:"subscription_status"`
	Plan   Plan                `json:"plan"`
}

// StatusOrEmpty returns the status string or "" when unset.
func (s EntitlementState) StatusOrEmpty() string {
	if s.Status == nil {
		return ""
	}
	return string(*s.Status)
}

// StatusPtr returns a pointer to a copy of s.
func StatusPtr(s SubscriptionStatus) *SubscriptionStatus {
	return &s
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}

// ReconcileTrigger names the input channel that caused a reconciliation.
type ReconcileTrigger string

const (
	TriggerWebhook  ReconcileTrigger = "webhook"
	TriggerManual   ReconcileTrigger = "manual"
	TriggerCheckout ReconcileTrigger = "checkout"
	TriggerQueue    ReconcileTrigger = "queue"
	TriggerSweep    ReconcileTrigger = "sweep"
)

// ResyncRequest is the queued message asking for a list-based reconciliation.
type ResyncRequest struct {
	CustomerRef string           `json:"customer_ref"`
	Reason      string           `json:"reason"`
	Trigger     ReconcileTrigger `json:"trigger,omitempty"`
	EventID     string           `json:"event_id,omitempty"`
}

// CheckoutSession is the subset of a provider checkout session used to
// confirm a completed purchase.
type CheckoutSession struct {
	ID                string `json:"id"`
	CustomerRef       string `json:"customer"`
	SubscriptionID    string `json:"subscription,omitempty"`
	ClientReferenceID string `json:"client_reference_id,omitempty"`
	Mode              string `json:"mode"`
	Status            string `json:"status"`
	PaymentStatus     string `json:"payment_status"`
	URL               string `json:"url,omitempty"`
}

// CheckoutModeSubscription is the only checkout mode that grants an
// entitlement. Payment and setup sessions are ignored.
const CheckoutModeSubscription = "subscription"

// IsSubscription reports whether the session was opened in subscription mode.
func (s *CheckoutSession) IsSubscription() bool {
	return s != nil && s.Mode == CheckoutModeSubscription
}

// IsComplete reports whether the provider considers the session finished.
func (s *CheckoutSession) IsComplete() bool {
	return s != nil && s.Status == "complete"
}

// Customer is the provider customer view.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Deleted  bool              `json:"deleted,omitempty"`
}
