package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"simplenotes/internal/types"
)

// StubBillingGateway is an in-memory BillingGateway used when APP_ENV=local
// or IS_TEST_MODE is set. Checkout sessions complete immediately and create
// an active subscription, so the full upgrade flow can be exercised without
// Stripe credentials.
type StubBillingGateway struct {
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	seq       int
	customers map[string]*types.Customer
	subs      map[string][]types.Subscription
	sessions  map[string]*types.CheckoutSession
}

// NewStubBillingGateway creates an empty StubBillingGateway.
func NewStubBillingGateway(logger *slog.Logger) *StubBillingGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubBillingGateway{
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		customers: make(map[string]*types.Customer),
		subs:      make(map[string][]types.Subscription),
		sessions:  make(map[string]*types.CheckoutSession),
	}
}

func (s *StubBillingGateway) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_stub_%d", prefix, s.seq)
}

func (s *StubBillingGateway) CreateOrGetCustomer(ctx context.Context, email, userID string, existingRef *string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingRef != nil {
		if c, ok := s.customers[*existingRef]; ok && !c.Deleted {
			return c.ID, nil
		}
	}
	id := s.nextID("cus")
	s.customers[id] = &types.Customer{ID: id, Email: email, Metadata: map[string]string{"user_id": userID}}
	s.logger.InfoContext(ctx, "stub: customer created", "customer_ref", id, "user_id", userID)
	return id, nil
}

func (s *StubBillingGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*types.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subID := s.nextID("sub")
	s.subs[p.CustomerRef] = append(s.subs[p.CustomerRef], types.Subscription{
		ID:          subID,
		Status:      types.SubStatusActive,
		CreatedAt:   s.now(),
		CustomerRef: p.CustomerRef,
	})

	session := &types.CheckoutSession{
		ID:                s.nextID("cs"),
		CustomerRef:       p.CustomerRef,
		SubscriptionID:    subID,
		ClientReferenceID: p.UserID,
		Status:            "complete",
		PaymentStatus:     "paid",
	}
	session.URL = "https://checkout.stub.local/" + session.ID
	s.sessions[session.ID] = session

	s.logger.InfoContext(ctx, "stub: checkout session created", "session_id", session.ID, "customer_ref", p.CustomerRef)
	out := *session
	return &out, nil
}

func (s *StubBillingGateway) CreatePortalSession(ctx context.Context, customerRef, returnURL string) (string, error) {
	s.logger.InfoContext(ctx, "stub: portal session created", "customer_ref", customerRef, "return_url", returnURL)
	return "https://portal.stub.local/" + customerRef, nil
}

func (s *StubBillingGateway) ListSubscriptions(_ context.Context, customerRef string) ([]types.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(make([]types.Subscription, 0, len(s.subs[customerRef])), s.subs[customerRef]...), nil
}

func (s *StubBillingGateway) GetSubscription(_ context.Context, subscriptionID string) (*types.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.subs {
		for _, sub := range list {
			if sub.ID == subscriptionID {
				out := sub
				return &out, nil
			}
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundCustomer, "stub: subscription not found", nil)
}

func (s *StubBillingGateway) GetCheckoutSession(_ context.Context, sessionID string) (*types.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSession, "stub: checkout session not found", nil)
	}
	out := *session
	return &out, nil
}

func (s *StubBillingGateway) GetCustomer(_ context.Context, customerRef string) (*types.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[customerRef]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundCustomer, "stub: customer not found", nil)
	}
	out := *c
	return &out, nil
}

// SetSubscriptionStatus rewrites a stub subscription's status, standing in for
// provider-side lifecycle changes during local testing.
func (s *StubBillingGateway) SetSubscriptionStatus(subscriptionID string, status types.SubscriptionStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, list := range s.subs {
		for i := range list {
			if list[i].ID == subscriptionID {
				s.subs[ref][i].Status = status
				return true
			}
		}
	}
	return false
}

// StubWebhookVerifier implements WebhookVerifier by always succeeding.
// Used only when APP_ENV=local or IS_TEST_MODE is set.
type StubWebhookVerifier struct {
	logger *slog.Logger
}

// NewStubWebhookVerifier creates a new StubWebhookVerifier.
func NewStubWebhookVerifier(logger *slog.Logger) *StubWebhookVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubWebhookVerifier{logger: logger}
}

func (s *StubWebhookVerifier) Verify(payload []byte, header string, secret string) error {
	s.logger.Warn("stub: webhook signature not verified", "payload_len", len(payload))
	return nil
}

var (
	_ BillingGateway  = (*StubBillingGateway)(nil)
	_ WebhookVerifier = (*StubWebhookVerifier)(nil)
)
