package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"simplenotes/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// subscriptionPageSize is the largest page Stripe allows on list endpoints.
const subscriptionPageSize = 100

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey   string
	BaseURL     string // Override for testing; defaults to stripeAPIBase
	RetryPolicy RetryPolicy
	Logger      *slog.Logger
}

// StripeClient implements BillingGateway by making direct HTTP calls to the
// Stripe REST API through BaseClient. All requests share one circuit breaker
// and one error mapping, and tests can point it at an httptest server.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

var _ BillingGateway = (*StripeClient)(nil)

// NewStripeClient creates a new StripeClient. A zero RetryPolicy performs a
// single attempt per call.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		cfg.RetryPolicy,
		"SimpleNotes/1.0",
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// ---------------------------------------------------------------------------
// BillingGateway Implementation
// ---------------------------------------------------------------------------

// CreateOrGetCustomer retrieves the customer named by existingRef. A missing
// or deleted customer falls through to creating a new one; any other failure
// is returned so a transient outage never mints a duplicate customer.
func (s *StripeClient) CreateOrGetCustomer(ctx context.Context, email, userID string, existingRef *string) (string, error) {
	if existingRef != nil && *existingRef != "" {
		customer, err := s.GetCustomer(ctx, *existingRef)
		switch {
		case err == nil && !customer.Deleted:
			return customer.ID, nil
		case err == nil, types.CodeOf(err) == types.ErrCodeNotFoundCustomer:
			s.logger.WarnContext(ctx, "stored stripe customer is gone; creating a new one",
				"user_id", userID,
				"customer_ref", *existingRef,
			)
		default:
			return "", err
		}
	}

	params := url.Values{}
	params.Set("email", email)
	params.Set("metadata[user_id]", userID)

	var customer stripeCustomer
	if err := s.call(ctx, http.MethodPost, "/v1/customers", params, "CreateCustomer", &customer); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "stripe customer created",
		"user_id", userID,
		"customer_ref", customer.ID,
	)
	return customer.ID, nil
}

// CreateCheckoutSession generates a Stripe Checkout Session. The user ID is
// carried as client_reference_id and subscription metadata so webhook
// deliveries can be correlated back to the account.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*types.CheckoutSession, error) {
	params := url.Values{}
	params.Set("customer", p.CustomerRef)
	params.Set("mode", "subscription")
	params.Set("client_reference_id", p.UserID)
	params.Set("success_url", p.SuccessURL)
	params.Set("cancel_url", p.CancelURL)
	params.Set("line_items[0][price]", p.PriceID)
	params.Set("line_items[0][quantity]", "1")
	params.Set("payment_method_types[0]", "card")
	params.Set("subscription_data[metadata][user_id]", p.UserID)
	params.Set("subscription_data[metadata][customer_ref]", p.CustomerRef)

	var session stripeCheckoutSession
	if err := s.call(ctx, http.MethodPost, "/v1/checkout/sessions", params, "CreateCheckoutSession", &session); err != nil {
		return nil, err
	}
	return session.toDomain(), nil
}

// CreatePortalSession generates a Stripe Billing Portal URL.
func (s *StripeClient) CreatePortalSession(ctx context.Context, customerRef, returnURL string) (string, error) {
	params := url.Values{}
	params.Set("customer", customerRef)
	params.Set("return_url", returnURL)

	var session stripePortalSession
	if err := s.call(ctx, http.MethodPost, "/v1/billing_portal/sessions", params, "CreatePortalSession", &session); err != nil {
		return "", err
	}
	return session.URL, nil
}

// ListSubscriptions pages through /v1/subscriptions with status=all using
// starting_after until has_more is false.
func (s *StripeClient) ListSubscriptions(ctx context.Context, customerRef string) ([]types.Subscription, error) {
	subs := make([]types.Subscription, 0)
	cursor := ""

	for {
		params := url.Values{}
		params.Set("customer", customerRef)
		params.Set("status", "all")
		params.Set("limit", strconv.Itoa(subscriptionPageSize))
		if cursor != "" {
			params.Set("starting_after", cursor)
		}

		var page stripeSubscriptionList
		if err := s.call(ctx, http.MethodGet, "/v1/subscriptions", params, "ListSubscriptions", &page); err != nil {
			return nil, err
		}

		for i := range page.Data {
			subs = append(subs, page.Data[i].toDomain())
		}

		if !page.HasMore || len(page.Data) == 0 {
			return subs, nil
		}
		cursor = page.Data[len(page.Data)-1].ID
	}
}

// GetSubscription retrieves a single subscription by ID.
func (s *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*types.Subscription, error) {
	var sub stripeSubscription
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := s.call(ctx, http.MethodGet, path, nil, "GetSubscription", &sub); err != nil {
		return nil, err
	}
	out := sub.toDomain()
	return &out, nil
}

// GetCheckoutSession retrieves a checkout session by ID.
func (s *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSession, error) {
	var session stripeCheckoutSession
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID)
	if err := s.call(ctx, http.MethodGet, path, nil, "GetCheckoutSession", &session); err != nil {
		if types.CodeOf(err) == types.ErrCodeNotFoundCustomer {
			return nil, types.NewAppError(types.ErrCodeNotFoundSession, "checkout session not found", err)
		}
		return nil, err
	}
	return session.toDomain(), nil
}

// GetCustomer retrieves a customer. Deleted customers are returned with
// Deleted set rather than as an error.
func (s *StripeClient) GetCustomer(ctx context.Context, customerRef string) (*types.Customer, error) {
	var customer stripeCustomer
	path := "/v1/customers/" + url.PathEscape(customerRef)
	if err := s.call(ctx, http.MethodGet, path, nil, "GetCustomer", &customer); err != nil {
		return nil, err
	}
	return &types.Customer{
		ID:       customer.ID,
		Email:    customer.Email,
		Metadata: customer.Metadata,
		Deleted:  customer.Deleted,
	}, nil
}

// ---------------------------------------------------------------------------
// Webhook Payload Parsing
// ---------------------------------------------------------------------------

// ParseSubscription decodes a subscription object as delivered in a webhook
// event's data.object.
func ParseSubscription(raw []byte) (*types.Subscription, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription object: %w", err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("decode subscription object: missing id")
	}
	out := sub.toDomain()
	return &out, nil
}

// ParseCheckoutSession decodes a checkout session object as delivered in a
// webhook event's data.object.
func ParseCheckoutSession(raw []byte) (*types.CheckoutSession, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode checkout session object: %w", err)
	}
	return session.toDomain(), nil
}

// ParseInvoiceCustomer extracts the customer reference from an invoice object.
func ParseInvoiceCustomer(raw []byte) (string, error) {
	var inv struct {
		Customer expandableID `json:"customer"`
	}
	if err := json.Unmarshal(raw, &inv); err != nil {
		return "", fmt.Errorf("decode invoice object: %w", err)
	}
	return string(inv.Customer), nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// call performs an authenticated request and decodes a 200 response into out.
func (s *StripeClient) call(ctx context.Context, method, path string, params url.Values, operation string, out any) error {
	var (
		resp *http.Response
		err  error
	)
	if method == http.MethodGet {
		resp, err = s.doGet(ctx, path, params)
	} else {
		resp, err = s.doPost(ctx, path, params)
	}
	if err != nil {
		return s.wrapStripeError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.handleErrorResponse(resp, operation)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: failed to decode Stripe response", operation),
			err,
		)
	}
	return nil
}

// doGet performs an authenticated GET request to the Stripe API.
func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// doPost performs an authenticated POST request to the Stripe API with form-encoded body.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	body := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and content headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// stripeErrorResponse represents the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
}

// handleErrorResponse reads a Stripe error response and maps it to a types.AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return s.mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

// mapStripeError translates a Stripe error into a types.AppError.
func (s *StripeClient) mapStripeError(operation string, statusCode int, stripeErr *stripeErrorBody) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Message),
			nil,
		)
	case statusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundCustomer,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, stripeErr.Message),
			nil,
		)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, stripeErr.Message),
			nil,
			map[string]any{"stripe_code": stripeErr.Code, "param": stripeErr.Param},
		)
	}
}

// wrapStripeError wraps a BaseClient transport error with context.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	// BaseClient already maps breaker and transport failures.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamUnavailable,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Stripe Response Types (for JSON deserialization)
// ---------------------------------------------------------------------------

// expandableID accepts either a bare ID or an expanded object with an id.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type stripeCustomer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
	Deleted  bool              `json:"deleted"`
}

type stripeCheckoutSession struct {
	ID                string       `json:"id"`
	URL               string       `json:"url"`
	Customer          expandableID `json:"customer"`
	Subscription      expandableID `json:"subscription"`
	ClientReferenceID string       `json:"client_reference_id"`
	Mode              string       `json:"mode"`
	Status            string       `json:"status"`
	PaymentStatus     string       `json:"payment_status"`
}

func (s *stripeCheckoutSession) toDomain() *types.CheckoutSession {
	return &types.CheckoutSession{
		ID:                s.ID,
		CustomerRef:       string(s.Customer),
		SubscriptionID:    string(s.Subscription),
		ClientReferenceID: s.ClientReferenceID,
		Mode:              s.Mode,
		Status:            s.Status,
		PaymentStatus:     s.PaymentStatus,
		URL:               s.URL,
	}
}

type stripePortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type stripeSubscription struct {
	ID       string       `json:"id"`
	Status   string       `json:"status"`
	Created  int64        `json:"created"`
	Customer expandableID `json:"customer"`
}

// toDomain passes the status through unchanged; unknown values are left for
// the reconciliation engine to reject or skip.
func (s *stripeSubscription) toDomain() types.Subscription {
	return types.Subscription{
		ID:          s.ID,
		Status:      types.SubscriptionStatus(s.Status),
		CreatedAt:   time.Unix(s.Created, 0).UTC(),
		CustomerRef: string(s.Customer),
	}
}

type stripeSubscriptionList struct {
	Data    []stripeSubscription `json:"data"`
	HasMore bool                 `json:"has_more"`
}

// ---------------------------------------------------------------------------
// Webhook Verification
// ---------------------------------------------------------------------------

// StripeVerifier implements WebhookVerifier using stripe-go's webhook
// signature verification: HMAC-SHA256 with timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature header
// and signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return webhook.ValidatePayload(payload, header, secret)
}
