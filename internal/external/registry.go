package external

import (
	"log/slog"
	"net/http"
	"time"

	"simplenotes/internal/config"
)

// ClientRegistry holds the billing provider handles shared by every trigger
// adapter. It is built once in main and passed down explicitly.
type ClientRegistry struct {
	Billing  BillingGateway
	Verifier WebhookVerifier
}

// NewClientRegistry returns stub implementations when cfg.IsTestMode is set or
// the environment is local, and real Stripe clients otherwise.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.IsTestMode || cfg.IsLocal() {
		logger.Info("initializing billing clients in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		stubLogger := logger.With("mode", "stub")
		return &ClientRegistry{
			Billing:  NewStubBillingGateway(stubLogger),
			Verifier: NewStubWebhookVerifier(stubLogger),
		}
	}

	logger.Info("initializing billing clients", "environment", cfg.Environment)

	timeout := cfg.Billing.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	policy := NoRetryPolicy()
	policy.MaxRetries = cfg.Billing.MaxRetries

	return &ClientRegistry{
		Billing: NewStripeClient(&http.Client{Timeout: timeout}, StripeClientConfig{
			SecretKey:   cfg.Billing.StripeSecretKey.Unmask(),
			BaseURL:     cfg.Billing.StripeAPIBase,
			RetryPolicy: policy,
			Logger:      logger.With("client", "stripe"),
		}),
		Verifier: &StripeVerifier{},
	}
}
