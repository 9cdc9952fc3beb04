// Package config defines the configuration structure for the SimpleNotes
// services. Configuration is loaded once at process start and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"simplenotes/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the sections they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"simplenotes-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	IsTestMode  bool   `envconfig:"IS_TEST_MODE" default:"false"`

	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Billing  BillingConfig
	Quota    QuotaConfig
	Queue    QueueConfig
	Metrics  MetricsConfig
	Auth     AuthConfig
	Sweep    SweepConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	// Public site URL used for checkout and portal redirects (no trailing slash).
	SiteURL            string   `envconfig:"SITE_URL" default:"http://localhost:3000" validate:"required,url"`
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"gte=1"`
	MinConns        int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"false"`
}

// AWSConfig holds regional configuration and the LocalStack override.
type AWSConfig struct {
	Region      string `envconfig:"AWS_REGION" default:"us-east-1"`
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe credentials and the pro plan price.
type BillingConfig struct {
	StripeSecretKey     SecretString  `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString  `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	StripePriceID       string        `envconfig:"STRIPE_PRICE_ID" validate:"required"`
	StripeAPIBase       string        `envconfig:"STRIPE_API_BASE" validate:"omitempty,url"`
	RequestTimeout      time.Duration `envconfig:"STRIPE_TIMEOUT" default:"20s"`
	MaxRetries          int           `envconfig:"STRIPE_MAX_RETRIES" default:"0" validate:"gte=0,lte=5"`
}

// QuotaConfig controls the note-creation gate.
type QuotaConfig struct {
	FreeNoteLimit int  `envconfig:"FREE_NOTE_LIMIT" default:"3" validate:"gte=1"`
	Strict        bool `envconfig:"QUOTA_STRICT" default:"false"`
}

// QueueConfig names the SQS queue for deferred resyncs. Empty disables
// enqueueing.
type QueueConfig struct {
	ResyncQueueURL string `envconfig:"SQS_RESYNC_QUEUE" validate:"omitempty,url"`
}

// MetricsConfig holds telemetry naming.
type MetricsConfig struct {
	Namespace     string `envconfig:"METRIC_NAMESPACE" default:"SimpleNotes"`
	EnableMetrics bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// AuthConfig holds session and password hashing settings.
type AuthConfig struct {
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	BcryptCost int           `envconfig:"BCRYPT_COST" default:"12" validate:"gte=4,lte=31"`
}

// SweepConfig tunes the scheduled stale-entitlement sweep.
type SweepConfig struct {
	StaleAfter  time.Duration `envconfig:"SWEEP_STALE_AFTER" default:"24h"`
	BatchSize   int           `envconfig:"SWEEP_BATCH_SIZE" default:"200" validate:"gte=1"`
	Concurrency int           `envconfig:"SWEEP_CONCURRENCY" default:"4" validate:"gte=1,lte=32"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)

// IsLocal reports whether the process runs against local stand-ins.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}
