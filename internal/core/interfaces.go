package core

import (
	"context"
	"time"

	"simplenotes/internal/types"
)

// Authenticator resolves an opaque bearer token to the Actor that owns it.
// Implementations return auth_token_invalid or auth_token_expired AppErrors.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (types.Actor, error)
}

// RateLimitStore abstracts the counter backing the rate limit middleware.
type RateLimitStore interface {
	// IncrementAndCheck atomically increments the counter for key and reports
	// whether it is still within limit for the current window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// HealthProbe is a subsystem health check (database, queue).
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}
