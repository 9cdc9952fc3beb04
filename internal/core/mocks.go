package core

import (
	"context"
	"sync"
	"time"

	"simplenotes/internal/types"
)

// MockAuthenticator implements Authenticator for tests. AuthenticateFunc,
// when set, takes precedence over Actor and Err.
type MockAuthenticator struct {
	Actor            types.Actor
	Err              error
	AuthenticateFunc func(ctx context.Context, token string) (types.Actor, error)

	mu    sync.Mutex
	Calls []string
}

// Authenticate implements Authenticator.
func (m *MockAuthenticator) Authenticate(ctx context.Context, token string) (types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, token)
	}
	if m.Err != nil {
		return types.Actor{}, m.Err
	}
	return m.Actor, nil
}

// MockRateLimitStore implements RateLimitStore with a fixed result.
type MockRateLimitStore struct {
	Result RateLimitResult
	Err    error

	mu   sync.Mutex
	Keys []string
}

// IncrementAndCheck implements RateLimitStore.
func (m *MockRateLimitStore) IncrementAndCheck(_ context.Context, key string, _ int, _ time.Duration) (RateLimitResult, error) {
	m.mu.Lock()
	m.Keys = append(m.Keys, key)
	m.mu.Unlock()
	return m.Result, m.Err
}

// MockHealthProbe implements HealthProbe with a fixed error.
type MockHealthProbe struct {
	ProbeName string
	Err       error
	Delay     time.Duration
}

func (m *MockHealthProbe) Name() string { return m.ProbeName }

func (m *MockHealthProbe) Check(ctx context.Context) error {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.Err
}

var (
	_ Authenticator  = (*MockAuthenticator)(nil)
	_ RateLimitStore = (*MockRateLimitStore)(nil)
	_ HealthProbe    = (*MockHealthProbe)(nil)
)
