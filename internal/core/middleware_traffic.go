package core

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"simplenotes/internal/types"
)

// Credential endpoints are throttled per client IP.
const (
	credentialRateLimit  = 20
	credentialRateWindow = time.Minute
)

var rateLimitedPaths = map[string]bool{
	"/v1/auth/login":  true,
	"/v1/auth/signup": true,
}

// errCodeRateLimited is local to the chassis; no domain operation returns it.
const errCodeRateLimited types.ErrorCode = "rate_limit_exceeded"

// RateLimit throttles the credential endpoints per client IP. Store errors
// fail open. Every limited response carries X-RateLimit-* headers; denials
// add Retry-After and return 429.
//
// A nil RateLimitStore disables rate limiting.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimitStore == nil || r.Method != http.MethodPost || !rateLimitedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ip := extractClientIP(r)
		result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), r.URL.Path+"|"+ip, credentialRateLimit, credentialRateWindow)
		if err != nil {
			s.Logger.Error("rate limit store error",
				slog.String("ip", ip),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, credentialRateLimit, result)

		if !result.Allowed {
			s.Logger.Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)

			retryAfter := int(time.Until(result.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			JSON(w, r, http.StatusTooManyRequests, APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(errCodeRateLimited),
					Message:   "Too many attempts. Please retry later.",
					RequestID: types.GetRequestID(r.Context()),
				},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// extractClientIP returns the first X-Forwarded-For entry, or RemoteAddr
// without its port.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if ip != "" {
			return ip
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// MemoryRateLimitStore is a fixed-window, process-local RateLimitStore. Each
// API instance counts independently.
type MemoryRateLimitStore struct {
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*rateWindow
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryRateLimitStore creates an empty MemoryRateLimitStore.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		now:     time.Now,
		windows: make(map[string]*rateWindow),
	}
}

// IncrementAndCheck implements RateLimitStore.
func (m *MemoryRateLimitStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		m.evictExpired(now)
		w = &rateWindow{resetAt: now.Add(window)}
		m.windows[key] = w
	}
	w.count++

	return RateLimitResult{
		Allowed:   w.count <= limit,
		Remaining: max(limit-w.count, 0),
		ResetAt:   w.resetAt,
	}, nil
}

// evictExpired drops finished windows. Caller holds mu.
func (m *MemoryRateLimitStore) evictExpired(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}
