package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"simplenotes/internal/types"
)

// DefaultSessionDuration is used when SessionConfig.SessionDuration is unset.
const DefaultSessionDuration = 30 * 24 * time.Hour

// SessionConfig holds configuration for session management.
type SessionConfig struct {
	SessionDuration time.Duration
}

// SessionRepo defines the data access methods needed by the SessionService.
// Implemented by db.SessionRepository.
type SessionRepo interface {
	Create(ctx context.Context, session *types.Session) error
	// GetByTokenHash returns the session and its owner's email.
	GetByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*types.Session, string, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenGenerator abstracts entropy sources for testability.
type TokenGenerator interface {
	GenerateToken() (string, error)
}

// SessionService issues and validates opaque bearer tokens. Only the
// SHA-256 hash of a token is persisted.
type SessionService struct {
	repo     SessionRepo
	tokenGen TokenGenerator
	config   SessionConfig
	clock    types.Clock
	logger   *slog.Logger
}

// NewSessionService creates a SessionService. A nil tokenGen uses
// CryptoTokenGenerator.
func NewSessionService(repo SessionRepo, tokenGen TokenGenerator, config SessionConfig, clock types.Clock, logger *slog.Logger) *SessionService {
	if tokenGen == nil {
		tokenGen = CryptoTokenGenerator{}
	}
	if config.SessionDuration <= 0 {
		config.SessionDuration = DefaultSessionDuration
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		repo:     repo,
		tokenGen: tokenGen,
		config:   config,
		clock:    clock,
		logger:   logger,
	}
}

// CreateSession creates a session for userID and returns it together with
// the raw token. The raw token is shown to the client once and never stored.
func (s *SessionService) CreateSession(ctx context.Context, userID string) (*types.Session, string, error) {
	token, err := s.tokenGen.GenerateToken()
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate session token", err)
	}

	now := s.clock.Now()
	session := &types.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(s.config.SessionDuration),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, "", err
	}

	s.logger.Info("session created",
		"session_id", session.ID,
		"user_id", userID,
	)
	return session, token, nil
}

// ValidateToken resolves a raw bearer token to its session and owner email.
func (s *SessionService) ValidateToken(ctx context.Context, token string) (*types.Session, string, error) {
	if token == "" {
		return nil, "", types.NewAppError(types.ErrCodeAuthTokenMissing, "session token required", nil)
	}
	return s.repo.GetByTokenHash(ctx, HashToken(token), s.clock.Now())
}

// InvalidateSession performs a hard delete of a single session.
func (s *SessionService) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("session invalidated", "session_id", sessionID)
	return nil
}

// PurgeExpired removes every expired session.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.clock.Now())
}

// CryptoTokenGenerator is the production TokenGenerator using crypto/rand.
type CryptoTokenGenerator struct{}

// GenerateToken returns 32 random bytes, hex encoded.
func (CryptoTokenGenerator) GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashToken produces a hex-encoded SHA-256 hash of a raw token string so it
// can be looked up without storing the token itself.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// CanonicalizeEmail normalizes email addresses for consistent DB lookups.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
