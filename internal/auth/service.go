// Package auth implements password authentication and bearer-token
// sessions for the notes API.
package auth

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"simplenotes/internal/types"
)

// DefaultBcryptCost is the bcrypt cost factor used when none is configured.
const DefaultBcryptCost = 12

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// UserRepo defines the user lookups needed by the Service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// Registrar creates a user and its initial entitlement record atomically.
// Implemented by db.Registrar.
type Registrar interface {
	Register(ctx context.Context, u *types.User) error
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a PasswordHasher using bcrypt at cost. Costs
// outside bcrypt's range fall back to DefaultBcryptCost.
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Users     UserRepo
	Registrar Registrar
	Sessions  *SessionService
	Hasher    PasswordHasher
	Clock     types.Clock
	Logger    *slog.Logger
}

// Service implements signup, login, logout and token authentication.
type Service struct {
	users     UserRepo
	registrar Registrar
	sessions  *SessionService
	hasher    PasswordHasher
	clock     types.Clock
	logger    *slog.Logger
}

// NewService creates a Service. If Hasher is nil, bcrypt at
// DefaultBcryptCost is used.
func NewService(cfg ServiceConfig) *Service {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = NewBcryptHasher(DefaultBcryptCost)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:     cfg.Users,
		registrar: cfg.Registrar,
		sessions:  cfg.Sessions,
		hasher:    hasher,
		clock:     clock,
		logger:    logger,
	}
}

// Signup creates the account with a free entitlement and logs it in.
func (s *Service) Signup(ctx context.Context, email, password string) (*types.User, string, error) {
	if len(password) < MinPasswordLength {
		return nil, "", types.NewAppErrorWithDetails(
			types.ErrCodeValidationWeakPassword,
			"password is too short",
			nil,
			map[string]any{"min_length": MinPasswordLength},
		)
	}

	hash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	now := s.clock.Now()
	user := &types.User{
		ID:           uuid.NewString(),
		Email:        CanonicalizeEmail(email),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.registrar.Register(ctx, user); err != nil {
		return nil, "", err
	}

	_, token, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("user signed up", "user_id", user.ID)
	return user, token, nil
}

// Login verifies credentials and creates a session. Unknown email and wrong
// password return the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*types.User, string, error) {
	invalid := types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)

	user, err := s.users.GetByEmail(ctx, CanonicalizeEmail(email))
	if err != nil {
		if types.CodeOf(err) == types.ErrCodeAuthUserNotFound {
			return nil, "", invalid
		}
		return nil, "", err
	}
	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		s.logger.Info("login failed", "user_id", user.ID, "reason", "invalid_creds")
		return nil, "", invalid
	}

	_, token, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return user, token, nil
}

// Logout revokes the session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.InvalidateSession(ctx, sessionID)
}

// Authenticate resolves a bearer token to the user Actor it belongs to.
func (s *Service) Authenticate(ctx context.Context, token string) (types.Actor, error) {
	session, email, err := s.sessions.ValidateToken(ctx, token)
	if err != nil {
		return types.Actor{}, err
	}
	return types.Actor{
		ID:        session.UserID,
		Type:      types.ActorTypeUser,
		Email:     email,
		SessionID: session.ID,
	}, nil
}

// Me returns the authenticated user's profile.
func (s *Service) Me(ctx context.Context, userID string) (*types.User, error) {
	return s.users.GetByID(ctx, userID)
}
