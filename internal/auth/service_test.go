package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"simplenotes/internal/types"
)

// --- Mocks ---

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*types.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockRegistrar struct {
	mock.Mock
}

func (m *mockRegistrar) Register(ctx context.Context, u *types.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

type mockPasswordHasher struct {
	mock.Mock
}

func (m *mockPasswordHasher) CompareHashAndPassword(hashedPassword, password string) error {
	args := m.Called(hashedPassword, password)
	return args.Error(0)
}

func (m *mockPasswordHasher) GenerateFromPassword(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// --- Fixtures ---

type authFixture struct {
	svc       *Service
	users     *mockUserRepo
	registrar *mockRegistrar
	hasher    *mockPasswordHasher
	sessions  *mockSessionRepo
	tokens    *mockTokenGenerator
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		users:     new(mockUserRepo),
		registrar: new(mockRegistrar),
		hasher:    new(mockPasswordHasher),
		sessions:  new(mockSessionRepo),
		tokens:    new(mockTokenGenerator),
	}
	f.svc = NewService(ServiceConfig{
		Users:     f.users,
		Registrar: f.registrar,
		Sessions:  newTestSessionService(f.sessions, f.tokens),
		Hasher:    f.hasher,
		Clock:     types.FixedClock{T: testNow},
	})
	return f
}

func storedUser() *types.User {
	return &types.User{
		ID:           "u1",
		Email:        "a@example.com",
		PasswordHash: "$2a$12$hash",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// --- Signup ---

func TestSignup_RegistersAndIssuesToken(t *testing.T) {
	f := newAuthFixture()
	f.hasher.On("GenerateFromPassword", "correct horse").Return("$2a$12$hash", nil)
	f.registrar.On("Register", mock.Anything, mock.MatchedBy(func(u *types.User) bool {
		return u.Email == "a@example.com" && u.PasswordHash == "$2a$12$hash" && u.ID != ""
	})).Return(nil)
	f.tokens.On("GenerateToken").Return("tok", nil)
	f.sessions.On("Create", mock.Anything, mock.Anything).Return(nil)

	user, token, err := f.svc.Signup(context.Background(), " A@Example.com ", "correct horse")

	require.NoError(t, err)
	assert.Equal(t, "a@example.com", user.Email)
	assert.Equal(t, "tok", token)
	f.registrar.AssertExpectations(t)
}

func TestSignup_WeakPassword(t *testing.T) {
	f := newAuthFixture()

	_, _, err := f.svc.Signup(context.Background(), "a@example.com", "short")

	assert.Equal(t, types.ErrCodeValidationWeakPassword, types.CodeOf(err))
	f.registrar.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	f := newAuthFixture()
	f.hasher.On("GenerateFromPassword", mock.Anything).Return("h", nil)
	f.registrar.On("Register", mock.Anything, mock.Anything).
		Return(types.NewAppError(types.ErrCodeConflictEmail, "an account with this email already exists", nil))

	_, _, err := f.svc.Signup(context.Background(), "a@example.com", "long enough")

	assert.Equal(t, types.ErrCodeConflictEmail, types.CodeOf(err))
	f.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture()
	f.users.On("GetByEmail", mock.Anything, "a@example.com").Return(storedUser(), nil)
	f.hasher.On("CompareHashAndPassword", "$2a$12$hash", "pw123456").Return(nil)
	f.tokens.On("GenerateToken").Return("tok", nil)
	f.sessions.On("Create", mock.Anything, mock.Anything).Return(nil)

	user, token, err := f.svc.Login(context.Background(), "A@example.com", "pw123456")

	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "tok", token)
}

func TestLogin_EnumerationProtection(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("GetByEmail", mock.Anything, "x@example.com").
			Return(nil, types.NewAppError(types.ErrCodeAuthUserNotFound, "user not found", nil))

		_, _, err := f.svc.Login(context.Background(), "x@example.com", "pw")
		assert.Equal(t, types.ErrCodeAuthInvalidCreds, types.CodeOf(err))
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newAuthFixture()
		f.users.On("GetByEmail", mock.Anything, "a@example.com").Return(storedUser(), nil)
		f.hasher.On("CompareHashAndPassword", mock.Anything, "nope").Return(errors.New("mismatch"))

		_, _, err := f.svc.Login(context.Background(), "a@example.com", "nope")
		assert.Equal(t, types.ErrCodeAuthInvalidCreds, types.CodeOf(err))
		f.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestLogin_DatabaseError(t *testing.T) {
	f := newAuthFixture()
	f.users.On("GetByEmail", mock.Anything, "a@example.com").
		Return(nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", nil))

	_, _, err := f.svc.Login(context.Background(), "a@example.com", "pw")
	assert.Equal(t, types.ErrCodeInternalDB, types.CodeOf(err))
}

// --- Authenticate / Logout ---

func TestAuthenticate(t *testing.T) {
	f := newAuthFixture()
	f.sessions.On("GetByTokenHash", mock.Anything, HashToken("tok"), testNow).
		Return(&types.Session{ID: "s1", UserID: "u1"}, "a@example.com", nil)

	actor, err := f.svc.Authenticate(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, types.Actor{ID: "u1", Type: types.ActorTypeUser, Email: "a@example.com", SessionID: "s1"}, actor)
}

func TestAuthenticate_Expired(t *testing.T) {
	f := newAuthFixture()
	f.sessions.On("GetByTokenHash", mock.Anything, HashToken("old"), testNow).
		Return(nil, "", types.NewAppError(types.ErrCodeAuthTokenExpired, "session has expired", nil))

	_, err := f.svc.Authenticate(context.Background(), "old")
	assert.Equal(t, types.ErrCodeAuthTokenExpired, types.CodeOf(err))
}

func TestLogout(t *testing.T) {
	f := newAuthFixture()
	f.sessions.On("Delete", mock.Anything, "s1").Return(nil)

	require.NoError(t, f.svc.Logout(context.Background(), "s1"))
	f.sessions.AssertExpectations(t)
}

func TestBcryptHasherRoundTrip(t *testing.T) {
	h := NewBcryptHasher(4)
	hash, err := h.GenerateFromPassword("secret-pass")
	require.NoError(t, err)

	assert.NoError(t, h.CompareHashAndPassword(hash, "secret-pass"))
	assert.Error(t, h.CompareHashAndPassword(hash, "other"))
	assert.Equal(t, DefaultBcryptCost, NewBcryptHasher(99).(*bcryptHasher).cost)
}
