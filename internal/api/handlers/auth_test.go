package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simplenotes/internal/types"
)

type fakeAuthService struct {
	user       *types.User
	token      string
	err        error
	gotEmail   string
	gotPass    string
	loggedOut  string
	logoutErr  error
	signupCall int
}

func (f *fakeAuthService) Signup(_ context.Context, email, password string) (*types.User, string, error) {
	f.signupCall++
	f.gotEmail, f.gotPass = email, password
	return f.user, f.token, f.err
}

func (f *fakeAuthService) Login(_ context.Context, email, password string) (*types.User, string, error) {
	f.gotEmail, f.gotPass = email, password
	return f.user, f.token, f.err
}

func (f *fakeAuthService) Logout(_ context.Context, sessionID string) error {
	f.loggedOut = sessionID
	return f.logoutErr
}

func (f *fakeAuthService) Me(_ context.Context, userID string) (*types.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func testUser() *types.User {
	return &types.User{ID: testUserID, Email: testEmail, PasswordHash: "$2a$hash"}
}

func TestAuthHandler_Signup(t *testing.T) {
	svc := &fakeAuthService{user: testUser(), token: "tok_abc"}
	h := NewAuthHandler(svc, testValidator(), testLogger())

	rec := serve(h.RegisterRoutes, newRequest(t, http.MethodPost, "/auth/signup",
		map[string]string{"email": testEmail, "password": "correct horse"}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp AuthResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "tok_abc", resp.Token)
	assert.Equal(t, testUserID, resp.User.ID)
	assert.NotContains(t, rec.Body.String(), "$2a$hash")
	assert.Equal(t, "correct horse", svc.gotPass)
}

func TestAuthHandler_Signup_InvalidEmail(t *testing.T) {
	svc := &fakeAuthService{}
	h := NewAuthHandler(svc, testValidator(), testLogger())

	rec := serve(h.RegisterRoutes, newRequest(t, http.MethodPost, "/auth/signup",
		map[string]string{"email": "nope", "password": "correct horse"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidEmail), errorCode(t, rec))
	assert.Zero(t, svc.signupCall)
}

func TestAuthHandler_Signup_DuplicateEmail(t *testing.T) {
	svc := &fakeAuthService{err: types.NewAppError(types.ErrCodeConflictEmail, "email already registered", nil)}
	h := NewAuthHandler(svc, testValidator(), testLogger())

	rec := serve(h.RegisterRoutes, newRequest(t, http.MethodPost, "/auth/signup",
		map[string]string{"email": testEmail, "password": "correct horse"}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(types.ErrCodeConflictEmail), errorCode(t, rec))
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	svc := &fakeAuthService{err: types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)}
	h := NewAuthHandler(svc, testValidator(), testLogger())

	rec := serve(h.RegisterRoutes, newRequest(t, http.MethodPost, "/auth/login",
		map[string]string{"email": testEmail, "password": "wrong"}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(types.ErrCodeAuthInvalidCreds), errorCode(t, rec))
}

func TestAuthHandler_Login(t *testing.T) {
	svc := &fakeAuthService{user: testUser(), token: "tok_login"}
	h := NewAuthHandler(svc, testValidator(), testLogger())

	rec := serve(h.RegisterRoutes, newRequest(t, http.MethodPost, "/auth/login",
		map[string]string{"email": testEmail, "password": "correct horse"}))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AuthResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "tok_login", resp.Token)
}

func TestAuthHandler_Logout(t *testing.T) {
	svc := &fakeAuthService{}
	h := NewAuthHandler(svc, testValidator(), testLogger())

	rec := serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodPost, "/auth/logout", nil)))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, testSessionID, svc.loggedOut)
}

func TestAuthHandler_Logout_Unauthenticated(t *testing.T) {
	svc := &fakeAuthService{}
	h := NewAuthHandler(svc, testValidator(), testLogger())

	rec := serve(h.RegisterRoutes, newRequest(t, http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.loggedOut)
}

func TestAuthHandler_Me(t *testing.T) {
	svc := &fakeAuthService{user: testUser()}
	h := NewAuthHandler(svc, testValidator(), testLogger())

	rec := serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodGet, "/auth/me", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	var user types.User
	decodeData(t, rec, &user)
	assert.Equal(t, testEmail, user.Email)
}

func TestAuthHandler_Me_StoreFailure(t *testing.T) {
	svc := &fakeAuthService{err: errors.New("connection refused")}
	h := NewAuthHandler(svc, testValidator(), testLogger())

	rec := serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodGet, "/auth/me", nil)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
