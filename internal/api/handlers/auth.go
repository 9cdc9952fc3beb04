// Package handlers contains the HTTP handler implementations for the
// SimpleNotes API.
//
// Each handler is responsible for:
//   - Decoding and validating HTTP requests
//   - Delegating to service-layer logic
//   - Encoding responses in the core envelope
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"simplenotes/internal/core"
	"simplenotes/internal/types"
)

// --- DTOs ---

// CredentialsRequest is the body of POST /auth/signup and POST /auth/login.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

// AuthResponse carries the bearer token issued on signup or login.
type AuthResponse struct {
	Token string      `json:"token"`
	User  *types.User `json:"user"`
}

// --- Service Interface ---

// AuthService is the subset of auth.Service the handler uses.
type AuthService interface {
	Signup(ctx context.Context, email, password string) (*types.User, string, error)
	Login(ctx context.Context, email, password string) (*types.User, string, error)
	Logout(ctx context.Context, sessionID string) error
	Me(ctx context.Context, userID string) (*types.User, error)
}

// --- Handler ---

// AuthHandler maps account and session requests to the auth service.
type AuthHandler struct {
	service   AuthService
	validator *core.Validator
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc AuthService, v *core.Validator, l *slog.Logger) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{service: svc, validator: v, logger: l}
}

// RegisterRoutes mounts the auth routes. Signup and login are public paths
// in the core chassis; logout and me require a session.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.HandleSignup)
		r.Post("/login", h.HandleLogin)
		r.Post("/logout", h.HandleLogout)
		r.Get("/me", h.HandleMe)
	})
}

// HandleSignup processes POST /auth/signup. The account is created with a
// free entitlement and logged in.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, token, err := h.service.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusCreated, AuthResponse{Token: token, User: user})
}

// HandleLogin processes POST /auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	user, token, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, AuthResponse{Token: token, User: user})
}

// HandleLogout revokes the session behind the caller's bearer token.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), actor.SessionID); err != nil {
		h.logger.WarnContext(r.Context(), "failed to invalidate session during logout",
			"session_id", actor.SessionID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the authenticated user's profile.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.service.Me(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, user)
}

func (h *AuthHandler) decodeCredentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, bool) {
	var req CredentialsRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return req, false
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return req, false
	}
	return req, true
}
