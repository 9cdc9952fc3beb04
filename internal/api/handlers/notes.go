package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"simplenotes/internal/core"
	"simplenotes/internal/types"
)

// --- Service Interfaces ---

// NoteRepo is the owner-scoped note storage used by the handler.
// Implemented by db.NoteRepository.
type NoteRepo interface {
	GetByID(ctx context.Context, userID, id string) (*types.Note, error)
	List(ctx context.Context, userID string) ([]*types.Note, error)
	Update(ctx context.Context, n *types.Note) (*types.Note, error)
	Delete(ctx context.Context, userID, id string) error
}

// NoteQuota authorizes and performs note creation. Implemented by
// quota.Gate.
type NoteQuota interface {
	CreateNote(ctx context.Context, n *types.Note) error
	Usage(ctx context.Context, userID string) (*types.NoteUsage, error)
}

// --- Request Models ---

// NoteRequest is the body of POST /v1/notes and PUT /v1/notes/{id}.
type NoteRequest struct {
	Title   string `json:"title" validate:"note_title"`
	Content string `json:"content" validate:"required"`
}

// NoteListResponse wraps the caller's notes.
type NoteListResponse struct {
	Notes []*types.Note `json:"notes"`
}

// --- Handler ---

// NoteHandler serves the note endpoints. Creation always goes through the
// quota gate.
type NoteHandler struct {
	notes     NoteRepo
	quota     NoteQuota
	clock     types.Clock
	validator *core.Validator
	logger    *slog.Logger
}

// NewNoteHandler creates a NoteHandler. A nil clock uses the real clock.
func NewNoteHandler(notes NoteRepo, quota NoteQuota, clock types.Clock, v *core.Validator, l *slog.Logger) *NoteHandler {
	if l == nil {
		l = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &NoteHandler{notes: notes, quota: quota, clock: clock, validator: v, logger: l}
}

// RegisterRoutes mounts the note routes.
func (h *NoteHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notes", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/usage", h.Usage)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
}

// Create handles POST /v1/notes.
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeNote(w, r)
	if !ok {
		return
	}

	now := h.clock.Now()
	note := &types.Note{
		ID:        uuid.NewString(),
		UserID:    actor.ID,
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.quota.CreateNote(r.Context(), note); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "note created", "user_id", actor.ID, "note_id", note.ID)
	core.Data(w, r, http.StatusCreated, note)
}

// List handles GET /v1/notes, newest first.
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	notes, err := h.notes.List(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, NoteListResponse{Notes: notes})
}

// Usage handles GET /v1/notes/usage.
func (h *NoteHandler) Usage(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}

	usage, err := h.quota.Usage(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, usage)
}

// Get handles GET /v1/notes/{id}.
func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := noteID(w, r)
	if !ok {
		return
	}

	note, err := h.notes.GetByID(r.Context(), actor.ID, id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, note)
}

// Update handles PUT /v1/notes/{id}. Updates never consult the quota.
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeNote(w, r)
	if !ok {
		return
	}

	updated, err := h.notes.Update(r.Context(), &types.Note{
		ID:        id,
		UserID:    actor.ID,
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		UpdatedAt: h.clock.Now(),
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, updated)
}

// Delete handles DELETE /v1/notes/{id}.
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := noteID(w, r)
	if !ok {
		return
	}

	if err := h.notes.Delete(r.Context(), actor.ID, id); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NoteHandler) decodeNote(w http.ResponseWriter, r *http.Request) (NoteRequest, bool) {
	var req NoteRequest
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

// noteID reads and validates the {id} path parameter.
func noteID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidID,
			"note id must be a UUID",
			nil,
		))
		return "", false
	}
	return id, true
}
