package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simplenotes/internal/types"
)

const testNoteID = "6f1c2a7e-3b8d-4c55-9a4e-2f1d0c9b8a71"

type fakeNoteRepo struct {
	notes   map[string]*types.Note
	err     error
	updated *types.Note
}

func newFakeNoteRepo(notes ...*types.Note) *fakeNoteRepo {
	repo := &fakeNoteRepo{notes: make(map[string]*types.Note)}
	for _, n := range notes {
		repo.notes[n.ID] = n
	}
	return repo
}

func (f *fakeNoteRepo) GetByID(_ context.Context, userID, id string) (*types.Note, error) {
	if f.err != nil {
		return nil, f.err
	}
	n, ok := f.notes[id]
	if !ok || n.UserID != userID {
		return nil, notFound(types.ErrCodeNotFoundNote)
	}
	return n, nil
}

func (f *fakeNoteRepo) List(_ context.Context, userID string) ([]*types.Note, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*types.Note, 0)
	for _, n := range f.notes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNoteRepo) Update(_ context.Context, n *types.Note) (*types.Note, error) {
	existing, ok := f.notes[n.ID]
	if !ok || existing.UserID != n.UserID {
		return nil, notFound(types.ErrCodeNotFoundNote)
	}
	f.updated = n
	out := *n
	out.CreatedAt = existing.CreatedAt
	return &out, nil
}

func (f *fakeNoteRepo) Delete(_ context.Context, userID, id string) error {
	n, ok := f.notes[id]
	if !ok || n.UserID != userID {
		return notFound(types.ErrCodeNotFoundNote)
	}
	delete(f.notes, id)
	return nil
}

type fakeQuota struct {
	createErr error
	created   []*types.Note
	usage     *types.NoteUsage
	usageErr  error
}

func (f *fakeQuota) CreateNote(_ context.Context, n *types.Note) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, n)
	return nil
}

func (f *fakeQuota) Usage(_ context.Context, _ string) (*types.NoteUsage, error) {
	return f.usage, f.usageErr
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newNoteHandler(repo *fakeNoteRepo, quota *fakeQuota) *NoteHandler {
	return NewNoteHandler(repo, quota, types.FixedClock{T: fixedNow}, testValidator(), testLogger())
}

func ownedNote() *types.Note {
	return &types.Note{ID: testNoteID, UserID: testUserID, Title: "Groceries", Content: "milk", CreatedAt: fixedNow.Add(-time.Hour)}
}

func TestNoteHandler_Create(t *testing.T) {
	quota := &fakeQuota{}
	h := newNoteHandler(newFakeNoteRepo(), quota)

	rec := serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodPost, "/notes",
		map[string]string{"title": "  Groceries  ", "content": "milk"})))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, quota.created, 1)
	created := quota.created[0]
	assert.Equal(t, testUserID, created.UserID)
	assert.Equal(t, "Groceries", created.Title)
	assert.Equal(t, fixedNow, created.CreatedAt)
	assert.NotEmpty(t, created.ID)

	var resp types.Note
	decodeData(t, rec, &resp)
	assert.Equal(t, created.ID, resp.ID)
}

func TestNoteHandler_Create_QuotaDenied(t *testing.T) {
	quota := &fakeQuota{createErr: types.NewAppErrorWithDetails(
		types.ErrCodeQuotaNoteLimit,
		"Note limit reached for current plan",
		nil,
		map[string]any{"limit": 3, "plan": "free"},
	)}
	h := newNoteHandler(newFakeNoteRepo(), quota)

	rec := serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodPost, "/notes",
		map[string]string{"title": "Fourth", "content": "x"})))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(types.ErrCodeQuotaNoteLimit), errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), `"limit":3`)
}

func TestNoteHandler_Create_Validation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
		code types.ErrorCode
	}{
		{"blank title", map[string]string{"title": "   ", "content": "x"}, types.ErrCodeValidationInvalidTitle},
		{"long title", map[string]string{"title": strings.Repeat("t", 201), "content": "x"}, types.ErrCodeValidationInvalidTitle},
		{"missing content", map[string]string{"title": "ok"}, types.ErrCodeValidationMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quota := &fakeQuota{}
			h := newNoteHandler(newFakeNoteRepo(), quota)

			rec := serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodPost, "/notes", tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.code), errorCode(t, rec))
			assert.Empty(t, quota.created)
		})
	}
}

func TestNoteHandler_ListAndGet(t *testing.T) {
	other := &types.Note{ID: "11111111-2222-3333-4444-555555555555", UserID: "someone-else", Title: "secret", Content: "x"}
	h := newNoteHandler(newFakeNoteRepo(ownedNote(), other), &fakeQuota{})

	rec := serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodGet, "/notes", nil)))
	require.Equal(t, http.StatusOK, rec.Code)
	var list NoteListResponse
	decodeData(t, rec, &list)
	require.Len(t, list.Notes, 1)
	assert.Equal(t, testNoteID, list.Notes[0].ID)

	rec = serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodGet, "/notes/"+testNoteID, nil)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodGet, "/notes/"+other.ID, nil)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoteHandler_InvalidID(t *testing.T) {
	h := newNoteHandler(newFakeNoteRepo(), &fakeQuota{})

	rec := serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodGet, "/notes/not-a-uuid", nil)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidID), errorCode(t, rec))
}

func TestNoteHandler_UpdateSkipsQuota(t *testing.T) {
	repo := newFakeNoteRepo(ownedNote())
	quota := &fakeQuota{createErr: types.NewAppError(types.ErrCodeQuotaNoteLimit, "limit", nil)}
	h := newNoteHandler(repo, quota)

	rec := serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodPut, "/notes/"+testNoteID,
		map[string]string{"title": "Groceries v2", "content": "milk, eggs"})))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, repo.updated)
	assert.Equal(t, "Groceries v2", repo.updated.Title)
	assert.Equal(t, fixedNow, repo.updated.UpdatedAt)
}

func TestNoteHandler_Delete(t *testing.T) {
	repo := newFakeNoteRepo(ownedNote())
	h := newNoteHandler(repo, &fakeQuota{})

	rec := serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodDelete, "/notes/"+testNoteID, nil)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, repo.notes)

	rec = serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodDelete, "/notes/"+testNoteID, nil)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoteHandler_Usage(t *testing.T) {
	limit, remaining := 3, 1
	quota := &fakeQuota{usage: &types.NoteUsage{
		Plan: types.PlanFree, Count: 2, Limit: &limit, Remaining: &remaining, CanCreate: true,
	}}
	h := newNoteHandler(newFakeNoteRepo(), quota)

	rec := serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodGet, "/notes/usage", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"plan":"free","count":2,"limit":3,"remaining":1,"can_create":true}}`, rec.Body.String())
}

func TestNoteHandler_UsagePro(t *testing.T) {
	quota := &fakeQuota{usage: &types.NoteUsage{Plan: types.PlanPro, Count: 40, CanCreate: true}}
	h := newNoteHandler(newFakeNoteRepo(), quota)

	rec := serve(h.RegisterRoutes, asUser(newRequest(t, http.MethodGet, "/notes/usage", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"plan":"pro","count":40,"limit":null,"remaining":null,"can_create":true}}`, rec.Body.String())
}
