package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"simplenotes/internal/core"
	"simplenotes/internal/types"
)

const (
	testUserID    = "user-1"
	testSessionID = "sess-1"
	testEmail     = "ada@example.com"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(testLogger())
}

// newRequest builds a request with an optional JSON body.
func newRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	return httptest.NewRequest(method, path, reader)
}

// asUser attaches the authenticated test user to req.
func asUser(req *http.Request) *http.Request {
	ctx := types.WithActor(req.Context(), types.Actor{
		ID:        testUserID,
		Type:      types.ActorTypeUser,
		Email:     testEmail,
		SessionID: testSessionID,
	})
	return req.WithContext(ctx)
}

// serve routes req through a chi router with the handler's routes mounted.
func serve(register func(chi.Router), req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error.Code
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func notFound(code types.ErrorCode) error {
	return types.NewAppError(code, "not found", nil)
}
