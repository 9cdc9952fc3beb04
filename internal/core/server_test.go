package core

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewServer_Success(t *testing.T) {
	cfg := newTestConfig()
	logger := testLogger()

	srv, err := NewServer(cfg, logger)
	if err != nil {
		t.Fatalf("NewServer returned unexpected error: %v", err)
	}
	if srv.Config != cfg || srv.Logger != logger {
		t.Error("Config/Logger not set")
	}
	if srv.Validator == nil {
		t.Error("Validator should be initialized by constructor")
	}
	if srv.Router() == nil {
		t.Error("router should be initialized by constructor")
	}
}

func TestNewServer_NilArguments(t *testing.T) {
	if _, err := NewServer(nil, testLogger()); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewServer(newTestConfig(), nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestShutdown_RunsAllHooks(t *testing.T) {
	srv := newTestServer(t)

	var order []string
	srv.OnShutdown(func(context.Context) error {
		order = append(order, "first")
		return errors.New("close failed")
	})
	srv.OnShutdown(func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	err := srv.Shutdown(context.Background())
	if err == nil || !strings.Contains(err.Error(), "close failed") {
		t.Errorf("expected first hook error, got %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("hooks ran in order %v", order)
	}
}

func TestShutdown_NoHooks(t *testing.T) {
	if err := newTestServer(t).Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHandler_CompressesLargeResponses(t *testing.T) {
	srv := newTestServer(t)
	body := strings.Repeat("note content ", 500)
	srv.Router().Get("/big", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, body)
	})

	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, got headers %v", rec.Header())
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	got, _ := io.ReadAll(zr)
	if string(got) != body {
		t.Error("decompressed body mismatch")
	}
}
