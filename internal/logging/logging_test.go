package logging

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func captureLogs(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	closer := Init(Config{Level: level, Output: &buf})
	t.Cleanup(func() {
		_ = closer.Close()
		Init(Config{})
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCtxAddsRequestID(t *testing.T) {
	buf := captureLogs(t, "info")
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")
	Ctx(ctx).Info().Msg("hello")
	if !strings.Contains(buf.String(), `"request_id":"req-123"`) {
		t.Fatalf("missing request id in %s", buf.String())
	}
}

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	var buf bytes.Buffer
	closer := Init(Config{Output: &buf, File: path, MaxSizeMB: 1})
	Info().Msg("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	Init(Config{})
	if !strings.Contains(buf.String(), "to both") {
		t.Fatalf("expected stderr copy, got %q", buf.String())
	}
}

func TestRequestLogger(t *testing.T) {
	buf := captureLogs(t, "info")

	r := chi.NewRouter()
	r.Use(middleware.RequestID, RequestLogger)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/7", nil))

	out := buf.String()
	for _, want := range []string{`"route":"/items/{id}"`, `"status":418`, `"level":"warn"`, `"request_id":`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log %s missing %s", out, want)
		}
	}
}
