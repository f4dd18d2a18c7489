package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/calmspace/apiserver/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Server: config.ServerConfig{
			RequestTimeout:  5 * time.Second,
			RateLimit:       100,
			AuthRateLimit:   2,
			RateLimitWindow: time.Minute,
		},
		Database: config.DatabaseConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "server.db"),
		},
		Auth: config.AuthConfig{
			JWTSecret:  "server-secret",
			TokenTTL:   time.Hour,
			SessionTTL: time.Hour,
			BcryptCost: 10,
		},
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatalf("expected error without JWT secret")
	}
}

func TestRoutes(t *testing.T) {
	srv, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = srv.closeBackends() })

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "calmspace_") {
		t.Fatalf("metrics: expected calmspace collectors, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mood/history", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("mood history without token: expected 401, got %d", rec.Code)
	}
}

func TestAuthRateLimit(t *testing.T) {
	srv, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = srv.closeBackends() })

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
		req.RemoteAddr = "203.0.113.7:4000"
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected third login to be rate limited, got %d", last)
	}
}
