package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gluk-w/termbridge/internal/auth"
	"github.com/gluk-w/termbridge/internal/config"
)

func withConfig(t *testing.T) {
	t.Helper()
	prev := config.Cfg
	t.Cleanup(func() { config.Cfg = prev })
	config.Cfg.CORSOrigins = []string{"http://localhost:5173"}
	config.Cfg.AuthDisabled = false
	config.Cfg.AuthTokenHash = ""
}

func TestRouter_HealthAndMetricsAreOpen(t *testing.T) {
	withConfig(t)
	r := newRouter()

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, w.Code)
		}
	}
}

func TestRouter_APIRequiresAuth(t *testing.T) {
	withConfig(t)
	r := newRouter()

	for _, path := range []string{"/api/v1/devices", "/api/v1/terminal/sessions", "/api/v1/terminal", "/api/v1/logs"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, w.Code)
		}
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	withConfig(t)
	r := newRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestHashTokenCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"hash-token", "s3cret"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("hash-token: %v", err)
	}
	line := strings.TrimSpace(out.String())
	hash := strings.TrimSuffix(strings.TrimPrefix(line, "TERMBRIDGE_AUTH_TOKEN_HASH='"), "'")
	if !auth.CheckToken("s3cret", hash) {
		t.Errorf("printed hash does not verify: %q", line)
	}
}
