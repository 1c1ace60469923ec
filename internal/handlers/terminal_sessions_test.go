//go:build !windows

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gluk-w/termbridge/internal/termbridge"
	"github.com/go-chi/chi/v5"
)

type discardClient struct{}

func (discardClient) SendOutput(context.Context, []byte) error { return nil }
func (discardClient) SendExit(context.Context, int) error      { return nil }

func sessionsRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/terminal/sessions", ListTerminalSessions)
	r.Delete("/api/v1/terminal/sessions/{connectionId}", CloseTerminalSession)
	return r
}

func TestListTerminalSessions(t *testing.T) {
	b := setupBridge(t)
	_, err := b.StartSession(context.Background(), termbridge.InitRequest{ConnectionID: "conn-1"}, discardClient{})
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	sessionsRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/terminal/sessions", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Sessions []termbridge.SessionInfo `json:"sessions"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Sessions) != 1 {
		t.Fatalf("sessions = %d", len(resp.Sessions))
	}
	s := resp.Sessions[0]
	if s.ConnectionID != "conn-1" || s.Target != "local" || s.State != "active" || s.Pid == 0 {
		t.Errorf("session = %+v", s)
	}
}

func TestCloseTerminalSession(t *testing.T) {
	b := setupBridge(t)
	s, err := b.StartSession(context.Background(), termbridge.InitRequest{ConnectionID: "conn-1"}, discardClient{})
	if err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	sessionsRouter().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/terminal/sessions/conn-1", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if s.State() != termbridge.StateGone || s.Reason() != termbridge.ReasonClosed {
		t.Errorf("state %s reason %s", s.State(), s.Reason())
	}

	w = httptest.NewRecorder()
	sessionsRouter().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/terminal/sessions/conn-1", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second close status = %d, want 404", w.Code)
	}
}
