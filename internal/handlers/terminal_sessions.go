package handlers

import (
	"net/http"

	"github.com/gluk-w/termbridge/internal/termbridge"
	"github.com/go-chi/chi/v5"
)

// ListTerminalSessions returns the live sessions. No secrets are included.
func ListTerminalSessions(w http.ResponseWriter, r *http.Request) {
	sessions := []termbridge.SessionInfo{}
	if TermBridge != nil {
		sessions = TermBridge.Sessions()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// CloseTerminalSession tears down the session on a connection. The client's
// WebSocket stays open and may send a new term.init.
func CloseTerminalSession(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "connectionId")
	if TermBridge == nil || !TermBridge.Close(connID) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
