package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gluk-w/termbridge/internal/auth"
	"github.com/gluk-w/termbridge/internal/config"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RequireAuth admits requests carrying the API token, either as a bearer
// token or, for WebSocket upgrades from the browser, as the "token" query
// parameter.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.Cfg.AuthDisabled {
			next.ServeHTTP(w, r)
			return
		}

		if !auth.CheckToken(requestToken(r), config.Cfg.AuthTokenHash) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
