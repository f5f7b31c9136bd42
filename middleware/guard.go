package middleware

import (
	"encoding/json"
	"net/http"
)

// RequireAuthenticated answers 401 unless the password step succeeded. A
// session still waiting for its second factor passes; use RequireTOTP for
// pages that need both.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, ok := SessionState(r.Context())
		if !ok || !state.Authenticated {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTOTP answers 401 for anonymous sessions and 403 for sessions whose
// second factor is still pending.
func RequireTOTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, ok := SessionState(r.Context())
		if !ok || !state.Authenticated {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !state.FullyAuthenticated() {
			writeError(w, http.StatusForbidden, "second factor required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
