package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/punchcardhq/punchcard/internal/auth"
	"github.com/punchcardhq/punchcard/internal/store"
)

const SessionCookieName = "punchcard_session"

// RequireAuth validates the staff session cookie and populates AuthContext.
// API clients get a JSON 401 rather than a redirect.
func RequireAuth(sessionStore *store.SessionStore, staffStore *store.StaffStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			sess, err := sessionStore.GetByToken(cookie.Value)
			if err != nil || sess == nil {
				unauthorized(w)
				return
			}

			staff, err := staffStore.GetByID(sess.StaffID)
			if err != nil || staff == nil {
				unauthorized(w)
				return
			}

			ac := auth.AuthContext{
				Staff:     *staff,
				SessionID: sess.ID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "authentication required", "code": "unauthorized"})
}
