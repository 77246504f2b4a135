package middleware

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/ondo/internal/auth"
	"github.com/dukerupert/ondo/internal/store"
)

// SessionCookieName is the cookie holding the session token.
const SessionCookieName = "ondo_session"

// LoadSession resolves the session cookie, if any, and populates AuthContext
// with the user's capability. Requests without a valid session continue as
// guests.
func LoadSession(sessionStore *store.SessionStore, userStore *store.UserStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessionStore.GetByToken(cookie.Value)
			if err != nil {
				logger.Error("load session", "error", err)
			}
			if sess == nil {
				next.ServeHTTP(w, r)
				return
			}

			user, err := userStore.GetByID(sess.UserID)
			if err != nil || user == nil {
				if err != nil {
					logger.Error("load session user", "user_id", sess.UserID, "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			ac := auth.AuthContext{
				UserID:     user.ID,
				Email:      user.Email,
				Capability: auth.ResolveCapability(user.Role),
				SessionID:  sess.ID,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

// RequireAuth rejects requests without a session.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			jsonError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin checks that the authenticated user has the admin capability.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			jsonError(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
