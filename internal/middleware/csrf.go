package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"
)

// CSRFHeader is where API clients echo the token from GET /api/csrf.
const CSRFHeader = "X-CSRF-Token"

// CSRF protects unsafe methods with a double-submit token. authKey must be
// 32 bytes. When secure is false the plaintext-HTTP origin rules apply.
func CSRF(authKey []byte, secure bool, logger *slog.Logger) func(http.Handler) http.Handler {
	protect := csrf.Protect(
		authKey,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.RequestHeader(CSRFHeader),
		csrf.CookieName("ondo_csrf"),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Warn("csrf rejected", "path", r.URL.Path, "reason", csrf.FailureReason(r), "request_id", RequestID(r.Context()))
			jsonError(w, "Forbidden", http.StatusForbidden)
		})),
	)

	return func(next http.Handler) http.Handler {
		h := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			h.ServeHTTP(w, r)
		})
	}
}

// CSRFToken returns the masked token for the request.
func CSRFToken(r *http.Request) string {
	return csrf.Token(r)
}
