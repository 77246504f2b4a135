package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/ondo/internal/auth"
	"github.com/dukerupert/ondo/internal/middleware"
	"github.com/dukerupert/ondo/internal/store"
)

// dummyHash keeps login timing the same for unknown emails.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("ondo-timing-equaliser"), bcrypt.DefaultCost)

type AuthHandler struct {
	userStore     *store.UserStore
	sessionStore  *store.SessionStore
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(us *store.UserStore, ss *store.SessionStore, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userStore:     us,
		sessionStore:  ss,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

func (r *loginRequest) trim() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	Capability    string `json:"capability"`
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: ok,
		Email:         ac.Email,
		Capability:    auth.CapabilityOf(r.Context()).String(),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.userStore.GetByEmail(req.Email)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}
	hash := dummyHash
	if user != nil {
		hash = []byte(user.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(req.Password)); err != nil || user == nil {
		h.logger.Warn("login rejected", "email", req.Email, "remote", middleware.RealIP(r))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
		return
	}

	sess, err := h.sessionStore.Create(user.ID)
	if err != nil {
		h.logger.Error("create session", "user_id", user.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("login", "user_id", user.ID)
	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		Email:         user.Email,
		Capability:    auth.ResolveCapability(user.Role).String(),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessionStore.Delete(ac.SessionID); err != nil {
			h.logger.Error("delete session", "session_id", ac.SessionID, "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
	})
	writeJSON(w, http.StatusOK, sessionResponse{Capability: auth.Guest.String()})
}

// HashPassword hashes a password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
