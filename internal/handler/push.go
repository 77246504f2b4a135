package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/ondo/internal/auth"
	"github.com/dukerupert/ondo/internal/push"
	"github.com/dukerupert/ondo/internal/store"
)

// PushHandler manages a signed-in user's browser subscriptions and reminder
// preferences. A nil service means VAPID keys are not configured.
type PushHandler struct {
	pushStore *store.PushStore
	service   *push.Service
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, service: svc, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint" validate:"required,url,max=2048"`
	P256dh     string `json:"p256dh" validate:"required,max=256"`
	Auth       string `json:"auth" validate:"required,max=256"`
	DeviceName string `json:"device_name" validate:"max=100"`
}

func (h *PushHandler) available(w http.ResponseWriter) bool {
	if h.service == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push notifications are not configured"})
		return false
	}
	return true
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

// Subscribe handles POST /api/push/subscriptions
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req subscribeRequest
	if !decode(w, r, &req) {
		return
	}

	sub, err := h.pushStore.CreateSubscription(auth.UserID(r.Context()), req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save subscription"})
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.pushStore.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list push subscriptions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list subscriptions"})
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	ok, err := h.pushStore.DeleteSubscription(id, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete subscription"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "subscription not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPreferences handles GET /api/push/preferences
func (h *PushHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.pushStore.GetPreferences(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("get push preferences", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get preferences"})
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

type updatePreferencesRequest struct {
	Preferences []prefItem `json:"preferences" validate:"required,min=1,dive"`
}

type prefItem struct {
	Type    string `json:"type" validate:"oneof=session_reminder fee_reminder"`
	Enabled bool   `json:"enabled"`
}

// UpdatePreferences handles PUT /api/push/preferences
func (h *PushHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req updatePreferencesRequest
	if !decode(w, r, &req) {
		return
	}
	for _, p := range req.Preferences {
		if err := h.pushStore.SetPreference(userID, p.Type, p.Enabled); err != nil {
			h.logger.Error("set push preference", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update preferences"})
			return
		}
	}
	h.GetPreferences(w, r)
}

// TestNotification handles POST /api/push/test
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	subs, err := h.pushStore.ListByUser(auth.UserID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list subscriptions"})
		return
	}

	payload := push.Payload{
		Title: "Test notification",
		Body:  "Push notifications are working.",
		URL:   "/",
		Tag:   "test",
	}
	sent := 0
	for i := range subs {
		if err := h.service.Send(&subs[i], payload); err != nil {
			h.logger.Warn("test push send", "subscription", subs[i].ID, "error", err)
			continue
		}
		sent++
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
