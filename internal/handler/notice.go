package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/ondo/internal/auth"
	"github.com/dukerupert/ondo/internal/markdown"
	"github.com/dukerupert/ondo/internal/model"
	"github.com/dukerupert/ondo/internal/store"
	"github.com/dukerupert/ondo/internal/websocket"
)

// NoticeHandler serves the team notice shown above the grids.
type NoticeHandler struct {
	settingsStore *store.SettingsStore
	hub           *websocket.Hub
	logger        *slog.Logger
}

func NewNoticeHandler(ss *store.SettingsStore, hub *websocket.Hub, logger *slog.Logger) *NoticeHandler {
	return &NoticeHandler{settingsStore: ss, hub: hub, logger: logger}
}

type noticeRequest struct {
	Markdown string `json:"markdown" validate:"max=20000"`
}

type noticeResponse struct {
	Markdown  string     `json:"markdown"`
	HTML      string     `json:"html"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// render writes the notice. A nil setting is an empty notice.
func (h *NoticeHandler) render(w http.ResponseWriter, st *model.Setting) {
	var resp noticeResponse
	if st != nil {
		resp.Markdown = st.Value
		resp.UpdatedAt = &st.UpdatedAt
	}
	html, err := markdown.Render(resp.Markdown)
	if err != nil {
		h.logger.Error("render notice", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to render notice"})
		return
	}
	resp.HTML = html
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/notice
func (h *NoticeHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.settingsStore.Get(store.NoticeKey)
	if err != nil {
		h.logger.Error("get notice", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load notice"})
		return
	}
	h.render(w, st)
}

// Update handles PUT /api/notice
func (h *NoticeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req noticeRequest
	if !decode(w, r, &req) {
		return
	}
	st, err := h.settingsStore.Set(store.NoticeKey, req.Markdown, auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("update notice", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save notice"})
		return
	}
	if h.hub != nil {
		h.hub.Broadcast(websocket.NewMessage("notice", "updated", 0, nil).From(ViewerID(r)))
	}
	h.logger.Info("notice updated", "user_id", auth.UserID(r.Context()), "bytes", len(req.Markdown))
	h.render(w, st)
}
