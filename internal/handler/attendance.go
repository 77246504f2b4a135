package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/ondo/internal/auth"
	"github.com/dukerupert/ondo/internal/tracker"
	"github.com/dukerupert/ondo/internal/websocket"
)

// AttendanceHandler serves the attendance grid and the roster operations,
// which live on the same view-model.
type AttendanceHandler struct {
	viewers *tracker.Registry
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewAttendanceHandler(viewers *tracker.Registry, hub *websocket.Hub, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{viewers: viewers, hub: hub, logger: logger}
}

func (h *AttendanceHandler) broadcast(r *http.Request, msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg.From(ViewerID(r)))
	}
}

func (h *AttendanceHandler) grid(r *http.Request) *tracker.AttendanceGrid {
	return h.viewers.Get(ViewerID(r)).Attendance
}

type monthOffsetRequest struct {
	Offset int `json:"offset" validate:"gte=-1200,lte=1200"`
}

type toggleAttendanceRequest struct {
	MemberID int64  `json:"member_id" validate:"required,gt=0"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
}

func (r *toggleAttendanceRequest) trim() {
	r.Date = strings.TrimSpace(r.Date)
}

type memberNameRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (r *memberNameRequest) trim() {
	r.Name = strings.TrimSpace(r.Name)
}

// Get reloads the grid, optionally jumping to ?month=YYYY-MM first.
func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	g := h.grid(r)
	if m := r.URL.Query().Get("month"); m != "" {
		month, err := tracker.ParseMonth(m)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		g.SetMonth(month)
	} else {
		g.Load()
	}
	writeJSON(w, http.StatusOK, g.Snapshot())
}

func (h *AttendanceHandler) ChangeMonth(w http.ResponseWriter, r *http.Request) {
	var req monthOffsetRequest
	if !decode(w, r, &req) {
		return
	}
	g := h.grid(r)
	g.ChangeMonth(req.Offset)
	writeJSON(w, http.StatusOK, g.Snapshot())
}

func (h *AttendanceHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleAttendanceRequest
	if !decode(w, r, &req) {
		return
	}
	g := h.grid(r)
	err := g.ToggleAttendance(auth.CapabilityOf(r.Context()), req.MemberID, req.Date)
	if err == nil {
		h.broadcast(r, websocket.NewMessage("attendance", "updated", req.MemberID, map[string]any{
			"date":   req.Date,
			"status": string(g.StatusOf(req.MemberID, req.Date)),
		}))
	}
	writeResult(w, err, g.Snapshot())
}

func (h *AttendanceHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req memberNameRequest
	if !decode(w, r, &req) {
		return
	}
	g := h.grid(r)
	m, err := g.AddMember(auth.CapabilityOf(r.Context()), req.Name)
	if err != nil {
		writeResult(w, err, g.Snapshot())
		return
	}
	h.broadcast(r, websocket.NewMessage("member", "created", m.ID, nil))
	writeJSON(w, http.StatusCreated, g.Snapshot())
}

func (h *AttendanceHandler) RenameMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req memberNameRequest
	if !decode(w, r, &req) {
		return
	}
	g := h.grid(r)
	err = g.RenameMember(auth.CapabilityOf(r.Context()), id, req.Name)
	if err == nil {
		h.broadcast(r, websocket.NewMessage("member", "updated", id, nil))
	}
	writeResult(w, err, g.Snapshot())
}

func (h *AttendanceHandler) StartEdit(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	g := h.grid(r)
	writeResult(w, g.StartEdit(auth.CapabilityOf(r.Context()), id), g.Snapshot())
}

func (h *AttendanceHandler) CancelEdit(w http.ResponseWriter, r *http.Request) {
	g := h.grid(r)
	g.CancelEdit()
	writeJSON(w, http.StatusOK, g.Snapshot())
}

func (h *AttendanceHandler) RequestDelete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	g := h.grid(r)
	writeResult(w, g.RequestDelete(auth.CapabilityOf(r.Context()), id), g.Snapshot())
}

func (h *AttendanceHandler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	g := h.grid(r)
	id, err := g.ConfirmDelete(auth.CapabilityOf(r.Context()))
	if err == nil {
		h.logger.Info("member deleted", "member_id", id, "user_id", auth.UserID(r.Context()))
		h.broadcast(r, websocket.NewMessage("member", "deleted", id, nil))
	}
	writeResult(w, err, g.Snapshot())
}

func (h *AttendanceHandler) CancelDelete(w http.ResponseWriter, r *http.Request) {
	g := h.grid(r)
	g.CancelDelete()
	writeJSON(w, http.StatusOK, g.Snapshot())
}
