package handler

import (
	"net/http"

	"github.com/dukerupert/ondo/internal/auth"
	"github.com/dukerupert/ondo/internal/tracker"
	"github.com/dukerupert/ondo/internal/websocket"
)

type FeeHandler struct {
	viewers *tracker.Registry
	hub     *websocket.Hub
}

func NewFeeHandler(viewers *tracker.Registry, hub *websocket.Hub) *FeeHandler {
	return &FeeHandler{viewers: viewers, hub: hub}
}

type toggleFeeRequest struct {
	MemberID int64 `json:"member_id" validate:"required,gt=0"`
}

func (h *FeeHandler) grid(r *http.Request) *tracker.FeeGrid {
	return h.viewers.Get(ViewerID(r)).Fees
}

func (h *FeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	g := h.grid(r)
	if m := r.URL.Query().Get("month"); m != "" {
		month, err := tracker.ParseMonth(m)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := g.SetMonth(month); err != nil {
			writeResult(w, err, g.Snapshot())
			return
		}
	} else {
		g.Load()
	}
	writeJSON(w, http.StatusOK, g.Snapshot())
}

func (h *FeeHandler) ChangeMonth(w http.ResponseWriter, r *http.Request) {
	var req monthOffsetRequest
	if !decode(w, r, &req) {
		return
	}
	g := h.grid(r)
	writeResult(w, g.ChangeMonth(req.Offset), g.Snapshot())
}

func (h *FeeHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleFeeRequest
	if !decode(w, r, &req) {
		return
	}
	g := h.grid(r)
	err := g.ToggleFeeStatus(auth.CapabilityOf(r.Context()), req.MemberID)
	if err == nil && h.hub != nil {
		h.hub.Broadcast(websocket.NewMessage("fee", "updated", req.MemberID, map[string]any{
			"month":  g.Month().Key(),
			"status": string(g.StatusOf(req.MemberID)),
		}).From(ViewerID(r)))
	}
	writeResult(w, err, g.Snapshot())
}
