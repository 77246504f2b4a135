package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/ondo/internal/backup"
	"github.com/dukerupert/ondo/internal/model"
	"github.com/dukerupert/ondo/internal/store"
)

const backupListLimit = 50

type BackupHandler struct {
	manager *backup.Manager
	store   *store.BackupStore
	logger  *slog.Logger
}

func NewBackupHandler(m *backup.Manager, bs *store.BackupStore, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, store: bs, logger: logger}
}

type backupListResponse struct {
	Status  backup.Status  `json:"status"`
	Backups []model.Backup `json:"backups"`
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.store.List(backupListLimit)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list backups"})
		return
	}
	writeJSON(w, http.StatusOK, backupListResponse{Status: h.manager.Status(), Backups: backups})
}

// Run takes a backup now and answers once it has been uploaded.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	record, err := h.manager.RunNow(r.Context())
	switch {
	case errors.Is(err, backup.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(err, backup.ErrInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		h.logger.Error("manual backup failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "backup": record})
	default:
		writeJSON(w, http.StatusCreated, record)
	}
}
