package handler

import (
	"net/http"
	"testing"

	"github.com/dukerupert/ondo/internal/auth"
	"github.com/dukerupert/ondo/internal/backup"
	"github.com/dukerupert/ondo/internal/store"
)

func newTestBackupHandler(env *testEnv) *BackupHandler {
	bs := store.NewBackupStore(env.db)
	return NewBackupHandler(backup.NewManager(backup.Config{}, env.db, bs, env.logger), bs, env.logger)
}

func TestBackupListDisabled(t *testing.T) {
	env := setupHandlerTest(t)
	h := newTestBackupHandler(env)

	rr := do(t, h.List, "GET", "/api/backups", nil, auth.Admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	got := decodeBody[backupListResponse](t, rr)
	if got.Status.State != backup.StateDisabled {
		t.Errorf("state = %q, want %q", got.Status.State, backup.StateDisabled)
	}
	if got.Backups == nil || len(got.Backups) != 0 {
		t.Errorf("backups = %v, want empty list", got.Backups)
	}
}

func TestBackupListShowsRecords(t *testing.T) {
	env := setupHandlerTest(t)
	h := newTestBackupHandler(env)
	if _, err := store.NewBackupStore(env.db).Create("ondo-1.db.enc", "ondo-1.db.enc"); err != nil {
		t.Fatalf("create record: %v", err)
	}

	rr := do(t, h.List, "GET", "/api/backups", nil, auth.Admin)
	got := decodeBody[backupListResponse](t, rr)
	if len(got.Backups) != 1 || got.Backups[0].Filename != "ondo-1.db.enc" {
		t.Errorf("backups = %+v, want one record", got.Backups)
	}
}

func TestBackupRunNotConfigured(t *testing.T) {
	env := setupHandlerTest(t)
	h := newTestBackupHandler(env)

	rr := do(t, h.Run, "POST", "/api/backups", nil, auth.Admin)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
