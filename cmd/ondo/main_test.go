package main

import (
	"testing"

	"github.com/dukerupert/ondo/internal/database"
	"github.com/dukerupert/ondo/internal/store"
)

func TestEnsureAdmin(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer db.Close()
	users := store.NewUserStore(db)

	if err := ensureAdmin(users, " Coach@Example.com ", "secret"); err != nil {
		t.Fatalf("ensureAdmin() error = %v", err)
	}
	u, err := users.GetByEmail("coach@example.com")
	if err != nil || u == nil {
		t.Fatalf("admin not created: %v", err)
	}
	if u.Role != "admin" {
		t.Errorf("Role = %q, want %q", u.Role, "admin")
	}
	hash := u.PasswordHash

	// Second run is a no-op.
	if err := ensureAdmin(users, "coach@example.com", "other"); err != nil {
		t.Fatalf("ensureAdmin() again error = %v", err)
	}
	u, _ = users.GetByEmail("coach@example.com")
	if u.PasswordHash != hash {
		t.Error("existing password should be kept")
	}

	m, err := users.Create("member@example.com", "x", "member")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if err := ensureAdmin(users, "member@example.com", "secret"); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if role, _ := users.Role(m.ID); role != "admin" {
		t.Errorf("Role = %q, want admin", role)
	}
}
