package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		UserID:     1,
		Email:      "alice@example.com",
		Capability: Admin,
		SessionID:  3,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.UserID != 1 {
		t.Errorf("UserID = %d, want 1", got.UserID)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", got.Email, "alice@example.com")
	}
	if got.Capability != Admin {
		t.Errorf("Capability = %v, want %v", got.Capability, Admin)
	}
	if got.SessionID != 3 {
		t.Errorf("SessionID = %d, want 3", got.SessionID)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestUserID(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 7})
	if UserID(ctx) != 7 {
		t.Errorf("UserID = %d, want 7", UserID(ctx))
	}
}

func TestUserIDMissing(t *testing.T) {
	if UserID(context.Background()) != 0 {
		t.Error("expected 0 for missing context")
	}
}

func TestResolveCapability(t *testing.T) {
	tests := []struct {
		role string
		want Capability
	}{
		{"admin", Admin},
		{"member", Member},
		{"coach", Member},
		{"Admin", Member},
		{"", Guest},
	}
	for _, tt := range tests {
		if got := ResolveCapability(tt.role); got != tt.want {
			t.Errorf("ResolveCapability(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestIsAdmin(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Capability: Admin})
	if !IsAdmin(ctx) {
		t.Error("expected IsAdmin = true for admin capability")
	}
}

func TestIsAdminFalse(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Capability: Member})
	if IsAdmin(ctx) {
		t.Error("expected IsAdmin = false for member capability")
	}
}

func TestCapabilityOfMissing(t *testing.T) {
	if got := CapabilityOf(context.Background()); got != Guest {
		t.Errorf("CapabilityOf = %v, want %v", got, Guest)
	}
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin = false for missing context")
	}
}

func TestCapabilityString(t *testing.T) {
	if Admin.String() != "admin" || Member.String() != "member" || Guest.String() != "guest" {
		t.Errorf("unexpected names: %s %s %s", Admin, Member, Guest)
	}
}
