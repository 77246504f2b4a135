package store

import (
	"errors"
	"testing"

	"github.com/dukerupert/ondo/internal/database"
)

func setupMemberTestDB(t *testing.T) (*MemberStore, *AttendanceStore, *FeeStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMemberStore(db), NewAttendanceStore(db), NewFeeStore(db)
}

func TestMemberCreate(t *testing.T) {
	ms, _, _ := setupMemberTestDB(t)

	m, err := ms.Create("Ann")
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if m.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if m.Name != "Ann" {
		t.Errorf("name = %q, want %q", m.Name, "Ann")
	}
}

func TestMemberCreateBlankNameRejected(t *testing.T) {
	ms, _, _ := setupMemberTestDB(t)

	if _, err := ms.Create("   "); err == nil {
		t.Fatal("expected error for blank name, got nil")
	}
}

func TestMemberListOrderedByID(t *testing.T) {
	ms, _, _ := setupMemberTestDB(t)

	for _, name := range []string{"Cy", "Ann", "Bo"} {
		if _, err := ms.Create(name); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	members, err := ms.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("len = %d, want 3", len(members))
	}
	for i := 1; i < len(members); i++ {
		if members[i-1].ID >= members[i].ID {
			t.Errorf("members not ordered by id: %d before %d", members[i-1].ID, members[i].ID)
		}
	}
	if members[0].Name != "Cy" {
		t.Errorf("first = %q, want %q", members[0].Name, "Cy")
	}
}

func TestMemberRename(t *testing.T) {
	ms, _, _ := setupMemberTestDB(t)

	m, _ := ms.Create("Ann")
	if err := ms.Rename(m.ID, "Annie"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, err := ms.GetByID(m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Annie" {
		t.Errorf("name = %q, want %q", got.Name, "Annie")
	}
}

func TestMemberRenameMissing(t *testing.T) {
	ms, _, _ := setupMemberTestDB(t)

	err := ms.Rename(999, "Ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemberGetByIDNotFound(t *testing.T) {
	ms, _, _ := setupMemberTestDB(t)

	m, err := ms.GetByID(999)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if m != nil {
		t.Error("expected nil for nonexistent member")
	}
}

func TestMemberDeleteBlockedByChildren(t *testing.T) {
	ms, as, _ := setupMemberTestDB(t)

	m, _ := ms.Create("Ann")
	if err := as.Upsert(m.ID, "2024-03-07", "Present", 1); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := ms.Delete(m.ID); err == nil {
		t.Fatal("expected foreign key error deleting member with attendance")
	}
}

func TestMemberDeleteChildrenFirst(t *testing.T) {
	ms, as, fs := setupMemberTestDB(t)

	ann, _ := ms.Create("Ann")
	bo, _ := ms.Create("Bo")
	for _, id := range []int64{ann.ID, bo.ID} {
		if err := as.Upsert(id, "2024-03-07", "Present", 1); err != nil {
			t.Fatalf("upsert attendance: %v", err)
		}
		if err := fs.Upsert(id, "2025-07-01", "paid", 1); err != nil {
			t.Fatalf("upsert fee: %v", err)
		}
	}

	if err := as.DeleteByMember(ann.ID); err != nil {
		t.Fatalf("delete attendance: %v", err)
	}
	if err := fs.DeleteByMember(ann.ID); err != nil {
		t.Fatalf("delete fees: %v", err)
	}
	if err := ms.Delete(ann.ID); err != nil {
		t.Fatalf("delete member: %v", err)
	}

	ids := []int64{ann.ID, bo.ID}
	att, err := as.ListRange(ids, "2024-03-01", "2024-03-31")
	if err != nil {
		t.Fatalf("list attendance: %v", err)
	}
	if len(att) != 1 || att[0].MemberID != bo.ID {
		t.Errorf("attendance = %+v, want only Bo's row", att)
	}
	fees, err := fs.ListMonth(ids, "2025-07-01")
	if err != nil {
		t.Fatalf("list fees: %v", err)
	}
	if len(fees) != 1 || fees[0].MemberID != bo.ID {
		t.Errorf("fees = %+v, want only Bo's row", fees)
	}
	members, _ := ms.List()
	if len(members) != 1 || members[0].ID != bo.ID {
		t.Errorf("members = %+v, want only Bo", members)
	}
}
