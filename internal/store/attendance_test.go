package store

import "testing"

func TestAttendanceListRange(t *testing.T) {
	ms, as, _ := setupMemberTestDB(t)

	ann, _ := ms.Create("Ann")
	for _, d := range []string{"2024-02-29", "2024-03-07", "2024-03-28", "2024-04-04"} {
		if err := as.Upsert(ann.ID, d, "Present", 1); err != nil {
			t.Fatalf("upsert %s: %v", d, err)
		}
	}

	rows, err := as.ListRange([]int64{ann.ID}, "2024-03-01", "2024-03-31")
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len = %d, want 2", len(rows))
	}
	if rows[0].Date != "2024-03-07" || rows[1].Date != "2024-03-28" {
		t.Errorf("dates = %q, %q", rows[0].Date, rows[1].Date)
	}
}

func TestAttendanceListRangeFiltersMembers(t *testing.T) {
	ms, as, _ := setupMemberTestDB(t)

	ann, _ := ms.Create("Ann")
	bo, _ := ms.Create("Bo")
	as.Upsert(ann.ID, "2024-03-07", "Present", 1)
	as.Upsert(bo.ID, "2024-03-07", "Present", 1)

	rows, err := as.ListRange([]int64{bo.ID}, "2024-03-01", "2024-03-31")
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(rows) != 1 || rows[0].MemberID != bo.ID {
		t.Errorf("rows = %+v, want only Bo", rows)
	}
}

func TestAttendanceListRangeNoMembers(t *testing.T) {
	_, as, _ := setupMemberTestDB(t)

	rows, err := as.ListRange(nil, "2024-03-01", "2024-03-31")
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("len = %d, want 0", len(rows))
	}
}

func TestAttendanceUpsertReplaces(t *testing.T) {
	ms, as, _ := setupMemberTestDB(t)

	ann, _ := ms.Create("Ann")
	as.Upsert(ann.ID, "2024-03-07", "Present", 1)
	if err := as.Upsert(ann.ID, "2024-03-07", "Pending", 2); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, _ := as.ListRange([]int64{ann.ID}, "2024-03-07", "2024-03-07")
	if len(rows) != 1 {
		t.Fatalf("len = %d, want 1", len(rows))
	}
	if rows[0].Status != "Pending" {
		t.Errorf("status = %q, want %q", rows[0].Status, "Pending")
	}
	if rows[0].Revision != 2 {
		t.Errorf("revision = %d, want 2", rows[0].Revision)
	}
}

func TestAttendanceUpsertIgnoresOlderRevision(t *testing.T) {
	ms, as, _ := setupMemberTestDB(t)

	ann, _ := ms.Create("Ann")
	as.Upsert(ann.ID, "2024-03-07", "Pending", 5)
	// An older write that arrives late must not win.
	if err := as.Upsert(ann.ID, "2024-03-07", "Present", 4); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, _ := as.ListRange([]int64{ann.ID}, "2024-03-07", "2024-03-07")
	if rows[0].Status != "Pending" {
		t.Errorf("status = %q, want %q", rows[0].Status, "Pending")
	}
}

func TestAttendanceUpsertRejectsUnknownStatus(t *testing.T) {
	ms, as, _ := setupMemberTestDB(t)

	ann, _ := ms.Create("Ann")
	if err := as.Upsert(ann.ID, "2024-03-07", "Absent", 1); err == nil {
		t.Fatal("expected check constraint error")
	}
}

func TestAttendanceUpsertUnknownMember(t *testing.T) {
	_, as, _ := setupMemberTestDB(t)

	if err := as.Upsert(42, "2024-03-07", "Present", 1); err == nil {
		t.Fatal("expected foreign key error")
	}
}

func TestAttendanceMaxRevision(t *testing.T) {
	ms, as, _ := setupMemberTestDB(t)

	if rev, err := as.MaxRevision(); err != nil || rev != 0 {
		t.Fatalf("empty MaxRevision() = %d, %v; want 0, nil", rev, err)
	}

	ann, _ := ms.Create("Ann")
	as.Upsert(ann.ID, "2024-03-07", "Present", 7)
	as.Upsert(ann.ID, "2024-03-14", "Present", 3)

	rev, err := as.MaxRevision()
	if err != nil {
		t.Fatalf("max revision: %v", err)
	}
	if rev != 7 {
		t.Errorf("MaxRevision() = %d, want 7", rev)
	}
}
