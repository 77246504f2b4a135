package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/ondo/internal/model"
)

type AttendanceStore struct {
	db *sql.DB
}

func NewAttendanceStore(db *sql.DB) *AttendanceStore {
	return &AttendanceStore{db: db}
}

// ListRange returns the attendance rows of the given members whose date lies
// in [from, to]. Dates are YYYY-MM-DD so string comparison orders them.
func (s *AttendanceStore) ListRange(memberIDs []int64, from, to string) ([]model.AttendanceRow, error) {
	if len(memberIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(memberIDs)
	args = append(args, from, to)

	rows, err := s.db.Query(
		`SELECT member_id, date, status, revision FROM attendance
		 WHERE member_id IN `+in+` AND date >= ? AND date <= ?
		 ORDER BY member_id, date`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var out []model.AttendanceRow
	for rows.Next() {
		var r model.AttendanceRow
		if err := rows.Scan(&r.MemberID, &r.Date, &r.Status, &r.Revision); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Upsert writes the status for (member, date). A write whose revision is not
// newer than the stored one is ignored, so late-arriving older writes cannot
// overwrite newer ones.
func (s *AttendanceStore) Upsert(memberID int64, date, status string, revision int64) error {
	_, err := s.db.Exec(
		`INSERT INTO attendance (member_id, date, status, revision, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(member_id, date) DO UPDATE
		 SET status = excluded.status, revision = excluded.revision, updated_at = excluded.updated_at
		 WHERE excluded.revision > attendance.revision`,
		memberID, date, status, revision, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

func (s *AttendanceStore) DeleteByMember(memberID int64) error {
	_, err := s.db.Exec(`DELETE FROM attendance WHERE member_id = ?`, memberID)
	if err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	return nil
}

// MaxRevision returns the highest stored revision, or 0 when empty.
func (s *AttendanceStore) MaxRevision() (int64, error) {
	var rev int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(revision), 0) FROM attendance`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("max attendance revision: %w", err)
	}
	return rev, nil
}
