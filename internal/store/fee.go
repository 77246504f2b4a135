package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/ondo/internal/model"
)

type FeeStore struct {
	db *sql.DB
}

func NewFeeStore(db *sql.DB) *FeeStore {
	return &FeeStore{db: db}
}

// ListMonth returns the fee rows of the given members for exactly one month key.
func (s *FeeStore) ListMonth(memberIDs []int64, month string) ([]model.FeeRow, error) {
	if len(memberIDs) == 0 {
		return nil, nil
	}
	in, args := inClause(memberIDs)
	args = append(args, month)

	rows, err := s.db.Query(
		`SELECT member_id, month, status, revision FROM fees
		 WHERE member_id IN `+in+` AND month = ?
		 ORDER BY member_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query fees: %w", err)
	}
	defer rows.Close()

	var out []model.FeeRow
	for rows.Next() {
		var r model.FeeRow
		if err := rows.Scan(&r.MemberID, &r.Month, &r.Status, &r.Revision); err != nil {
			return nil, fmt.Errorf("scan fee: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Upsert writes the status for (member, month), ignoring writes that are not
// newer than the stored revision.
func (s *FeeStore) Upsert(memberID int64, month, status string, revision int64) error {
	_, err := s.db.Exec(
		`INSERT INTO fees (member_id, month, status, revision, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(member_id, month) DO UPDATE
		 SET status = excluded.status, revision = excluded.revision, updated_at = excluded.updated_at
		 WHERE excluded.revision > fees.revision`,
		memberID, month, status, revision, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert fee: %w", err)
	}
	return nil
}

func (s *FeeStore) DeleteByMember(memberID int64) error {
	_, err := s.db.Exec(`DELETE FROM fees WHERE member_id = ?`, memberID)
	if err != nil {
		return fmt.Errorf("delete fees: %w", err)
	}
	return nil
}

// MaxRevision returns the highest stored revision, or 0 when empty.
func (s *FeeStore) MaxRevision() (int64, error) {
	var rev int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(revision), 0) FROM fees`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("max fee revision: %w", err)
	}
	return rev, nil
}
