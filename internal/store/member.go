package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/ondo/internal/model"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	err := scanner.Scan(&m.ID, &m.Name, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const memberCols = `id, name, created_at, updated_at`

// Create inserts a member and returns the stored row with its generated id.
func (s *MemberStore) Create(name string) (*model.Member, error) {
	result, err := s.db.Exec(`INSERT INTO members (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

// List returns every member ordered by id.
func (s *MemberStore) List() ([]model.Member, error) {
	rows, err := s.db.Query(`SELECT ` + memberCols + ` FROM members ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *MemberStore) GetByID(id int64) (*model.Member, error) {
	row := s.db.QueryRow(`SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// Rename updates the member's name. Renaming a missing member is an error.
func (s *MemberStore) Rename(id int64, name string) error {
	result, err := s.db.Exec(`UPDATE members SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update member %d: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes the member row only. Attendance and fee rows must be
// removed first; the foreign keys reject the delete otherwise.
func (s *MemberStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// inClause returns "(?, ?, ?)" and the ids as query args.
func inClause(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return "(" + strings.Join(marks, ", ") + ")", args
}
