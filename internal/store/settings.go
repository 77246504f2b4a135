package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/ondo/internal/model"
)

// NoticeKey holds the team notice as Markdown.
const NoticeKey = "notice_markdown"

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the setting for key, or nil if it was never set.
func (s *SettingsStore) Get(key string) (*model.Setting, error) {
	var st model.Setting
	var updatedBy sql.NullInt64
	err := s.db.QueryRow(
		`SELECT key, value, updated_by, updated_at FROM settings WHERE key = ?`, key,
	).Scan(&st.Key, &st.Value, &updatedBy, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %q: %w", key, err)
	}
	if updatedBy.Valid {
		st.UpdatedBy = &updatedBy.Int64
	}
	return &st, nil
}

// Set stores value under key and records who changed it.
func (s *SettingsStore) Set(key, value string, userID int64) (*model.Setting, error) {
	var by any
	if userID != 0 {
		by = userID
	}
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value, updated_by, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   updated_by = excluded.updated_by,
		   updated_at = excluded.updated_at`,
		key, value, by, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("set setting %q: %w", key, err)
	}
	return s.Get(key)
}
