package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/ondo/internal/model"
)

const pushCols = `id, user_id, endpoint, p256dh_key, auth_key, device_name, created_at`

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := scanner.Scan(&sub.ID, &sub.UserID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubscription registers a browser endpoint for userID. Re-subscribing
// the same endpoint refreshes its keys and moves it to the current user.
func (s *PushStore) CreateSubscription(userID int64, endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	_, err := s.db.Exec(
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh_key, auth_key, device_name)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET user_id = excluded.user_id, p256dh_key = excluded.p256dh_key,
		   auth_key = excluded.auth_key, device_name = excluded.device_name`,
		userID, endpoint, p256dh, auth, deviceName,
	)
	if err != nil {
		return nil, fmt.Errorf("create push subscription: %w", err)
	}
	// LastInsertId is not reliable after the conflict update; re-query.
	return s.getByEndpoint(endpoint)
}

func (s *PushStore) getByEndpoint(endpoint string) (*model.PushSubscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(`SELECT `+pushCols+` FROM push_subscriptions WHERE endpoint = ?`, endpoint))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get push subscription by endpoint: %w", err)
	}
	return sub, nil
}

func (s *PushStore) ListByUser(userID int64) ([]model.PushSubscription, error) {
	rows, err := s.db.Query(`SELECT `+pushCols+` FROM push_subscriptions WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions by user: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (s *PushStore) ListAll() ([]model.PushSubscription, error) {
	rows, err := s.db.Query(`SELECT ` + pushCols + ` FROM push_subscriptions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

// DeleteSubscription removes one of userID's subscriptions and reports
// whether it existed.
func (s *PushStore) DeleteSubscription(id, userID int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete push subscription: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PushStore) DeleteByEndpoint(endpoint string) error {
	_, err := s.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}

// GetPreferences returns one entry per notification type, defaulting to
// enabled where the user has not chosen.
func (s *PushStore) GetPreferences(userID int64) ([]model.NotificationPreference, error) {
	rows, err := s.db.Query(
		`SELECT notification_type, enabled FROM notification_preferences WHERE user_id = ?`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get notification preferences: %w", err)
	}
	defer rows.Close()

	stored := make(map[string]bool)
	for rows.Next() {
		var notifType string
		var enabled int
		if err := rows.Scan(&notifType, &enabled); err != nil {
			return nil, fmt.Errorf("scan notification preference: %w", err)
		}
		stored[notifType] = enabled != 0
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prefs := make([]model.NotificationPreference, 0, len(model.NotificationTypes))
	for _, t := range model.NotificationTypes {
		enabled, ok := stored[t]
		prefs = append(prefs, model.NotificationPreference{Type: t, Enabled: !ok || enabled})
	}
	return prefs, nil
}

// SetPreference upserts a notification preference.
func (s *PushStore) SetPreference(userID int64, notifType string, enabled bool) error {
	var enabledInt int
	if enabled {
		enabledInt = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO notification_preferences (user_id, notification_type, enabled, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, notification_type) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		userID, notifType, enabledInt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set notification preference: %w", err)
	}
	return nil
}

// IsPreferenceEnabled checks if a specific notification type is enabled for a user.
// Returns true by default if no preference record exists.
func (s *PushStore) IsPreferenceEnabled(userID int64, notifType string) (bool, error) {
	var enabled int
	err := s.db.QueryRow(
		`SELECT enabled FROM notification_preferences WHERE user_id = ? AND notification_type = ?`,
		userID, notifType,
	).Scan(&enabled)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check notification preference: %w", err)
	}
	return enabled != 0, nil
}

// RecordSent records that a notification was sent (for dedup).
func (s *PushStore) RecordSent(notifType, refID string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sent_notifications (notification_type, reference_id, sent_at) VALUES (?, ?, ?)`,
		notifType, refID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record sent notification: %w", err)
	}
	return nil
}

// WasSent checks if a notification was already sent.
func (s *PushStore) WasSent(notifType, refID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sent_notifications WHERE notification_type = ? AND reference_id = ?`,
		notifType, refID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check sent notification: %w", err)
	}
	return count > 0, nil
}

// CleanupSent deletes sent_notifications older than the given time.
func (s *PushStore) CleanupSent(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sent_notifications WHERE sent_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup sent notifications: %w", err)
	}
	return res.RowsAffected()
}

func scanSubscriptions(rows *sql.Rows) ([]model.PushSubscription, error) {
	subs := []model.PushSubscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
