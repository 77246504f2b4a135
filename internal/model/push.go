package model

import "time"

// Notification types a user can switch on or off.
const (
	NotifTypeSessionReminder = "session_reminder"
	NotifTypeFeeReminder     = "fee_reminder"
)

// NotificationTypes lists every type, in display order.
var NotificationTypes = []string{NotifTypeSessionReminder, NotifTypeFeeReminder}

type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"-"`
	AuthKey    string    `json:"-"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}

type NotificationPreference struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}
