package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/ondo/internal/backup"
	"github.com/dukerupert/ondo/internal/push"
	"github.com/dukerupert/ondo/internal/tracker"
)

type Config struct {
	Port           string
	DBPath         string
	LogLevel       string
	LogFormat      string
	FeeEpoch       tracker.Month
	CSRFKey        []byte
	CSRFKeyRandom  bool
	SecureCookies  bool
	AdminEmail     string
	AdminPassword  string
	ViewerTTL      time.Duration
	MaxViewers     int
	OriginPatterns []string
	Backup         backup.Config
	Push           push.Config
}

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads ONDO_* variables through lookup, usually os.LookupEnv.
func Load(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:          get("ONDO_PORT", "8080"),
		DBPath:        get("ONDO_DB_PATH", "ondo.db"),
		LogLevel:      get("ONDO_LOG_LEVEL", "info"),
		LogFormat:     get("ONDO_LOG_FORMAT", "text"),
		FeeEpoch:      tracker.DefaultFeeEpoch,
		AdminEmail:    get("ONDO_ADMIN_EMAIL", ""),
		AdminPassword: get("ONDO_ADMIN_PASSWORD", ""),
		ViewerTTL:     2 * time.Hour,
		MaxViewers:    1000,
		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  get("ONDO_BACKUP_ENDPOINT", ""),
				Bucket:    get("ONDO_BACKUP_BUCKET", ""),
				Region:    get("ONDO_BACKUP_REGION", "us-east-1"),
				AccessKey: get("ONDO_BACKUP_ACCESS_KEY", ""),
				SecretKey: get("ONDO_BACKUP_SECRET_KEY", ""),
				Prefix:    get("ONDO_BACKUP_PREFIX", ""),
			},
			Passphrase: get("ONDO_BACKUP_PASSPHRASE", ""),
			Interval:   24 * time.Hour,
			Retention:  30 * 24 * time.Hour,
		},
	}

	if v := get("ONDO_FEE_EPOCH", ""); v != "" {
		m, err := tracker.ParseMonth(v)
		if err != nil {
			return nil, fmt.Errorf("ONDO_FEE_EPOCH: %w", err)
		}
		cfg.FeeEpoch = m
	}

	if v := get("ONDO_SECURE_COOKIES", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("ONDO_SECURE_COOKIES: %w", err)
		}
		cfg.SecureCookies = b
	}

	if v := get("ONDO_VIEWER_TTL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("ONDO_VIEWER_TTL: invalid duration %q", v)
		}
		cfg.ViewerTTL = d
	}

	if v := get("ONDO_MAX_VIEWERS", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("ONDO_MAX_VIEWERS: invalid count %q", v)
		}
		cfg.MaxViewers = n
	}

	if err := loadPush(cfg, get); err != nil {
		return nil, err
	}

	// Zero disables the schedule or the pruning respectively.
	for key, dst := range map[string]*time.Duration{
		"ONDO_BACKUP_INTERVAL":  &cfg.Backup.Interval,
		"ONDO_BACKUP_RETENTION": &cfg.Backup.Retention,
	} {
		if v := get(key, ""); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("%s: invalid duration %q", key, v)
			}
			*dst = d
		}
	}

	if v := get("ONDO_WS_ORIGINS", ""); v != "" {
		cfg.OriginPatterns = splitList(v)
	}

	if v := get("ONDO_CSRF_KEY", ""); v != "" {
		key, err := hex.DecodeString(v)
		if err != nil || len(key) != 32 {
			return nil, errors.New("ONDO_CSRF_KEY: want 64 hex characters")
		}
		cfg.CSRFKey = key
	} else {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate csrf key: %w", err)
		}
		cfg.CSRFKey = key
		cfg.CSRFKeyRandom = true
	}

	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return nil, errors.New("ONDO_ADMIN_EMAIL and ONDO_ADMIN_PASSWORD must be set together")
	}

	return cfg, nil
}

func loadPush(cfg *Config, get func(key, def string) string) error {
	p := push.Config{
		VAPIDPublicKey:  get("ONDO_VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: get("ONDO_VAPID_PRIVATE_KEY", ""),
		Subject:         get("ONDO_PUSH_SUBJECT", ""),
		Schedule: push.Schedule{
			ReminderHour:   17,
			FeeReminderDay: 20,
			FeeEpoch:       cfg.FeeEpoch,
			Location:       time.Local,
		},
	}
	if (p.VAPIDPublicKey == "") != (p.VAPIDPrivateKey == "") {
		return errors.New("ONDO_VAPID_PUBLIC_KEY and ONDO_VAPID_PRIVATE_KEY must be set together")
	}
	if p.Subject == "" && cfg.AdminEmail != "" {
		p.Subject = "mailto:" + cfg.AdminEmail
	}
	if p.Enabled() && p.Subject == "" {
		return errors.New("ONDO_PUSH_SUBJECT is required when push is enabled")
	}

	if v := get("ONDO_REMINDER_HOUR", ""); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h < 0 || h > 23 {
			return fmt.Errorf("ONDO_REMINDER_HOUR: want 0-23, got %q", v)
		}
		p.Schedule.ReminderHour = h
	}
	if v := get("ONDO_FEE_REMINDER_DAY", ""); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 1 || d > 28 {
			return fmt.Errorf("ONDO_FEE_REMINDER_DAY: want 1-28, got %q", v)
		}
		p.Schedule.FeeReminderDay = d
	}
	if v := get("ONDO_TIMEZONE", ""); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return fmt.Errorf("ONDO_TIMEZONE: %w", err)
		}
		p.Schedule.Location = loc
	}

	cfg.Push = p
	return nil
}

// FromEnv loads the process environment.
func FromEnv() (*Config, error) {
	return Load(os.LookupEnv)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
