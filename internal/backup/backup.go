package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/ondo/internal/model"
	"github.com/dukerupert/ondo/internal/store"
)

var (
	ErrNotConfigured = errors.New("backup: storage or passphrase not configured")
	ErrInProgress    = errors.New("backup: a backup is already running")
	ErrNotFound      = errors.New("backup: not found")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

func (c S3Config) configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds backup manager configuration. Interval zero disables the
// schedule; manual runs still work.
type Config struct {
	S3         S3Config
	Passphrase string
	Interval   time.Duration
	Retention  time.Duration
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
}

// Manager takes encrypted snapshots of the database and keeps them in
// S3-compatible storage.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	status Status

	db     *sql.DB
	store  *store.BackupStore
	client s3Client
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new backup manager.
func NewManager(cfg Config, db *sql.DB, bs *store.BackupStore, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		db:     db,
		store:  bs,
		logger: logger,
		status: Status{State: StateDisabled},
	}
	if cfg.S3.configured() && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether storage and a passphrase are configured.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil
}

// Start begins the scheduled backup loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.client == nil || m.cfg.Interval <= 0 || m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.scheduled(ctx)
			}
		}
	}()
}

// Stop stops the scheduled loop and waits for a running backup to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) scheduled(ctx context.Context) {
	if _, err := m.RunNow(ctx); err != nil {
		if errors.Is(err, ErrInProgress) {
			return
		}
		m.logger.Error("scheduled backup failed", "error", err)
	}
	if n, err := m.Cleanup(ctx); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	} else if n > 0 {
		m.logger.Info("removed expired backups", "count", n)
	}
}

// RunNow snapshots, encrypts and uploads the database. Only one run proceeds
// at a time; a concurrent call gets ErrInProgress.
func (m *Manager) RunNow(ctx context.Context) (*model.Backup, error) {
	m.mu.Lock()
	client := m.client
	if client == nil {
		m.mu.Unlock()
		return nil, ErrNotConfigured
	}
	if m.status.InProgress {
		m.mu.Unlock()
		return nil, ErrInProgress
	}
	cfg := m.cfg
	last := m.status.LastBackup
	m.status = Status{State: StateRunning, InProgress: true, LastBackup: last}
	m.mu.Unlock()

	record, err := m.run(ctx, client, cfg)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error(), LastBackup: last})
		return record, err
	}

	now := time.Now().UTC()
	m.setStatus(Status{State: StateIdle, LastBackup: &now})
	m.logger.Info("backup completed", "id", record.ID, "key", record.ObjectKey, "bytes", record.SizeBytes)
	return record, nil
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) run(ctx context.Context, client s3Client, cfg Config) (*model.Backup, error) {
	filename := fmt.Sprintf("ondo-%s.db.enc", time.Now().UTC().Format("20060102T150405.000000000Z"))
	key := cfg.S3.Prefix + filename

	record, err := m.store.Create(filename, key)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}
	fail := func(err error) (*model.Backup, error) {
		if uerr := m.store.UpdateStatus(record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("record backup failure", "id", record.ID, "error", uerr)
		}
		record.Status = model.BackupStatusFailed
		record.ErrorMessage = err.Error()
		return record, err
	}

	snapshot, err := m.snapshot(ctx)
	if err != nil {
		return fail(fmt.Errorf("snapshot: %w", err))
	}
	sealed, err := Encrypt(snapshot, cfg.Passphrase)
	if err != nil {
		return fail(fmt.Errorf("encrypt: %w", err))
	}

	if err := m.store.UpdateStatus(record.ID, model.BackupStatusUploading, ""); err != nil {
		return fail(err)
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return fail(fmt.Errorf("upload to s3: %w", err))
	}

	size := int64(len(sealed))
	if err := m.store.UpdateCompleted(record.ID, size); err != nil {
		return fail(err)
	}
	record.Status = model.BackupStatusCompleted
	record.SizeBytes = size
	return record, nil
}

// snapshot writes a consistent copy of the live database with VACUUM INTO and
// returns its bytes.
func (m *Manager) snapshot(ctx context.Context) ([]byte, error) {
	dir, err := os.MkdirTemp("", "ondo-backup-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	return os.ReadFile(path)
}

// Cleanup deletes backups older than the retention period and returns how
// many records were removed. Object deletion failures are logged.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	m.mu.Lock()
	client := m.client
	cfg := m.cfg
	m.mu.Unlock()

	if client == nil || cfg.Retention <= 0 {
		return 0, nil
	}

	keys, err := m.store.DeleteOlderThan(time.Now().UTC().Add(-cfg.Retention))
	if err != nil {
		return 0, fmt.Errorf("delete old backups: %w", err)
	}
	for _, key := range keys {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(cfg.S3.Bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("failed to delete backup object", "key", key, "error", err)
		}
	}
	return len(keys), nil
}

// Restore writes the backup with the given record id to dstPath. See
// RestoreObject.
func (m *Manager) Restore(ctx context.Context, backupID int64, dstPath string) error {
	if !m.Enabled() {
		return ErrNotConfigured
	}
	record, err := m.store.GetByID(backupID)
	if err != nil {
		return fmt.Errorf("get backup: %w", err)
	}
	if record == nil || record.Status != model.BackupStatusCompleted {
		return ErrNotFound
	}
	return m.RestoreObject(ctx, record.ObjectKey, dstPath)
}

// RestoreObject downloads and decrypts the object at key into dstPath after
// an integrity check. It needs no local records, so it works when the
// database is lost. dstPath must not exist; the live database is never
// touched.
func (m *Manager) RestoreObject(ctx context.Context, key, dstPath string) error {
	m.mu.Lock()
	client := m.client
	cfg := m.cfg
	m.mu.Unlock()

	if client == nil {
		return ErrNotConfigured
	}
	if _, err := os.Stat(dstPath); err == nil {
		return fmt.Errorf("restore target %s already exists", dstPath)
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	sealed, err := io.ReadAll(result.Body)
	result.Body.Close()
	if err != nil {
		return fmt.Errorf("read download: %w", err)
	}

	plaintext, err := Decrypt(sealed, cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("decrypt backup: %w", err)
	}

	tmp := dstPath + ".partial"
	if err := os.WriteFile(tmp, plaintext, 0600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	if err := checkIntegrity(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dstPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("move restored db: %w", err)
	}
	return nil
}

func checkIntegrity(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if integrity != "ok" {
		return fmt.Errorf("integrity check failed: %s", integrity)
	}
	return nil
}
