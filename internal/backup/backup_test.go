package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/ondo/internal/database"
	"github.com/dukerupert/ondo/internal/model"
	"github.com/dukerupert/ondo/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
	delErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.delErr != nil {
		return nil, m.delErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

var testS3 = S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret", Region: "us-east-1", Prefix: "team/"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupManager(t *testing.T, cfg Config) (*Manager, *mockS3Client, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := NewManager(cfg, db, store.NewBackupStore(db), testLogger())
	mock := newMockS3()
	if m.client != nil {
		m.client = mock
	}
	return m, mock, db
}

func TestManagerDisabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty", Config{}},
		{"no passphrase", Config{S3: testS3}},
		{"no bucket", Config{Passphrase: "pw"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _ := setupManager(t, tt.cfg)
			if m.Enabled() {
				t.Error("expected disabled manager")
			}
			if m.Status().State != StateDisabled {
				t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
			}
			if _, err := m.RunNow(context.Background()); !errors.Is(err, ErrNotConfigured) {
				t.Errorf("RunNow err = %v, want ErrNotConfigured", err)
			}
			if err := m.Restore(context.Background(), 1, filepath.Join(t.TempDir(), "x.db")); !errors.Is(err, ErrNotConfigured) {
				t.Errorf("Restore err = %v, want ErrNotConfigured", err)
			}
			m.Start(context.Background())
			m.Stop()
		})
	}
}

func TestManagerRunAndRestore(t *testing.T) {
	m, mock, db := setupManager(t, Config{S3: testS3, Passphrase: "team secret"})
	if m.Status().State != StateIdle {
		t.Fatalf("state = %q, want %q", m.Status().State, StateIdle)
	}
	if _, err := store.NewMemberStore(db).Create("Ann"); err != nil {
		t.Fatalf("create member: %v", err)
	}

	record, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if record.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want %q", record.Status, model.BackupStatusCompleted)
	}
	if !strings.HasPrefix(record.ObjectKey, "team/ondo-") {
		t.Errorf("object key = %q, want team/ondo- prefix", record.ObjectKey)
	}
	stored := mock.objects[record.ObjectKey]
	if int64(len(stored)) != record.SizeBytes {
		t.Errorf("uploaded %d bytes, record says %d", len(stored), record.SizeBytes)
	}
	if bytes.HasPrefix(stored, []byte("SQLite format 3")) {
		t.Error("uploaded object is not encrypted")
	}

	status := m.Status()
	if status.State != StateIdle || status.LastBackup == nil || status.InProgress {
		t.Errorf("status = %+v, want idle with last backup", status)
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Restore(context.Background(), record.ID, dst); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	restored, err := sql.Open("sqlite", dst)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer restored.Close()
	var name string
	if err := restored.QueryRow(`SELECT name FROM members`).Scan(&name); err != nil {
		t.Fatalf("query restored: %v", err)
	}
	if name != "Ann" {
		t.Errorf("restored member = %q, want %q", name, "Ann")
	}

	if err := m.Restore(context.Background(), record.ID, dst); err == nil {
		t.Error("expected error restoring over an existing file")
	}
}

func TestManagerRestoreWrongPassphrase(t *testing.T) {
	m, _, _ := setupManager(t, Config{S3: testS3, Passphrase: "right"})
	record, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	m.cfg.Passphrase = "wrong"
	if err := m.Restore(context.Background(), record.ID, filepath.Join(t.TempDir(), "r.db")); err == nil {
		t.Fatal("expected decrypt error")
	}
}

func TestManagerRestoreUnknown(t *testing.T) {
	m, _, _ := setupManager(t, Config{S3: testS3, Passphrase: "pw"})
	err := m.Restore(context.Background(), 42, filepath.Join(t.TempDir(), "r.db"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := m.RestoreObject(context.Background(), "team/missing.db.enc", filepath.Join(t.TempDir(), "r.db")); err == nil {
		t.Error("expected error for a missing object")
	}
}

// A fresh manager over an empty database can still restore by key.
func TestManagerRestoreObjectWithoutRecords(t *testing.T) {
	m, mock, _ := setupManager(t, Config{S3: testS3, Passphrase: "pw"})
	record, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	other, _, _ := setupManager(t, Config{S3: testS3, Passphrase: "pw"})
	other.client = mock
	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := other.RestoreObject(context.Background(), record.ObjectKey, dst); err != nil {
		t.Fatalf("RestoreObject: %v", err)
	}
	if err := checkIntegrity(dst); err != nil {
		t.Errorf("restored file: %v", err)
	}
}

func TestManagerUploadFailure(t *testing.T) {
	m, mock, db := setupManager(t, Config{S3: testS3, Passphrase: "pw"})
	mock.putErr = errors.New("bucket unreachable")

	record, err := m.RunNow(context.Background())
	if err == nil {
		t.Fatal("expected upload error")
	}
	if record == nil || record.Status != model.BackupStatusFailed {
		t.Fatalf("record = %+v, want failed", record)
	}
	got, _ := store.NewBackupStore(db).GetByID(record.ID)
	if got.Status != model.BackupStatusFailed || !strings.Contains(got.ErrorMessage, "bucket unreachable") {
		t.Errorf("stored record = %+v, want failed with message", got)
	}
	status := m.Status()
	if status.State != StateError || status.InProgress {
		t.Errorf("status = %+v, want error and not in progress", status)
	}

	// The next run recovers.
	mock.putErr = nil
	if _, err := m.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow after recovery: %v", err)
	}
	if m.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", m.Status().State, StateIdle)
	}
}

func TestManagerRejectsConcurrentRun(t *testing.T) {
	m, _, _ := setupManager(t, Config{S3: testS3, Passphrase: "pw"})
	m.setStatus(Status{State: StateRunning, InProgress: true})

	if _, err := m.RunNow(context.Background()); !errors.Is(err, ErrInProgress) {
		t.Errorf("err = %v, want ErrInProgress", err)
	}
}

func TestManagerCleanup(t *testing.T) {
	m, mock, db := setupManager(t, Config{S3: testS3, Passphrase: "pw", Retention: 30 * time.Millisecond})

	old, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	fresh, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	n, err := m.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	keys := mock.keys()
	if len(keys) != 1 || keys[0] != fresh.ObjectKey {
		t.Errorf("remaining objects = %v, want [%s]", keys, fresh.ObjectKey)
	}
	if got, _ := store.NewBackupStore(db).GetByID(old.ID); got != nil {
		t.Error("old record should be deleted")
	}
}

func TestManagerCleanupWithoutRetention(t *testing.T) {
	m, _, _ := setupManager(t, Config{S3: testS3, Passphrase: "pw"})
	if _, err := m.RunNow(context.Background()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	n, err := m.Cleanup(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Cleanup() = %d, %v; want 0, nil", n, err)
	}
}

func TestManagerScheduledRun(t *testing.T) {
	m, mock, _ := setupManager(t, Config{S3: testS3, Passphrase: "pw", Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(mock.keys()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	m.Stop()
	if len(mock.keys()) == 0 {
		t.Fatal("expected a scheduled backup")
	}

	// Double stop should not panic
	m.Stop()
}
