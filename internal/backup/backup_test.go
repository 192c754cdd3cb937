package backup

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/taskwheel/internal/database"
)

// mockS3Client implements s3Client in memory.
type mockS3Client struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
}

func newMockS3() *mockS3Client {
	return &mockS3Client{
		objects:  make(map[string][]byte),
		modified: make(map[string]time.Time),
	}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*input.Key] = data
	m.modified[*input.Key] = time.Now().UTC()
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	delete(m.modified, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for key := range m.objects {
		if input.Prefix != nil && !strings.HasPrefix(key, *input.Prefix) {
			continue
		}
		k := key
		mod := m.modified[key]
		out.Contents = append(out.Contents, types.Object{Key: &k, LastModified: &mod})
	}
	return out, nil
}

func testConfig(dbPath string) Config {
	return Config{
		S3: S3Config{
			Bucket:    "taskwheel-backups",
			Region:    "auto",
			AccessKey: "key",
			SecretKey: "secret",
		},
		DBPath:        dbPath,
		Passphrase:    "household secret",
		RetentionDays: 30,
	}
}

// newTestManager opens a real database file and swaps the S3 client for the
// in-memory mock.
func newTestManager(t *testing.T) (*Manager, *mockS3Client) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "taskwheel.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := New(testConfig(dbPath), db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mock := newMockS3()
	m.client = mock
	return m, mock
}

func TestRunNowUploadsEncryptedSnapshot(t *testing.T) {
	m, mock := newTestManager(t)

	key, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if !strings.HasPrefix(key, keyPrefix) {
		t.Errorf("key = %q, want %q prefix", key, keyPrefix)
	}

	mock.mu.Lock()
	data, ok := mock.objects[key]
	mock.mu.Unlock()
	if !ok {
		t.Fatal("snapshot not uploaded")
	}
	if bytes.Contains(data, []byte("SQLite format 3")) {
		t.Error("uploaded snapshot is not encrypted")
	}

	// The snapshot decrypts back to a SQLite file with the passphrase.
	dir := t.TempDir()
	encPath := filepath.Join(dir, "snap.enc")
	decPath := filepath.Join(dir, "snap.db")
	if err := os.WriteFile(encPath, data, 0600); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	if err := decryptFile(encPath, decPath, "household secret"); err != nil {
		t.Fatalf("decrypt snapshot: %v", err)
	}
	plain, err := os.ReadFile(decPath)
	if err != nil {
		t.Fatalf("read decrypted: %v", err)
	}
	if !bytes.HasPrefix(plain, []byte("SQLite format 3")) {
		t.Error("decrypted snapshot is not a SQLite database")
	}

	status := m.Status()
	if status.State != StateIdle || status.LastBackup == nil || status.LastKey != key {
		t.Errorf("status after backup = %+v", status)
	}
}

func TestRunNowDisabled(t *testing.T) {
	m := New(Config{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if m.Enabled() {
		t.Error("empty config should leave backups disabled")
	}
	if _, err := m.RunNow(context.Background()); err == nil {
		t.Error("RunNow on disabled manager should fail")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	m, mock := newTestManager(t)

	key, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	// Restore into a fresh location through a second manager sharing the
	// same bucket.
	restorePath := filepath.Join(t.TempDir(), "restored.db")
	restorer := New(testConfig(restorePath), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	restorer.client = mock

	if err := restorer.Restore(context.Background(), key); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := os.Stat(restorePath); err != nil {
		t.Fatalf("restored file missing: %v", err)
	}

	// The restored file is usable as a database.
	db, err := database.Open(restorePath)
	if err != nil {
		t.Fatalf("open restored db: %v", err)
	}
	db.Close()
}

func TestCleanupPrunesExpired(t *testing.T) {
	m, mock := newTestManager(t)

	old := time.Now().UTC().AddDate(0, 0, -45)
	mock.objects[keyPrefix+"ancient.db.enc"] = []byte("x")
	mock.modified[keyPrefix+"ancient.db.enc"] = old
	mock.objects[keyPrefix+"recent.db.enc"] = []byte("x")
	mock.modified[keyPrefix+"recent.db.enc"] = time.Now().UTC()

	if err := m.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	mock.mu.Lock()
	defer mock.mu.Unlock()
	if _, ok := mock.objects[keyPrefix+"ancient.db.enc"]; ok {
		t.Error("expired snapshot not deleted")
	}
	if _, ok := mock.objects[keyPrefix+"recent.db.enc"]; !ok {
		t.Error("recent snapshot deleted")
	}
}
