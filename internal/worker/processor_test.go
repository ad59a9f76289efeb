package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bulkput/internal/checkpoint"
	"bulkput/internal/metrics"
	"bulkput/internal/storage"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// The default Prometheus registry rejects duplicate registration, so all
// processor tests share one collector.
var (
	collectorOnce sync.Once
	collector     *metrics.Collector
)

func testCollector() *metrics.Collector {
	collectorOnce.Do(func() {
		collector = metrics.New()
	})
	return collector
}

type scriptedSink struct {
	buf      bytes.Buffer
	writeErr error
	closeErr error
}

func (s *scriptedSink) Write(p []byte) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return s.buf.Write(p)
}

func (s *scriptedSink) Close() error { return s.closeErr }

type scriptedSession struct {
	sink       *scriptedSink
	completion *storage.Completion
}

func (s *scriptedSession) Sink() io.WriteCloser            { return s.sink }
func (s *scriptedSession) Completion() *storage.Completion { return s.completion }

// sessionScript describes the outcome of one write session attempt
type sessionScript struct {
	writeErr error
	closeErr error
	info     *storage.ObjectInfo
}

type scriptedClient struct {
	mu        sync.Mutex
	scripts   []sessionScript
	openCalls int
	statInfo  storage.ObjectInfo
	statErr   error
}

func (c *scriptedClient) OpenWriteSession(_ context.Context, _ storage.ObjectRef, _ storage.WriteOptions) (storage.WriteSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.openCalls++
	script := sessionScript{}
	if len(c.scripts) > 0 {
		script = c.scripts[0]
		c.scripts = c.scripts[1:]
	}

	completion := storage.NewCompletion()
	if script.info != nil {
		completion.Resolve(*script.info, nil)
	} else {
		completion.Resolve(storage.ObjectInfo{}, errors.New("no finalized object scripted"))
	}

	return &scriptedSession{
		sink:       &scriptedSink{writeErr: script.writeErr, closeErr: script.closeErr},
		completion: completion,
	}, nil
}

func (c *scriptedClient) StatObject(context.Context, string, string) (storage.ObjectInfo, error) {
	return c.statInfo, c.statErr
}

func (c *scriptedClient) EnsureBucket(context.Context, string) error { return nil }

type memStore struct {
	mu      sync.Mutex
	records map[string]*checkpoint.TaskRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*checkpoint.TaskRecord)}
}

func (s *memStore) GetTask(bucket, key string) (*checkpoint.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[bucket+"/"+key], nil
}

func (s *memStore) SaveTask(record *checkpoint.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Bucket+"/"+record.Key] = record
	return nil
}

func (s *memStore) ListTasksByStatus(checkpoint.TaskStatus) ([]*checkpoint.TaskRecord, error) {
	return nil, nil
}

func (s *memStore) Close() error { return nil }

func newProcessor(client storage.Client, store checkpoint.Store, cfg Config) *TaskProcessor {
	return &TaskProcessor{
		config:     cfg,
		client:     client,
		checkpoint: store,
		metrics:    testCollector(),
		logger:     zap.NewNop(),
	}
}

func testTask(t *testing.T) Task {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
	return Task{
		Bucket:    "backups",
		Key:       "payload.bin",
		LocalPath: path,
		Size:      7,
	}
}

func baseConfig() Config {
	return Config{
		Retries:        3,
		RetryBackoffMs: 1,
		SkipIfExists:   true,
		CompletionWait: time.Second,
	}
}

func TestProcessSuccess(t *testing.T) {
	task := testTask(t)
	client := &scriptedClient{scripts: []sessionScript{
		{info: &storage.ObjectInfo{Bucket: "backups", Key: "payload.bin", Size: 7, ETag: "etag-1"}},
	}}
	store := newMemStore()

	newProcessor(client, store, baseConfig()).Process(context.Background(), task)

	assert.Equal(t, 1, client.openCalls)
	record, _ := store.GetTask("backups", "payload.bin")
	require.NotNil(t, record)
	assert.Equal(t, checkpoint.StatusUploaded, record.Status)
	assert.Equal(t, "etag-1", record.ETag)
}

func TestProcessRetriesThenSucceeds(t *testing.T) {
	task := testTask(t)
	client := &scriptedClient{scripts: []sessionScript{
		{writeErr: errors.New("connection reset by peer")},
		{info: &storage.ObjectInfo{Bucket: "backups", Key: "payload.bin", Size: 7, ETag: "etag-2"}},
	}}
	store := newMemStore()

	newProcessor(client, store, baseConfig()).Process(context.Background(), task)

	assert.Equal(t, 2, client.openCalls)
	record, _ := store.GetTask("backups", "payload.bin")
	require.NotNil(t, record)
	assert.Equal(t, checkpoint.StatusUploaded, record.Status)
}

func TestProcessSkippedIsTerminal(t *testing.T) {
	task := testTask(t)
	client := &scriptedClient{scripts: []sessionScript{
		{closeErr: minio.ErrorResponse{Code: "PreconditionFailed", StatusCode: http.StatusPreconditionFailed}},
	}}
	store := newMemStore()

	newProcessor(client, store, baseConfig()).Process(context.Background(), task)

	// No retry after a skip outcome.
	assert.Equal(t, 1, client.openCalls)
	record, _ := store.GetTask("backups", "payload.bin")
	require.NotNil(t, record)
	assert.Equal(t, checkpoint.StatusSkipped, record.Status)
}

func TestProcessNonRetriableFailure(t *testing.T) {
	task := testTask(t)
	task.LocalPath = filepath.Join(t.TempDir(), "missing.bin")
	client := &scriptedClient{}
	store := newMemStore()

	newProcessor(client, store, baseConfig()).Process(context.Background(), task)

	assert.Equal(t, 1, client.openCalls)
	record, _ := store.GetTask("backups", "payload.bin")
	require.NotNil(t, record)
	assert.Equal(t, checkpoint.StatusFailed, record.Status)
	assert.NotEmpty(t, record.LastError)
}

func TestProcessResumeSkipsUploaded(t *testing.T) {
	task := testTask(t)
	client := &scriptedClient{statInfo: storage.ObjectInfo{Size: 7}}
	store := newMemStore()
	require.NoError(t, store.SaveTask(&checkpoint.TaskRecord{
		Bucket: "backups", Key: "payload.bin", Size: 7, Status: checkpoint.StatusUploaded,
	}))

	cfg := baseConfig()
	cfg.Resume = true
	newProcessor(client, store, cfg).Process(context.Background(), task)

	assert.Equal(t, 0, client.openCalls)
}

func TestProcessResumeReuploadsWhenObjectGone(t *testing.T) {
	task := testTask(t)
	client := &scriptedClient{
		statErr: errors.New("NoSuchKey"),
		scripts: []sessionScript{
			{info: &storage.ObjectInfo{Bucket: "backups", Key: "payload.bin", Size: 7, ETag: "etag-3"}},
		},
	}
	store := newMemStore()
	require.NoError(t, store.SaveTask(&checkpoint.TaskRecord{
		Bucket: "backups", Key: "payload.bin", Size: 7, Status: checkpoint.StatusUploaded,
	}))

	cfg := baseConfig()
	cfg.Resume = true
	newProcessor(client, store, cfg).Process(context.Background(), task)

	assert.Equal(t, 1, client.openCalls)
}

func TestIsRetriableError(t *testing.T) {
	p := newProcessor(&scriptedClient{}, newMemStore(), baseConfig())

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "completion deadline", err: context.DeadlineExceeded, want: true},
		{name: "missing file", err: os.ErrNotExist, want: false},
		{name: "precondition", err: minio.ErrorResponse{StatusCode: http.StatusPreconditionFailed}, want: false},
		{name: "connection error", err: errors.New("connection refused"), want: true},
		{name: "server error", err: errors.New("503 service unavailable"), want: true},
		{name: "permanent backend error", err: errors.New("access denied"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.isRetriableError(tc.err))
		})
	}
}
