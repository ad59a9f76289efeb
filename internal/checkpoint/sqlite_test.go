package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetTaskMissing(t *testing.T) {
	store := newTestStore(t)

	record, err := store.GetTask("backups", "missing")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestSaveAndGetTask(t *testing.T) {
	store := newTestStore(t)

	saved := &TaskRecord{
		Bucket: "backups",
		Key:    "2026/08/a.bin",
		Size:   1024,
		ETag:   "etag-1",
		Status: StatusUploaded,
	}
	require.NoError(t, store.SaveTask(saved))
	assert.False(t, saved.UpdatedAt.IsZero())

	got, err := store.GetTask("backups", "2026/08/a.bin")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved.Size, got.Size)
	assert.Equal(t, saved.ETag, got.ETag)
	assert.Equal(t, StatusUploaded, got.Status)
}

func TestSaveTaskUpserts(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveTask(&TaskRecord{
		Bucket: "backups", Key: "a", Size: 10, Status: StatusFailed, LastError: "timeout",
	}))
	require.NoError(t, store.SaveTask(&TaskRecord{
		Bucket: "backups", Key: "a", Size: 10, ETag: "etag-2", Status: StatusUploaded,
	}))

	got, err := store.GetTask("backups", "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusUploaded, got.Status)
	assert.Equal(t, "etag-2", got.ETag)
}

func TestListTasksByStatus(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SaveTask(&TaskRecord{Bucket: "b", Key: "ok-1", Status: StatusUploaded}))
	require.NoError(t, store.SaveTask(&TaskRecord{Bucket: "b", Key: "skip-1", Status: StatusSkipped}))
	require.NoError(t, store.SaveTask(&TaskRecord{Bucket: "b", Key: "bad-1", Status: StatusFailed, LastError: "boom"}))
	require.NoError(t, store.SaveTask(&TaskRecord{Bucket: "b", Key: "bad-2", Status: StatusFailed, LastError: "boom"}))

	failed, err := store.ListTasksByStatus(StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	for _, record := range failed {
		assert.Equal(t, StatusFailed, record.Status)
		assert.Equal(t, "boom", record.LastError)
	}

	skipped, err := store.ListTasksByStatus(StatusSkipped)
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, "skip-1", skipped[0].Key)
}

func TestClosedStore(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())

	_, err := store.GetTask("b", "k")
	assert.Error(t, err)

	err = store.SaveTask(&TaskRecord{Bucket: "b", Key: "k", Status: StatusUploaded})
	assert.Error(t, err)
}
