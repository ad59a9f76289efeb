package storage

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testAccessKey = "minioadmin"
	testSecretKey = "minioadmin"
	testBucket    = "bulkput-test"
)

func setupMinio(t *testing.T) (testcontainers.Container, *MinIOClient) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     testAccessKey,
			"MINIO_ROOT_PASSWORD": testSecretKey,
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatal("Failed to start container:", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}

	client, err := NewMinIOClient(Config{
		Endpoint:  endpoint,
		AccessKey: testAccessKey,
		SecretKey: testSecretKey,
		Secure:    false,
	})
	if err != nil {
		t.Fatal("Failed to create client:", err)
	}

	require.NoError(t, client.EnsureBucket(ctx, testBucket))

	return container, client
}

func uploadThroughSession(t *testing.T, client *MinIOClient, ref ObjectRef, opts WriteOptions, payload []byte) (ObjectInfo, error) {
	t.Helper()
	ctx := context.Background()

	session, err := client.OpenWriteSession(ctx, ref, opts)
	require.NoError(t, err)

	sink := session.Sink()
	_, copyErr := io.Copy(sink, bytes.NewReader(payload))
	closeErr := sink.Close()
	if copyErr != nil {
		return ObjectInfo{}, copyErr
	}
	if closeErr != nil {
		return ObjectInfo{}, closeErr
	}

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return session.Completion().Await(waitCtx)
}

func TestMinIOWriteSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	container, client := setupMinio(t)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	ctx := context.Background()
	payload := bytes.Repeat([]byte("bulkput"), 1024)

	t.Run("upload and finalize", func(t *testing.T) {
		ref := ObjectRef{Bucket: testBucket, Key: "session/upload.bin"}
		info, err := uploadThroughSession(t, client, ref, WriteOptions{ContentType: "application/octet-stream"}, payload)
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), info.Size)
		assert.NotEmpty(t, info.ETag)

		stat, err := client.StatObject(ctx, testBucket, ref.Key)
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), stat.Size)
	})

	t.Run("disallow overwrite returns precondition failure", func(t *testing.T) {
		ref := ObjectRef{Bucket: testBucket, Key: "session/exists.bin"}

		_, err := uploadThroughSession(t, client, ref, WriteOptions{}, payload)
		require.NoError(t, err)

		_, err = uploadThroughSession(t, client, ref, WriteOptions{DisallowOverwrite: true}, payload)
		require.Error(t, err)
		assert.True(t, IsPreconditionFailure(err))
	})

	t.Run("incomplete object reference", func(t *testing.T) {
		_, err := client.OpenWriteSession(ctx, ObjectRef{Bucket: testBucket}, WriteOptions{})
		assert.Error(t, err)
	})

	t.Run("ensure bucket is idempotent", func(t *testing.T) {
		assert.NoError(t, client.EnsureBucket(ctx, testBucket))
	})
}
