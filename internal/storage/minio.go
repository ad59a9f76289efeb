package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOClient implements the Client interface using minio-go
type MinIOClient struct {
	client *minio.Client
}

// NewMinIOClient creates a new MinIO client
func NewMinIOClient(cfg Config) (*MinIOClient, error) {
	// Clean and validate endpoint
	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOClient{client: client}, nil
}

// cleanEndpoint removes protocol and path from endpoint URL to get host:port format
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}

	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}

	return parsedURL.Host, nil
}

// OpenWriteSession opens a write session for the target object. The put runs
// in a background goroutine fed by a pipe; the session sink is the write end
// of that pipe.
func (c *MinIOClient) OpenWriteSession(ctx context.Context, ref ObjectRef, opts WriteOptions) (WriteSession, error) {
	if ref.Bucket == "" || ref.Key == "" {
		return nil, fmt.Errorf("incomplete object reference %q/%q", ref.Bucket, ref.Key)
	}

	putOpts := minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	}
	if putOpts.ContentType == "" {
		putOpts.ContentType = "application/octet-stream"
	}
	if opts.DisallowOverwrite {
		// Conditional put: the backend answers 412 when the object exists.
		putOpts.SetMatchETagExcept("*")
	}

	pr, pw := io.Pipe()
	completion := NewCompletion()

	go func() {
		info, err := c.client.PutObject(ctx, ref.Bucket, ref.Key, pr, -1, putOpts)
		if err != nil {
			// Unblock any writer still draining into the pipe.
			pr.CloseWithError(err)
			completion.Resolve(ObjectInfo{}, err)
			return
		}
		pr.Close()
		completion.Resolve(ObjectInfo{
			Bucket:       info.Bucket,
			Key:          info.Key,
			Size:         info.Size,
			ETag:         info.ETag,
			VersionID:    info.VersionID,
			LastModified: info.LastModified,
		}, nil)
	}()

	return &minioSession{
		sink:       &sessionSink{pw: pw, completion: completion, ctx: ctx},
		completion: completion,
	}, nil
}

// StatObject gets object metadata
func (c *MinIOClient) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, err
	}

	return ObjectInfo{
		Bucket:       bucket,
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		VersionID:    info.VersionID,
		LastModified: info.LastModified,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet
func (c *MinIOClient) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// IsPreconditionFailure reports whether err is a backend rejection of a
// conditional write, canonically "object already exists" under
// DisallowOverwrite.
func IsPreconditionFailure(err error) bool {
	var resp minio.ErrorResponse
	return errors.As(err, &resp) && resp.StatusCode == http.StatusPreconditionFailed
}

type minioSession struct {
	sink       *sessionSink
	completion *Completion
}

func (s *minioSession) Sink() io.WriteCloser { return s.sink }

func (s *minioSession) Completion() *Completion { return s.completion }

// sessionSink is the writable side of a session pipe. Close finalizes the
// object and reports the finalize error, so callers see precondition
// failures at close time rather than on the completion handle.
type sessionSink struct {
	pw         *io.PipeWriter
	completion *Completion
	ctx        context.Context
	closeOnce  sync.Once
	closeErr   error
}

func (s *sessionSink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

func (s *sessionSink) Close() error {
	s.closeOnce.Do(func() {
		if err := s.pw.Close(); err != nil {
			s.closeErr = err
			return
		}
		select {
		case <-s.completion.done:
			s.closeErr = s.completion.err
		case <-s.ctx.Done():
			s.closeErr = s.ctx.Err()
		}
	})
	return s.closeErr
}
