package storage

import (
	"context"
	"io"
	"sync"
	"time"
)

// ObjectRef identifies a target object in the store. It is supplied by the
// caller and never mutated by the upload path.
type ObjectRef struct {
	Bucket string
	Key    string
}

// ObjectInfo describes a finalized object as confirmed by the backend.
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	ETag         string
	VersionID    string
	LastModified time.Time
}

// WriteOptions are passed through to the backend when a write session is
// opened. DisallowOverwrite turns the write into a conditional put that the
// backend rejects with a precondition failure when the object already exists.
type WriteOptions struct {
	ContentType       string
	Metadata          map[string]string
	DisallowOverwrite bool
}

// Client defines the interface for S3-compatible storage operations
type Client interface {
	OpenWriteSession(ctx context.Context, ref ObjectRef, opts WriteOptions) (WriteSession, error)
	StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error)
	EnsureBucket(ctx context.Context, bucket string) error
}

// WriteSession is a backend write channel for a single object. Bytes are
// streamed into the sink; closing the sink signals the backend to finalize
// the object. The finalized metadata is delivered through the completion
// handle once the backend confirms durability.
type WriteSession interface {
	Sink() io.WriteCloser
	Completion() *Completion
}

// Completion is an asynchronous handle that resolves to the finalized
// object's metadata, or to the finalize error.
type Completion struct {
	done chan struct{}
	once sync.Once
	info ObjectInfo
	err  error
}

// NewCompletion creates an unresolved completion handle.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Resolve delivers the finalized object or the finalize error. Calls after
// the first are no-ops.
func (c *Completion) Resolve(info ObjectInfo, err error) {
	c.once.Do(func() {
		c.info = info
		c.err = err
		close(c.done)
	})
}

// Await blocks until the handle resolves or ctx expires, whichever comes
// first.
func (c *Completion) Await(ctx context.Context) (ObjectInfo, error) {
	select {
	case <-c.done:
		return c.info, c.err
	case <-ctx.Done():
		return ObjectInfo{}, ctx.Err()
	}
}

// Config contains client configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
}
