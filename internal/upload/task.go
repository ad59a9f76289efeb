package upload

import (
	"context"
	"time"

	"bulkput/internal/storage"
)

// DefaultCompletionWait bounds the wait for the backend's confirmation of
// the finalized object.
const DefaultCompletionWait = 10 * time.Second

// Config contains task configuration
type Config struct {
	// SkipIfExists turns a backend precondition failure into a Skipped
	// outcome instead of a failure.
	SkipIfExists bool
	// CompletionWait overrides DefaultCompletionWait when positive.
	CompletionWait time.Duration
}

// Task performs exactly one logical upload: open a write session, drain the
// source into it, close it, and wait for the backend to confirm the
// finalized object. A task is constructed once and executed once;
// scheduling, concurrency limits, and retries belong to the caller.
type Task struct {
	client storage.Client
	object storage.ObjectRef
	source Source
	opts   storage.WriteOptions
	cfg    Config
}

// NewTask creates a task uploading source to object through client.
func NewTask(client storage.Client, object storage.ObjectRef, source Source, opts storage.WriteOptions, cfg Config) *Task {
	if cfg.CompletionWait <= 0 {
		cfg.CompletionWait = DefaultCompletionWait
	}
	return &Task{
		client: client,
		object: object,
		source: source,
		opts:   opts,
		cfg:    cfg,
	}
}

// Execute runs the upload and reports its outcome. Every failure is
// converted into the Result; Execute never returns an error or panics on
// storage faults.
func (t *Task) Execute(ctx context.Context) Result {
	session, err := t.client.OpenWriteSession(ctx, t.object, t.opts)
	if err != nil {
		return t.terminal(err)
	}

	// The sink is closed exactly once, on every path. Close triggers the
	// backend finalize and must happen before the completion handle is
	// awaited; a drain error still takes precedence over a close error.
	sink := session.Sink()
	_, drainErr := t.source.drainTo(sink)
	closeErr := sink.Close()
	if drainErr != nil {
		return t.terminal(drainErr)
	}
	if closeErr != nil {
		return t.terminal(closeErr)
	}

	waitCtx, cancel := context.WithTimeout(ctx, t.cfg.CompletionWait)
	defer cancel()

	info, err := session.Completion().Await(waitCtx)
	if err != nil {
		return Result{Object: t.object, Status: StatusFailedToFinish, Err: err}
	}

	return Result{Object: t.object, Status: StatusSuccess, Uploaded: &info}
}

// terminal classifies an error from open, drain, or close. A backend
// precondition failure becomes Skipped when the skip policy is enabled;
// everything else fails the task.
func (t *Task) terminal(err error) Result {
	if t.cfg.SkipIfExists && storage.IsPreconditionFailure(err) {
		return Result{Object: t.object, Status: StatusSkipped, Err: err}
	}
	return Result{Object: t.object, Status: StatusFailedToFinish, Err: err}
}
