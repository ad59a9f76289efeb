package worker

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"time"

	"bulkput/internal/checkpoint"
	"bulkput/internal/metrics"
	"bulkput/internal/storage"
	"bulkput/internal/upload"

	"go.uber.org/zap"
)

// TaskProcessor handles individual task processing
type TaskProcessor struct {
	config     Config
	client     storage.Client
	checkpoint checkpoint.Store
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// Process uploads a single queued file, applying the pool-level retry and
// resume policy around the single-shot upload task.
func (p *TaskProcessor) Process(ctx context.Context, task Task) {
	startTime := time.Now()

	// Resume mode: trust the checkpoint only if the object is still there.
	if p.config.Resume && p.alreadyUploaded(ctx, task) {
		p.logger.Debug("Skipping previously uploaded object", zap.String("key", task.Key))
		p.metrics.IncSkippedWithBytes(task.Size)
		return
	}

	ref := storage.ObjectRef{Bucket: task.Bucket, Key: task.Key}
	opts := storage.WriteOptions{
		ContentType:       task.ContentType,
		Metadata:          task.Metadata,
		DisallowOverwrite: p.config.SkipIfExists,
	}
	taskCfg := upload.Config{
		SkipIfExists:   p.config.SkipIfExists,
		CompletionWait: p.config.CompletionWait,
	}

	var lastErr error
	for attempt := 1; attempt <= p.config.Retries; attempt++ {
		// Tasks are single-shot; each attempt gets a fresh one.
		t := upload.NewTask(p.client, ref, upload.FileSource(task.LocalPath), opts, taskCfg)
		result := t.Execute(ctx)

		switch result.Status {
		case upload.StatusSuccess:
			p.markDone(task, result, checkpoint.StatusUploaded)
			p.metrics.IncSuccessWithBytes(task.Size)
			p.metrics.AddBytes(task.Size)
			p.metrics.ObserveDuration(time.Since(startTime))
			p.logger.Info("Upload completed",
				zap.String("key", task.Key),
				zap.Int64("size", task.Size),
				zap.Duration("duration", time.Since(startTime)),
			)
			return

		case upload.StatusSkipped:
			p.markDone(task, result, checkpoint.StatusSkipped)
			p.metrics.IncSkippedWithBytes(task.Size)
			p.logger.Info("Object already exists, skipped",
				zap.String("key", task.Key),
			)
			return
		}

		lastErr = result.Err
		p.logger.Warn("Upload attempt failed",
			zap.String("key", task.Key),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		if !p.isRetriableError(lastErr) {
			break
		}

		if attempt < p.config.Retries {
			time.Sleep(p.calculateBackoff(attempt))
		}
	}

	p.markFailed(task, lastErr)
	p.metrics.IncFailed()
	p.logger.Error("Upload failed after all retries",
		zap.String("key", task.Key),
		zap.Error(lastErr),
	)
}

// alreadyUploaded checks the checkpoint for a terminal record and verifies
// the object still exists in the target bucket.
func (p *TaskProcessor) alreadyUploaded(ctx context.Context, task Task) bool {
	record, err := p.checkpoint.GetTask(task.Bucket, task.Key)
	if err != nil || record == nil {
		return false
	}
	if record.Status != checkpoint.StatusUploaded && record.Status != checkpoint.StatusSkipped {
		return false
	}

	info, err := p.client.StatObject(ctx, task.Bucket, task.Key)
	if err != nil {
		return false
	}
	return info.Size == task.Size
}

func (p *TaskProcessor) markDone(task Task, result upload.Result, status checkpoint.TaskStatus) {
	record := &checkpoint.TaskRecord{
		Bucket: task.Bucket,
		Key:    task.Key,
		Size:   task.Size,
		Status: status,
	}
	if result.Uploaded != nil {
		record.ETag = result.Uploaded.ETag
	}

	if err := p.checkpoint.SaveTask(record); err != nil {
		p.logger.Error("Failed to save task record",
			zap.String("bucket", task.Bucket),
			zap.String("key", task.Key),
			zap.Error(err))
	}
}

func (p *TaskProcessor) markFailed(task Task, err error) {
	record := &checkpoint.TaskRecord{
		Bucket: task.Bucket,
		Key:    task.Key,
		Size:   task.Size,
		Status: checkpoint.StatusFailed,
	}
	if err != nil {
		record.LastError = err.Error()
	}

	if saveErr := p.checkpoint.SaveTask(record); saveErr != nil {
		if strings.Contains(saveErr.Error(), "database is closed") {
			p.logger.Warn("Cannot save failed task - database is closed",
				zap.String("bucket", task.Bucket),
				zap.String("key", task.Key))
		} else {
			p.logger.Error("Failed to save failed task",
				zap.String("bucket", task.Bucket),
				zap.String("key", task.Key),
				zap.Error(saveErr))
		}
	}
}

func (p *TaskProcessor) isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	// Caller errors and policy outcomes never heal on retry.
	if errors.Is(err, upload.ErrInvalidSource) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, os.ErrNotExist) ||
		storage.IsPreconditionFailure(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// A completion wait that timed out may succeed on a fresh session.
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "temporary") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dns") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout")
}

func (p *TaskProcessor) calculateBackoff(attempt int) time.Duration {
	base := time.Duration(p.config.RetryBackoffMs) * time.Millisecond
	return base * time.Duration(math.Pow(2, float64(attempt-1)))
}
