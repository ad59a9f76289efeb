package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"bulkput/internal/worker"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// FileWalker scans the local source tree and turns files into upload tasks
type FileWalker struct {
	logger *zap.Logger
}

// WalkAndEnqueue walks the source and enqueues one task per regular file.
// When file is set, only that single file is enqueued.
func (w *FileWalker) WalkAndEnqueue(ctx context.Context, bucket, prefix, sourceDir, file string, tasks chan<- worker.Task, dryRun bool) error {
	if file != "" {
		return w.enqueueSingleFile(ctx, bucket, prefix, file, tasks, dryRun)
	}

	return w.enqueueTree(ctx, bucket, prefix, sourceDir, tasks, dryRun)
}

// CountFiles counts the total number of files and bytes to upload
func (w *FileWalker) CountFiles(sourceDir, file string) (int64, int64, error) {
	if file != "" {
		info, err := os.Stat(file)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to stat %s: %w", file, err)
		}
		return 1, info.Size(), nil
	}

	var totalFiles int64
	var totalSize int64

	err := filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		totalFiles++
		totalSize += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("error counting files: %w", err)
	}

	return totalFiles, totalSize, nil
}

func (w *FileWalker) enqueueSingleFile(ctx context.Context, bucket, prefix, file string, tasks chan<- worker.Task, dryRun bool) error {
	info, err := os.Stat(file)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", file, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", file)
	}

	task := w.buildTask(bucket, path.Join(prefix, filepath.Base(file)), file, info.Size())

	if dryRun {
		w.logger.Info("Would upload file",
			zap.String("bucket", bucket),
			zap.String("key", task.Key),
			zap.Int64("size", info.Size()),
		)
		return nil
	}

	select {
	case tasks <- task:
		w.logger.Debug("Enqueued file", zap.String("key", task.Key))
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (w *FileWalker) enqueueTree(ctx context.Context, bucket, prefix, sourceDir string, tasks chan<- worker.Task, dryRun bool) error {
	var totalFiles int64
	var totalSize int64

	err := filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}

		totalFiles++
		totalSize += info.Size()

		task := w.buildTask(bucket, path.Join(prefix, filepath.ToSlash(rel)), p, info.Size())

		if dryRun {
			w.logger.Info("Would upload file",
				zap.String("bucket", bucket),
				zap.String("key", task.Key),
				zap.Int64("size", info.Size()),
			)
			return nil
		}

		select {
		case tasks <- task:
			w.logger.Debug("Enqueued file", zap.String("key", task.Key))
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return fmt.Errorf("error walking source directory: %w", err)
	}

	w.logger.Info("Finished walking source",
		zap.Int64("total_files", totalFiles),
		zap.Int64("total_size_bytes", totalSize),
	)
	return nil
}

func (w *FileWalker) buildTask(bucket, key, localPath string, size int64) worker.Task {
	return worker.Task{
		Bucket:      bucket,
		Key:         key,
		LocalPath:   localPath,
		Size:        size,
		ContentType: detectContentType(localPath),
	}
}

// detectContentType sniffs the file's content type; empty on failure so the
// storage layer can apply its default.
func detectContentType(path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	return mtype.String()
}
