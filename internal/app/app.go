package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bulkput/internal/checkpoint"
	"bulkput/internal/config"
	"bulkput/internal/metrics"
	"bulkput/internal/progress"
	"bulkput/internal/storage"
	"bulkput/internal/worker"

	"go.uber.org/zap"
)

// Uploader represents the main upload application
type Uploader struct {
	cfg        *config.Config
	logger     *zap.Logger
	client     storage.Client
	checkpoint checkpoint.Store
	metrics    *metrics.Collector
	workers    *worker.Pool
}

// New creates a new uploader instance
func New(cfg *config.Config, logger *zap.Logger) (*Uploader, error) {
	// Create target client
	client, err := storage.NewMinIOClient(storage.Config{
		Endpoint:  cfg.Target.Endpoint,
		AccessKey: cfg.Target.AccessKey,
		SecretKey: cfg.Target.SecretKey,
		Secure:    cfg.Target.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Create checkpoint store
	checkpointStore, err := checkpoint.NewSQLiteStore(cfg.Upload.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	// Create metrics collector
	metricsCollector := metrics.New()

	// Create worker pool
	workerPool := worker.NewPool(cfg.Upload.Concurrency, worker.Config{
		Retries:        cfg.Upload.Retries,
		RetryBackoffMs: cfg.Upload.RetryBackoffMs,
		SkipIfExists:   cfg.Upload.SkipExisting,
		Resume:         cfg.Upload.Resume,
		CompletionWait: time.Duration(cfg.Upload.CompletionTimeoutMs) * time.Millisecond,
	}, client, checkpointStore, metricsCollector, logger)

	return &Uploader{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		checkpoint: checkpointStore,
		metrics:    metricsCollector,
		workers:    workerPool,
	}, nil
}

// Run executes the upload process
func (u *Uploader) Run(ctx context.Context) error {
	u.logger.Info("Starting upload",
		zap.String("bucket", u.cfg.Upload.Bucket),
		zap.String("prefix", u.cfg.Upload.Prefix),
		zap.String("source_dir", u.cfg.Upload.SourceDir),
		zap.String("file", u.cfg.Upload.File),
		zap.Int("concurrency", u.cfg.Upload.Concurrency),
		zap.Bool("dry_run", u.cfg.Upload.DryRun),
	)

	if !u.cfg.Upload.DryRun {
		if err := u.client.EnsureBucket(ctx, u.cfg.Upload.Bucket); err != nil {
			return fmt.Errorf("failed to ensure target bucket: %w", err)
		}
	}

	// Start metrics server in a goroutine with error handling
	go func() {
		if err := u.metrics.StartServer(":8080"); err != nil {
			u.logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}()

	// Create task channel
	tasks := make(chan worker.Task, u.cfg.Upload.Concurrency*2)

	walker := &FileWalker{logger: u.logger}

	// Create progress display if enabled and supported and not in dry-run mode
	var progressDisplay *progress.Display
	if u.cfg.Upload.ShowProgress && !u.cfg.Upload.DryRun && progress.IsTerminalSupported() {
		progressTracker := u.metrics.GetProgressTracker()
		progressDisplay = progress.NewDisplay(progressTracker, 2*time.Second)
		u.logger.Info("Progress display enabled")
	} else {
		if u.cfg.Upload.DryRun {
			u.logger.Info("Progress display disabled (dry-run mode)")
		} else if !u.cfg.Upload.ShowProgress {
			u.logger.Info("Progress display disabled (disabled in config)")
		} else {
			u.logger.Info("Progress display disabled (unsupported terminal)")
		}
	}

	// Start worker pool
	var wg sync.WaitGroup
	u.workers.Start(ctx, tasks, &wg)

	// First pass: count files and total size for progress tracking
	if progressDisplay != nil {
		totalFiles, totalBytes, err := walker.CountFiles(u.cfg.Upload.SourceDir, u.cfg.Upload.File)
		if err != nil {
			u.logger.Warn("Failed to count files, progress tracking may be inaccurate", zap.Error(err))
		} else {
			u.metrics.SetTotalCounts(totalFiles, totalBytes)
			u.logger.Info("File counting completed",
				zap.Int64("total_files", totalFiles),
				zap.String("total_size", progress.FormatBytes(totalBytes)),
			)
			progressDisplay.Start()
		}
	}

	if err := walker.WalkAndEnqueue(ctx, u.cfg.Upload.Bucket, u.cfg.Upload.Prefix,
		u.cfg.Upload.SourceDir, u.cfg.Upload.File, tasks, u.cfg.Upload.DryRun); err != nil {
		close(tasks)
		return fmt.Errorf("failed to walk source: %w", err)
	}

	close(tasks)
	wg.Wait()

	// Stop progress display if it was started
	if progressDisplay != nil {
		progressDisplay.Stop()
	}

	u.logger.Info("Upload completed")
	return nil
}

// Close cleans up resources
func (u *Uploader) Close() error {
	if u.checkpoint != nil {
		u.checkpoint.Close()
	}
	return nil
}
