package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bulkput/internal/app"
	"bulkput/internal/config"
	"bulkput/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bulkput",
	Short: "Upload local files to S3-compatible object storage in parallel",
	Long:  `A concurrent bulk uploader for S3-compatible object storage with checkpointed resume, skip-if-exists semantics, retry, and monitoring.`,
	RunE:  runUpload,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")

	// Target flags
	rootCmd.Flags().String("endpoint", "", "S3-compatible endpoint")
	rootCmd.Flags().String("access-key", "", "Access key")
	rootCmd.Flags().String("secret-key", "", "Secret key")
	rootCmd.Flags().Bool("secure", true, "Use HTTPS for the target")

	// Upload flags
	rootCmd.Flags().String("bucket", "", "Target bucket name (required)")
	rootCmd.Flags().String("prefix", "", "Object key prefix")
	rootCmd.Flags().String("source-dir", "", "Local directory to upload")
	rootCmd.Flags().String("file", "", "Single local file to upload")
	rootCmd.Flags().Int("concurrency", 16, "Number of concurrent workers")
	rootCmd.Flags().Int("retries", 5, "Maximum retry attempts per object")
	rootCmd.Flags().Int("retry-backoff-ms", 500, "Initial retry backoff in milliseconds")
	rootCmd.Flags().Int("completion-timeout-ms", 10000, "Bound on the wait for backend finalize confirmation")
	rootCmd.Flags().Bool("dry-run", false, "List files without uploading")
	rootCmd.Flags().String("checkpoint", "./checkpoint.db", "Checkpoint database file")
	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.Flags().Bool("skip-existing", true, "Skip objects that already exist in the target bucket")
	rootCmd.Flags().Bool("resume", false, "Resume from checkpoint")
	rootCmd.Flags().Bool("show-progress", true, "Show progress display (auto-disabled for dry-run)")
}

func runUpload(cmd *cobra.Command, args []string) error {
	// Load configuration
	var err error
	cfg, err = config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Create application
	uploader, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create uploader: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, gracefully stopping...")
		cancel()
	}()

	// Run upload
	err = uploader.Run(ctx)

	// Close uploader resources after the run completes or is cancelled
	if closeErr := uploader.Close(); closeErr != nil {
		log.Error("Error closing uploader", zap.Error(closeErr))
	}

	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
