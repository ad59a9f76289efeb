package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Target   S3Config `yaml:"target"`
	Upload   Upload   `yaml:"upload"`
	LogLevel string   `yaml:"log_level"`
}

// S3Config represents S3-compatible storage configuration
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// Upload represents upload-specific configuration
type Upload struct {
	Bucket              string `yaml:"bucket"`
	Prefix              string `yaml:"prefix"`
	SourceDir           string `yaml:"source_dir"`
	File                string `yaml:"file"`
	Concurrency         int    `yaml:"concurrency"`
	Retries             int    `yaml:"retries"`
	RetryBackoffMs      int    `yaml:"retry_backoff_ms"`
	CompletionTimeoutMs int    `yaml:"completion_timeout_ms"`
	DryRun              bool   `yaml:"dry_run"`
	Checkpoint          string `yaml:"checkpoint"`
	SkipExisting        bool   `yaml:"skip_existing"`
	Resume              bool   `yaml:"resume"`
	ShowProgress        bool   `yaml:"show_progress"`
}

// Load loads configuration from file and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Upload: Upload{
			Concurrency:         16,
			Retries:             5,
			RetryBackoffMs:      500,
			CompletionTimeoutMs: 10000,
			Checkpoint:          "./checkpoint.db",
			SkipExisting:        true,
			ShowProgress:        true,
		},
	}

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with command line flags
	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("endpoint") {
		cfg.Target.Endpoint, _ = flags.GetString("endpoint")
	}
	if flags.Changed("access-key") {
		cfg.Target.AccessKey, _ = flags.GetString("access-key")
	}
	if flags.Changed("secret-key") {
		cfg.Target.SecretKey, _ = flags.GetString("secret-key")
	}
	if flags.Changed("secure") {
		cfg.Target.Secure, _ = flags.GetBool("secure")
	}

	if flags.Changed("bucket") {
		cfg.Upload.Bucket, _ = flags.GetString("bucket")
	}
	if flags.Changed("prefix") {
		cfg.Upload.Prefix, _ = flags.GetString("prefix")
	}
	if flags.Changed("source-dir") {
		cfg.Upload.SourceDir, _ = flags.GetString("source-dir")
	}
	if flags.Changed("file") {
		cfg.Upload.File, _ = flags.GetString("file")
	}
	if flags.Changed("concurrency") {
		cfg.Upload.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("retries") {
		cfg.Upload.Retries, _ = flags.GetInt("retries")
	}
	if flags.Changed("retry-backoff-ms") {
		cfg.Upload.RetryBackoffMs, _ = flags.GetInt("retry-backoff-ms")
	}
	if flags.Changed("completion-timeout-ms") {
		cfg.Upload.CompletionTimeoutMs, _ = flags.GetInt("completion-timeout-ms")
	}
	if flags.Changed("dry-run") {
		cfg.Upload.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("checkpoint") {
		cfg.Upload.Checkpoint, _ = flags.GetString("checkpoint")
	}
	if flags.Changed("skip-existing") {
		cfg.Upload.SkipExisting, _ = flags.GetBool("skip-existing")
	}
	if flags.Changed("resume") {
		cfg.Upload.Resume, _ = flags.GetBool("resume")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("show-progress") {
		cfg.Upload.ShowProgress, _ = flags.GetBool("show-progress")
	}

	return nil
}

func (c *Config) validate() error {
	if c.Target.Endpoint == "" {
		return fmt.Errorf("target endpoint is required")
	}
	if c.Target.AccessKey == "" {
		return fmt.Errorf("target access key is required")
	}
	if c.Target.SecretKey == "" {
		return fmt.Errorf("target secret key is required")
	}

	if c.Upload.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}

	if c.Upload.SourceDir == "" && c.Upload.File == "" {
		return fmt.Errorf("source directory or file is required")
	}
	if c.Upload.SourceDir != "" && c.Upload.File != "" {
		return fmt.Errorf("source directory and file are mutually exclusive")
	}

	if c.Upload.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	if c.Upload.CompletionTimeoutMs <= 0 {
		return fmt.Errorf("completion timeout must be positive")
	}

	return nil
}
