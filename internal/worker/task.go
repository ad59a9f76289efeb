package worker

import "time"

// Task represents one local file queued for upload
type Task struct {
	Bucket      string            `json:"bucket"`
	Key         string            `json:"key"`
	LocalPath   string            `json:"local_path"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata"`
}

// Config contains worker configuration
type Config struct {
	Retries        int
	RetryBackoffMs int
	SkipIfExists   bool
	Resume         bool
	CompletionWait time.Duration
}
