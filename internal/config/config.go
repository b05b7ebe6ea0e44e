package config

import (
	"fmt"
	"strings"

	"github.com/PauloBoaventura/lightly/pkg/models"
)

// Config is the complete lightly-upload configuration.
// The first block mirrors the keys accepted on the command line as key=value.
type Config struct {
	InputDir      string            `toml:"input_dir"`      // Folder of images to upload (optional)
	Embeddings    string            `toml:"embeddings"`     // Path to an embeddings CSV (optional)
	Token         string            `toml:"token"`          // Platform access token
	DatasetID     string            `toml:"dataset_id"`     // Target dataset on the platform
	Upload        models.UploadMode `toml:"upload"`         // full, thumbnails or metadata
	EmbUploadBsz  int               `toml:"emb_upload_bsz"` // Max embedding rows per request
	EmbeddingName string            `toml:"embedding_name"` // Name of the embedding on the platform

	APIURL             string `toml:"api_url"`
	UploadWorkers      int    `toml:"upload_workers"`       // Parallel file uploads (default: 4)
	RequestsPerMinute  int    `toml:"requests_per_minute"`  // Client-side rate limit per host (default: 600)
	MaxRetries         int    `toml:"max_retries"`          // HTTP retry attempts (default: 3)
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"` // Per request timeout (default: 300, 0 = no timeout)
	ThumbnailSize      int    `toml:"thumbnail_size"`       // Longest thumbnail side in pixels (default: 256)
	Journal            string `toml:"journal"`              // Resume journal path, empty disables it
	StrictExit         bool   `toml:"strict_exit"`          // Exit non-zero when an image upload error is caught
	MetricsAddr        string `toml:"metrics_addr"`         // Serve prometheus metrics on this address
	LogFile            string `toml:"log_file"`             // Also write JSON logs to this file
	Quiet              bool   `toml:"quiet"`                // Hide progress bars
	Verbose            bool   `toml:"verbose"`
}

// Secrets holds credentials and endpoints read from the environment
type Secrets struct {
	Token  string `env:"LIGHTLY_TOKEN"`
	APIURL string `env:"LIGHTLY_SERVER_LOCATION"`
}

const (
	// DefaultAPIURL is the platform endpoint used when none is configured
	DefaultAPIURL = "https://api.lightly.ai"
	// DefaultEmbUploadBsz matches the batch size the platform accepts comfortably
	DefaultEmbUploadBsz = 32
	// DefaultEmbeddingName is used when no embedding name is given
	DefaultEmbeddingName = "default"

	// MaxUploadWorkers is the maximum allowed number of parallel uploads
	MaxUploadWorkers = 64
	// MaxRetries is the maximum allowed retry count
	MaxRetries = 10
	// MinThumbnailSize and MaxThumbnailSize bound thumbnail_size
	MinThumbnailSize = 16
	MaxThumbnailSize = 4096
)

// Validate checks the ambient settings. Token, dataset id, upload mode and
// batch size are deliberately left to the dispatcher and the uploaders.
func (c *Config) Validate() error {
	if c.UploadWorkers < 1 || c.UploadWorkers > MaxUploadWorkers {
		return fmt.Errorf("upload_workers must be between 1 and %d (got %d)", MaxUploadWorkers, c.UploadWorkers)
	}
	if c.RequestsPerMinute < 1 {
		return fmt.Errorf("requests_per_minute must be at least 1 (got %d)", c.RequestsPerMinute)
	}
	if c.MaxRetries < 0 || c.MaxRetries > MaxRetries {
		return fmt.Errorf("max_retries must be between 0 and %d (got %d)", MaxRetries, c.MaxRetries)
	}
	if c.HTTPTimeoutSeconds < 0 {
		return fmt.Errorf("http_timeout_seconds must not be negative (got %d)", c.HTTPTimeoutSeconds)
	}
	if c.ThumbnailSize < MinThumbnailSize || c.ThumbnailSize > MaxThumbnailSize {
		return fmt.Errorf("thumbnail_size must be between %d and %d (got %d)", MinThumbnailSize, MaxThumbnailSize, c.ThumbnailSize)
	}
	if err := validateAPIURL(c.APIURL); err != nil {
		return err
	}
	return nil
}

// HasCredentials reports whether both token and dataset id are set
func (c *Config) HasCredentials() bool {
	return c.Token != "" && c.DatasetID != ""
}

// normalize trims whitespace and lowercases the enum-like fields
func (c *Config) normalize() {
	c.InputDir = strings.TrimSpace(c.InputDir)
	c.Embeddings = strings.TrimSpace(c.Embeddings)
	c.Token = strings.TrimSpace(c.Token)
	c.DatasetID = strings.TrimSpace(c.DatasetID)
	c.Upload = models.UploadMode(strings.ToLower(strings.TrimSpace(string(c.Upload))))
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
}
