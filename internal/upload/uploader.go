// Package upload sends image folders and embedding files to a dataset.
package upload

import (
	"log/slog"

	"github.com/schollz/progressbar/v3"

	"github.com/PauloBoaventura/lightly/internal/api"
	"github.com/PauloBoaventura/lightly/internal/metrics"
)

const (
	// DefaultWorkers is the number of files uploaded in parallel
	DefaultWorkers = 4
	// DefaultThumbnailSize is the longest thumbnail side in pixels
	DefaultThumbnailSize = 256
)

// Options controls upload behaviour
type Options struct {
	// Workers is the number of images uploaded concurrently
	Workers int
	// ThumbnailSize bounds the longer side of generated thumbnails
	ThumbnailSize int

	// JournalPath enables resumable image uploads when set
	JournalPath string
	// JournalInterval is the number of completed files between journal saves
	JournalInterval int

	// Quiet disables progress bars
	Quiet   bool
	Metrics *metrics.Collector
}

// Uploader uploads images and embeddings to the platform
type Uploader struct {
	client *api.Client
	opts   Options
	logger *slog.Logger
}

// NewUploader creates a new uploader
func NewUploader(client *api.Client, opts Options, logger *slog.Logger) *Uploader {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = DefaultThumbnailSize
	}
	return &Uploader{
		client: client,
		opts:   opts,
		logger: logger.With("component", "uploader"),
	}
}

func (u *Uploader) progressBar(total int, description string) *progressbar.ProgressBar {
	if u.opts.Quiet {
		return progressbar.DefaultSilent(int64(total), description)
	}
	return progressbar.Default(int64(total), description)
}
