// Package dispatcher decides which uploads a lightly-upload invocation runs
// and how their failures surface.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/PauloBoaventura/lightly/internal/api"
	"github.com/PauloBoaventura/lightly/internal/config"
	"github.com/PauloBoaventura/lightly/pkg/models"
)

const (
	// ExitCodeUploadFailed is used for a caught image upload error when
	// strict exit codes are enabled
	ExitCodeUploadFailed = 3

	missingCredentialsHint = "Please specify your access token and dataset id."
	helpHint               = "For help, try: lightly-upload --help"
)

// ImageUploader uploads a folder of images
type ImageUploader interface {
	UploadImagesFromFolder(ctx context.Context, dir, datasetID, token string, mode models.UploadMode) error
}

// EmbeddingUploader uploads an embeddings CSV
type EmbeddingUploader interface {
	UploadEmbeddingsFromCSV(ctx context.Context, path, datasetID, token string, maxUpload int, embeddingName string) error
}

// ExitError asks the caller to end the process with Code after the error
// has already been reported to the user
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Options controls dispatcher behaviour
type Options struct {
	// Out receives the user facing messages (default: stdout)
	Out io.Writer
	// NormalizePaths turns relative input paths into absolute ones.
	// Command line invocations set it, programmatic callers may not.
	NormalizePaths bool
	// StrictExit reports a caught image upload error with ExitCodeUploadFailed
	// instead of 0
	StrictExit bool
}

// Dispatcher runs the uploads a configuration asks for
type Dispatcher struct {
	images     ImageUploader
	embeddings EmbeddingUploader
	opts       Options
	logger     *slog.Logger
}

// New creates a dispatcher
func New(images ImageUploader, embeddings EmbeddingUploader, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Dispatcher{
		images:     images,
		embeddings: embeddings,
		opts:       opts,
		logger:     logger.With("component", "dispatcher"),
	}
}

// Run uploads images and then embeddings as configured.
//
// Missing credentials print a hint and return nil. Invalid input and refused
// connections during the image upload print "Error: <message>" and return an
// *ExitError; embeddings are not uploaded then. Embedding upload errors are
// returned unchanged.
func (d *Dispatcher) Run(ctx context.Context, cfg *config.Config) error {
	inputDir := cfg.InputDir
	embeddingsPath := cfg.Embeddings
	if d.opts.NormalizePaths {
		var err error
		if inputDir, err = NormalizePath(inputDir); err != nil {
			return err
		}
		if embeddingsPath, err = NormalizePath(embeddingsPath); err != nil {
			return err
		}
	}

	if cfg.Token == "" || cfg.DatasetID == "" {
		_, _ = fmt.Fprintln(d.opts.Out, missingCredentialsHint)
		_, _ = fmt.Fprintln(d.opts.Out, helpHint)
		return nil
	}

	if inputDir != "" {
		d.logger.Debug("Dispatching image upload", "input_dir", inputDir, "mode", cfg.Upload)
		err := d.images.UploadImagesFromFolder(ctx, inputDir, cfg.DatasetID, cfg.Token, cfg.Upload)
		if err != nil {
			if !isReportable(err) {
				return err
			}
			_, _ = fmt.Fprintf(d.opts.Out, "Error: %v\n", err)
			code := 0
			if d.opts.StrictExit {
				code = ExitCodeUploadFailed
			}
			return &ExitError{Code: code, Err: err}
		}
	}

	if embeddingsPath != "" {
		d.logger.Debug("Dispatching embeddings upload", "embeddings", embeddingsPath, "batch_size", cfg.EmbUploadBsz)
		return d.embeddings.UploadEmbeddingsFromCSV(ctx, embeddingsPath, cfg.DatasetID, cfg.Token, cfg.EmbUploadBsz, cfg.EmbeddingName)
	}
	return nil
}

// isReportable reports whether an image upload error is printed and turned
// into an exit code rather than propagated
func isReportable(err error) bool {
	return errors.Is(err, models.ErrInvalidValue) || api.IsConnectionRefused(err)
}

// NormalizePath makes a relative path absolute. Empty paths stay empty.
func NormalizePath(path string) (string, error) {
	if path == "" || filepath.IsAbs(path) {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	return abs, nil
}
