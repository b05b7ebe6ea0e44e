package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PauloBoaventura/lightly/internal/config"
	"github.com/PauloBoaventura/lightly/pkg/models"
)

type imageCall struct {
	dir, datasetID, token string
	mode                  models.UploadMode
}

type embeddingCall struct {
	path, datasetID, token string
	maxUpload              int
	embeddingName          string
}

// recorder fakes both uploaders and records the order of calls
type recorder struct {
	calls         []string
	imageCalls    []imageCall
	embedCalls    []embeddingCall
	imageErr      error
	embeddingsErr error
}

func (r *recorder) UploadImagesFromFolder(_ context.Context, dir, datasetID, token string, mode models.UploadMode) error {
	r.calls = append(r.calls, "images")
	r.imageCalls = append(r.imageCalls, imageCall{dir, datasetID, token, mode})
	return r.imageErr
}

func (r *recorder) UploadEmbeddingsFromCSV(_ context.Context, path, datasetID, token string, maxUpload int, embeddingName string) error {
	r.calls = append(r.calls, "embeddings")
	r.embedCalls = append(r.embedCalls, embeddingCall{path, datasetID, token, maxUpload, embeddingName})
	return r.embeddingsErr
}

func newDispatcher(rec *recorder, out io.Writer, opts Options) *Dispatcher {
	opts.Out = out
	return New(rec, rec, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func baseConfig() *config.Config {
	return &config.Config{
		Token:         "secret",
		DatasetID:     "ds-1",
		Upload:        models.UploadModeThumbnails,
		EmbUploadBsz:  32,
		EmbeddingName: "default",
	}
}

func refusedError() error {
	return fmt.Errorf("GET /v1/datasets/{id} request failed: %w", &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
	})
}

func TestRun_MissingCredentials(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		datasetID string
	}{
		{"no token", "", "ds-1"},
		{"no dataset", "secret", ""},
		{"neither", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			var out bytes.Buffer
			cfg := baseConfig()
			cfg.Token = tt.token
			cfg.DatasetID = tt.datasetID
			cfg.InputDir = "/data/images"
			cfg.Embeddings = "/data/embeddings.csv"

			err := newDispatcher(rec, &out, Options{}).Run(context.Background(), cfg)
			require.NoError(t, err)
			assert.Empty(t, rec.calls)
			assert.Equal(t, "Please specify your access token and dataset id.\nFor help, try: lightly-upload --help\n", out.String())
		})
	}
}

func TestRun_NothingToUpload(t *testing.T) {
	rec := &recorder{}
	var out bytes.Buffer

	require.NoError(t, newDispatcher(rec, &out, Options{}).Run(context.Background(), baseConfig()))
	assert.Empty(t, rec.calls)
	assert.Empty(t, out.String())
}

func TestRun_ImagesBeforeEmbeddings(t *testing.T) {
	rec := &recorder{}
	cfg := baseConfig()
	cfg.InputDir = "/data/images"
	cfg.Embeddings = "/data/embeddings.csv"
	cfg.Upload = models.UploadModeFull
	cfg.EmbUploadBsz = 8
	cfg.EmbeddingName = "simclr"

	require.NoError(t, newDispatcher(rec, &bytes.Buffer{}, Options{}).Run(context.Background(), cfg))

	assert.Equal(t, []string{"images", "embeddings"}, rec.calls)
	assert.Equal(t, imageCall{"/data/images", "ds-1", "secret", models.UploadModeFull}, rec.imageCalls[0])
	assert.Equal(t, embeddingCall{"/data/embeddings.csv", "ds-1", "secret", 8, "simclr"}, rec.embedCalls[0])
}

func TestRun_OnlyEmbeddings(t *testing.T) {
	rec := &recorder{}
	cfg := baseConfig()
	cfg.Embeddings = "/data/embeddings.csv"

	require.NoError(t, newDispatcher(rec, &bytes.Buffer{}, Options{}).Run(context.Background(), cfg))
	assert.Equal(t, []string{"embeddings"}, rec.calls)
}

func TestRun_NormalizesPaths(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	rec := &recorder{}
	cfg := baseConfig()
	cfg.InputDir = "images"
	cfg.Embeddings = "out/embeddings.csv"

	require.NoError(t, newDispatcher(rec, &bytes.Buffer{}, Options{NormalizePaths: true}).Run(context.Background(), cfg))
	assert.Equal(t, filepath.Join(wd, "images"), rec.imageCalls[0].dir)
	assert.Equal(t, filepath.Join(wd, "out", "embeddings.csv"), rec.embedCalls[0].path)

	// without normalization the paths are passed through
	rec = &recorder{}
	require.NoError(t, newDispatcher(rec, &bytes.Buffer{}, Options{}).Run(context.Background(), cfg))
	assert.Equal(t, "images", rec.imageCalls[0].dir)
}

func TestRun_CaughtImageErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		strict   bool
		wantCode int
	}{
		{"invalid value", fmt.Errorf("%w: upload must be one of [full thumbnails metadata], got \"x\"", models.ErrInvalidValue), false, 0},
		{"connection refused", refusedError(), false, 0},
		{"strict exit", fmt.Errorf("%w: no images found in /data", models.ErrInvalidValue), true, ExitCodeUploadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{imageErr: tt.err}
			var out bytes.Buffer
			cfg := baseConfig()
			cfg.InputDir = "/data"
			cfg.Embeddings = "/data/embeddings.csv"

			err := newDispatcher(rec, &out, Options{StrictExit: tt.strict}).Run(context.Background(), cfg)
			require.Error(t, err)

			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, tt.wantCode, exitErr.Code)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, "Error: "+tt.err.Error()+"\n", out.String())
			assert.Equal(t, []string{"images"}, rec.calls, "embeddings must not run after a caught image error")
		})
	}
}

func TestRun_UncaughtImageError(t *testing.T) {
	boom := errors.New("API error (status 500): internal")
	rec := &recorder{imageErr: boom}
	var out bytes.Buffer
	cfg := baseConfig()
	cfg.InputDir = "/data"

	err := newDispatcher(rec, &out, Options{}).Run(context.Background(), cfg)
	assert.Equal(t, boom, err)
	assert.Empty(t, out.String())
}

func TestRun_EmbeddingErrorPropagates(t *testing.T) {
	embedErr := fmt.Errorf("%w: images must be uploaded before embeddings", models.ErrInvalidValue)
	rec := &recorder{embeddingsErr: embedErr}
	var out bytes.Buffer
	cfg := baseConfig()
	cfg.InputDir = "/data"
	cfg.Embeddings = "/data/embeddings.csv"

	err := newDispatcher(rec, &out, Options{}).Run(context.Background(), cfg)
	assert.Equal(t, embedErr, err)

	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
	assert.Empty(t, out.String())
	assert.Equal(t, []string{"images", "embeddings"}, rec.calls)
}

func TestNormalizePath(t *testing.T) {
	p, err := NormalizePath("")
	require.NoError(t, err)
	assert.Empty(t, p)

	p, err = NormalizePath("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", p)

	p, err = NormalizePath("rel")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(p))
}

func TestExitError(t *testing.T) {
	inner := errors.New("inner")
	err := &ExitError{Code: 3, Err: inner}
	assert.Equal(t, "inner", err.Error())
	assert.ErrorIs(t, err, inner)
}
