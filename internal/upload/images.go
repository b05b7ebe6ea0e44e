package upload

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PauloBoaventura/lightly/internal/api"
	"github.com/PauloBoaventura/lightly/internal/imageset"
	"github.com/PauloBoaventura/lightly/internal/journal"
	"github.com/PauloBoaventura/lightly/pkg/models"
)

// UploadImagesFromFolder registers every image below dir in the dataset.
// Depending on mode it also uploads a thumbnail and the original file.
// Images recorded in the journal are skipped. An image that already has a
// sample is skipped in metadata mode; otherwise its files are uploaded again
// to the existing sample, since a previous run may have failed after creating
// it. The first failing image stops the upload and its error is returned.
func (u *Uploader) UploadImagesFromFolder(ctx context.Context, dir, datasetID, token string, mode models.UploadMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: upload must be one of %v, got %q", models.ErrInvalidValue, models.UploadModes, mode)
	}
	if err := checkDatasetID(datasetID); err != nil {
		return err
	}

	start := time.Now()
	if _, err := u.client.GetDataset(ctx, token, datasetID); err != nil {
		return err
	}

	files, err := imageset.Scan(dir)
	if err != nil {
		return err
	}

	samples, err := u.client.ListSamples(ctx, token, datasetID)
	if err != nil {
		return err
	}
	existing := make(map[string]string, len(samples))
	for _, s := range samples {
		existing[s.FileName] = s.ID
	}

	var jm *journal.Manager
	if u.opts.JournalPath != "" {
		jm, err = journal.Open(u.opts.JournalPath, datasetID, mode, u.opts.JournalInterval, u.logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := jm.Close(); err != nil {
				u.logger.Warn("Failed to close journal", "error", err)
			}
		}()
	}

	stats := models.UploadStats{Total: len(files)}
	var pending []pendingImage
	resumed := 0
	for _, f := range files {
		sampleID, exists := existing[f.Name]
		if jm.IsCompleted(f.Name) || (exists && mode == models.UploadModeMetadata) {
			stats.Skipped++
			continue
		}
		if exists {
			resumed++
		}
		pending = append(pending, pendingImage{file: f, sampleID: sampleID})
	}

	u.logger.Info("Uploading images",
		"dataset_id", datasetID,
		"mode", mode,
		"files", len(files),
		"skipped", stats.Skipped,
		"existing_samples", resumed,
		"workers", u.opts.Workers)

	bar := u.progressBar(len(pending), "Uploading images")
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Workers)
	for _, p := range pending {
		if gctx.Err() != nil {
			break
		}
		f := p.file
		g.Go(func() error {
			u.opts.Metrics.WorkerStarted()
			defer u.opts.Metrics.WorkerDone()

			sent, err := u.uploadImage(gctx, token, datasetID, mode, f, p.sampleID)

			mu.Lock()
			if err != nil {
				stats.Failed++
				mu.Unlock()
				return fmt.Errorf("failed to upload %s: %w", f.Name, err)
			}
			stats.Uploaded++
			stats.BytesUploaded += sent
			if err := jm.MarkCompleted(f.Name, stats); err != nil {
				u.logger.Warn("Failed to save journal", "error", err)
			}
			mu.Unlock()

			_ = bar.Add(1)
			return nil
		})
	}
	err = g.Wait()
	_ = bar.Finish()

	stats.TotalDuration = time.Since(start)
	u.logger.Info("Image upload finished",
		"dataset_id", datasetID,
		"uploaded", stats.Uploaded,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"bytes", stats.BytesUploaded,
		"duration", stats.TotalDuration.Round(time.Millisecond))

	if err != nil {
		return err
	}
	return ctx.Err()
}

// pendingImage is a file still to upload. sampleID is set when the platform
// already has a sample for it.
type pendingImage struct {
	file     imageset.File
	sampleID string
}

// uploadImage creates the sample unless sampleID is given and uploads
// whatever mode asks for. It returns the number of bytes sent to storage.
func (u *Uploader) uploadImage(ctx context.Context, token, datasetID string, mode models.UploadMode, f imageset.File, sampleID string) (int64, error) {
	img, err := imageset.Load(f.Path)
	if err != nil {
		return 0, err
	}

	req := api.SampleCreateRequest{FileName: f.Name, Meta: img.Meta}
	if mode.UploadsThumbnail() {
		req.ThumbName = imageset.ThumbnailName(f.Name)
	}

	if sampleID == "" {
		sampleID, err = u.client.CreateSample(ctx, token, datasetID, req)
		u.opts.Metrics.RecordUpload("metadata", 0, err == nil)
		if err != nil {
			return 0, err
		}
	}

	var sent int64
	if mode.UploadsThumbnail() {
		thumb, err := imageset.Thumbnail(img.Image, u.opts.ThumbnailSize)
		if err != nil {
			return sent, err
		}
		err = u.putFile(ctx, token, datasetID, sampleID, req.ThumbName, true, thumb, "image/jpeg")
		u.opts.Metrics.RecordUpload("thumbnail", int64(len(thumb)), err == nil)
		if err != nil {
			return sent, err
		}
		sent += int64(len(thumb))
	}

	if mode.UploadsFullImage() {
		err := u.putFile(ctx, token, datasetID, sampleID, f.Name, false, img.Data, img.ContentType())
		u.opts.Metrics.RecordUpload("full", int64(len(img.Data)), err == nil)
		if err != nil {
			return sent, err
		}
		sent += int64(len(img.Data))
	}

	u.logger.Debug("Uploaded image", "file", f.Name, "sample_id", sampleID, "sha256", img.Meta.SHA256)
	return sent, nil
}

func (u *Uploader) putFile(ctx context.Context, token, datasetID, sampleID, fileName string, isThumbnail bool, data []byte, contentType string) error {
	signedURL, err := u.client.GetSampleWriteURL(ctx, token, datasetID, sampleID, fileName, isThumbnail)
	if err != nil {
		return err
	}
	return u.client.UploadToSignedURL(ctx, signedURL, data, contentType)
}
