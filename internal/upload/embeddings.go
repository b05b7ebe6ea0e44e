package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/PauloBoaventura/lightly/internal/api"
	"github.com/PauloBoaventura/lightly/internal/config"
	"github.com/PauloBoaventura/lightly/internal/embeddings"
	"github.com/PauloBoaventura/lightly/pkg/models"
)

// UploadEmbeddingsFromCSV uploads the embeddings in the CSV at path under
// embeddingName, at most maxUpload rows per request. Every row must belong
// to an image that is already in the dataset. A previous embedding with the
// same name is replaced.
func (u *Uploader) UploadEmbeddingsFromCSV(ctx context.Context, path, datasetID, token string, maxUpload int, embeddingName string) error {
	if maxUpload < 1 {
		return fmt.Errorf("%w: emb_upload_bsz must be at least 1, got %d", models.ErrInvalidValue, maxUpload)
	}
	if err := config.ValidateEmbeddingName(embeddingName); err != nil {
		return fmt.Errorf("%w: embedding_name %v", models.ErrInvalidValue, err)
	}
	if err := checkDatasetID(datasetID); err != nil {
		return err
	}

	start := time.Now()
	rows, err := embeddings.Read(path)
	if err != nil {
		return err
	}

	samples, err := u.client.ListSamples(ctx, token, datasetID)
	if err != nil {
		return err
	}
	sampleIDs := make(map[string]string, len(samples))
	for _, s := range samples {
		sampleIDs[s.FileName] = s.ID
	}

	var missing []string
	for _, row := range rows {
		if _, ok := sampleIDs[row.FileName]; !ok {
			missing = append(missing, row.FileName)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %d of %d embeddings have no matching sample in dataset %s (first: %s); images must be uploaded before embeddings",
			models.ErrInvalidValue, len(missing), len(rows), datasetID, missing[0])
	}

	batches := embeddings.Batches(rows, maxUpload)
	u.logger.Info("Uploading embeddings",
		"dataset_id", datasetID,
		"embedding_name", embeddingName,
		"rows", len(rows),
		"dimension", len(rows[0].Embedding),
		"batches", len(batches))

	bar := u.progressBar(len(batches), "Uploading embeddings")
	for i, batch := range batches {
		req := api.EmbeddingBatchRequest{
			EmbeddingName: embeddingName,
			Append:        i > 0,
			Embeddings:    make([]api.EmbeddingValue, len(batch)),
		}
		for j, row := range batch {
			req.Embeddings[j] = api.EmbeddingValue{
				SampleID: sampleIDs[row.FileName],
				FileName: row.FileName,
				Value:    row.Embedding,
				Label:    row.Label,
			}
		}

		if err := u.client.UploadEmbeddings(ctx, token, datasetID, req); err != nil {
			return fmt.Errorf("batch %d of %d: %w", i+1, len(batches), err)
		}
		u.opts.Metrics.AddEmbeddingRows(len(batch))
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	u.logger.Info("Embedding upload finished",
		"dataset_id", datasetID,
		"embedding_name", embeddingName,
		"rows", len(rows),
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func checkDatasetID(id string) error {
	if err := config.ValidateDatasetID(id); err != nil {
		return fmt.Errorf("%w: dataset_id %v", models.ErrInvalidValue, err)
	}
	return nil
}
