package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// SamplesPageSize is the page size used when listing samples
const SamplesPageSize = 1000

func datasetPath(datasetID string) string {
	return "/v1/datasets/" + url.PathEscape(datasetID)
}

// GetDataset fetches a dataset. An unknown dataset is reported as ErrInvalidValue.
func (c *Client) GetDataset(ctx context.Context, token, datasetID string) (*Dataset, error) {
	var dataset Dataset
	err := c.doJSON(ctx, call{
		method: http.MethodGet,
		route:  "GET /v1/datasets/{id}",
		path:   datasetPath(datasetID),
		token:  token,
	}, &dataset)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: dataset %s does not exist", ErrInvalidValue, datasetID)
		}
		return nil, err
	}
	return &dataset, nil
}

// ListSamples returns every sample of a dataset, following pagination.
// Paging stops at a short page or at a page that holds no sample seen
// before, which is what a server ignoring the page parameter returns.
func (c *Client) ListSamples(ctx context.Context, token, datasetID string) ([]Sample, error) {
	var all []Sample
	seen := make(map[string]struct{})
	for page := 0; ; page++ {
		var batch []Sample
		err := c.doJSON(ctx, call{
			method: http.MethodGet,
			route:  "GET /v1/datasets/{id}/samples",
			path:   datasetPath(datasetID) + "/samples",
			query: url.Values{
				"page":     {strconv.Itoa(page)},
				"pageSize": {strconv.Itoa(SamplesPageSize)},
			},
			token: token,
		}, &batch)
		if err != nil {
			return nil, fmt.Errorf("failed to list samples: %w", err)
		}

		added := 0
		for _, sample := range batch {
			if _, ok := seen[sample.ID]; ok {
				continue
			}
			seen[sample.ID] = struct{}{}
			all = append(all, sample)
			added++
		}
		if len(batch) < SamplesPageSize || added == 0 {
			if added == 0 && len(batch) > 0 {
				c.logger.Warn("Sample listing repeated a page, stopping", "dataset_id", datasetID, "page", page)
			}
			break
		}
	}

	c.logger.Debug("Listed samples", "dataset_id", datasetID, "count", len(all))
	return all, nil
}

// CreateSample registers an image with its metadata and returns the new sample id
func (c *Client) CreateSample(ctx context.Context, token, datasetID string, req SampleCreateRequest) (string, error) {
	var resp CreateEntityResponse
	err := c.doJSON(ctx, call{
		method: http.MethodPost,
		route:  "POST /v1/datasets/{id}/samples",
		path:   datasetPath(datasetID) + "/samples",
		token:  token,
		body:   req,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to create sample %s: %w", req.FileName, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("failed to create sample %s: empty sample id in response", req.FileName)
	}
	return resp.ID, nil
}

// GetSampleWriteURL asks for a signed URL to upload the image or its thumbnail to
func (c *Client) GetSampleWriteURL(ctx context.Context, token, datasetID, sampleID, fileName string, isThumbnail bool) (string, error) {
	var resp WriteURLResponse
	err := c.doJSON(ctx, call{
		method: http.MethodGet,
		route:  "GET /v1/datasets/{id}/samples/{sampleId}/writeurl",
		path:   datasetPath(datasetID) + "/samples/" + url.PathEscape(sampleID) + "/writeurl",
		query: url.Values{
			"fileName":    {fileName},
			"isThumbnail": {strconv.FormatBool(isThumbnail)},
		},
		token: token,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("failed to get write url for %s: %w", fileName, err)
	}
	if resp.SignedWriteURL == "" {
		return "", fmt.Errorf("failed to get write url for %s: empty url in response", fileName)
	}
	return resp.SignedWriteURL, nil
}

// UploadEmbeddings sends one batch of embeddings
func (c *Client) UploadEmbeddings(ctx context.Context, token, datasetID string, req EmbeddingBatchRequest) error {
	err := c.doJSON(ctx, call{
		method: http.MethodPost,
		route:  "POST /v1/datasets/{id}/embeddings",
		path:   datasetPath(datasetID) + "/embeddings",
		token:  token,
		body:   req,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to upload embeddings: %w", err)
	}
	return nil
}
