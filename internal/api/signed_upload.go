package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// UploadToSignedURL PUTs raw bytes to a signed storage URL. The platform token
// is not sent; the URL carries its own credentials.
func (c *Client) UploadToSignedURL(ctx context.Context, signedURL string, data []byte, contentType string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, signedURL, data)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.userAgent)
	req.ContentLength = int64(len(data))

	body, status, err := c.send(ctx, req, "PUT signed-url")
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("signed url upload failed: %w", newAPIError(status, body))
	}

	c.logger.Debug("Uploaded to signed url", "host", req.URL.Host, "size", len(data))
	return nil
}
