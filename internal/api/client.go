package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/PauloBoaventura/lightly/internal/metrics"
)

const (
	// DefaultMaxRetries is the default maximum number of retry attempts
	DefaultMaxRetries = 3
	// DefaultBaseRetryDelay is the base delay for exponential backoff
	DefaultBaseRetryDelay = 2 * time.Second
	// DefaultMaxRetryDelay caps a single backoff sleep
	DefaultMaxRetryDelay = 60 * time.Second
	// RateLimitBackoffMultiplier is the multiplier for rate limit backoff (3^n)
	RateLimitBackoffMultiplier = 3
	// DefaultRequestsPerMinute is used when Options leaves the rate unset
	DefaultRequestsPerMinute = 600
	// LogPreviewLength is the maximum length of a response body quoted in errors
	LogPreviewLength = 500
)

// Options configures a Client
type Options struct {
	BaseURL           string
	UserAgent         string
	MaxRetries        int
	BaseRetryDelay    time.Duration
	Timeout           time.Duration // 0 = no timeout
	RequestsPerMinute int
	Metrics           *metrics.Collector
}

// Client talks to the dataset platform API
type Client struct {
	baseURL           string
	userAgent         string
	httpClient        *retryablehttp.Client
	rateLimiterPool   *RateLimiterPool
	requestsPerMinute int
	metrics           *metrics.Collector
	logger            *slog.Logger
}

// NewClient creates a new API client
func NewClient(opts Options, logger *slog.Logger) *Client {
	logger = logger.With("component", "api_client")

	if opts.BaseRetryDelay <= 0 {
		opts.BaseRetryDelay = DefaultBaseRetryDelay
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "lightly-upload"
	}

	httpClient := retryablehttp.NewClient()
	httpClient.HTTPClient.Timeout = opts.Timeout
	httpClient.RetryMax = opts.MaxRetries
	httpClient.RetryWaitMin = opts.BaseRetryDelay
	httpClient.RetryWaitMax = max(DefaultMaxRetryDelay, opts.BaseRetryDelay)
	httpClient.CheckRetry = checkRetry
	httpClient.Backoff = backoff
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	// Signed URLs carry credentials in the query string, keep them out of the logs.
	httpClient.Logger = nil
	httpClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Warn("Retrying API request",
				"method", req.Method,
				"host", req.URL.Host,
				"path", req.URL.Path,
				"attempt", attempt,
				"max_retries", opts.MaxRetries)
		}
	}

	return &Client{
		baseURL:           strings.TrimRight(opts.BaseURL, "/"),
		userAgent:         opts.UserAgent,
		httpClient:        httpClient,
		rateLimiterPool:   NewRateLimiterPool(logger),
		requestsPerMinute: opts.RequestsPerMinute,
		metrics:           opts.Metrics,
		logger:            logger,
	}
}

// call describes one JSON request
type call struct {
	method string
	route  string // endpoint template, used as metrics label
	path   string
	query  url.Values
	token  string
	body   interface{}
}

func (c *Client) doJSON(ctx context.Context, cl call, out interface{}) error {
	endpoint := c.baseURL + cl.path
	if len(cl.query) > 0 {
		endpoint += "?" + cl.query.Encode()
	}

	var rawBody interface{}
	if cl.body != nil {
		body, release, err := encodeBody(cl.body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		defer release()
		rawBody = body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, cl.method, endpoint, rawBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if rawBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.token != "" {
		req.Header.Set("Authorization", "Bearer "+cl.token)
	}

	respBody, status, err := c.send(ctx, req, cl.route)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return newAPIError(status, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", cl.route, err)
		}
	}
	return nil
}

// send waits for the rate limiter, performs the request with retries and
// returns the full response body
func (c *Client) send(ctx context.Context, req *retryablehttp.Request, route string) ([]byte, int, error) {
	host := req.URL.Host
	waitStart := time.Now()
	if err := c.rateLimiterPool.Wait(ctx, host, c.requestsPerMinute); err != nil {
		return nil, 0, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	c.metrics.RecordRateLimiterWait(host, time.Since(waitStart))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAPIRequest(route, time.Since(start), 0)
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, 0, fmt.Errorf("%s request failed: %w", route, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()
	c.metrics.RecordAPIRequest(route, time.Since(start), resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read %s response: %w", route, err)
	}

	c.logger.Debug("API response", "route", route, "status", resp.StatusCode, "bytes", len(body))
	return body, resp.StatusCode, nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Retryable:  isStatusCodeRetryable(status),
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && (errResp.Error != "" || errResp.Message != "") {
		apiErr.Message = errResp.Error
		if apiErr.Message == "" {
			apiErr.Message = errResp.Message
		}
		apiErr.Code = errResp.Code
		return apiErr
	}

	preview := strings.TrimSpace(string(body))
	if len(preview) > LogPreviewLength {
		preview = preview[:LogPreviewLength] + "..."
	}
	if preview == "" {
		preview = http.StatusText(status)
	}
	apiErr.Message = preview
	return apiErr
}

// checkRetry retries transport failures and retryable statuses. A refused
// connection is returned immediately so callers can report it.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		if IsConnectionRefused(err) {
			return false, err
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return isStatusCodeRetryable(resp.StatusCode), nil
}

// backoff is exponential (2^n * base) with 10% jitter. Rate limit responses
// back off harder (3^(n+1) * base) unless the server sent Retry-After.
func backoff(minWait, maxWait time.Duration, attemptNum int, resp *http.Response) time.Duration {
	if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
		if s := resp.Header.Get("Retry-After"); s != "" {
			if seconds, err := strconv.Atoi(s); err == nil && seconds >= 0 {
				return min(time.Duration(seconds)*time.Second, maxWait)
			}
		}
	}

	wait := time.Duration(math.Pow(2, float64(attemptNum))) * minWait
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		wait = time.Duration(math.Pow(RateLimitBackoffMultiplier, float64(attemptNum+1))) * minWait
	}

	jitter := time.Duration(float64(wait) * 0.1 * (2*float64(time.Now().UnixNano()%100)/100 - 1))
	wait += jitter
	if wait > maxWait {
		wait = maxWait
	}
	return wait
}

func isStatusCodeRetryable(statusCode int) bool {
	// Retry on rate limits and server errors
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusInternalServerError ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout
}
