package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:           baseURL,
		MaxRetries:        2,
		BaseRetryDelay:    time.Millisecond,
		Timeout:           5 * time.Second,
		RequestsPerMinute: 60000,
	}, testLogger())
}

func TestGetDataset_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/datasets/ds-1", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"id": "ds-1", "name": "flowers"}`))
	}))
	defer server.Close()

	dataset, err := newTestClient(server.URL).GetDataset(context.Background(), "test-token", "ds-1")
	require.NoError(t, err)
	assert.Equal(t, "flowers", dataset.Name)
}

func TestGetDataset_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "not found", "code": "NOT_FOUND"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetDataset(context.Background(), "t", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), "dataset missing does not exist")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id": "ds-1"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetDataset(context.Background(), "t", "ds-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "slow down"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetDataset(context.Background(), "t", "ds-1")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "slow down", apiErr.Message)
	assert.True(t, apiErr.Retryable)
	assert.NotErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_BadRequestIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message": "fileName is required"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateSample(context.Background(), "t", "ds-1", SampleCreateRequest{FileName: "a.png"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), "fileName is required")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	start := time.Now()
	_, err := newTestClient(url).GetDataset(context.Background(), "t", "ds-1")
	require.Error(t, err)
	assert.True(t, IsConnectionRefused(err), "expected connection refused, got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestListSamples_Pagination(t *testing.T) {
	var pages []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/datasets/ds-1/samples", r.URL.Path)
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		n := 3
		if page == "0" {
			n = SamplesPageSize
		}
		samples := make([]Sample, n)
		for i := range samples {
			samples[i] = Sample{ID: page + "-" + strconv.Itoa(i), FileName: "f.png"}
		}
		_ = json.NewEncoder(w).Encode(samples)
	}))
	defer server.Close()

	samples, err := newTestClient(server.URL).ListSamples(context.Background(), "t", "ds-1")
	require.NoError(t, err)
	assert.Len(t, samples, SamplesPageSize+3)
	assert.Equal(t, []string{"0", "1"}, pages)
}

func TestListSamples_StopsWhenPageRepeats(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// Ignores the page parameter and always returns the same full page.
		samples := make([]Sample, SamplesPageSize)
		for i := range samples {
			samples[i] = Sample{ID: "s-" + strconv.Itoa(i), FileName: "f.png"}
		}
		_ = json.NewEncoder(w).Encode(samples)
	}))
	defer server.Close()

	samples, err := newTestClient(server.URL).ListSamples(context.Background(), "t", "ds-1")
	require.NoError(t, err)
	assert.Len(t, samples, SamplesPageSize)
	assert.Equal(t, 2, requests)
}

func TestCreateSample(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req SampleCreateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cats/a.png", req.FileName)
		assert.Equal(t, 640, req.Meta.Width)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": "sample-1"}`))
	}))
	defer server.Close()

	req := SampleCreateRequest{FileName: "cats/a.png"}
	req.Meta.Width = 640
	id, err := newTestClient(server.URL).CreateSample(context.Background(), "t", "ds-1", req)
	require.NoError(t, err)
	assert.Equal(t, "sample-1", id)
}

func TestCreateSample_EmptyID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateSample(context.Background(), "t", "ds-1", SampleCreateRequest{FileName: "a.png"})
	assert.ErrorContains(t, err, "empty sample id")
}

func TestGetSampleWriteURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/datasets/ds-1/samples/s-1/writeurl", r.URL.Path)
		assert.Equal(t, "thumb_a.jpg", r.URL.Query().Get("fileName"))
		assert.Equal(t, "true", r.URL.Query().Get("isThumbnail"))
		_, _ = w.Write([]byte(`{"signedWriteUrl": "https://storage.example.com/put?sig=abc"}`))
	}))
	defer server.Close()

	u, err := newTestClient(server.URL).GetSampleWriteURL(context.Background(), "t", "ds-1", "s-1", "thumb_a.jpg", true)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example.com/put?sig=abc", u)
}

func TestUploadToSignedURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		assert.Equal(t, int64(5), r.ContentLength)

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "hello", string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestClient("http://unused").UploadToSignedURL(context.Background(), server.URL+"/put?sig=abc", []byte("hello"), "image/jpeg")
	assert.NoError(t, err)
}

func TestUploadToSignedURL_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("signature expired"))
	}))
	defer server.Close()

	err := newTestClient("http://unused").UploadToSignedURL(context.Background(), server.URL, []byte("x"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature expired")
}

func TestUploadEmbeddings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/datasets/ds-1/embeddings", r.URL.Path)

		var req EmbeddingBatchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "simclr", req.EmbeddingName)
		assert.True(t, req.Append)
		if assert.Len(t, req.Embeddings, 1) {
			assert.Equal(t, []float64{0.5, -1}, req.Embeddings[0].Value)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := newTestClient(server.URL).UploadEmbeddings(context.Background(), "t", "ds-1", EmbeddingBatchRequest{
		EmbeddingName: "simclr",
		Append:        true,
		Embeddings:    []EmbeddingValue{{SampleID: "s-1", FileName: "a.png", Value: []float64{0.5, -1}}},
	})
	assert.NoError(t, err)
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL).GetDataset(ctx, "t", "ds-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	limit := time.Minute

	serverErr := backoff(base, limit, 1, &http.Response{StatusCode: http.StatusInternalServerError, Header: http.Header{}})
	assert.InDelta(t, float64(200*time.Millisecond), float64(serverErr), float64(25*time.Millisecond))

	rateLimited := backoff(base, limit, 1, &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}})
	assert.InDelta(t, float64(900*time.Millisecond), float64(rateLimited), float64(100*time.Millisecond))

	retryAfter := backoff(base, limit, 0, &http.Response{
		StatusCode: http.StatusServiceUnavailable,
		Header:     http.Header{"Retry-After": {"7"}},
	})
	assert.Equal(t, 7*time.Second, retryAfter)

	capped := backoff(base, time.Second, 10, nil)
	assert.Equal(t, time.Second, capped)
}

func TestAPIError_Unwrap(t *testing.T) {
	assert.ErrorIs(t, &APIError{StatusCode: http.StatusUnauthorized}, ErrInvalidValue)
	assert.ErrorIs(t, &APIError{StatusCode: http.StatusUnprocessableEntity}, ErrInvalidValue)
	assert.NotErrorIs(t, &APIError{StatusCode: http.StatusBadGateway}, ErrInvalidValue)
	assert.Equal(t, "API error (status 502): bad gateway", (&APIError{StatusCode: 502, Message: "bad gateway"}).Error())
}
