package api

import "github.com/PauloBoaventura/lightly/pkg/models"

// Dataset is a dataset on the platform
type Dataset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Sample is an image registered in a dataset
type Sample struct {
	ID        string `json:"id"`
	FileName  string `json:"fileName"`
	ThumbName string `json:"thumbName,omitempty"`
}

// SampleCreateRequest registers a new image and its metadata
type SampleCreateRequest struct {
	FileName  string                `json:"fileName"`
	ThumbName string                `json:"thumbName,omitempty"`
	Meta      models.SampleMetadata `json:"meta"`
}

// CreateEntityResponse is returned by endpoints that create something
type CreateEntityResponse struct {
	ID string `json:"id"`
}

// WriteURLResponse carries a signed URL the file bytes are PUT to
type WriteURLResponse struct {
	SignedWriteURL string `json:"signedWriteUrl"`
}

// EmbeddingValue is one embedding vector bound to a sample
type EmbeddingValue struct {
	SampleID string    `json:"sampleId"`
	FileName string    `json:"fileName"`
	Value    []float64 `json:"value"`
	Label    int       `json:"label"`
}

// EmbeddingBatchRequest uploads one batch of embeddings. Append is false for
// the first batch so a re-upload replaces the previous embedding of that name.
type EmbeddingBatchRequest struct {
	EmbeddingName string           `json:"embeddingName"`
	Append        bool             `json:"append"`
	Embeddings    []EmbeddingValue `json:"embeddings"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
