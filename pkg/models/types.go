package models

import "time"

// UploadMode selects what is transferred for each image
type UploadMode string

const (
	// UploadModeFull uploads metadata, a thumbnail and the original image
	UploadModeFull UploadMode = "full"
	// UploadModeThumbnails uploads metadata and a thumbnail
	UploadModeThumbnails UploadMode = "thumbnails"
	// UploadModeMetadata uploads only the computed image metadata
	UploadModeMetadata UploadMode = "metadata"
)

// UploadModes lists every accepted upload mode
var UploadModes = []UploadMode{UploadModeFull, UploadModeThumbnails, UploadModeMetadata}

// Valid reports whether m is one of the known upload modes
func (m UploadMode) Valid() bool {
	for _, mode := range UploadModes {
		if m == mode {
			return true
		}
	}
	return false
}

// UploadsThumbnail reports whether the mode sends a thumbnail
func (m UploadMode) UploadsThumbnail() bool {
	return m == UploadModeFull || m == UploadModeThumbnails
}

// UploadsFullImage reports whether the mode sends the original file
func (m UploadMode) UploadsFullImage() bool {
	return m == UploadModeFull
}

// SampleMetadata holds the per-image values computed locally before upload
type SampleMetadata struct {
	SizeInBytes int64   `json:"sizeInBytes"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Format      string  `json:"format"`
	SHA256      string  `json:"sha256"`
	Mean        float64 `json:"mean"`
	Std         float64 `json:"std"`
	Sharpness   float64 `json:"sharpness"`
}

// EmbeddingRow is a single line of an embeddings CSV
type EmbeddingRow struct {
	FileName  string    `json:"fileName"`
	Embedding []float64 `json:"embedding"`
	Label     int       `json:"label"`
}

// UploadStats summarizes an upload run
type UploadStats struct {
	Total         int           `json:"total"`
	Uploaded      int           `json:"uploaded"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	BytesUploaded int64         `json:"bytes_uploaded"`
	TotalDuration time.Duration `json:"total_duration"`
}
