package models

import "time"

// Journal is the saved state of an image upload, used to resume interrupted runs
type Journal struct {
	SessionID   string    `json:"session_id"`    // UUID of the run that created the journal
	CreatedAt   time.Time `json:"created_at"`    // When the journal was created
	LastSavedAt time.Time `json:"last_saved_at"` // Last time it was written to disk

	DatasetID string     `json:"dataset_id"`
	Mode      UploadMode `json:"mode"`

	// file name (relative to the input dir) -> true once fully uploaded
	Completed map[string]bool `json:"completed"`

	Stats UploadStats `json:"stats"`
}
