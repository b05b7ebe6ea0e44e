package config

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

const (
	// MaxDatasetIDLength is the maximum allowed length for dataset ids
	MaxDatasetIDLength = 128

	// MaxEmbeddingNameLength is the maximum allowed length for embedding names
	MaxEmbeddingNameLength = 256

	// MaxTokenLength is the maximum allowed length for access tokens
	MaxTokenLength = 1024
)

// ValidateInputs rejects a token that would end up malformed in a request
// header. dataset_id and embedding_name are checked by the operations that
// use them, so a run without credentials can still print its hint.
func (c *Config) ValidateInputs() error {
	if err := validateToken(c.Token); err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	return nil
}

// ValidateDatasetID checks an id that is placed into request paths
func ValidateDatasetID(id string) error {
	if len(id) > MaxDatasetIDLength {
		return fmt.Errorf("exceeds maximum length of %d characters (got %d)", MaxDatasetIDLength, len(id))
	}
	if strings.ContainsAny(id, "/\\?#") {
		return fmt.Errorf("must not contain path or query separators")
	}
	if containsControlChars(id) {
		return fmt.Errorf("contains invalid control characters")
	}
	return nil
}

// ValidateEmbeddingName checks the name an embedding is stored under
func ValidateEmbeddingName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("must not be empty")
	}
	if len(name) > MaxEmbeddingNameLength {
		return fmt.Errorf("exceeds maximum length of %d characters (got %d)", MaxEmbeddingNameLength, len(name))
	}
	if containsControlChars(name) {
		return fmt.Errorf("contains invalid control characters")
	}
	return nil
}

func validateToken(token string) error {
	if len(token) > MaxTokenLength {
		return fmt.Errorf("exceeds maximum length of %d characters", MaxTokenLength)
	}
	for _, r := range token {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("contains whitespace or control characters")
		}
	}
	return nil
}

// validateAPIURL checks that the base URL is properly formatted
func validateAPIURL(apiURL string) error {
	u, err := url.Parse(apiURL)
	if err != nil {
		return fmt.Errorf("invalid api_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api_url must use http or https scheme (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("api_url must have a host")
	}
	return nil
}

// containsControlChars checks if a string contains control characters
// (excluding newlines, tabs, and carriage returns which are acceptable)
func containsControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return true
		}
	}
	return false
}
