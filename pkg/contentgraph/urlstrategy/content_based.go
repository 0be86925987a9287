package urlstrategy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ContentBasedStrategy generates URLs based on the image ID.
// This routes requests through the application server, which streams the blob.
type ContentBasedStrategy struct {
	APIBaseURL string // e.g., "https://api.example.com" or "/api/v1"
}

// NewContentBasedStrategy creates a new content-based URL strategy
func NewContentBasedStrategy(apiBaseURL string) *ContentBasedStrategy {
	return &ContentBasedStrategy{
		APIBaseURL: strings.TrimSuffix(apiBaseURL, "/"),
	}
}

// ImageURL returns {APIBaseURL}/images/{id}/file
func (s *ContentBasedStrategy) ImageURL(imageID uuid.UUID, objectKey string) string {
	return fmt.Sprintf("%s/images/%s/file", s.APIBaseURL, imageID)
}
