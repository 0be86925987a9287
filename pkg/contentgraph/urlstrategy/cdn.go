package urlstrategy

import (
	"strings"

	"github.com/google/uuid"
)

// CDNStrategy generates URLs that point directly at the object key behind a
// CDN or static file server.
type CDNStrategy struct {
	CDNBaseURL string // e.g., "https://cdn.example.com" or "/files"
}

// NewCDNStrategy creates a new CDN URL strategy
func NewCDNStrategy(cdnBaseURL string) *CDNStrategy {
	return &CDNStrategy{
		CDNBaseURL: strings.TrimSuffix(cdnBaseURL, "/"),
	}
}

// ImageURL returns {CDNBaseURL}/{objectKey}. Without a base URL the bare key
// is returned.
func (s *CDNStrategy) ImageURL(imageID uuid.UUID, objectKey string) string {
	if s.CDNBaseURL == "" {
		return objectKey
	}
	return s.CDNBaseURL + "/" + strings.TrimPrefix(objectKey, "/")
}
