package contentgraph

import (
	"io"

	"github.com/google/uuid"
)

// Request/Response DTOs for service operations

// CreateContentRequest contains parameters for creating new content. Features
// and Blocks go through the same reconciliation as later updates, so the
// referenced features and images are updated too.
type CreateContentRequest struct {
	Type      ContentType
	Title     string
	URL       string
	Markdown  string
	LayerID   uuid.UUID
	CreatorID uuid.UUID
	Tags      []string
	Features  []uuid.UUID
	Blocks    []Block
}

// ListContentRequest contains parameters for listing content. Page is zero
// based; PerPage defaults to DefaultPerPage.
type ListContentRequest struct {
	LayerID   *uuid.UUID
	CreatorID *uuid.UUID
	Tag       string
	Page      int
	PerPage   int
}

// DefaultPerPage is the page size used when ListContentRequest.PerPage is unset.
const DefaultPerPage = 20

// CreateFeatureRequest contains parameters for creating a feature
type CreateFeatureRequest struct {
	Title string
}

// UploadImageRequest contains parameters for uploading an image
type UploadImageRequest struct {
	CreatorID uuid.UUID
	FileName  string
	MimeType  string
	Reader    io.Reader
}
