package contentgraph

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// BlobStore holds image files by object key. Download and Delete of a
// missing key return ErrBlobNotFound.
type BlobStore interface {
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// UploadWithParams is Upload with a content type for the stored object
	UploadWithParams(ctx context.Context, reader io.Reader, params UploadParams) error

	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	Delete(ctx context.Context, objectKey string) error
}

// Repository is the document store. Save is an upsert and Delete is a hard
// delete; neither runs removal hooks, which are the CascadeController's job.
// Get methods return an error wrapping ErrNotFound for missing records.
type Repository interface {
	// Content operations
	GetContent(ctx context.Context, id uuid.UUID) (*Content, error)
	SaveContent(ctx context.Context, content *Content) error
	DeleteContent(ctx context.Context, id uuid.UUID) error
	ListContent(ctx context.Context, filter ContentFilter) ([]*Content, error)
	ListContentByFeature(ctx context.Context, featureID uuid.UUID) ([]*Content, error)

	// Feature operations
	GetFeature(ctx context.Context, id uuid.UUID) (*Feature, error)
	SaveFeature(ctx context.Context, feature *Feature) error
	DeleteFeature(ctx context.Context, id uuid.UUID) error

	// Image operations
	GetImage(ctx context.Context, id uuid.UUID) (*Image, error)
	SaveImage(ctx context.Context, image *Image) error
	DeleteImage(ctx context.Context, id uuid.UUID) error
}

// ContentFilter narrows ListContent. Results are ordered by CreatedAt
// descending.
type ContentFilter struct {
	LayerID   *uuid.UUID
	CreatorID *uuid.UUID
	Tag       string
	Limit     int
	Offset    int
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
}
