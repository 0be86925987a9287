package contentgraph

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service defines the main interface for the content-graph library
type Service interface {
	// Association operations
	ReconcileFeatures(ctx context.Context, contentID uuid.UUID, desired []uuid.UUID) (*Content, error)
	ReconcileBlocks(ctx context.Context, contentID uuid.UUID, desired []Block) (*Content, error)
	DetachFeature(ctx context.Context, contentID, featureID uuid.UUID) (*Content, error)

	// Removal operations
	RemoveContent(ctx context.Context, id uuid.UUID) (*Content, error)
	RemoveImage(ctx context.Context, id uuid.UUID) (*Image, error)
	RemoveFeature(ctx context.Context, id uuid.UUID) (*Feature, error)

	// Content operations
	CreateContent(ctx context.Context, req CreateContentRequest) (*Content, error)
	GetContent(ctx context.Context, id uuid.UUID) (*Content, error)
	LoadContent(ctx context.Context, id uuid.UUID) (*ContentDetails, error)
	ListContent(ctx context.Context, req ListContentRequest) ([]*Content, error)

	// Feature operations
	CreateFeature(ctx context.Context, req CreateFeatureRequest) (*Feature, error)
	GetFeature(ctx context.Context, id uuid.UUID) (*Feature, error)

	// Image operations
	UploadImage(ctx context.Context, req UploadImageRequest) (*Image, error)
	GetImage(ctx context.Context, id uuid.UUID) (*Image, error)
	DownloadImage(ctx context.Context, id uuid.UUID) (*Image, io.ReadCloser, error)
}
