package contentgraph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Convenience functions for common graph edits.
// These read the current content, change one thing and reconcile, which keeps
// the core Service interface declarative. Concurrent edits of the same
// content are last-writer-wins.

// AttachFeature adds featureID to the content's feature set.
func AttachFeature(ctx context.Context, svc Service, contentID, featureID uuid.UUID) (*Content, error) {
	content, err := svc.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if containsID(content.Features, featureID) {
		return content, nil
	}
	return svc.ReconcileFeatures(ctx, contentID, append(cloneIDs(content.Features), featureID))
}

// AppendImage adds an image block for img at the end of the content body.
func AppendImage(ctx context.Context, svc Service, contentID uuid.UUID, img *Image) (*Content, error) {
	content, err := svc.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}
	return svc.ReconcileBlocks(ctx, contentID, append(cloneBlocks(content.Blocks), NewImageBlock(img)))
}

// UploadAndAppendImage uploads an image and appends it to the content. When
// the append fails the uploaded image is removed again.
func UploadAndAppendImage(ctx context.Context, svc Service, contentID uuid.UUID, req UploadImageRequest) (*Image, *Content, error) {
	img, err := svc.UploadImage(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	content, err := AppendImage(ctx, svc, contentID, img)
	if err != nil {
		if _, rmErr := svc.RemoveImage(ctx, img.ID); rmErr != nil {
			return nil, nil, fmt.Errorf("%w (cleanup of image %s failed: %v)", err, img.ID, rmErr)
		}
		return nil, nil, err
	}
	attached, err := svc.GetImage(ctx, img.ID)
	if err != nil {
		return nil, nil, err
	}
	return attached, content, nil
}

// ListAllContent pages through ListContent until a short page is returned.
func ListAllContent(ctx context.Context, svc Service, req ListContentRequest) ([]*Content, error) {
	if req.PerPage <= 0 {
		req.PerPage = DefaultPerPage
	}
	var all []*Content
	for page := req.Page; ; page++ {
		req.Page = page
		batch, err := svc.ListContent(ctx, req)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < req.PerPage {
			return all, nil
		}
	}
}
