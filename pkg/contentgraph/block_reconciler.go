package contentgraph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// BlockReconciler applies the image side effects of replacing a content's
// blocks. Blocks are embedded values, so they are diffed structurally
// (Block.Key), unlike feature references which are diffed by id.
type BlockReconciler struct {
	repo    Repository
	fanout  FanOut
	cascade *CascadeController
	logger  *slog.Logger
	metrics *Metrics
}

// Reconcile moves content.Blocks to desired.
//
// Image blocks that disappear have their image released and removed; image
// blocks that appear get their image's back-reference pointed at content.
// Both groups run concurrently, and content is saved only when all of them
// succeeded. An image still referenced by some desired block is never
// removed, even when the block around it changed. A nil desired is a no-op.
func (r *BlockReconciler) Reconcile(ctx context.Context, content *Content, desired []Block) ([]Block, error) {
	if desired == nil {
		return cloneBlocks(content.Blocks), nil
	}
	if err := ValidateBlocks(desired); err != nil {
		return nil, &ContentError{ContentID: content.ID, Op: "reconcile_blocks", Err: fmt.Errorf("%w: %w", ErrInvalidContent, err)}
	}

	removed, added := imageChanges(content.Blocks, desired)

	err := r.fanout.Run(ctx, "reconcile_blocks",
		func(ctx context.Context) error {
			return ForEach(ctx, r.fanout, "remove_image_block", removed, func(ctx context.Context, imageID uuid.UUID) error {
				return r.cascade.releaseImage(ctx, imageID, content.ID, false)
			})
		},
		func(ctx context.Context) error {
			return ForEach(ctx, r.fanout, "add_image_block", added, func(ctx context.Context, imageID uuid.UUID) error {
				return r.attachImage(ctx, imageID, content.ID)
			})
		},
	)
	if err != nil {
		r.metrics.observeReconcile("blocks", err)
		r.logger.WarnContext(ctx, "Block reconciliation failed, completed image updates are kept",
			"content_id", content.ID, "removed", len(removed), "added", len(added), "err", err)
		return nil, &ContentError{ContentID: content.ID, Op: "reconcile_blocks", Err: err}
	}

	updated := content.Clone()
	updated.Blocks = cloneBlocks(desired)
	updated.UpdatedAt = time.Now().UTC()
	if err := r.repo.SaveContent(ctx, updated); err != nil {
		err = persistenceFailure(err)
		r.metrics.observeReconcile("blocks", err)
		return nil, &ContentError{ContentID: content.ID, Op: "reconcile_blocks", Err: err}
	}

	content.Blocks = updated.Blocks
	content.UpdatedAt = updated.UpdatedAt
	r.metrics.observeReconcile("blocks", nil)
	r.logger.DebugContext(ctx, "Blocks reconciled",
		"content_id", content.ID, "removed_images", len(removed), "added_images", len(added))
	return cloneBlocks(desired), nil
}

// imageChanges returns the images to release and to attach when moving from
// current to desired.
func imageChanges(current, desired []Block) (removed, added []uuid.UUID) {
	diff := DiffImageBlocks(current, desired)
	keep := idSet(ImageIDs(desired))
	for _, id := range ImageIDs(diff.Removed) {
		if _, ok := keep[id]; !ok {
			removed = append(removed, id)
		}
	}
	return removed, ImageIDs(diff.Added)
}

func (r *BlockReconciler) attachImage(ctx context.Context, imageID, contentID uuid.UUID) error {
	img, err := r.repo.GetImage(ctx, imageID)
	if err != nil {
		return &ImageError{ImageID: imageID, Op: "attach", Err: persistenceFailure(err)}
	}
	if ok, err := canTransitionImage(img.State, ImageStateAttached); !ok {
		return &ImageError{ImageID: imageID, Op: "attach", Err: err}
	}
	if img.OwnedBy(contentID) && img.State == ImageStateAttached {
		return nil
	}
	if img.ContentID != nil && !img.OwnedBy(contentID) {
		r.logger.WarnContext(ctx, "Image moves to another content",
			"image_id", imageID, "from_content_id", *img.ContentID, "to_content_id", contentID)
	}
	id := contentID
	img.ContentID = &id
	img.State = ImageStateAttached
	img.UpdatedAt = time.Now().UTC()
	if err := r.repo.SaveImage(ctx, img); err != nil {
		return &ImageError{ImageID: imageID, Op: "attach", Err: persistenceFailure(err)}
	}
	return nil
}
