package contentgraph

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// CascadeConfig wires a CascadeController.
type CascadeConfig struct {
	Repository Repository
	BlobStore  BlobStore
	FanOut     FanOut
	Hooks      *Hooks
	Events     EventSink
	Logger     *slog.Logger
}

// CascadeController runs the side effects of removing a Content, an Image or
// a Feature before the record is deleted from the Repository.
//
// Content and Image removal reach each other: removing a content removes its
// images, and removing an attached image strips its block from the owning
// content. The image state machine keeps that from looping. An image is
// always moved to ImageStateDetaching before it is removed, and block
// reconciliation never starts a removal on an image that is already
// detaching on behalf of its owner. An image whose detach failed goes back
// to ImageStateAttached, so a later removal of its owner still finds it.
type CascadeController struct {
	repo     Repository
	blobs    BlobStore
	fanout   FanOut
	hooks    *Hooks
	events   EventSink
	logger   *slog.Logger
	metrics  *Metrics
	features *FeatureReconciler
	blocks   *BlockReconciler
}

// NewCascadeController creates a controller together with the feature and
// block reconcilers it drives.
func NewCascadeController(cfg CascadeConfig) *CascadeController {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := cfg.Events
	if events == nil {
		events = NewNoopEventSink()
	}
	c := &CascadeController{
		repo:    cfg.Repository,
		blobs:   cfg.BlobStore,
		fanout:  cfg.FanOut,
		hooks:   cfg.Hooks,
		events:  events,
		logger:  logger,
		metrics: cfg.FanOut.Metrics,
	}
	c.features = NewFeatureReconciler(cfg.Repository, cfg.FanOut, logger)
	c.blocks = &BlockReconciler{
		repo:    cfg.Repository,
		fanout:  cfg.FanOut,
		cascade: c,
		logger:  logger,
		metrics: cfg.FanOut.Metrics,
	}
	return c
}

// Features returns the feature reconciler.
func (c *CascadeController) Features() *FeatureReconciler {
	return c.features
}

// Blocks returns the block reconciler.
func (c *CascadeController) Blocks() *BlockReconciler {
	return c.blocks
}

// RemoveContent releases and removes every image the content's blocks
// reference, detaches the content from every feature, and then deletes it.
// The two groups run concurrently; the content is deleted only when both
// succeeded. Completed side effects are kept on failure.
func (c *CascadeController) RemoveContent(ctx context.Context, content *Content) (err error) {
	done := c.metrics.trackRemoval("content")
	defer func() {
		done(err)
		c.hooks.executeOnError(ctx, "remove_content", err)
	}()

	if err := c.hooks.executeBeforeContentRemove(ctx, content); err != nil {
		return &ContentError{ContentID: content.ID, Op: "remove", Err: err}
	}

	imageIDs := ImageIDs(content.Blocks)
	err = c.fanout.Run(ctx, "remove_content",
		func(ctx context.Context) error {
			return ForEach(ctx, c.fanout, "cascade_remove_image", imageIDs, func(ctx context.Context, imageID uuid.UUID) error {
				return c.releaseImage(ctx, imageID, content.ID, true)
			})
		},
		func(ctx context.Context) error {
			return c.features.DetachAll(ctx, content)
		},
	)
	if err != nil {
		c.logger.WarnContext(ctx, "Content cascade failed, content kept",
			"content_id", content.ID, "images", len(imageIDs), "features", len(content.Features), "err", err)
		return &ContentError{ContentID: content.ID, Op: "remove", Err: err}
	}

	if err := c.repo.DeleteContent(ctx, content.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return &ContentError{ContentID: content.ID, Op: "remove", Err: persistenceFailure(err)}
	}

	if err := c.hooks.executeAfterContentRemove(ctx, content); err != nil {
		return &ContentError{ContentID: content.ID, Op: "after_remove", Err: err}
	}
	if err := c.events.ContentRemoved(ctx, content); err != nil {
		c.logger.WarnContext(ctx, "Event sink failed", "event", "content_removed", "err", err)
	}
	c.logger.InfoContext(ctx, "Content removed",
		"content_id", content.ID, "images", len(imageIDs), "features", len(content.Features))
	return nil
}

// RemoveImage runs the image removal hook and deletes the image.
//
// The hook has two independent steps, both always attempted: an image that
// still points at a content has its blocks stripped from that content, and
// the image blob is deleted. The record is deleted only when both succeeded.
func (c *CascadeController) RemoveImage(ctx context.Context, img *Image) (err error) {
	done := c.metrics.trackRemoval("image")
	defer func() {
		done(err)
		c.hooks.executeOnError(ctx, "remove_image", err)
	}()

	if err := c.hooks.executeBeforeImageRemove(ctx, img); err != nil {
		return &ImageError{ImageID: img.ID, Op: "remove", Err: err}
	}

	var errs []error
	attempted := 1
	if img.ContentID != nil {
		attempted++
		if err := c.detachFromOwner(ctx, img); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.deleteBlob(ctx, img); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &ImageError{ImageID: img.ID, Op: "remove", Err: &PartialFailureError{Op: "remove_image", Attempted: attempted, Errs: errs}}
	}

	if err := c.repo.DeleteImage(ctx, img.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return &ImageError{ImageID: img.ID, Op: "remove", Err: persistenceFailure(err)}
	}
	img.State = ImageStateDeleted
	img.ContentID = nil

	if err := c.hooks.executeAfterImageRemove(ctx, img); err != nil {
		return &ImageError{ImageID: img.ID, Op: "after_remove", Err: err}
	}
	if err := c.events.ImageRemoved(ctx, img); err != nil {
		c.logger.WarnContext(ctx, "Event sink failed", "event", "image_removed", "err", err)
	}
	c.logger.DebugContext(ctx, "Image removed", "image_id", img.ID, "file", img.File.Name)
	return nil
}

// RemoveFeature pulls the feature from every content that references it and
// deletes it.
func (c *CascadeController) RemoveFeature(ctx context.Context, feature *Feature) (err error) {
	done := c.metrics.trackRemoval("feature")
	defer func() {
		done(err)
		c.hooks.executeOnError(ctx, "remove_feature", err)
	}()

	referencing, err := c.repo.ListContentByFeature(ctx, feature.ID)
	if err != nil {
		return &FeatureError{FeatureID: feature.ID, Op: "remove", Err: persistenceFailure(err)}
	}
	contentIDs := feature.Contents
	for _, content := range referencing {
		contentIDs = append(contentIDs, content.ID)
	}

	err = ForEach(ctx, c.fanout, "cascade_pull_feature", dedupIDs(contentIDs), func(ctx context.Context, contentID uuid.UUID) error {
		content, err := c.repo.GetContent(ctx, contentID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return &ContentError{ContentID: contentID, Op: "pull_feature", Err: persistenceFailure(err)}
		}
		if !containsID(content.Features, feature.ID) {
			return nil
		}
		content.Features = withoutID(content.Features, feature.ID)
		content.UpdatedAt = time.Now().UTC()
		if err := c.repo.SaveContent(ctx, content); err != nil {
			return &ContentError{ContentID: contentID, Op: "pull_feature", Err: persistenceFailure(err)}
		}
		return nil
	})
	if err != nil {
		return &FeatureError{FeatureID: feature.ID, Op: "remove", Err: err}
	}

	if err := c.repo.DeleteFeature(ctx, feature.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return &FeatureError{FeatureID: feature.ID, Op: "remove", Err: persistenceFailure(err)}
	}
	if err := c.events.FeatureRemoved(ctx, feature.ID); err != nil {
		c.logger.WarnContext(ctx, "Event sink failed", "event", "feature_removed", "err", err)
	}
	return nil
}

// releaseImage detaches an image from ownerID and removes it. The
// back-reference is cleared and persisted before the removal starts, so the
// image's own hook finds nothing to strip and does not call back into the
// owner.
//
// ownerRemoved is set when the owner itself is being deleted. An owned image
// already detaching is then removed anyway, since nothing else will strip it
// from an owner that is about to disappear.
func (c *CascadeController) releaseImage(ctx context.Context, imageID, ownerID uuid.UUID, ownerRemoved bool) error {
	img, err := c.repo.GetImage(ctx, imageID)
	if errors.Is(err, ErrNotFound) {
		c.logger.WarnContext(ctx, "Image already gone", "image_id", imageID, "content_id", ownerID)
		return nil
	}
	if err != nil {
		return &ImageError{ImageID: imageID, Op: "release", Err: persistenceFailure(err)}
	}

	switch {
	case img.ContentID != nil && !img.OwnedBy(ownerID):
		c.logger.WarnContext(ctx, "Image owned by another content, not removed",
			"image_id", imageID, "content_id", ownerID, "owner_id", *img.ContentID)
		return nil
	case img.State == ImageStateDetaching && img.ContentID != nil && !ownerRemoved:
		// its own removal is in flight and is stripping it from the owner
		return nil
	}

	if ok, err := canTransitionImage(img.State, ImageStateDetaching); !ok {
		return &ImageError{ImageID: imageID, Op: "release", Err: err}
	}
	if img.ContentID != nil || img.State != ImageStateDetaching {
		img.ContentID = nil
		img.State = ImageStateDetaching
		img.UpdatedAt = time.Now().UTC()
		if err := c.repo.SaveImage(ctx, img); err != nil {
			return &ImageError{ImageID: imageID, Op: "release", Err: persistenceFailure(err)}
		}
	}
	return c.RemoveImage(ctx, img)
}

// detachFromOwner strips the image's blocks from the content its
// back-reference names. The image is marked detaching first, which makes the
// block reconciler skip it instead of removing it a second time.
func (c *CascadeController) detachFromOwner(ctx context.Context, img *Image) error {
	ownerID := *img.ContentID

	if img.State != ImageStateDetaching {
		img.State = ImageStateDetaching
		img.UpdatedAt = time.Now().UTC()
		if err := c.repo.SaveImage(ctx, img); err != nil {
			return &ImageError{ImageID: img.ID, Op: "detach", Err: persistenceFailure(err)}
		}
	}

	owner, err := c.repo.GetContent(ctx, ownerID)
	switch {
	case errors.Is(err, ErrNotFound):
		c.logger.WarnContext(ctx, "Owning content already gone", "image_id", img.ID, "content_id", ownerID)
	case err != nil:
		return c.restoreAttached(ctx, img, &ContentError{ContentID: ownerID, Op: "detach_image", Err: persistenceFailure(err)})
	default:
		if _, err := c.blocks.Reconcile(ctx, owner, WithoutImage(owner.Blocks, img.ID)); err != nil {
			return c.restoreAttached(ctx, img, err)
		}
	}

	img.ContentID = nil
	img.UpdatedAt = time.Now().UTC()
	if err := c.repo.SaveImage(ctx, img); err != nil {
		return &ImageError{ImageID: img.ID, Op: "detach", Err: persistenceFailure(err)}
	}
	return nil
}

// restoreAttached puts an image back to attached after its owner could not be
// updated. The owner still holds the image block, so either side can be
// removed again later. It runs past the operation deadline.
func (c *CascadeController) restoreAttached(ctx context.Context, img *Image, cause error) error {
	img.State = ImageStateAttached
	img.UpdatedAt = time.Now().UTC()
	if err := c.repo.SaveImage(context.WithoutCancel(ctx), img); err != nil {
		c.logger.WarnContext(ctx, "Failed to restore image after detach failure", "image_id", img.ID, "err", err)
		return errors.Join(cause, &ImageError{ImageID: img.ID, Op: "restore", Err: persistenceFailure(err)})
	}
	return cause
}

func (c *CascadeController) deleteBlob(ctx context.Context, img *Image) error {
	if img.File.Name == "" {
		return nil
	}
	if c.blobs == nil {
		return &StorageError{Key: img.File.Name, Op: "delete", Err: ErrBlobStoreNotConfigured}
	}
	if err := c.blobs.Delete(ctx, img.File.Name); err != nil && !errors.Is(err, ErrBlobNotFound) {
		return &StorageError{Key: img.File.Name, Op: "delete", Err: err}
	}
	return nil
}
