package contentgraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// EventSink defines the interface for event handling. Sink errors are logged
// and never fail the operation that fired the event.
type EventSink interface {
	// FeaturesReconciled is fired after a content's feature set is committed
	FeaturesReconciled(ctx context.Context, content *Content, detached, attached []uuid.UUID) error

	// BlocksReconciled is fired after a content's blocks are committed
	BlocksReconciled(ctx context.Context, content *Content, removed, added []uuid.UUID) error

	// ContentRemoved is fired after a content and its cascade are gone
	ContentRemoved(ctx context.Context, content *Content) error

	// ImageRemoved is fired after an image is gone
	ImageRemoved(ctx context.Context, image *Image) error

	// FeatureRemoved is fired after a feature is gone
	FeatureRemoved(ctx context.Context, featureID uuid.UUID) error
}

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) FeaturesReconciled(ctx context.Context, content *Content, detached, attached []uuid.UUID) error {
	return nil
}

func (n *NoopEventSink) BlocksReconciled(ctx context.Context, content *Content, removed, added []uuid.UUID) error {
	return nil
}

func (n *NoopEventSink) ContentRemoved(ctx context.Context, content *Content) error {
	return nil
}

func (n *NoopEventSink) ImageRemoved(ctx context.Context, image *Image) error {
	return nil
}

func (n *NoopEventSink) FeatureRemoved(ctx context.Context, featureID uuid.UUID) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) FeaturesReconciled(ctx context.Context, content *Content, detached, attached []uuid.UUID) error {
	l.logger.InfoContext(ctx, "Features reconciled",
		"content_id", content.ID, "detached", len(detached), "attached", len(attached))
	return nil
}

func (l *LoggingEventSink) BlocksReconciled(ctx context.Context, content *Content, removed, added []uuid.UUID) error {
	l.logger.InfoContext(ctx, "Blocks reconciled",
		"content_id", content.ID, "removed_images", len(removed), "added_images", len(added))
	return nil
}

func (l *LoggingEventSink) ContentRemoved(ctx context.Context, content *Content) error {
	l.logger.InfoContext(ctx, "Content removed", "content_id", content.ID, "title", content.Title)
	return nil
}

func (l *LoggingEventSink) ImageRemoved(ctx context.Context, image *Image) error {
	l.logger.InfoContext(ctx, "Image removed", "image_id", image.ID, "file", image.File.Name)
	return nil
}

func (l *LoggingEventSink) FeatureRemoved(ctx context.Context, featureID uuid.UUID) error {
	l.logger.InfoContext(ctx, "Feature removed", "feature_id", featureID)
	return nil
}
