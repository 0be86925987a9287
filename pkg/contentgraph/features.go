package contentgraph

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DiffFeatures compares two feature sets by id. toDetach holds ids only in
// current, toAttach ids only in desired; the two are disjoint, duplicate free
// and keep the order of their source slice.
func DiffFeatures(current, desired []uuid.UUID) (toDetach, toAttach []uuid.UUID) {
	currentSet := idSet(current)
	desiredSet := idSet(desired)

	for _, id := range dedupIDs(current) {
		if _, ok := desiredSet[id]; !ok {
			toDetach = append(toDetach, id)
		}
	}
	for _, id := range dedupIDs(desired) {
		if _, ok := currentSet[id]; !ok {
			toAttach = append(toAttach, id)
		}
	}
	return toDetach, toAttach
}

// FeatureReconciler keeps Content.Features and Feature.Contents symmetric.
type FeatureReconciler struct {
	repo    Repository
	fanout  FanOut
	logger  *slog.Logger
	metrics *Metrics
}

// NewFeatureReconciler creates a reconciler writing through repo.
func NewFeatureReconciler(repo Repository, fanout FanOut, logger *slog.Logger) *FeatureReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeatureReconciler{repo: repo, fanout: fanout, logger: logger, metrics: fanout.Metrics}
}

// Reconcile moves content's feature set to desired.
//
// A nil desired set is a no-op and returns the current set. Otherwise the
// features to detach and to attach are updated concurrently, and only when
// every one of them succeeded is content.Features replaced and the content
// saved. Features updated before a failure are not rolled back.
func (r *FeatureReconciler) Reconcile(ctx context.Context, content *Content, desired []uuid.UUID) ([]uuid.UUID, error) {
	if desired == nil {
		return cloneIDs(content.Features), nil
	}
	desired = dedupIDs(desired)
	toDetach, toAttach := DiffFeatures(content.Features, desired)

	err := r.fanout.Run(ctx, "reconcile_features",
		func(ctx context.Context) error {
			return ForEach(ctx, r.fanout, "detach_feature", toDetach, func(ctx context.Context, featureID uuid.UUID) error {
				return r.detach(ctx, featureID, content.ID)
			})
		},
		func(ctx context.Context) error {
			return ForEach(ctx, r.fanout, "attach_feature", toAttach, func(ctx context.Context, featureID uuid.UUID) error {
				return r.attach(ctx, featureID, content.ID)
			})
		},
	)
	if err != nil {
		r.metrics.observeReconcile("features", err)
		r.logger.WarnContext(ctx, "Feature reconciliation failed, completed feature updates are kept",
			"content_id", content.ID, "detach", len(toDetach), "attach", len(toAttach), "err", err)
		return nil, &ContentError{ContentID: content.ID, Op: "reconcile_features", Err: err}
	}

	updated := content.Clone()
	updated.Features = desired
	updated.UpdatedAt = time.Now().UTC()
	if err := r.repo.SaveContent(ctx, updated); err != nil {
		err = persistenceFailure(err)
		r.metrics.observeReconcile("features", err)
		return nil, &ContentError{ContentID: content.ID, Op: "reconcile_features", Err: err}
	}

	content.Features = updated.Features
	content.UpdatedAt = updated.UpdatedAt
	r.metrics.observeReconcile("features", nil)
	r.logger.DebugContext(ctx, "Features reconciled",
		"content_id", content.ID, "detached", len(toDetach), "attached", len(toAttach))
	return cloneIDs(desired), nil
}

// DetachAll pulls content from every feature it references. Features that no
// longer exist have nothing to detach and are skipped.
func (r *FeatureReconciler) DetachAll(ctx context.Context, content *Content) error {
	return ForEach(ctx, r.fanout, "cascade_detach_feature", dedupIDs(content.Features), func(ctx context.Context, featureID uuid.UUID) error {
		err := r.detach(ctx, featureID, content.ID)
		if errors.Is(err, ErrNotFound) {
			r.logger.WarnContext(ctx, "Feature already gone", "feature_id", featureID, "content_id", content.ID)
			return nil
		}
		return err
	})
}

func (r *FeatureReconciler) detach(ctx context.Context, featureID, contentID uuid.UUID) error {
	feature, err := r.repo.GetFeature(ctx, featureID)
	if err != nil {
		return &FeatureError{FeatureID: featureID, Op: "detach", Err: persistenceFailure(err)}
	}
	if !feature.PullContent(contentID) {
		return nil
	}
	feature.UpdatedAt = time.Now().UTC()
	if err := r.repo.SaveFeature(ctx, feature); err != nil {
		return &FeatureError{FeatureID: featureID, Op: "detach", Err: persistenceFailure(err)}
	}
	return nil
}

func (r *FeatureReconciler) attach(ctx context.Context, featureID, contentID uuid.UUID) error {
	feature, err := r.repo.GetFeature(ctx, featureID)
	if err != nil {
		return &FeatureError{FeatureID: featureID, Op: "attach", Err: persistenceFailure(err)}
	}
	if !feature.AddContent(contentID) {
		return nil
	}
	feature.UpdatedAt = time.Now().UTC()
	if err := r.repo.SaveFeature(ctx, feature); err != nil {
		return &FeatureError{FeatureID: featureID, Op: "attach", Err: persistenceFailure(err)}
	}
	return nil
}

func idSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// dedupIDs keeps the first occurrence of every id. A non-nil input always
// yields a non-nil result.
func dedupIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return nil
	}
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
