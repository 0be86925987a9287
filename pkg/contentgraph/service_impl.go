package contentgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tendant/content-graph/pkg/contentgraph/objectkey"
	"github.com/tendant/content-graph/pkg/contentgraph/urlstrategy"
)

const tracerName = "github.com/tendant/content-graph/pkg/contentgraph"

// service implements the Service interface
type service struct {
	repository       Repository
	blobStore        BlobStore
	eventSink        EventSink
	hooks            *Hooks
	logger           *slog.Logger
	metrics          *Metrics
	maxConcurrency   int
	operationTimeout time.Duration
	urlStrategy      urlstrategy.URLStrategy
	keyGenerator     objectkey.Generator

	cascade *CascadeController
	tracer  trace.Tracer
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the store holding image files
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithHooks registers removal hooks
func WithHooks(hooks *Hooks) Option {
	return func(s *service) {
		s.hooks = hooks
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithMetrics sets the Prometheus collectors
func WithMetrics(metrics *Metrics) Option {
	return func(s *service) {
		s.metrics = metrics
	}
}

// WithMaxConcurrency bounds the goroutines of every fan-out; 0 means unbounded
func WithMaxConcurrency(n int) Option {
	return func(s *service) {
		s.maxConcurrency = n
	}
}

// WithOperationTimeout sets a deadline on every public operation
func WithOperationTimeout(d time.Duration) Option {
	return func(s *service) {
		s.operationTimeout = d
	}
}

// WithImageBaseURL serves uploaded images directly from baseURL + object key
func WithImageBaseURL(baseURL string) Option {
	return func(s *service) {
		s.urlStrategy = urlstrategy.NewCDNStrategy(baseURL)
	}
}

// WithURLStrategy sets how uploaded image URLs are built
func WithURLStrategy(strategy urlstrategy.URLStrategy) Option {
	return func(s *service) {
		s.urlStrategy = strategy
	}
}

// WithObjectKeyGenerator sets how image blob keys are laid out in the store
func WithObjectKeyGenerator(gen objectkey.Generator) Option {
	return func(s *service) {
		s.keyGenerator = gen
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.maxConcurrency < 0 {
		return nil, fmt.Errorf("max concurrency must not be negative")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.urlStrategy == nil {
		s.urlStrategy = urlstrategy.NewCDNStrategy("")
	}
	if s.keyGenerator == nil {
		s.keyGenerator = objectkey.NewDefaultGenerator()
	}

	s.tracer = otel.Tracer(tracerName)
	s.cascade = NewCascadeController(CascadeConfig{
		Repository: s.repository,
		BlobStore:  s.blobStore,
		FanOut:     FanOut{MaxConcurrency: s.maxConcurrency, Metrics: s.metrics},
		Hooks:      s.hooks,
		Events:     s.eventSink,
		Logger:     s.logger,
	})

	return s, nil
}

// begin starts the span of a public operation and applies the operation
// timeout. The returned func ends both and records err on the span.
func (s *service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := s.tracer.Start(ctx, "contentgraph."+op, trace.WithAttributes(attrs...))
	cancel := context.CancelFunc(func() {})
	if s.operationTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.operationTimeout)
	}
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("contentgraph.error_kind", string(KindOf(err))))
		}
		cancel()
		span.End()
	}
}

func (s *service) notify(ctx context.Context, event string, err error) {
	if err != nil {
		s.logger.WarnContext(ctx, "Event sink failed", "event", event, "err", err)
	}
}

// Association operations

func (s *service) ReconcileFeatures(ctx context.Context, contentID uuid.UUID, desired []uuid.UUID) (_ *Content, err error) {
	ctx, end := s.begin(ctx, "ReconcileFeatures",
		attribute.String("content.id", contentID.String()),
		attribute.Int("features.desired", len(desired)))
	defer func() { end(err) }()

	content, err := s.loadContent(ctx, contentID, "reconcile_features")
	if err != nil {
		return nil, err
	}
	if desired == nil {
		return content, nil
	}

	detached, attached := DiffFeatures(content.Features, desired)
	if _, err := s.cascade.Features().Reconcile(ctx, content, desired); err != nil {
		return nil, err
	}
	s.notify(ctx, "features_reconciled", s.eventSink.FeaturesReconciled(ctx, content, detached, attached))
	return content, nil
}

func (s *service) ReconcileBlocks(ctx context.Context, contentID uuid.UUID, desired []Block) (_ *Content, err error) {
	ctx, end := s.begin(ctx, "ReconcileBlocks",
		attribute.String("content.id", contentID.String()),
		attribute.Int("blocks.desired", len(desired)))
	defer func() { end(err) }()

	content, err := s.loadContent(ctx, contentID, "reconcile_blocks")
	if err != nil {
		return nil, err
	}
	if desired == nil {
		return content, nil
	}

	removed, added := imageChanges(content.Blocks, desired)
	if _, err := s.cascade.Blocks().Reconcile(ctx, content, desired); err != nil {
		return nil, err
	}
	s.notify(ctx, "blocks_reconciled", s.eventSink.BlocksReconciled(ctx, content, removed, added))
	return content, nil
}

// DetachFeature removes a single feature from a content. Both sides of the
// association are updated.
func (s *service) DetachFeature(ctx context.Context, contentID, featureID uuid.UUID) (_ *Content, err error) {
	ctx, end := s.begin(ctx, "DetachFeature",
		attribute.String("content.id", contentID.String()),
		attribute.String("feature.id", featureID.String()))
	defer func() { end(err) }()

	content, err := s.loadContent(ctx, contentID, "detach_feature")
	if err != nil {
		return nil, err
	}
	if _, err := s.cascade.Features().Reconcile(ctx, content, withoutID(content.Features, featureID)); err != nil {
		return nil, err
	}
	s.notify(ctx, "features_reconciled", s.eventSink.FeaturesReconciled(ctx, content, []uuid.UUID{featureID}, nil))
	return content, nil
}

// Removal operations

func (s *service) RemoveContent(ctx context.Context, id uuid.UUID) (_ *Content, err error) {
	ctx, end := s.begin(ctx, "RemoveContent", attribute.String("content.id", id.String()))
	defer func() { end(err) }()

	content, err := s.loadContent(ctx, id, "remove")
	if err != nil {
		return nil, err
	}
	if err := s.cascade.RemoveContent(ctx, content); err != nil {
		return nil, err
	}
	return content, nil
}

func (s *service) RemoveImage(ctx context.Context, id uuid.UUID) (_ *Image, err error) {
	ctx, end := s.begin(ctx, "RemoveImage", attribute.String("image.id", id.String()))
	defer func() { end(err) }()

	img, err := s.repository.GetImage(ctx, id)
	if err != nil {
		return nil, &ImageError{ImageID: id, Op: "remove", Err: persistenceFailure(err)}
	}
	if err := s.cascade.RemoveImage(ctx, img); err != nil {
		return nil, err
	}
	return img, nil
}

func (s *service) RemoveFeature(ctx context.Context, id uuid.UUID) (_ *Feature, err error) {
	ctx, end := s.begin(ctx, "RemoveFeature", attribute.String("feature.id", id.String()))
	defer func() { end(err) }()

	feature, err := s.repository.GetFeature(ctx, id)
	if err != nil {
		return nil, &FeatureError{FeatureID: id, Op: "remove", Err: persistenceFailure(err)}
	}
	if err := s.cascade.RemoveFeature(ctx, feature); err != nil {
		return nil, err
	}
	return feature, nil
}

// Content operations

// CreateContent validates and saves a new content, then applies the requested
// features and blocks through the reconcilers. If one of those fails the
// content exists with whatever was committed.
func (s *service) CreateContent(ctx context.Context, req CreateContentRequest) (_ *Content, err error) {
	ctx, end := s.begin(ctx, "CreateContent", attribute.String("content.type", string(req.Type)))
	defer func() { end(err) }()

	if err := validateCreateContent(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	content := &Content{
		ID:        uuid.New(),
		Type:      req.Type,
		Title:     req.Title,
		URL:       req.URL,
		Markdown:  req.Markdown,
		Blocks:    []Block{},
		Features:  []uuid.UUID{},
		LayerID:   req.LayerID,
		CreatorID: req.CreatorID,
		Tags:      NormalizeTags(req.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repository.SaveContent(ctx, content); err != nil {
		return nil, &ContentError{ContentID: content.ID, Op: "create", Err: persistenceFailure(err)}
	}

	if len(req.Features) > 0 {
		if _, err := s.cascade.Features().Reconcile(ctx, content, req.Features); err != nil {
			return nil, err
		}
	}
	if len(req.Blocks) > 0 {
		if _, err := s.cascade.Blocks().Reconcile(ctx, content, req.Blocks); err != nil {
			return nil, err
		}
	}

	s.logger.DebugContext(ctx, "Content created", "content_id", content.ID, "type", content.Type)
	return content, nil
}

func validateCreateContent(req CreateContentRequest) error {
	var problems []string
	if strings.TrimSpace(req.Title) == "" {
		problems = append(problems, "title is required")
	}
	if req.LayerID == uuid.Nil {
		problems = append(problems, "layer is required")
	}
	if !req.Type.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown content type %q", req.Type))
	}
	if err := ValidateBlocks(req.Blocks); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidContent, strings.Join(problems, "; "))
	}
	return nil
}

func (s *service) GetContent(ctx context.Context, id uuid.UUID) (_ *Content, err error) {
	ctx, end := s.begin(ctx, "GetContent", attribute.String("content.id", id.String()))
	defer func() { end(err) }()

	return s.loadContent(ctx, id, "get")
}

// LoadContent returns a content with its features resolved. Features that no
// longer exist are left out.
func (s *service) LoadContent(ctx context.Context, id uuid.UUID) (_ *ContentDetails, err error) {
	ctx, end := s.begin(ctx, "LoadContent", attribute.String("content.id", id.String()))
	defer func() { end(err) }()

	content, err := s.loadContent(ctx, id, "load")
	if err != nil {
		return nil, err
	}

	resolved := make([]*Feature, len(content.Features))
	var mu sync.Mutex
	indexes := make([]int, len(content.Features))
	for i := range indexes {
		indexes[i] = i
	}
	err = ForEach(ctx, s.cascade.fanout, "load_feature", indexes, func(ctx context.Context, i int) error {
		feature, err := s.repository.GetFeature(ctx, content.Features[i])
		if errors.Is(err, ErrNotFound) {
			s.logger.WarnContext(ctx, "Content references missing feature",
				"content_id", id, "feature_id", content.Features[i])
			return nil
		}
		if err != nil {
			return &FeatureError{FeatureID: content.Features[i], Op: "load", Err: persistenceFailure(err)}
		}
		mu.Lock()
		resolved[i] = feature
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, &ContentError{ContentID: id, Op: "load", Err: err}
	}

	details := &ContentDetails{Content: content, Features: make([]*Feature, 0, len(resolved))}
	for _, feature := range resolved {
		if feature != nil {
			details.Features = append(details.Features, feature)
		}
	}
	return details, nil
}

// ListContent returns contents newest first.
func (s *service) ListContent(ctx context.Context, req ListContentRequest) (_ []*Content, err error) {
	ctx, end := s.begin(ctx, "ListContent")
	defer func() { end(err) }()

	if req.Page < 0 {
		return nil, fmt.Errorf("%w: page must not be negative", ErrInvalidContent)
	}
	perPage := req.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	contents, err := s.repository.ListContent(ctx, ContentFilter{
		LayerID:   req.LayerID,
		CreatorID: req.CreatorID,
		Tag:       NormalizeTag(req.Tag),
		Limit:     perPage,
		Offset:    perPage * req.Page,
	})
	if err != nil {
		return nil, fmt.Errorf("list content: %w", persistenceFailure(err))
	}
	return contents, nil
}

// Feature operations

func (s *service) CreateFeature(ctx context.Context, req CreateFeatureRequest) (_ *Feature, err error) {
	ctx, end := s.begin(ctx, "CreateFeature")
	defer func() { end(err) }()

	now := time.Now().UTC()
	feature := &Feature{
		ID:        uuid.New(),
		Title:     req.Title,
		Contents:  []uuid.UUID{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repository.SaveFeature(ctx, feature); err != nil {
		return nil, &FeatureError{FeatureID: feature.ID, Op: "create", Err: persistenceFailure(err)}
	}
	return feature, nil
}

func (s *service) GetFeature(ctx context.Context, id uuid.UUID) (_ *Feature, err error) {
	ctx, end := s.begin(ctx, "GetFeature", attribute.String("feature.id", id.String()))
	defer func() { end(err) }()

	feature, err := s.repository.GetFeature(ctx, id)
	if err != nil {
		return nil, &FeatureError{FeatureID: id, Op: "get", Err: persistenceFailure(err)}
	}
	return feature, nil
}

// Image operations

// UploadImage stores the file under the key chosen by the object key
// generator and saves an unattached image pointing at it. The blob is
// deleted again if the record cannot be saved.
func (s *service) UploadImage(ctx context.Context, req UploadImageRequest) (_ *Image, err error) {
	ctx, end := s.begin(ctx, "UploadImage", attribute.String("image.file_name", req.FileName))
	defer func() { end(err) }()

	name := path.Base(strings.ReplaceAll(req.FileName, "\\", "/"))
	if req.Reader == nil || name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("%w: image file is required", ErrInvalidContent)
	}
	if s.blobStore == nil {
		return nil, &StorageError{Op: "upload", Err: ErrBlobStoreNotConfigured}
	}

	id := uuid.New()
	key := s.keyGenerator.GenerateKey(id, name)
	if err := s.blobStore.UploadWithParams(ctx, req.Reader, UploadParams{ObjectKey: key, MimeType: req.MimeType}); err != nil {
		return nil, &StorageError{Key: key, Op: "upload", Err: err}
	}

	now := time.Now().UTC()
	img := &Image{
		ID:        id,
		CreatorID: req.CreatorID,
		State:     ImageStateUnattached,
		File: ImageFile{
			Name: key,
			URL:  s.urlStrategy.ImageURL(id, key),
		},
		UploadedAt: now,
		UpdatedAt:  now,
	}
	if err := s.repository.SaveImage(ctx, img); err != nil {
		if delErr := s.blobStore.Delete(ctx, key); delErr != nil {
			s.logger.WarnContext(ctx, "Failed to clean up uploaded blob", "key", key, "err", delErr)
		}
		return nil, &ImageError{ImageID: id, Op: "upload", Err: persistenceFailure(err)}
	}
	return img, nil
}

func (s *service) GetImage(ctx context.Context, id uuid.UUID) (_ *Image, err error) {
	ctx, end := s.begin(ctx, "GetImage", attribute.String("image.id", id.String()))
	defer func() { end(err) }()

	img, err := s.repository.GetImage(ctx, id)
	if err != nil {
		return nil, &ImageError{ImageID: id, Op: "get", Err: persistenceFailure(err)}
	}
	return img, nil
}

// DownloadImage opens the blob of an image. The caller closes the reader.
func (s *service) DownloadImage(ctx context.Context, id uuid.UUID) (_ *Image, _ io.ReadCloser, err error) {
	ctx, end := s.begin(ctx, "DownloadImage", attribute.String("image.id", id.String()))
	defer func() { end(err) }()

	img, err := s.repository.GetImage(ctx, id)
	if err != nil {
		return nil, nil, &ImageError{ImageID: id, Op: "download", Err: persistenceFailure(err)}
	}
	if img.State.Removing() {
		return nil, nil, &ImageError{ImageID: id, Op: "download", Err: ErrImageNotFound}
	}
	if s.blobStore == nil {
		return nil, nil, &StorageError{Key: img.File.Name, Op: "download", Err: ErrBlobStoreNotConfigured}
	}
	// The reader outlives this call, so it must not be tied to the operation deadline.
	rc, err := s.blobStore.Download(context.WithoutCancel(ctx), img.File.Name)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, nil, &ImageError{ImageID: id, Op: "download", Err: fmt.Errorf("%w: %w", ErrImageNotFound, err)}
		}
		return nil, nil, &StorageError{Key: img.File.Name, Op: "download", Err: err}
	}
	return img, rc, nil
}

func (s *service) loadContent(ctx context.Context, id uuid.UUID, op string) (*Content, error) {
	content, err := s.repository.GetContent(ctx, id)
	if err != nil {
		return nil, &ContentError{ContentID: id, Op: op, Err: persistenceFailure(err)}
	}
	return content, nil
}
