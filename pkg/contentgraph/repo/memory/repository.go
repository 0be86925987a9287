package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/content-graph/pkg/contentgraph"
)

// Repository implements contentgraph.Repository using in-memory storage.
// Every call is atomic; records are copied on the way in and out.
type Repository struct {
	mu       sync.RWMutex
	contents map[uuid.UUID]*contentgraph.Content
	features map[uuid.UUID]*contentgraph.Feature
	images   map[uuid.UUID]*contentgraph.Image
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		contents: make(map[uuid.UUID]*contentgraph.Content),
		features: make(map[uuid.UUID]*contentgraph.Feature),
		images:   make(map[uuid.UUID]*contentgraph.Image),
	}
}

var _ contentgraph.Repository = (*Repository)(nil)

// Content operations

func (r *Repository) GetContent(ctx context.Context, id uuid.UUID) (*contentgraph.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	content, exists := r.contents[id]
	if !exists {
		return nil, contentgraph.ErrContentNotFound
	}
	return content.Clone(), nil
}

func (r *Repository) SaveContent(ctx context.Context, content *contentgraph.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.contents[content.ID] = content.Clone()
	return nil
}

func (r *Repository) DeleteContent(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contents[id]; !exists {
		return contentgraph.ErrContentNotFound
	}
	delete(r.contents, id)
	return nil
}

func (r *Repository) ListContent(ctx context.Context, filter contentgraph.ContentFilter) ([]*contentgraph.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentgraph.Content
	for _, content := range r.contents {
		if filter.LayerID != nil && content.LayerID != *filter.LayerID {
			continue
		}
		if filter.CreatorID != nil && content.CreatorID != *filter.CreatorID {
			continue
		}
		if filter.Tag != "" && !slices.Contains(content.Tags, filter.Tag) {
			continue
		}
		result = append(result, content.Clone())
	}

	// Sort by created_at descending, id breaks ties so pages are stable
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*contentgraph.Content{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *Repository) ListContentByFeature(ctx context.Context, featureID uuid.UUID) ([]*contentgraph.Content, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*contentgraph.Content
	for _, content := range r.contents {
		if slices.Contains(content.Features, featureID) {
			result = append(result, content.Clone())
		}
	}
	return result, nil
}

// Feature operations

func (r *Repository) GetFeature(ctx context.Context, id uuid.UUID) (*contentgraph.Feature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	feature, exists := r.features[id]
	if !exists {
		return nil, contentgraph.ErrFeatureNotFound
	}
	return feature.Clone(), nil
}

func (r *Repository) SaveFeature(ctx context.Context, feature *contentgraph.Feature) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.features[feature.ID] = feature.Clone()
	return nil
}

func (r *Repository) DeleteFeature(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.features[id]; !exists {
		return contentgraph.ErrFeatureNotFound
	}
	delete(r.features, id)
	return nil
}

// Image operations

func (r *Repository) GetImage(ctx context.Context, id uuid.UUID) (*contentgraph.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	img, exists := r.images[id]
	if !exists {
		return nil, contentgraph.ErrImageNotFound
	}
	return img.Clone(), nil
}

func (r *Repository) SaveImage(ctx context.Context, img *contentgraph.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.images[img.ID] = img.Clone()
	return nil
}

func (r *Repository) DeleteImage(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.images[id]; !exists {
		return contentgraph.ErrImageNotFound
	}
	delete(r.images, id)
	return nil
}
