package scan

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/content-graph/pkg/contentgraph"
)

// ProblemKind classifies a broken edge found by the IntegrityChecker.
type ProblemKind string

const (
	ProblemMissingFeature  ProblemKind = "missing_feature"
	ProblemFeatureBackref  ProblemKind = "feature_backref"
	ProblemMissingImage    ProblemKind = "missing_image"
	ProblemImageBackref    ProblemKind = "image_backref"
	ProblemImageState      ProblemKind = "image_state"
	ProblemMalformedBlocks ProblemKind = "malformed_blocks"
)

// Problem is one broken association between a content and a related entity.
type Problem struct {
	ContentID uuid.UUID   `json:"content_id"`
	Kind      ProblemKind `json:"kind"`
	RefID     uuid.UUID   `json:"ref_id,omitempty"`
	Detail    string      `json:"detail"`
}

func (p Problem) Error() string {
	return fmt.Sprintf("content %s: %s %s: %s", p.ContentID, p.Kind, p.RefID, p.Detail)
}

// IntegrityChecker verifies that a content's feature edges are mirrored on
// the features and that every image block points at an attached image owned
// by the content. It only reads; repairs go through the Service.
type IntegrityChecker struct {
	repo contentgraph.Repository

	mu       sync.Mutex
	problems []Problem
}

// NewIntegrityChecker creates a checker reading from repo.
func NewIntegrityChecker(repo contentgraph.Repository) *IntegrityChecker {
	return &IntegrityChecker{repo: repo}
}

// Process checks one content and records what it finds. The returned error
// joins every problem for the content.
func (c *IntegrityChecker) Process(ctx context.Context, content *contentgraph.Content) error {
	var found []Problem
	report := func(kind ProblemKind, ref uuid.UUID, detail string) {
		found = append(found, Problem{ContentID: content.ID, Kind: kind, RefID: ref, Detail: detail})
	}

	for _, featureID := range content.Features {
		feature, err := c.repo.GetFeature(ctx, featureID)
		if errors.Is(err, contentgraph.ErrNotFound) {
			report(ProblemMissingFeature, featureID, "feature does not exist")
			continue
		}
		if err != nil {
			return fmt.Errorf("get feature %s: %w", featureID, err)
		}
		if !slices.Contains(feature.Contents, content.ID) {
			report(ProblemFeatureBackref, featureID, "feature does not list content")
		}
	}

	if err := contentgraph.ValidateBlocks(content.Blocks); err != nil {
		report(ProblemMalformedBlocks, uuid.Nil, err.Error())
	}

	for _, imageID := range contentgraph.ImageIDs(content.Blocks) {
		img, err := c.repo.GetImage(ctx, imageID)
		if errors.Is(err, contentgraph.ErrNotFound) {
			report(ProblemMissingImage, imageID, "image does not exist")
			continue
		}
		if err != nil {
			return fmt.Errorf("get image %s: %w", imageID, err)
		}
		switch {
		case img.ContentID == nil || *img.ContentID != content.ID:
			report(ProblemImageBackref, imageID, "image is not owned by content")
		case img.State != contentgraph.ImageStateAttached:
			report(ProblemImageState, imageID, fmt.Sprintf("image is %s", img.State))
		}
	}

	if len(found) == 0 {
		return nil
	}

	c.mu.Lock()
	c.problems = append(c.problems, found...)
	c.mu.Unlock()

	errs := make([]error, len(found))
	for i, p := range found {
		errs[i] = p
	}
	return errors.Join(errs...)
}

// Problems returns everything recorded so far.
func (c *IntegrityChecker) Problems() []Problem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.problems)
}
