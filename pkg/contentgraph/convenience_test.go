package contentgraph_test

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-graph/pkg/contentgraph"
)

func TestAttachFeature(t *testing.T) {
	f := newFixture(t)
	f1, f2 := f.feature(t, "1"), f.feature(t, "2")
	c := f.content(t, contentgraph.CreateContentRequest{Features: []uuid.UUID{f1.ID}})

	updated, err := contentgraph.AttachFeature(f.ctx, f.svc, c.ID, f2.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f1.ID, f2.ID}, updated.Features)
	assert.Contains(t, f.storedFeature(t, f2.ID).Contents, c.ID)

	again, err := contentgraph.AttachFeature(f.ctx, f.svc, c.ID, f2.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Features, again.Features)
}

func TestUploadAndAppendImage(t *testing.T) {
	f := newFixture(t)
	c := f.content(t, contentgraph.CreateContentRequest{Blocks: []contentgraph.Block{contentgraph.NewTextBlock("intro")}})

	img, content, err := contentgraph.UploadAndAppendImage(f.ctx, f.svc, c.ID, contentgraph.UploadImageRequest{
		FileName: "a.png",
		Reader:   strings.NewReader("png"),
	})
	require.NoError(t, err)
	assert.True(t, img.OwnedBy(c.ID))
	assert.Equal(t, contentgraph.ImageStateAttached, img.State)
	require.Len(t, content.Blocks, 2)
	assert.Equal(t, []uuid.UUID{img.ID}, contentgraph.ImageIDs(content.Blocks))
}

func TestUploadAndAppendImage_MissingContent(t *testing.T) {
	f := newFixture(t)

	_, _, err := contentgraph.UploadAndAppendImage(f.ctx, f.svc, uuid.New(), contentgraph.UploadImageRequest{
		FileName: "a.png",
		Reader:   strings.NewReader("png"),
	})
	assert.ErrorIs(t, err, contentgraph.ErrContentNotFound)
	assert.Empty(t, f.blobs.Keys())
}

func TestListAllContent(t *testing.T) {
	f := newFixture(t)
	layer := uuid.New()
	for i := 0; i < 7; i++ {
		f.content(t, contentgraph.CreateContentRequest{LayerID: layer})
	}

	all, err := contentgraph.ListAllContent(f.ctx, f.svc, contentgraph.ListContentRequest{LayerID: &layer, PerPage: 3})
	require.NoError(t, err)
	assert.Len(t, all, 7)

	seen := map[uuid.UUID]bool{}
	for _, c := range all {
		assert.False(t, seen[c.ID], "duplicate %s", c.ID)
		seen[c.ID] = true
	}
}
