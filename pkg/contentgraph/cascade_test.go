package contentgraph_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-graph/pkg/contentgraph"
	"github.com/tendant/content-graph/pkg/contentgraph/repo/memory"
	memorystorage "github.com/tendant/content-graph/pkg/contentgraph/storage/memory"
)

// recordingRepo wraps the memory repository to observe writes and inject
// failures.
type recordingRepo struct {
	*memory.Repository

	contentSaves    atomic.Int32
	featureSaveN    atomic.Int32
	failFeature     atomic.Value // uuid.UUID
	failContentOnce atomic.Bool
	log             *opLog

	mu             sync.Mutex
	deletedImages  []contentgraph.Image
	savedContentID []uuid.UUID
}

func (r *recordingRepo) SaveContent(ctx context.Context, content *contentgraph.Content) error {
	if r.failContentOnce.CompareAndSwap(true, false) {
		return errors.New("content store unavailable")
	}
	r.log.add("save_content:" + content.ID.String())
	r.contentSaves.Add(1)
	r.mu.Lock()
	r.savedContentID = append(r.savedContentID, content.ID)
	r.mu.Unlock()
	return r.Repository.SaveContent(ctx, content)
}

func (r *recordingRepo) SaveFeature(ctx context.Context, feature *contentgraph.Feature) error {
	if id, ok := r.failFeature.Load().(uuid.UUID); ok && id == feature.ID {
		return errors.New("feature store unavailable")
	}
	r.featureSaveN.Add(1)
	return r.Repository.SaveFeature(ctx, feature)
}

// DeleteImage snapshots the stored image as it is at the moment of deletion.
func (r *recordingRepo) DeleteImage(ctx context.Context, id uuid.UUID) error {
	if img, err := r.Repository.GetImage(ctx, id); err == nil {
		r.mu.Lock()
		r.deletedImages = append(r.deletedImages, *img)
		r.mu.Unlock()
	}
	return r.Repository.DeleteImage(ctx, id)
}

func (r *recordingRepo) featureSaves() int32 {
	return r.featureSaveN.Load()
}

func (r *recordingRepo) contentSavesFor(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, saved := range r.savedContentID {
		if saved == id {
			n++
		}
	}
	return n
}

func (r *recordingRepo) deleted() []contentgraph.Image {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]contentgraph.Image(nil), r.deletedImages...)
}

// flakyBlobStore fails deletes while failDelete is set.
type flakyBlobStore struct {
	*memorystorage.Backend
	failDelete atomic.Bool
	log        *opLog
}

func (s *flakyBlobStore) Delete(ctx context.Context, key string) error {
	if s.failDelete.Load() {
		return errors.New("blob store unavailable")
	}
	s.log.add("delete_blob:" + key)
	return s.Backend.Delete(ctx, key)
}

// opLog records content saves and blob deletes in the order they happen.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	l.ops = append(l.ops, op)
	l.mu.Unlock()
}

// lastIndexOf returns the position of the latest occurrence of op, or -1.
func (l *opLog) lastIndexOf(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.ops) - 1; i >= 0; i-- {
		if l.ops[i] == op {
			return i
		}
	}
	return -1
}

func TestRemoveContent_ReleasesImagesWithoutTouchingContent(t *testing.T) {
	f := newFixture(t)
	f1, f2 := f.feature(t, "1"), f.feature(t, "2")
	i1, i2 := f.image(t, "1.png"), f.image(t, "2.png")
	c := f.content(t, contentgraph.CreateContentRequest{
		Features: []uuid.UUID{f1.ID, f2.ID},
		Blocks: []contentgraph.Block{
			contentgraph.NewImageBlock(i1),
			contentgraph.NewTextBlock("between"),
			contentgraph.NewImageBlock(i2),
		},
	})
	savesBefore := f.repo.contentSavesFor(c.ID)

	removed, err := f.svc.RemoveContent(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, removed.ID)

	// the removed content is never written back by its own image removals
	assert.Equal(t, savesBefore, f.repo.contentSavesFor(c.ID))

	deleted := f.repo.deleted()
	require.Len(t, deleted, 2)
	for _, img := range deleted {
		assert.Nil(t, img.ContentID, "back-reference must be cleared before delete")
		assert.Equal(t, contentgraph.ImageStateDetaching, img.State)
	}

	_, err = f.repo.GetContent(f.ctx, c.ID)
	assert.ErrorIs(t, err, contentgraph.ErrContentNotFound)
	assert.False(t, f.blobs.Exists(i1.File.Name))
	assert.False(t, f.blobs.Exists(i2.File.Name))
	assert.NotContains(t, f.storedFeature(t, f1.ID).Contents, c.ID)
	assert.NotContains(t, f.storedFeature(t, f2.ID).Contents, c.ID)
}

func TestRemoveImage_StripsOwnerBlocks(t *testing.T) {
	f := newFixture(t)
	i1, i2 := f.image(t, "1.png"), f.image(t, "2.png")
	c := f.content(t, contentgraph.CreateContentRequest{Blocks: []contentgraph.Block{
		contentgraph.NewTextBlock("a"),
		contentgraph.NewImageBlock(i1),
		contentgraph.NewImageBlock(i2),
	}})

	removed, err := f.svc.RemoveImage(f.ctx, i1.ID)
	require.NoError(t, err)
	assert.Equal(t, contentgraph.ImageStateDeleted, removed.State)
	assert.Nil(t, removed.ContentID)

	owner := f.storedContent(t, c.ID)
	require.Len(t, owner.Blocks, 2)
	assert.Equal(t, []uuid.UUID{i2.ID}, contentgraph.ImageIDs(owner.Blocks))

	deleted := f.repo.deleted()
	require.Len(t, deleted, 1)
	assert.Equal(t, i1.ID, deleted[0].ID)
	assert.Nil(t, deleted[0].ContentID)

	// the owner is persisted before the blob goes away
	saved := f.repo.log.lastIndexOf("save_content:" + c.ID.String())
	blob := f.repo.log.lastIndexOf("delete_blob:" + i1.File.Name)
	require.NotEqual(t, -1, saved)
	require.NotEqual(t, -1, blob)
	assert.Less(t, saved, blob)

	// the sibling image is untouched
	assert.True(t, f.storedImage(t, i2.ID).OwnedBy(c.ID))
	assert.True(t, f.blobs.Exists(i2.File.Name))
	assert.False(t, f.blobs.Exists(i1.File.Name))
}

func TestRemoveImage_Unattached(t *testing.T) {
	f := newFixture(t)
	img := f.image(t, "loose.png")
	f.content(t, contentgraph.CreateContentRequest{Blocks: []contentgraph.Block{contentgraph.NewTextBlock("unrelated")}})
	savesBefore := f.repo.contentSaves.Load()

	_, err := f.svc.RemoveImage(f.ctx, img.ID)
	require.NoError(t, err)
	assert.False(t, f.blobs.Exists(img.File.Name))

	// no owner, so no block reconciliation
	assert.Equal(t, savesBefore, f.repo.contentSaves.Load())

	_, err = f.svc.RemoveImage(f.ctx, img.ID)
	assert.ErrorIs(t, err, contentgraph.ErrImageNotFound)
}

func TestRemoveImage_BlobFailureStillDetaches(t *testing.T) {
	f := newFixture(t)
	img := f.image(t, "a.png")
	c := f.content(t, contentgraph.CreateContentRequest{Blocks: []contentgraph.Block{contentgraph.NewImageBlock(img)}})
	f.blobs.failDelete.Store(true)

	_, err := f.svc.RemoveImage(f.ctx, img.ID)
	require.Error(t, err)
	assert.Equal(t, contentgraph.KindBlob, contentgraph.KindOf(err))

	var partial *contentgraph.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.Attempted)
	assert.Equal(t, 1, partial.Succeeded())

	// the owner no longer references the image, and the image knows it
	assert.Empty(t, f.storedContent(t, c.ID).Blocks)
	stored := f.storedImage(t, img.ID)
	assert.Nil(t, stored.ContentID)
	assert.Equal(t, contentgraph.ImageStateDetaching, stored.State)

	// a retry finishes the job
	f.blobs.failDelete.Store(false)
	_, err = f.svc.RemoveImage(f.ctx, img.ID)
	require.NoError(t, err)
	assert.False(t, f.blobs.Exists(img.File.Name))
}

func TestRemoveImage_OwnerSaveFailureRestoresImage(t *testing.T) {
	f := newFixture(t)
	img := f.image(t, "a.png")
	c := f.content(t, contentgraph.CreateContentRequest{Blocks: []contentgraph.Block{contentgraph.NewImageBlock(img)}})
	f.repo.failContentOnce.Store(true)

	_, err := f.svc.RemoveImage(f.ctx, img.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, contentgraph.ErrPersistence)

	// the owner still holds the block, so the image is attached again
	stored := f.storedImage(t, img.ID)
	assert.Equal(t, contentgraph.ImageStateAttached, stored.State)
	assert.True(t, stored.OwnedBy(c.ID))
	assert.Equal(t, []uuid.UUID{img.ID}, contentgraph.ImageIDs(f.storedContent(t, c.ID).Blocks))

	// removing the owner now removes the image with it
	_, err = f.svc.RemoveContent(f.ctx, c.ID)
	require.NoError(t, err)
	_, err = f.repo.GetImage(f.ctx, img.ID)
	assert.ErrorIs(t, err, contentgraph.ErrImageNotFound)
	_, err = f.repo.GetContent(f.ctx, c.ID)
	assert.ErrorIs(t, err, contentgraph.ErrContentNotFound)
}

func TestRemoveContent_RemovesOwnedImageLeftDetaching(t *testing.T) {
	f := newFixture(t)
	img := f.image(t, "a.png")
	c := f.content(t, contentgraph.CreateContentRequest{Blocks: []contentgraph.Block{contentgraph.NewImageBlock(img)}})

	stuck := f.storedImage(t, img.ID)
	stuck.State = contentgraph.ImageStateDetaching
	require.NoError(t, f.repo.Repository.SaveImage(f.ctx, stuck))

	_, err := f.svc.RemoveContent(f.ctx, c.ID)
	require.NoError(t, err)

	_, err = f.repo.GetImage(f.ctx, img.ID)
	assert.ErrorIs(t, err, contentgraph.ErrImageNotFound)
	assert.False(t, f.blobs.Exists(img.File.Name))
	deleted := f.repo.deleted()
	require.Len(t, deleted, 1)
	assert.Nil(t, deleted[0].ContentID)
}

func TestRemoveContent_SkipsImageOwnedElsewhere(t *testing.T) {
	f := newFixture(t)
	img := f.image(t, "shared.png")
	owner := f.content(t, contentgraph.CreateContentRequest{Blocks: []contentgraph.Block{contentgraph.NewImageBlock(img)}})

	// a second content references the same image without owning it
	other := f.content(t, contentgraph.CreateContentRequest{})
	stored := f.storedContent(t, other.ID)
	stored.Blocks = []contentgraph.Block{contentgraph.NewImageBlock(img)}
	require.NoError(t, f.repo.Repository.SaveContent(f.ctx, stored))

	_, err := f.svc.RemoveContent(f.ctx, other.ID)
	require.NoError(t, err)

	assert.True(t, f.storedImage(t, img.ID).OwnedBy(owner.ID))
	assert.True(t, f.blobs.Exists(img.File.Name))
	assert.Len(t, f.storedContent(t, owner.ID).Blocks, 1)
}

func TestRemoveContent_FailureKeepsContent(t *testing.T) {
	f := newFixture(t)
	f1 := f.feature(t, "1")
	img := f.image(t, "a.png")
	c := f.content(t, contentgraph.CreateContentRequest{
		Features: []uuid.UUID{f1.ID},
		Blocks:   []contentgraph.Block{contentgraph.NewImageBlock(img)},
	})
	f.repo.failFeature.Store(f1.ID)

	_, err := f.svc.RemoveContent(f.ctx, c.ID)
	require.Error(t, err)
	assert.Equal(t, contentgraph.KindPersistence, contentgraph.KindOf(err))

	// the content survives, the image removal that completed is not undone
	f.storedContent(t, c.ID)
	_, err = f.repo.GetImage(f.ctx, img.ID)
	assert.ErrorIs(t, err, contentgraph.ErrImageNotFound)
}

func TestRemoveContent_MissingImageIsSkipped(t *testing.T) {
	f := newFixture(t)
	img := f.image(t, "a.png")
	c := f.content(t, contentgraph.CreateContentRequest{Blocks: []contentgraph.Block{contentgraph.NewImageBlock(img)}})
	require.NoError(t, f.repo.Repository.DeleteImage(f.ctx, img.ID))

	_, err := f.svc.RemoveContent(f.ctx, c.ID)
	require.NoError(t, err)
}

func TestRemoveFeature(t *testing.T) {
	f := newFixture(t)
	f1, f2 := f.feature(t, "1"), f.feature(t, "2")
	c1 := f.content(t, contentgraph.CreateContentRequest{Features: []uuid.UUID{f1.ID, f2.ID}})
	c2 := f.content(t, contentgraph.CreateContentRequest{Features: []uuid.UUID{f1.ID}})

	// a content referencing f1 that f1 does not know about
	c3 := f.content(t, contentgraph.CreateContentRequest{})
	stored := f.storedContent(t, c3.ID)
	stored.Features = []uuid.UUID{f1.ID}
	require.NoError(t, f.repo.Repository.SaveContent(f.ctx, stored))

	removed, err := f.svc.RemoveFeature(f.ctx, f1.ID)
	require.NoError(t, err)
	assert.Equal(t, f1.ID, removed.ID)

	assert.Equal(t, []uuid.UUID{f2.ID}, f.storedContent(t, c1.ID).Features)
	assert.Empty(t, f.storedContent(t, c2.ID).Features)
	assert.Empty(t, f.storedContent(t, c3.ID).Features)

	_, err = f.svc.GetFeature(f.ctx, f1.ID)
	assert.ErrorIs(t, err, contentgraph.ErrFeatureNotFound)
}

func TestRemovalHooks(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, name)
	}
	veto := errors.New("content is locked")
	var vetoID atomic.Value

	hooks := &contentgraph.Hooks{
		BeforeContentRemove: []contentgraph.ContentRemoveHook{
			func(hctx *contentgraph.HookContext, content *contentgraph.Content) error {
				if id, ok := vetoID.Load().(uuid.UUID); ok && id == content.ID {
					return veto
				}
				record("before_content")
				return nil
			},
		},
		AfterContentRemove: []contentgraph.ContentRemoveHook{
			func(hctx *contentgraph.HookContext, content *contentgraph.Content) error {
				record("after_content")
				return nil
			},
		},
		BeforeImageRemove: []contentgraph.ImageRemoveHook{
			func(hctx *contentgraph.HookContext, image *contentgraph.Image) error {
				record("before_image")
				return nil
			},
		},
		AfterImageRemove: []contentgraph.ImageRemoveHook{
			func(hctx *contentgraph.HookContext, image *contentgraph.Image) error {
				record("after_image")
				return nil
			},
		},
		OnError: []contentgraph.ErrorHook{
			func(hctx *contentgraph.HookContext, operation string, err error) {
				record("error:" + operation)
			},
		},
	}

	f := newFixture(t, contentgraph.WithHooks(hooks))
	img := f.image(t, "a.png")
	c := f.content(t, contentgraph.CreateContentRequest{Blocks: []contentgraph.Block{contentgraph.NewImageBlock(img)}})

	_, err := f.svc.RemoveContent(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"before_content", "before_image", "after_image", "after_content"}, calls)

	locked := f.content(t, contentgraph.CreateContentRequest{})
	vetoID.Store(locked.ID)
	calls = nil

	_, err = f.svc.RemoveContent(f.ctx, locked.ID)
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, []string{"error:remove_content"}, calls)
	f.storedContent(t, locked.ID)
}

func TestRemoveContent_ConcurrentWithImageRemoval(t *testing.T) {
	f := newFixture(t)
	images := make([]*contentgraph.Image, 8)
	blocks := make([]contentgraph.Block, 0, len(images))
	for i := range images {
		images[i] = f.image(t, "img.png")
		blocks = append(blocks, contentgraph.NewImageBlock(images[i]))
	}
	c := f.content(t, contentgraph.CreateContentRequest{Blocks: blocks})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.svc.RemoveContent(f.ctx, c.ID)
	}()
	go func() {
		defer wg.Done()
		f.svc.RemoveImage(f.ctx, images[0].ID)
	}()
	wg.Wait()

	// whatever the interleaving, no image blob outlives its record
	for _, img := range images {
		if _, err := f.repo.GetImage(f.ctx, img.ID); errors.Is(err, contentgraph.ErrImageNotFound) {
			assert.False(t, f.blobs.Exists(img.File.Name))
		}
	}
}
