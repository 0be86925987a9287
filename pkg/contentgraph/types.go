package contentgraph

import (
	"time"

	"github.com/google/uuid"
)

// ContentType is the discriminator of a Content document.
type ContentType string

// Content type constants (typed).
const (
	ContentTypeMarkdown     ContentType = "Markdown"
	ContentTypePost         ContentType = "Post"
	ContentTypeVideo        ContentType = "Video"
	ContentTypeImageGallery ContentType = "Image Gallery"
)

// IsValid reports whether t is one of the known content types.
func (t ContentType) IsValid() bool {
	switch t {
	case ContentTypeMarkdown, ContentTypePost, ContentTypeVideo, ContentTypeImageGallery:
		return true
	}
	return false
}

// ImageState is the lifecycle state of an Image with respect to its owner.
type ImageState string

// Image state constants (typed).
const (
	ImageStateUnattached ImageState = "unattached"
	ImageStateAttached   ImageState = "attached"
	ImageStateDetaching  ImageState = "detaching"
	ImageStateDeleted    ImageState = "deleted"
)

// Removing reports whether the image is already on its way out. Removal paths
// that find an image in this state must not start another removal.
func (s ImageState) Removing() bool {
	return s == ImageStateDetaching || s == ImageStateDeleted
}

// Content is a document owned by a layer.
//
// Features and Feature.Contents are the two halves of one many-to-many
// association. Blocks is the ordered body; Image blocks point at Image
// entities whose ContentID points back here.
type Content struct {
	ID        uuid.UUID   `json:"id"`
	Type      ContentType `json:"type"`
	Title     string      `json:"title"`
	URL       string      `json:"url,omitempty"`
	Markdown  string      `json:"markdown,omitempty"`
	Blocks    []Block     `json:"blocks"`
	Features  []uuid.UUID `json:"features"`
	LayerID   uuid.UUID   `json:"layer_id"`
	CreatorID uuid.UUID   `json:"creator_id,omitempty"`
	Tags      []string    `json:"tags,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of c.
func (c *Content) Clone() *Content {
	if c == nil {
		return nil
	}
	out := *c
	out.Blocks = cloneBlocks(c.Blocks)
	out.Features = cloneIDs(c.Features)
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	return &out
}

// Feature groups contents; Contents is the inverse edge of Content.Features.
type Feature struct {
	ID        uuid.UUID   `json:"id"`
	Title     string      `json:"title,omitempty"`
	Contents  []uuid.UUID `json:"contents"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of f.
func (f *Feature) Clone() *Feature {
	if f == nil {
		return nil
	}
	out := *f
	out.Contents = cloneIDs(f.Contents)
	return &out
}

// HasContent reports whether id is in f.Contents.
func (f *Feature) HasContent(id uuid.UUID) bool {
	return containsID(f.Contents, id)
}

// AddContent inserts id into f.Contents. Adding an id that is already present
// is a no-op. It reports whether the set changed.
func (f *Feature) AddContent(id uuid.UUID) bool {
	if f.HasContent(id) {
		return false
	}
	f.Contents = append(f.Contents, id)
	return true
}

// PullContent removes every occurrence of id from f.Contents and reports
// whether the set changed.
func (f *Feature) PullContent(id uuid.UUID) bool {
	before := len(f.Contents)
	f.Contents = withoutID(f.Contents, id)
	return len(f.Contents) != before
}

// ImageFile describes the stored blob behind an Image.
type ImageFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Image is an uploaded picture. ContentID is a relation, not ownership: it
// names the Content whose blocks reference the image, if any.
type Image struct {
	ID         uuid.UUID  `json:"id"`
	CreatorID  uuid.UUID  `json:"creator_id,omitempty"`
	ContentID  *uuid.UUID `json:"content_id,omitempty"`
	State      ImageState `json:"state"`
	File       ImageFile  `json:"file"`
	UploadedAt time.Time  `json:"uploaded_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of img.
func (img *Image) Clone() *Image {
	if img == nil {
		return nil
	}
	out := *img
	if img.ContentID != nil {
		id := *img.ContentID
		out.ContentID = &id
	}
	return &out
}

// OwnedBy reports whether the back-reference points at contentID.
func (img *Image) OwnedBy(contentID uuid.UUID) bool {
	return img.ContentID != nil && *img.ContentID == contentID
}

// ContentDetails is a Content with its feature references resolved.
type ContentDetails struct {
	Content  *Content   `json:"content"`
	Features []*Feature `json:"features"`
}

func cloneIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return nil
	}
	return append([]uuid.UUID(nil), ids...)
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func withoutID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
