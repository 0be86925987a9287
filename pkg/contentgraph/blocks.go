package contentgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// BlockType tags the payload carried by a Block.
type BlockType string

// Block type constants. Only BlockTypeImage carries relational behavior; the
// others are opaque to this package.
const (
	BlockTypeText     BlockType = "text"
	BlockTypeHeading  BlockType = "heading"
	BlockTypeQuote    BlockType = "quote"
	BlockTypeList     BlockType = "list"
	BlockTypeVideo    BlockType = "video"
	BlockTypeMarkdown BlockType = "markdown"
	BlockTypeImage    BlockType = "image"
)

// Block is one item of a Content body: a type tag plus a type-specific
// payload.
type Block struct {
	Type BlockType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ImageBlockData is the payload of an image block.
type ImageBlockData struct {
	ID   uuid.UUID  `json:"_id"`
	File *ImageFile `json:"file,omitempty"`
}

// NewImageBlock builds an image block referencing img.
func NewImageBlock(img *Image) Block {
	file := img.File
	data, _ := json.Marshal(ImageBlockData{ID: img.ID, File: &file})
	return Block{Type: BlockTypeImage, Data: data}
}

// NewTextBlock builds a text block.
func NewTextBlock(text string) Block {
	data, _ := json.Marshal(map[string]string{"text": text})
	return Block{Type: BlockTypeText, Data: data}
}

// IsImage reports whether b is an image block.
func (b Block) IsImage() bool {
	return b.Type == BlockTypeImage
}

// ImageData decodes the payload of an image block.
func (b Block) ImageData() (ImageBlockData, error) {
	var data ImageBlockData
	if !b.IsImage() {
		return data, fmt.Errorf("block type %q is not an image block", b.Type)
	}
	if err := json.Unmarshal(b.Data, &data); err != nil {
		return data, fmt.Errorf("decode image block: %w", err)
	}
	if data.ID == uuid.Nil {
		return data, fmt.Errorf("image block has no image id")
	}
	return data, nil
}

// ImageID returns the referenced image id of an image block.
func (b Block) ImageID() (uuid.UUID, bool) {
	data, err := b.ImageData()
	if err != nil {
		return uuid.Nil, false
	}
	return data.ID, true
}

// Key returns the canonical serialization of b. Two blocks are structurally
// equal iff their keys are equal; payload key order and whitespace do not
// matter. Numbers are compared by their literal text, so large integers stay
// exact.
func (b Block) Key() string {
	var payload interface{}
	if len(b.Data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(b.Data))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil || dec.Decode(new(json.RawMessage)) != io.EOF {
			// not JSON; compare the raw bytes
			return string(b.Type) + "\x00" + string(b.Data)
		}
	}
	canonical, _ := json.Marshal(payload)
	return string(b.Type) + "\x00" + string(canonical)
}

// Equal reports structural equality.
func (b Block) Equal(other Block) bool {
	return b.Key() == other.Key()
}

// ValidateBlocks checks that every image block carries a decodable image id.
func ValidateBlocks(blocks []Block) error {
	for i, b := range blocks {
		if b.Type == "" {
			return fmt.Errorf("block %d: missing type", i)
		}
		if b.IsImage() {
			if _, err := b.ImageData(); err != nil {
				return fmt.Errorf("block %d: %w", i, err)
			}
		}
	}
	return nil
}

// ImageBlockDiff is the structural difference between two block sequences,
// restricted to image blocks.
type ImageBlockDiff struct {
	Removed []Block
	Added   []Block
}

// DiffImageBlocks compares current and desired by structural equality and
// returns the image blocks that disappear and appear. Non-image blocks never
// show up in the result, and each key is reported at most once.
func DiffImageBlocks(current, desired []Block) ImageBlockDiff {
	currentKeys := blockKeySet(current)
	desiredKeys := blockKeySet(desired)

	var diff ImageBlockDiff
	seen := make(map[string]struct{})
	for _, b := range current {
		k := b.Key()
		if !b.IsImage() || hasKey(desiredKeys, k) || hasKey(seen, k) {
			continue
		}
		seen[k] = struct{}{}
		diff.Removed = append(diff.Removed, b)
	}
	for _, b := range desired {
		k := b.Key()
		if !b.IsImage() || hasKey(currentKeys, k) || hasKey(seen, k) {
			continue
		}
		seen[k] = struct{}{}
		diff.Added = append(diff.Added, b)
	}
	return diff
}

// ImageIDs returns the distinct image ids referenced by blocks, in order.
func ImageIDs(blocks []Block) []uuid.UUID {
	var ids []uuid.UUID
	for _, b := range blocks {
		if id, ok := b.ImageID(); ok && !containsID(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// WithoutImage returns blocks minus every image block referencing imageID.
func WithoutImage(blocks []Block, imageID uuid.UUID) []Block {
	out := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if id, ok := b.ImageID(); ok && id == imageID {
			continue
		}
		out = append(out, b)
	}
	return out
}

func blockKeySet(blocks []Block) map[string]struct{} {
	set := make(map[string]struct{}, len(blocks))
	for _, b := range blocks {
		set[b.Key()] = struct{}{}
	}
	return set
}

func hasKey(set map[string]struct{}, k string) bool {
	_, ok := set[k]
	return ok
}

func cloneBlocks(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = Block{Type: b.Type, Data: append(json.RawMessage(nil), b.Data...)}
	}
	return out
}
