package contentgraph

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageBlock(id uuid.UUID, url string) Block {
	return NewImageBlock(&Image{ID: id, File: ImageFile{Name: "images/" + id.String(), URL: url}})
}

func TestBlock_Key(t *testing.T) {
	a := Block{Type: BlockTypeText, Data: json.RawMessage(`{"text":"hi","level":1}`)}
	b := Block{Type: BlockTypeText, Data: json.RawMessage(`{ "level": 1, "text": "hi" }`)}
	c := Block{Type: BlockTypeHeading, Data: json.RawMessage(`{"text":"hi","level":1}`)}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, Block{Type: "x", Data: json.RawMessage("not json")}.Key(), "x\x00not json")
}

func TestBlock_KeyLargeNumbers(t *testing.T) {
	a := Block{Type: BlockTypeText, Data: json.RawMessage(`{"n":9007199254740993}`)}
	b := Block{Type: BlockTypeText, Data: json.RawMessage(`{"n":9007199254740992}`)}
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(Block{Type: BlockTypeText, Data: json.RawMessage(` { "n": 9007199254740993 } `)}))

	trailing := Block{Type: BlockTypeText, Data: json.RawMessage(`{"n":1} x`)}
	assert.NotEqual(t, trailing.Key(), Block{Type: BlockTypeText, Data: json.RawMessage(`{"n":1}`)}.Key())
}

func TestBlock_ImageData(t *testing.T) {
	id := uuid.New()
	b := imageBlock(id, "/files/a.png")

	got, ok := b.ImageID()
	require.True(t, ok)
	assert.Equal(t, id, got)

	data, err := b.ImageData()
	require.NoError(t, err)
	assert.Equal(t, "/files/a.png", data.File.URL)

	_, ok = NewTextBlock("x").ImageID()
	assert.False(t, ok)

	_, err = Block{Type: BlockTypeImage, Data: json.RawMessage(`{}`)}.ImageData()
	assert.Error(t, err)
}

func TestValidateBlocks(t *testing.T) {
	assert.NoError(t, ValidateBlocks(nil))
	assert.NoError(t, ValidateBlocks([]Block{NewTextBlock("a"), imageBlock(uuid.New(), "")}))
	assert.Error(t, ValidateBlocks([]Block{{Data: json.RawMessage(`{}`)}}))
	assert.Error(t, ValidateBlocks([]Block{{Type: BlockTypeImage, Data: json.RawMessage(`{"_id":"nope"}`)}}))
}

func TestDiffImageBlocks(t *testing.T) {
	i1, i2, i3 := uuid.New(), uuid.New(), uuid.New()
	current := []Block{NewTextBlock("a"), imageBlock(i1, ""), imageBlock(i2, "")}
	desired := []Block{imageBlock(i2, ""), NewTextBlock("b"), imageBlock(i3, ""), imageBlock(i3, "")}

	diff := DiffImageBlocks(current, desired)

	assert.Equal(t, []uuid.UUID{i1}, ImageIDs(diff.Removed))
	assert.Equal(t, []uuid.UUID{i3}, ImageIDs(diff.Added))
}

func TestImageChanges_KeepsReferencedImage(t *testing.T) {
	id := uuid.New()
	current := []Block{imageBlock(id, "/old")}
	desired := []Block{imageBlock(id, "/new")}

	removed, added := imageChanges(current, desired)

	assert.Empty(t, removed)
	assert.Equal(t, []uuid.UUID{id}, added)
}

func TestWithoutImage(t *testing.T) {
	i1, i2 := uuid.New(), uuid.New()
	blocks := []Block{imageBlock(i1, ""), NewTextBlock("a"), imageBlock(i2, ""), imageBlock(i1, "/x")}

	out := WithoutImage(blocks, i1)

	require.Len(t, out, 2)
	assert.False(t, out[0].IsImage())
	assert.Equal(t, []uuid.UUID{i2}, ImageIDs(out))
	assert.Len(t, blocks, 4)
}
