package scan

import (
	"context"

	"github.com/tendant/content-graph/pkg/contentgraph"
)

// ContentProcessor processes individual content items.
// Returning an error marks the content as failed; the scan continues.
type ContentProcessor interface {
	Process(ctx context.Context, content *contentgraph.Content) error
}

// ProcessorFunc adapts a function to the ContentProcessor interface.
type ProcessorFunc func(context.Context, *contentgraph.Content) error

func (f ProcessorFunc) Process(ctx context.Context, content *contentgraph.Content) error {
	return f(ctx, content)
}
