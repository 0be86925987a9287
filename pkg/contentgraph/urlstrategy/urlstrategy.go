package urlstrategy

import (
	"github.com/google/uuid"
)

// URLStrategy defines how the public URL of a stored image is built. The URL
// is computed once at upload time and stored on the image.
type URLStrategy interface {
	// ImageURL creates the URL under which the image blob is served
	ImageURL(imageID uuid.UUID, objectKey string) string
}

// Func adapts a function to URLStrategy
type Func func(imageID uuid.UUID, objectKey string) string

func (f Func) ImageURL(imageID uuid.UUID, objectKey string) string {
	return f(imageID, objectKey)
}
