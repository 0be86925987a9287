package contentgraph

import "fmt"

// canTransitionImage checks whether an image may move from one state to
// another. An image on its way out can only finish being removed.
func canTransitionImage(from, to ImageState) (bool, error) {
	if from == "" {
		from = ImageStateUnattached
	}
	switch from {
	case ImageStateUnattached, ImageStateAttached:
		switch to {
		case ImageStateAttached, ImageStateDetaching:
			return true, nil
		}
	case ImageStateDetaching:
		switch to {
		case ImageStateDetaching, ImageStateDeleted:
			return true, nil
		case ImageStateAttached:
			return false, fmt.Errorf("%w (status: %s)", ErrImageDetaching, from)
		}
	case ImageStateDeleted:
		return false, fmt.Errorf("%w: image was deleted (status: %s)", ErrImageNotFound, from)
	default:
		return false, fmt.Errorf("%w: unknown image state %s", ErrInvalidContent, from)
	}
	return false, fmt.Errorf("%w: image cannot move from %s to %s", ErrInvalidContent, from, to)
}
