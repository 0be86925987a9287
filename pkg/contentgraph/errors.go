package contentgraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrNotFound is wrapped by every "entity not found" error
	ErrNotFound = errors.New("not found")

	// ErrContentNotFound indicates a content was not found
	ErrContentNotFound = fmt.Errorf("content %w", ErrNotFound)

	// ErrFeatureNotFound indicates a feature was not found
	ErrFeatureNotFound = fmt.Errorf("feature %w", ErrNotFound)

	// ErrImageNotFound indicates an image was not found
	ErrImageNotFound = fmt.Errorf("image %w", ErrNotFound)

	// ErrPersistence indicates the repository failed to save or remove a record
	ErrPersistence = errors.New("persistence failure")

	// ErrImageDetaching indicates an image being removed cannot be attached
	ErrImageDetaching = errors.New("image is being removed")

	// ErrInvalidContent indicates a content failed validation
	ErrInvalidContent = errors.New("invalid content")

	// ErrBlobNotFound is returned by blob stores for missing objects
	ErrBlobNotFound = errors.New("object not found")

	// ErrBlobStoreNotConfigured indicates an operation needs a blob store
	ErrBlobStoreNotConfigured = errors.New("blob store not configured")
)

// ErrorKind classifies errors returned by the Service.
type ErrorKind string

// Error kinds.
const (
	KindUnknown          ErrorKind = "unknown"
	KindNotFound         ErrorKind = "not_found"
	KindInvalid          ErrorKind = "invalid"
	KindPersistence      ErrorKind = "persistence_failure"
	KindBlob             ErrorKind = "blob_failure"
	KindPartialFailure   ErrorKind = "partial_cascade_failure"
	KindContextCancelled ErrorKind = "cancelled"
)

// KindOf classifies err. A partial failure whose items all failed for the
// same classified reason reports that reason.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var partial *PartialFailureError
	if errors.As(err, &partial) {
		kind := KindUnknown
		for i, e := range partial.Errs {
			k := KindOf(e)
			if i == 0 {
				kind = k
				continue
			}
			if k != kind {
				return KindPartialFailure
			}
		}
		if kind == KindUnknown {
			return KindPartialFailure
		}
		return kind
	}
	var storageErr *StorageError
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidContent), errors.Is(err, ErrImageDetaching):
		return KindInvalid
	case errors.As(err, &storageErr):
		return KindBlob
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case isContextErr(err):
		return KindContextCancelled
	}
	return KindUnknown
}

// ContentError represents an error related to content operations
type ContentError struct {
	ContentID uuid.UUID
	Op        string
	Err       error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("content operation %s failed for content %s: %v", e.Op, e.ContentID, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// FeatureError represents an error related to feature operations
type FeatureError struct {
	FeatureID uuid.UUID
	Op        string
	Err       error
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("feature operation %s failed for feature %s: %v", e.Op, e.FeatureID, e.Err)
}

func (e *FeatureError) Unwrap() error {
	return e.Err
}

// ImageError represents an error related to image operations
type ImageError struct {
	ImageID uuid.UUID
	Op      string
	Err     error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image operation %s failed for image %s: %v", e.Op, e.ImageID, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Key string
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PartialFailureError is returned when one or more items of a fan-out failed.
// Items that succeeded are not rolled back.
type PartialFailureError struct {
	Op        string
	Attempted int
	Errs      []error
}

func (e *PartialFailureError) Error() string {
	if len(e.Errs) == 1 {
		return fmt.Sprintf("%s: 1 of %d operations failed: %v", e.Op, e.Attempted, e.Errs[0])
	}
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%s: %d of %d operations failed: %s", e.Op, len(e.Errs), e.Attempted, strings.Join(msgs, "; "))
}

// Unwrap exposes every item error to errors.Is and errors.As.
func (e *PartialFailureError) Unwrap() []error {
	return e.Errs
}

// First returns the first observed failure.
func (e *PartialFailureError) First() error {
	if len(e.Errs) == 0 {
		return nil
	}
	return e.Errs[0]
}

// Succeeded is the number of items that completed.
func (e *PartialFailureError) Succeeded() int {
	return e.Attempted - len(e.Errs)
}

// persistenceFailure tags a repository error. Not-found errors keep their kind.
func persistenceFailure(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistence) || isContextErr(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
