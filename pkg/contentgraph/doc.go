// Package contentgraph keeps a small content graph (Content, Feature, Image)
// referentially consistent with pluggable repository and blob storage backends.
//
// It exposes a single Service interface that reconciles the Content↔Feature
// association sets, reconciles the Image blocks embedded in a Content body and
// cascades deletions between the three entity kinds. Implementations of
// repositories (memory, Postgres) and blob stores (memory, filesystem, S3) are
// provided under subpackages.
//
// # Consistency Model
//
// Both sides of every association are written by this package, never by a
// database constraint. Per-item side effects run concurrently and are joined
// before the owning entity is committed. A failed reconciliation or removal
// leaves the side effects that already completed in place; the returned
// *PartialFailureError lists every failed item so callers can retry.
//
// Image ownership is a weak back-reference (Image.ContentID). An Image moves
// through ImageStateAttached, ImageStateDetaching and ImageStateDeleted; the
// removal paths check that state first, which is what keeps the Content and
// Image removal hooks from re-entering each other.
package contentgraph
