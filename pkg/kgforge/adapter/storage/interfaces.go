// Package storage defines the common interface for artifact storage adapters.
// Batch request files, raw output artifacts, and per-item result files go
// through this interface so the manifest backend and the artifact location
// can vary independently (local file system today, object storage later).
package storage

import (
	"context"
	"io"
)

// Storage defines generic artifact storage operations. Object names are
// slash-separated paths relative to the adapter's base directory.
type Storage interface {
	// Upload writes data to the given object name, creating parent
	// directories as needed and overwriting any existing object.
	Upload(ctx context.Context, objectName string, data io.Reader) error

	// Download opens the object for reading. The returned ReadCloser must be
	// closed by the caller.
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)

	// ListObjects calls fn for each object name under the given prefix.
	// Iteration stops at the first error returned by fn.
	ListObjects(ctx context.Context, prefix string, fn func(objectName string) error) error

	// DeleteObject removes the object. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, objectName string) error
}
