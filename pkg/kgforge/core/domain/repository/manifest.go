// Package repository defines the persistence interfaces of kgforge.
// Implementations live under pkg/kgforge/infrastructure.
package repository

import (
	"context"
	"errors"

	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
)

// ErrExecutionNotFound is the error returned when an execution cannot be resolved.
var ErrExecutionNotFound = errors.New("execution not found")

// ErrBatchNotFound is the error returned when a batch cannot be resolved.
var ErrBatchNotFound = errors.New("batch not found")

// ManifestStore is the durable record of execution and batch state. It is
// the exclusive owner of the Execution/Batch lifecycle: re-running the
// pipeline after a crash neither re-submits already-submitted items nor
// re-downloads already-retrieved results.
//
// All writes are atomic from the caller's perspective. Reads of a missing
// or corrupt manifest treat it as absent rather than failing.
type ManifestStore interface {
	// ResolveExecution resolves an execution handle. If idOrEmpty is empty,
	// it atomically allocates the next execution_<n> and initializes an empty
	// manifest. Otherwise it resolves by exact name, by prefixed name, or by
	// direct path, and returns ErrExecutionNotFound when nothing matches.
	ResolveExecution(ctx context.Context, idOrEmpty string) (*model.Execution, error)

	// FindLatestExecution returns the most recently created execution, or
	// ErrExecutionNotFound when no executions exist.
	FindLatestExecution(ctx context.Context) (*model.Execution, error)

	// ProcessedItemIDs returns the set of item ids already submitted under
	// the execution. It prefers the fast-path manifest set and falls back to
	// scanning every batch's original-text mapping when the manifest is
	// absent; both paths yield identical results.
	ProcessedItemIDs(ctx context.Context, executionID string) (map[string]struct{}, error)

	// NextLocalBatchID returns the next per-execution batch name. Existing
	// batches named batch_<n> yield batch_<max(n)+1>; batch_1 when none exist.
	NextLocalBatchID(ctx context.Context, executionID string) (string, error)

	// RegisterBatch appends a batch summary to the execution manifest and
	// unions itemIDs into the processed set. The union is idempotent:
	// re-registering the same id list does not duplicate entries.
	RegisterBatch(ctx context.Context, executionID string, batchID string, nItems int, itemIDs []string) error

	// SaveBatch persists new batch metadata under the execution.
	SaveBatch(ctx context.Context, executionID string, batch *model.Batch) error

	// UpdateBatch persists updated metadata for an existing batch.
	UpdateBatch(ctx context.Context, executionID string, batch *model.Batch) error

	// FindBatch resolves a batch by its local name (batch_<n>) or by its
	// externally assigned job id. Returns ErrBatchNotFound when neither matches.
	FindBatch(ctx context.Context, executionID string, batchRef string) (*model.Batch, error)

	// ListBatches returns all batches of the execution in local-id order.
	ListBatches(ctx context.Context, executionID string) ([]*model.Batch, error)

	// Close releases any resources held by the store.
	Close() error
}
