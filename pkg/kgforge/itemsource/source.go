// Package itemsource supplies (item_id, text) pairs to the pipeline. The
// pipeline consumes a Source as an opaque collaborator; the CSV adapter is
// the only built-in implementation.
package itemsource

import (
	"context"

	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
)

// Source supplies the input items of one pipeline run.
type Source interface {
	// Items returns all items. Items without text are already filtered out.
	Items(ctx context.Context) ([]model.Item, error)
}
