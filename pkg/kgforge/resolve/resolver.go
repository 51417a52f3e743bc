// Package resolve decides, for each newly extracted entity mention, whether
// it refers to an entity already stored in the graph. Exact raw (name, type)
// matches always win; otherwise same-type entities are compared by
// normalized-name containment and token-set similarity. The match-decide-
// merge sequence runs under a resolver mutex so concurrent loads cannot
// create duplicate canonical entities; the graph store's unique id
// constraint is the backstop.
package resolve

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
	metrics "github.com/kgforge/kgforge/pkg/kgforge/core/metrics"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

// fuzzyThreshold is the strict lower bound on the Jaccard score of an
// accepted fuzzy match.
const fuzzyThreshold = 0.5

// minNormalizedLength gates the fuzzy pass: shorter normalized names are too
// ambiguous to match fuzzily.
const minNormalizedLength = 2

// Stats summarizes resolver activity for the shutdown report.
type Stats struct {
	Created       int64
	Disambiguated int64
}

// Resolver owns the matching decision and is the only writer of new
// canonical entity ids.
type Resolver struct {
	graph    repo.GraphStore
	recorder metrics.MetricRecorder

	mu            sync.Mutex
	created       int64
	disambiguated int64
}

// NewResolver creates a Resolver writing through the given graph store.
func NewResolver(graph repo.GraphStore, recorder metrics.MetricRecorder) *Resolver {
	return &Resolver{graph: graph, recorder: recorder}
}

// Resolve returns the canonical id for the candidate, merging into an
// existing entity when one matches and creating a new one otherwise.
func (r *Resolver) Resolve(ctx context.Context, candidate *model.ExtractedEntity) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Exact pass: a raw (name, type) match wins without fuzzy scoring.
	existing, err := r.graph.FindEntity(ctx, candidate.Name, candidate.Type)
	if err != nil && !errors.Is(err, repo.ErrEntityNotFound) {
		return "", err
	}
	if existing != nil {
		if err := r.mergeInto(ctx, existing, candidate); err != nil {
			return "", err
		}
		return existing.ID, nil
	}

	// Fuzzy pass over same-type entities.
	if match, err := r.findFuzzyMatch(ctx, candidate); err != nil {
		return "", err
	} else if match != nil {
		if err := r.mergeInto(ctx, match, candidate); err != nil {
			return "", err
		}
		r.disambiguated++
		r.recorder.RecordDisambiguation(ctx, candidate.Type)
		logger.Infof("Disambiguated '%s' (%s) into existing entity '%s' (%s).",
			candidate.Name, candidate.Type, match.Name, match.ID)
		return match.ID, nil
	}

	// No match: allocate a new canonical entity.
	entity := &model.Entity{
		ID:         uuid.NewString(),
		Name:       candidate.Name,
		Type:       candidate.Type,
		Attributes: candidate.Attributes,
	}
	if err := r.graph.CreateEntity(ctx, entity); err != nil {
		return "", err
	}
	r.created++
	r.recorder.RecordEntityCreated(ctx, candidate.Type)
	return entity.ID, nil
}

// findFuzzyMatch returns the best same-type candidate passing the
// containment gate with a Jaccard score strictly above the threshold.
func (r *Resolver) findFuzzyMatch(ctx context.Context, candidate *model.ExtractedEntity) (*model.Entity, error) {
	normalized := Normalize(candidate.Name)
	if len(normalized) <= minNormalizedLength {
		return nil, nil
	}

	peers, err := r.graph.FindEntitiesByType(ctx, candidate.Type)
	if err != nil {
		return nil, err
	}

	var best *model.Entity
	bestScore := 0.0
	for _, peer := range peers {
		peerNorm := Normalize(peer.Name)
		if peerNorm == "" || !containment(normalized, peerNorm) {
			continue
		}
		score := Jaccard(normalized, peerNorm)
		if score > bestScore {
			best = peer
			bestScore = score
		}
	}
	if best == nil || bestScore <= fuzzyThreshold {
		return nil, nil
	}
	return best, nil
}

// mergeInto updates the stored entity with the candidate's attributes.
// Non-empty attribute values overwrite existing ones; the name is refreshed
// only when the candidate supplies one. Attributes are never deleted.
func (r *Resolver) mergeInto(ctx context.Context, existing *model.Entity, candidate *model.ExtractedEntity) error {
	update := &model.Entity{
		ID:         existing.ID,
		Type:       existing.Type,
		Attributes: map[string]string{},
	}
	if candidate.Name != "" {
		update.Name = candidate.Name
	} else {
		update.Name = existing.Name
	}
	for k, v := range candidate.Attributes {
		if v != "" {
			update.Attributes[k] = v
		}
	}
	return r.graph.UpdateEntity(ctx, update)
}

// Stats returns the running creation and disambiguation counts.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Created: r.created, Disambiguated: r.disambiguated}
}

// ReportStats logs the running counts, typically at shutdown.
func (r *Resolver) ReportStats() {
	stats := r.Stats()
	logger.Infof("Entity resolution summary: %d created, %d disambiguated.", stats.Created, stats.Disambiguated)
}
