// Package inmemory provides a volatile ManifestStore implementation used by
// tests and local experiments. It mirrors the semantics of the durable
// backends, including execution numbering and the idempotent item-id union.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
)

const executionPrefix = "execution_"
const batchPrefix = "batch_"

// timeNow is swappable in tests.
var timeNow = time.Now

// ManifestStore is a map-backed implementation of repository.ManifestStore.
type ManifestStore struct {
	mu         sync.Mutex
	executions map[string]*model.Execution
	batches    map[string]map[string]*model.Batch // executionID -> localID -> batch
	order      []string                           // executionIDs in creation order
}

var _ repo.ManifestStore = (*ManifestStore)(nil)

// NewManifestStore creates an empty in-memory manifest store.
func NewManifestStore() *ManifestStore {
	return &ManifestStore{
		executions: make(map[string]*model.Execution),
		batches:    make(map[string]map[string]*model.Batch),
	}
}

// ResolveExecution resolves by exact or prefixed name, or allocates the next
// execution_<n> when idOrEmpty is empty.
func (s *ManifestStore) ResolveExecution(ctx context.Context, idOrEmpty string) (*model.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idOrEmpty == "" {
		id := fmt.Sprintf("%s%d", executionPrefix, s.maxExecutionNumberLocked()+1)
		exec := model.NewExecution(id)
		s.executions[id] = exec
		s.batches[id] = make(map[string]*model.Batch)
		s.order = append(s.order, id)
		return copyExecution(exec), nil
	}

	if exec, ok := s.executions[idOrEmpty]; ok {
		return copyExecution(exec), nil
	}
	if exec, ok := s.executions[executionPrefix+idOrEmpty]; ok {
		return copyExecution(exec), nil
	}
	return nil, repo.ErrExecutionNotFound
}

// FindLatestExecution returns the most recently created execution.
func (s *ManifestStore) FindLatestExecution(ctx context.Context) (*model.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		return nil, repo.ErrExecutionNotFound
	}
	return copyExecution(s.executions[s.order[len(s.order)-1]]), nil
}

// ProcessedItemIDs returns the manifest set, or rebuilds it from batch
// original-text mappings when the set is empty.
func (s *ManifestStore) ProcessedItemIDs(ctx context.Context, executionID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[executionID]
	if !ok {
		return nil, repo.ErrExecutionNotFound
	}

	ids := make(map[string]struct{})
	if len(exec.ProcessedItemIDs) > 0 {
		for _, id := range exec.ProcessedItemIDs {
			ids[id] = struct{}{}
		}
		return ids, nil
	}
	for _, batch := range s.batches[executionID] {
		for customID := range batch.OriginalTexts {
			ids[customID] = struct{}{}
		}
	}
	return ids, nil
}

// NextLocalBatchID returns batch_<max+1> over the existing local batch names.
func (s *ManifestStore) NextLocalBatchID(ctx context.Context, executionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[executionID]; !ok {
		return "", repo.ErrExecutionNotFound
	}
	max := 0
	for localID := range s.batches[executionID] {
		if n, ok := batchNumber(localID); ok && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%d", batchPrefix, max+1), nil
}

// RegisterBatch appends a batch summary and unions itemIDs into the
// processed set. Re-registering the same ids does not duplicate entries.
func (s *ManifestStore) RegisterBatch(ctx context.Context, executionID string, batchID string, nItems int, itemIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[executionID]
	if !ok {
		return repo.ErrExecutionNotFound
	}

	exec.Batches = append(exec.Batches, model.BatchSummary{
		BatchID:   batchID,
		CreatedAt: timeNow(),
		NItems:    nItems,
	})
	seen := make(map[string]struct{}, len(exec.ProcessedItemIDs))
	for _, id := range exec.ProcessedItemIDs {
		seen[id] = struct{}{}
	}
	for _, id := range itemIDs {
		if _, ok := seen[id]; !ok {
			exec.ProcessedItemIDs = append(exec.ProcessedItemIDs, id)
			seen[id] = struct{}{}
		}
	}
	exec.LastUpdated = timeNow()
	return nil
}

// SaveBatch persists new batch metadata.
func (s *ManifestStore) SaveBatch(ctx context.Context, executionID string, batch *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[executionID]; !ok {
		return repo.ErrExecutionNotFound
	}
	if batch.LocalID == "" {
		return fmt.Errorf("batch local id must be set")
	}
	if s.batches[executionID] == nil {
		s.batches[executionID] = make(map[string]*model.Batch)
	}
	s.batches[executionID][batch.LocalID] = copyBatch(batch)
	return nil
}

// UpdateBatch persists updated metadata for an existing batch.
func (s *ManifestStore) UpdateBatch(ctx context.Context, executionID string, batch *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batches, ok := s.batches[executionID]
	if !ok {
		return repo.ErrExecutionNotFound
	}
	if _, ok := batches[batch.LocalID]; !ok {
		return repo.ErrBatchNotFound
	}
	batches[batch.LocalID] = copyBatch(batch)
	return nil
}

// FindBatch resolves by local name first, then by external job id.
func (s *ManifestStore) FindBatch(ctx context.Context, executionID string, batchRef string) (*model.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batches, ok := s.batches[executionID]
	if !ok {
		return nil, repo.ErrExecutionNotFound
	}
	if batch, ok := batches[batchRef]; ok {
		return copyBatch(batch), nil
	}
	for _, batch := range batches {
		if batch.BatchID == batchRef {
			return copyBatch(batch), nil
		}
	}
	return nil, repo.ErrBatchNotFound
}

// ListBatches returns all batches of the execution in local-id order.
func (s *ManifestStore) ListBatches(ctx context.Context, executionID string) ([]*model.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batches, ok := s.batches[executionID]
	if !ok {
		return nil, repo.ErrExecutionNotFound
	}
	localIDs := make([]string, 0, len(batches))
	for localID := range batches {
		localIDs = append(localIDs, localID)
	}
	sort.Slice(localIDs, func(i, j int) bool {
		ni, _ := batchNumber(localIDs[i])
		nj, _ := batchNumber(localIDs[j])
		return ni < nj
	})
	out := make([]*model.Batch, 0, len(localIDs))
	for _, localID := range localIDs {
		out = append(out, copyBatch(batches[localID]))
	}
	return out, nil
}

// Close releases nothing for the in-memory store.
func (s *ManifestStore) Close() error {
	return nil
}

func (s *ManifestStore) maxExecutionNumberLocked() int {
	max := 0
	for id := range s.executions {
		if n, ok := executionNumber(id); ok && n > max {
			max = n
		}
	}
	return max
}

func executionNumber(id string) (int, bool) {
	if !strings.HasPrefix(id, executionPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, executionPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

func batchNumber(id string) (int, bool) {
	if !strings.HasPrefix(id, batchPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, batchPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

func copyExecution(exec *model.Execution) *model.Execution {
	out := *exec
	out.Batches = append([]model.BatchSummary(nil), exec.Batches...)
	out.ProcessedItemIDs = append([]string(nil), exec.ProcessedItemIDs...)
	return &out
}

func copyBatch(batch *model.Batch) *model.Batch {
	out := *batch
	if batch.OriginalTexts != nil {
		out.OriginalTexts = make(map[string]string, len(batch.OriginalTexts))
		for k, v := range batch.OriginalTexts {
			out.OriginalTexts[k] = v
		}
	}
	return &out
}
