// Package fs provides the directory-backed ManifestStore. Execution state
// lives in execution_<n>/execution_info.json and per-batch metadata in
// execution_<n>/batch_<m>/metadata.json, preserving the external JSON
// contract of the manifests.
//
// Writes are atomic (temp file plus rename) and read-modify-write sequences
// are serialized with a per-execution advisory lock file plus an in-process
// mutex, so a single concurrent writer per execution is safe.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/jsonio"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

const moduleName = "manifest"

const (
	executionPrefix  = "execution_"
	batchPrefix      = "batch_"
	manifestFileName = "execution_info.json"
	metadataFileName = "metadata.json"
	lockFileName     = ".manifest.lock"
)

var (
	executionDirPattern = regexp.MustCompile(`^execution_(\d+)$`)
	batchDirPattern     = regexp.MustCompile(`^batch_(\d+)$`)
)

// lockTimeout bounds how long an acquisition waits on a foreign lock file.
const lockTimeout = 10 * time.Second

// ManifestStore is the directory-backed implementation of
// repository.ManifestStore.
type ManifestStore struct {
	baseDir string

	mu sync.Mutex
	// resolvedDirs maps execution ids to their directories, covering
	// executions resolved by direct path outside baseDir.
	resolvedDirs map[string]string
}

var _ repo.ManifestStore = (*ManifestStore)(nil)

// NewManifestStore creates a directory-backed store rooted at baseDir,
// creating the directory if needed.
func NewManifestStore(baseDir string) (*ManifestStore, error) {
	if baseDir == "" {
		return nil, exception.NewBatchError(moduleName, "batch directory must be specified", nil, false, false)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to create batch directory '%s'", baseDir), err, false, false)
	}
	return &ManifestStore{
		baseDir:      baseDir,
		resolvedDirs: make(map[string]string),
	}, nil
}

// ResolveExecution resolves an execution directory. An empty id allocates
// execution_<max+1>; otherwise the id matches an exact directory name, a
// bare number (execution_ prefix added), or a direct path.
func (s *ManifestStore) ResolveExecution(ctx context.Context, idOrEmpty string) (*model.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idOrEmpty == "" {
		return s.allocateExecutionLocked()
	}

	candidates := []string{
		filepath.Join(s.baseDir, idOrEmpty),
		filepath.Join(s.baseDir, executionPrefix+idOrEmpty),
	}
	if strings.ContainsRune(idOrEmpty, os.PathSeparator) || filepath.IsAbs(idOrEmpty) {
		candidates = append([]string{idOrEmpty}, candidates...)
	}
	for _, dir := range candidates {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		executionID := filepath.Base(dir)
		s.resolvedDirs[executionID] = dir
		return s.loadOrInitExecutionLocked(executionID, dir)
	}
	return nil, repo.ErrExecutionNotFound
}

// FindLatestExecution returns the execution with the highest number.
func (s *ManifestStore) FindLatestExecution(ctx context.Context) (*model.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	max, found := 0, false
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to read batch directory", err, false, false)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if m := executionDirPattern.FindStringSubmatch(entry.Name()); m != nil {
			n, _ := strconv.Atoi(m[1])
			if !found || n > max {
				max, found = n, true
			}
		}
	}
	if !found {
		return nil, repo.ErrExecutionNotFound
	}
	executionID := fmt.Sprintf("%s%d", executionPrefix, max)
	return s.loadOrInitExecutionLocked(executionID, filepath.Join(s.baseDir, executionID))
}

// ProcessedItemIDs returns the manifest set, or rebuilds it by scanning
// every batch's original-text mapping when the set is absent or empty.
func (s *ManifestStore) ProcessedItemIDs(ctx context.Context, executionID string) (map[string]struct{}, error) {
	dir, err := s.executionDir(executionID)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{})
	exec := s.loadManifest(dir)
	if exec != nil && len(exec.ProcessedItemIDs) > 0 {
		for _, id := range exec.ProcessedItemIDs {
			ids[id] = struct{}{}
		}
		return ids, nil
	}

	// Degraded path: rebuild from batch metadata.
	batches, err := s.listBatchDirs(dir)
	if err != nil {
		return nil, err
	}
	for _, batchDir := range batches {
		var batch model.Batch
		if err := jsonio.Load(filepath.Join(batchDir, metadataFileName), &batch); err != nil {
			logger.Warnf("Skipping unreadable batch metadata in '%s': %v", batchDir, err)
			continue
		}
		for customID := range batch.OriginalTexts {
			ids[customID] = struct{}{}
		}
	}
	return ids, nil
}

// NextLocalBatchID scans existing batch_<n> directories and returns
// batch_<max+1>, or batch_1 when none exist.
func (s *ManifestStore) NextLocalBatchID(ctx context.Context, executionID string) (string, error) {
	dir, err := s.executionDir(executionID)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", exception.NewBatchError(moduleName, fmt.Sprintf("failed to read execution directory '%s'", dir), err, false, false)
	}
	max := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if m := batchDirPattern.FindStringSubmatch(entry.Name()); m != nil {
			if n, _ := strconv.Atoi(m[1]); n > max {
				max = n
			}
		}
	}
	return fmt.Sprintf("%s%d", batchPrefix, max+1), nil
}

// RegisterBatch appends a batch summary to the manifest and unions itemIDs
// into the processed set under the execution lock.
func (s *ManifestStore) RegisterBatch(ctx context.Context, executionID string, batchID string, nItems int, itemIDs []string) error {
	dir, err := s.executionDir(executionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.acquireLock(dir)
	if err != nil {
		return err
	}
	defer unlock()

	exec := s.loadManifest(dir)
	if exec == nil {
		exec = model.NewExecution(executionID)
	}

	exec.Batches = append(exec.Batches, model.BatchSummary{
		BatchID:   batchID,
		CreatedAt: time.Now(),
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
	exec.LastUpdated = time.Now()

	if err := jsonio.Save(filepath.Join(dir, manifestFileName), exec); err != nil {
		return exception.NewBatchError(moduleName, "failed to persist execution manifest", err, false, false)
	}
	return nil
}

// SaveBatch writes metadata.json under a new batch directory.
func (s *ManifestStore) SaveBatch(ctx context.Context, executionID string, batch *model.Batch) error {
	return s.writeBatch(executionID, batch)
}

// UpdateBatch rewrites metadata.json for an existing batch.
func (s *ManifestStore) UpdateBatch(ctx context.Context, executionID string, batch *model.Batch) error {
	dir, err := s.executionDir(executionID)
	if err != nil {
		return err
	}
	if batch.LocalID == "" {
		return exception.NewBatchError(moduleName, "batch local id must be set", nil, false, false)
	}
	metaPath := filepath.Join(dir, batch.LocalID, metadataFileName)
	if _, err := os.Stat(metaPath); err != nil {
		return repo.ErrBatchNotFound
	}
	return s.writeBatch(executionID, batch)
}

func (s *ManifestStore) writeBatch(executionID string, batch *model.Batch) error {
	dir, err := s.executionDir(executionID)
	if err != nil {
		return err
	}
	if batch.LocalID == "" {
		return exception.NewBatchError(moduleName, "batch local id must be set", nil, false, false)
	}
	batchDir := filepath.Join(dir, batch.LocalID)
	if err := os.MkdirAll(batchDir, 0755); err != nil {
		return exception.NewBatchError(moduleName, fmt.Sprintf("failed to create batch directory '%s'", batchDir), err, false, false)
	}
	if err := jsonio.Save(filepath.Join(batchDir, metadataFileName), batch); err != nil {
		return exception.NewBatchError(moduleName, "failed to persist batch metadata", err, false, false)
	}
	return nil
}

// FindBatch resolves by local directory name first, then scans metadata for
// a matching external job id.
func (s *ManifestStore) FindBatch(ctx context.Context, executionID string, batchRef string) (*model.Batch, error) {
	dir, err := s.executionDir(executionID)
	if err != nil {
		return nil, err
	}

	if batchDirPattern.MatchString(batchRef) {
		var batch model.Batch
		if err := jsonio.Load(filepath.Join(dir, batchRef, metadataFileName), &batch); err == nil {
			if batch.LocalID == "" {
				batch.LocalID = batchRef
			}
			return &batch, nil
		}
	}

	batchDirs, err := s.listBatchDirs(dir)
	if err != nil {
		return nil, err
	}
	for _, batchDir := range batchDirs {
		var batch model.Batch
		if err := jsonio.Load(filepath.Join(batchDir, metadataFileName), &batch); err != nil {
			logger.Warnf("Skipping unreadable batch metadata in '%s': %v", batchDir, err)
			continue
		}
		if batch.BatchID == batchRef {
			if batch.LocalID == "" {
				batch.LocalID = filepath.Base(batchDir)
			}
			return &batch, nil
		}
	}
	return nil, repo.ErrBatchNotFound
}

// ListBatches loads every batch of the execution in local-id order.
func (s *ManifestStore) ListBatches(ctx context.Context, executionID string) ([]*model.Batch, error) {
	dir, err := s.executionDir(executionID)
	if err != nil {
		return nil, err
	}
	batchDirs, err := s.listBatchDirs(dir)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Batch, 0, len(batchDirs))
	for _, batchDir := range batchDirs {
		var batch model.Batch
		if err := jsonio.Load(filepath.Join(batchDir, metadataFileName), &batch); err != nil {
			logger.Warnf("Skipping unreadable batch metadata in '%s': %v", batchDir, err)
			continue
		}
		if batch.LocalID == "" {
			batch.LocalID = filepath.Base(batchDir)
		}
		b := batch
		out = append(out, &b)
	}
	return out, nil
}

// Close releases nothing for the directory-backed store.
func (s *ManifestStore) Close() error {
	return nil
}

// allocateExecutionLocked creates execution_<max+1> under a base-directory
// lock and initializes its manifest.
func (s *ManifestStore) allocateExecutionLocked() (*model.Execution, error) {
	unlock, err := s.acquireLock(s.baseDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to read batch directory", err, false, false)
	}
	max := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if m := executionDirPattern.FindStringSubmatch(entry.Name()); m != nil {
			if n, _ := strconv.Atoi(m[1]); n > max {
				max = n
			}
		}
	}

	executionID := fmt.Sprintf("%s%d", executionPrefix, max+1)
	dir := filepath.Join(s.baseDir, executionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to create execution directory '%s'", dir), err, false, false)
	}

	exec := model.NewExecution(executionID)
	if err := jsonio.Save(filepath.Join(dir, manifestFileName), exec); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to initialize execution manifest", err, false, false)
	}
	s.resolvedDirs[executionID] = dir
	logger.Infof("Allocated new execution '%s' at '%s'.", executionID, dir)
	return exec, nil
}

// loadOrInitExecutionLocked loads the manifest of an existing directory,
// initializing an empty manifest when the file is missing or corrupt.
func (s *ManifestStore) loadOrInitExecutionLocked(executionID, dir string) (*model.Execution, error) {
	if exec := s.loadManifest(dir); exec != nil {
		return exec, nil
	}
	exec := model.NewExecution(executionID)
	if err := jsonio.Save(filepath.Join(dir, manifestFileName), exec); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to initialize execution manifest", err, false, false)
	}
	return exec, nil
}

// loadManifest reads execution_info.json, treating a missing or corrupt file
// as absent.
func (s *ManifestStore) loadManifest(dir string) *model.Execution {
	var exec model.Execution
	path := filepath.Join(dir, manifestFileName)
	if err := jsonio.Load(path, &exec); err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Treating unreadable manifest '%s' as absent: %v", path, err)
		}
		return nil
	}
	if exec.ExecutionID == "" {
		exec.ExecutionID = filepath.Base(dir)
	}
	if exec.Batches == nil {
		exec.Batches = []model.BatchSummary{}
	}
	if exec.ProcessedItemIDs == nil {
		exec.ProcessedItemIDs = []string{}
	}
	return &exec
}

func (s *ManifestStore) executionDir(executionID string) (string, error) {
	s.mu.Lock()
	if dir, ok := s.resolvedDirs[executionID]; ok {
		s.mu.Unlock()
		return dir, nil
	}
	s.mu.Unlock()

	dir := filepath.Join(s.baseDir, executionID)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", repo.ErrExecutionNotFound
	}
	return dir, nil
}

func (s *ManifestStore) listBatchDirs(executionDir string) ([]string, error) {
	entries, err := os.ReadDir(executionDir)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to read execution directory '%s'", executionDir), err, false, false)
	}
	type numbered struct {
		n   int
		dir string
	}
	var dirs []numbered
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if m := batchDirPattern.FindStringSubmatch(entry.Name()); m != nil {
			n, _ := strconv.Atoi(m[1])
			dirs = append(dirs, numbered{n: n, dir: filepath.Join(executionDir, entry.Name())})
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].n < dirs[j].n })
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, d.dir)
	}
	return out, nil
}

// acquireLock creates an exclusive lock file in dir, retrying until
// lockTimeout. The returned function releases the lock.
func (s *ManifestStore) acquireLock(dir string) (func(), error) {
	lockPath := filepath.Join(dir, lockFileName)
	deadline := time.Now().Add(lockTimeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() {
				if err := os.Remove(lockPath); err != nil {
					logger.Warnf("Failed to remove lock file '%s': %v", lockPath, err)
				}
			}, nil
		}
		if !os.IsExist(err) {
			return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to create lock file '%s'", lockPath), err, false, false)
		}
		if time.Now().After(deadline) {
			return nil, exception.NewBatchError(moduleName, fmt.Sprintf("timed out waiting for manifest lock '%s'", lockPath), nil, false, true)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
