// Package gormstore provides a relational ManifestStore backend. It keeps
// the exact semantics of the directory-backed store (execution numbering,
// idempotent item-id unions, dual-path processed-id lookup) while moving the
// read-modify-write sequences into transactions with optimistic versioning.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

const moduleName = "gormstore"

const executionPrefix = "execution_"

var executionIDPattern = regexp.MustCompile(`^execution_(\d+)$`)
var batchIDPattern = regexp.MustCompile(`^batch_(\d+)$`)

// ManifestStore is the gorm-backed implementation of repository.ManifestStore.
type ManifestStore struct {
	db *gorm.DB
}

var _ repo.ManifestStore = (*ManifestStore)(nil)

// NewManifestStore migrates the manifest schema and returns the store.
func NewManifestStore(db *gorm.DB) (*ManifestStore, error) {
	if err := db.AutoMigrate(
		&ExecutionEntity{},
		&ExecutionItemEntity{},
		&BatchRegistrationEntity{},
		&BatchEntity{},
	); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to migrate manifest schema", err, false, false)
	}
	return &ManifestStore{db: db}, nil
}

// ResolveExecution resolves by exact or prefixed id, or allocates the next
// execution_<n> inside a transaction when idOrEmpty is empty.
func (s *ManifestStore) ResolveExecution(ctx context.Context, idOrEmpty string) (*model.Execution, error) {
	if idOrEmpty == "" {
		return s.allocateExecution(ctx)
	}

	for _, id := range []string{idOrEmpty, executionPrefix + idOrEmpty} {
		exec, err := s.loadExecution(ctx, id)
		if err == nil {
			return exec, nil
		}
		if !errors.Is(err, repo.ErrExecutionNotFound) {
			return nil, err
		}
	}
	return nil, repo.ErrExecutionNotFound
}

// FindLatestExecution returns the execution with the highest number.
func (s *ManifestStore) FindLatestExecution(ctx context.Context) (*model.Execution, error) {
	var entities []ExecutionEntity
	if err := s.db.WithContext(ctx).Find(&entities).Error; err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to list executions", err, false, false)
	}
	best, found := 0, false
	for _, e := range entities {
		if m := executionIDPattern.FindStringSubmatch(e.ExecutionID); m != nil {
			n, _ := strconv.Atoi(m[1])
			if !found || n > best {
				best, found = n, true
			}
		}
	}
	if !found {
		return nil, repo.ErrExecutionNotFound
	}
	return s.loadExecution(ctx, fmt.Sprintf("%s%d", executionPrefix, best))
}

// ProcessedItemIDs returns the item-id set, falling back to scanning batch
// original-text mappings when no ids were recorded.
func (s *ManifestStore) ProcessedItemIDs(ctx context.Context, executionID string) (map[string]struct{}, error) {
	if err := s.ensureExecution(ctx, executionID); err != nil {
		return nil, err
	}

	var itemIDs []string
	if err := s.db.WithContext(ctx).
		Model(&ExecutionItemEntity{}).
		Where("execution_id = ?", executionID).
		Pluck("item_id", &itemIDs).Error; err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load processed item ids", err, false, false)
	}

	ids := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		ids[id] = struct{}{}
	}
	if len(ids) > 0 {
		return ids, nil
	}

	// Degraded path: rebuild from batch metadata.
	var batches []BatchEntity
	if err := s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Find(&batches).Error; err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to scan batches for item ids", err, false, false)
	}
	for _, batch := range batches {
		for customID := range batch.OriginalTexts {
			ids[customID] = struct{}{}
		}
	}
	return ids, nil
}

// NextLocalBatchID returns batch_<max+1> over the execution's batch rows.
func (s *ManifestStore) NextLocalBatchID(ctx context.Context, executionID string) (string, error) {
	if err := s.ensureExecution(ctx, executionID); err != nil {
		return "", err
	}
	var localIDs []string
	if err := s.db.WithContext(ctx).
		Model(&BatchEntity{}).
		Where("execution_id = ?", executionID).
		Pluck("local_id", &localIDs).Error; err != nil {
		return "", exception.NewBatchError(moduleName, "failed to list batch ids", err, false, false)
	}
	max := 0
	for _, localID := range localIDs {
		if m := batchIDPattern.FindStringSubmatch(localID); m != nil {
			if n, _ := strconv.Atoi(m[1]); n > max {
				max = n
			}
		}
	}
	return fmt.Sprintf("batch_%d", max+1), nil
}

// RegisterBatch appends a batch summary and unions itemIDs in one
// transaction. Conflicting item ids are ignored, keeping the union idempotent.
func (s *ManifestStore) RegisterBatch(ctx context.Context, executionID string, batchID string, nItems int, itemIDs []string) error {
	if err := s.ensureExecution(ctx, executionID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&BatchRegistrationEntity{
			ExecutionID: executionID,
			BatchID:     batchID,
			CreatedAt:   time.Now(),
			NItems:      nItems,
		}).Error; err != nil {
			return exception.NewBatchError(moduleName, "failed to record batch registration", err, false, false)
		}

		if len(itemIDs) > 0 {
			rows := make([]ExecutionItemEntity, 0, len(itemIDs))
			for _, id := range itemIDs {
				rows = append(rows, ExecutionItemEntity{ExecutionID: executionID, ItemID: id})
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
				return exception.NewBatchError(moduleName, "failed to union processed item ids", err, false, false)
			}
		}

		if err := tx.Model(&ExecutionEntity{}).
			Where("execution_id = ?", executionID).
			Update("last_updated", time.Now()).Error; err != nil {
			return exception.NewBatchError(moduleName, "failed to touch execution", err, false, false)
		}
		return nil
	})
}

// SaveBatch persists new batch metadata.
func (s *ManifestStore) SaveBatch(ctx context.Context, executionID string, batch *model.Batch) error {
	if err := s.ensureExecution(ctx, executionID); err != nil {
		return err
	}
	if batch.LocalID == "" {
		return exception.NewBatchError(moduleName, "batch local id must be set", nil, false, false)
	}
	entity := toBatchEntity(executionID, batch)
	entity.Version = 1
	if err := s.db.WithContext(ctx).Create(entity).Error; err != nil {
		return exception.NewBatchError(moduleName, "failed to save batch", err, false, false)
	}
	return nil
}

// UpdateBatch updates an existing batch with an optimistic version check.
func (s *ManifestStore) UpdateBatch(ctx context.Context, executionID string, batch *model.Batch) error {
	if batch.LocalID == "" {
		return exception.NewBatchError(moduleName, "batch local id must be set", nil, false, false)
	}

	var current BatchEntity
	err := s.db.WithContext(ctx).
		Where("execution_id = ? AND local_id = ?", executionID, batch.LocalID).
		First(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.ErrBatchNotFound
	}
	if err != nil {
		return exception.NewBatchError(moduleName, "failed to load batch for update", err, false, false)
	}

	entity := toBatchEntity(executionID, batch)
	entity.Version = current.Version + 1
	result := s.db.WithContext(ctx).
		Model(&BatchEntity{}).
		Where("execution_id = ? AND local_id = ? AND version = ?", executionID, batch.LocalID, current.Version).
		Updates(entity)
	if result.Error != nil {
		return exception.NewBatchError(moduleName, "failed to update batch", result.Error, false, false)
	}
	if result.RowsAffected == 0 {
		return exception.NewBatchError(moduleName,
			fmt.Sprintf("concurrent update detected for batch '%s/%s'", executionID, batch.LocalID), nil, false, true)
	}
	return nil
}

// FindBatch resolves by local id first, then by external job id.
func (s *ManifestStore) FindBatch(ctx context.Context, executionID string, batchRef string) (*model.Batch, error) {
	if err := s.ensureExecution(ctx, executionID); err != nil {
		return nil, err
	}

	var entity BatchEntity
	err := s.db.WithContext(ctx).
		Where("execution_id = ? AND local_id = ?", executionID, batchRef).
		First(&entity).Error
	if err == nil {
		return toBatchModel(&entity), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, exception.NewBatchError(moduleName, "failed to find batch", err, false, false)
	}

	err = s.db.WithContext(ctx).
		Where("execution_id = ? AND batch_id = ?", executionID, batchRef).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repo.ErrBatchNotFound
	}
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to find batch", err, false, false)
	}
	return toBatchModel(&entity), nil
}

// ListBatches returns all batches of the execution in local-id order.
// A lexicographic SQL sort would place batch_10 before batch_2, so the rows
// are ordered here by their numeric suffix instead.
func (s *ManifestStore) ListBatches(ctx context.Context, executionID string) ([]*model.Batch, error) {
	if err := s.ensureExecution(ctx, executionID); err != nil {
		return nil, err
	}
	var entities []BatchEntity
	if err := s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Find(&entities).Error; err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to list batches", err, false, false)
	}
	sort.Slice(entities, func(i, j int) bool {
		return localBatchNumber(entities[i].LocalID) < localBatchNumber(entities[j].LocalID)
	})
	out := make([]*model.Batch, 0, len(entities))
	for i := range entities {
		out = append(out, toBatchModel(&entities[i]))
	}
	return out, nil
}

// Close closes the underlying sql.DB.
func (s *ManifestStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *ManifestStore) allocateExecution(ctx context.Context) (*model.Execution, error) {
	var exec *model.Execution
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&ExecutionEntity{}).Pluck("execution_id", &ids).Error; err != nil {
			return exception.NewBatchError(moduleName, "failed to list executions", err, false, false)
		}
		max := 0
		for _, id := range ids {
			if m := executionIDPattern.FindStringSubmatch(id); m != nil {
				if n, _ := strconv.Atoi(m[1]); n > max {
					max = n
				}
			}
		}
		executionID := fmt.Sprintf("%s%d", executionPrefix, max+1)
		now := time.Now()
		if err := tx.Create(&ExecutionEntity{
			ExecutionID: executionID,
			CreatedAt:   now,
			LastUpdated: now,
			Version:     1,
		}).Error; err != nil {
			return exception.NewBatchError(moduleName, "failed to create execution", err, false, false)
		}
		exec = model.NewExecution(executionID)
		exec.CreatedAt = now
		exec.LastUpdated = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("Allocated new execution '%s'.", exec.ExecutionID)
	return exec, nil
}

func (s *ManifestStore) ensureExecution(ctx context.Context, executionID string) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&ExecutionEntity{}).
		Where("execution_id = ?", executionID).
		Count(&count).Error; err != nil {
		return exception.NewBatchError(moduleName, "failed to check execution", err, false, false)
	}
	if count == 0 {
		return repo.ErrExecutionNotFound
	}
	return nil
}

func (s *ManifestStore) loadExecution(ctx context.Context, executionID string) (*model.Execution, error) {
	var entity ExecutionEntity
	err := s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repo.ErrExecutionNotFound
	}
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load execution", err, false, false)
	}

	var registrations []BatchRegistrationEntity
	if err := s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("seq").
		Find(&registrations).Error; err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load batch registrations", err, false, false)
	}
	var itemIDs []string
	if err := s.db.WithContext(ctx).
		Model(&ExecutionItemEntity{}).
		Where("execution_id = ?", executionID).
		Order("item_id").
		Pluck("item_id", &itemIDs).Error; err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to load processed item ids", err, false, false)
	}

	exec := &model.Execution{
		ExecutionID:      entity.ExecutionID,
		CreatedAt:        entity.CreatedAt,
		Batches:          make([]model.BatchSummary, 0, len(registrations)),
		ProcessedItemIDs: itemIDs,
		LastUpdated:      entity.LastUpdated,
	}
	if exec.ProcessedItemIDs == nil {
		exec.ProcessedItemIDs = []string{}
	}
	for _, r := range registrations {
		exec.Batches = append(exec.Batches, model.BatchSummary{
			BatchID:   r.BatchID,
			CreatedAt: r.CreatedAt,
			NItems:    r.NItems,
		})
	}
	return exec, nil
}

func toBatchEntity(executionID string, batch *model.Batch) *BatchEntity {
	return &BatchEntity{
		ExecutionID:   executionID,
		LocalID:       batch.LocalID,
		BatchID:       batch.BatchID,
		FileID:        batch.FileID,
		CreatedAt:     batch.CreatedAt,
		Status:        batch.Status.String(),
		NItems:        batch.NItems,
		OriginalTexts: TextMap(batch.OriginalTexts),
		Retrieved:     batch.Retrieved,
		Task:          batch.Task,
		Model:         batch.Model,
		LastChecked:   batch.LastChecked,
		OutputFileID:  batch.OutputFileID,
		ErrorFileID:   batch.ErrorFileID,
		CompletedAt:   batch.CompletedAt,
		ResultsPath:   batch.ResultsPath,
		NResults:      batch.NResults,
	}
}

func toBatchModel(entity *BatchEntity) *model.Batch {
	return &model.Batch{
		BatchID:       entity.BatchID,
		LocalID:       entity.LocalID,
		FileID:        entity.FileID,
		CreatedAt:     entity.CreatedAt,
		Status:        model.Status(entity.Status),
		NItems:        entity.NItems,
		OriginalTexts: map[string]string(entity.OriginalTexts),
		Retrieved:     entity.Retrieved,
		Task:          entity.Task,
		Model:         entity.Model,
		LastChecked:   entity.LastChecked,
		OutputFileID:  entity.OutputFileID,
		ErrorFileID:   entity.ErrorFileID,
		CompletedAt:   entity.CompletedAt,
		ResultsPath:   entity.ResultsPath,
		NResults:      entity.NResults,
	}
}

// localBatchNumber extracts the numeric suffix of a batch_<n> local id.
// Non-conforming ids sort first.
func localBatchNumber(localID string) int {
	if m := batchIDPattern.FindStringSubmatch(localID); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}
