package gormstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
)

func newSqliteStore(t *testing.T) *ManifestStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s/manifest.db", t.TempDir())), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	store, err := NewManifestStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestResolveExecutionAllocatesSequentially(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()

	first, err := store.ResolveExecution(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "execution_1", first.ExecutionID)

	second, err := store.ResolveExecution(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "execution_2", second.ExecutionID)

	latest, err := store.FindLatestExecution(ctx)
	require.NoError(t, err)
	assert.Equal(t, "execution_2", latest.ExecutionID)
}

func TestResolveExecutionByBareNumber(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()

	created, err := store.ResolveExecution(ctx, "")
	require.NoError(t, err)

	resolved, err := store.ResolveExecution(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, created.ExecutionID, resolved.ExecutionID)

	_, err = store.ResolveExecution(ctx, "execution_42")
	assert.True(t, errors.Is(err, repo.ErrExecutionNotFound))
}

func TestRegisterBatchIsIdempotentOnItemIDs(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()

	execution, err := store.ResolveExecution(ctx, "")
	require.NoError(t, err)

	require.NoError(t, store.RegisterBatch(ctx, execution.ExecutionID, "job_1", 2, []string{"a", "b"}))
	require.NoError(t, store.RegisterBatch(ctx, execution.ExecutionID, "job_2", 2, []string{"b", "c"}))

	ids, err := store.ProcessedItemIDs(ctx, execution.ExecutionID)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	reloaded, err := store.ResolveExecution(ctx, execution.ExecutionID)
	require.NoError(t, err)
	require.Len(t, reloaded.Batches, 2)
	assert.Equal(t, "job_1", reloaded.Batches[0].BatchID)
	assert.Equal(t, "job_2", reloaded.Batches[1].BatchID)
}

func TestProcessedItemIDsFallsBackToBatchScan(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()

	execution, err := store.ResolveExecution(ctx, "")
	require.NoError(t, err)

	// No item ids were registered; only batch metadata carries custom ids.
	batch := &model.Batch{
		BatchID:       "job_1",
		LocalID:       "batch_1",
		CreatedAt:     time.Now(),
		Status:        model.StatusSubmitted,
		NItems:        2,
		OriginalTexts: map[string]string{"item_0": "x", "item_1": "y"},
	}
	require.NoError(t, store.SaveBatch(ctx, execution.ExecutionID, batch))

	ids, err := store.ProcessedItemIDs(ctx, execution.ExecutionID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "item_0")
}

func TestNextLocalBatchID(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()

	execution, err := store.ResolveExecution(ctx, "")
	require.NoError(t, err)

	id, err := store.NextLocalBatchID(ctx, execution.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "batch_1", id)

	require.NoError(t, store.SaveBatch(ctx, execution.ExecutionID, &model.Batch{
		BatchID:       "job_3",
		LocalID:       "batch_3",
		CreatedAt:     time.Now(),
		Status:        model.StatusSubmitted,
		OriginalTexts: map[string]string{},
	}))

	id, err = store.NextLocalBatchID(ctx, execution.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "batch_4", id, "numbering is gap tolerant")
}

func TestSaveAndFindBatchRoundTrip(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()

	execution, err := store.ResolveExecution(ctx, "")
	require.NoError(t, err)

	now := time.Now()
	batch := &model.Batch{
		BatchID:       "batch_abc123",
		LocalID:       "batch_1",
		FileID:        "file_1",
		CreatedAt:     now,
		Status:        model.StatusSubmitted,
		NItems:        1,
		OriginalTexts: map[string]string{"doc-1": "some text"},
		Task:          "entity_extraction",
		Model:         "gpt-4o-mini",
	}
	require.NoError(t, store.SaveBatch(ctx, execution.ExecutionID, batch))

	byLocal, err := store.FindBatch(ctx, execution.ExecutionID, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, "batch_abc123", byLocal.BatchID)
	assert.Equal(t, "some text", byLocal.OriginalTexts["doc-1"])

	byExternal, err := store.FindBatch(ctx, execution.ExecutionID, "batch_abc123")
	require.NoError(t, err)
	assert.Equal(t, "batch_1", byExternal.LocalID)

	_, err = store.FindBatch(ctx, execution.ExecutionID, "batch_9")
	assert.True(t, errors.Is(err, repo.ErrBatchNotFound))
}

func TestUpdateBatchBumpsVersion(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()

	execution, err := store.ResolveExecution(ctx, "")
	require.NoError(t, err)
	batch := &model.Batch{
		BatchID:       "job_1",
		LocalID:       "batch_1",
		CreatedAt:     time.Now(),
		Status:        model.StatusSubmitted,
		OriginalTexts: map[string]string{"doc-1": "x"},
	}
	require.NoError(t, store.SaveBatch(ctx, execution.ExecutionID, batch))

	batch.Status = model.StatusCompleted
	batch.Retrieved = true
	batch.NResults = 1
	require.NoError(t, store.UpdateBatch(ctx, execution.ExecutionID, batch))

	var entity BatchEntity
	require.NoError(t, store.db.
		Where("execution_id = ? AND local_id = ?", execution.ExecutionID, "batch_1").
		First(&entity).Error)
	assert.Equal(t, 2, entity.Version)
	assert.True(t, entity.Retrieved)

	missing := &model.Batch{LocalID: "batch_9", BatchID: "job_9", OriginalTexts: map[string]string{}}
	err = store.UpdateBatch(ctx, execution.ExecutionID, missing)
	assert.True(t, errors.Is(err, repo.ErrBatchNotFound))
}

func TestListBatchesInNumericOrder(t *testing.T) {
	store := newSqliteStore(t)
	ctx := context.Background()

	execution, err := store.ResolveExecution(ctx, "")
	require.NoError(t, err)
	for _, localID := range []string{"batch_2", "batch_10", "batch_1"} {
		require.NoError(t, store.SaveBatch(ctx, execution.ExecutionID, &model.Batch{
			BatchID:       "job_" + localID,
			LocalID:       localID,
			CreatedAt:     time.Now(),
			Status:        model.StatusSubmitted,
			OriginalTexts: map[string]string{},
		}))
	}

	batches, err := store.ListBatches(ctx, execution.ExecutionID)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, "batch_1", batches[0].LocalID)
	assert.Equal(t, "batch_2", batches[1].LocalID)
	assert.Equal(t, "batch_10", batches[2].LocalID, "numeric order, not lexicographic")
}

func TestTextMapRoundTrip(t *testing.T) {
	value, err := TextMap{"doc-1": "alpha"}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc-1": "alpha"}`, value.(string))

	var scanned TextMap
	require.NoError(t, scanned.Scan([]byte(`{"doc-2": "beta"}`)))
	assert.Equal(t, "beta", scanned["doc-2"])

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)
}

// newMockStore wires the store over a sqlmock connection, bypassing
// migration, for error-path tests.
func newMockStore(t *testing.T) (*ManifestStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	return &ManifestStore{db: db}, mock
}

func TestProcessedItemIDsUnknownExecution(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT count").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := store.ProcessedItemIDs(context.Background(), "execution_1")
	assert.True(t, errors.Is(err, repo.ErrExecutionNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessedItemIDsSurfacesQueryErrors(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT count").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT .item_id.").
		WillReturnError(errors.New("connection reset"))

	_, err := store.ProcessedItemIDs(context.Background(), "execution_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load processed item ids")
	assert.NoError(t, mock.ExpectationsWereMet())
}
