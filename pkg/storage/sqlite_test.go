package storage_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ha1tch/socnet/pkg/models"
	"github.com/ha1tch/socnet/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLiteTest(t *testing.T) (storage.Store, func()) {
	t.Helper()

	// Create temp database file
	tmpFile, err := os.CreateTemp("", "socnet-test-*.db")
	require.NoError(t, err)
	tmpFile.Close()

	dbPath := tmpFile.Name()

	config := map[string]interface{}{
		"db_path": dbPath,
	}

	store, err := storage.NewStore("sqlite", config)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		if store != nil {
			store.Close()
		}
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}

	return store, cleanup
}

// createDataset, insertUsers and insertFriendships each run one write in
// its own transaction
func createDataset(ctx context.Context, store storage.Store, name string, createdAt time.Time) (*models.Dataset, error) {
	var dataset *models.Dataset
	err := storage.WithTransaction(ctx, store, func(tx storage.Transaction) error {
		var err error
		dataset, err = tx.CreateDataset(ctx, name, createdAt)
		return err
	})
	return dataset, err
}

func insertUsers(ctx context.Context, store storage.Store, users []models.User) error {
	return storage.WithTransaction(ctx, store, func(tx storage.Transaction) error {
		return tx.InsertUsers(ctx, users)
	})
}

func insertFriendships(ctx context.Context, store storage.Store, friendships []models.Friendship) error {
	return storage.WithTransaction(ctx, store, func(tx storage.Transaction) error {
		return tx.InsertFriendships(ctx, friendships)
	})
}

// seedDataset creates a dataset with the given users and friendships
func seedDataset(t *testing.T, store storage.Store, name string, userIDs []int64, edges [][2]int64) *models.Dataset {
	t.Helper()
	ctx := context.Background()

	dataset, err := createDataset(ctx, store, name, time.Now())
	require.NoError(t, err)

	users := make([]models.User, 0, len(userIDs))
	for _, id := range userIDs {
		users = append(users, models.User{DatasetID: dataset.ID, UserID: id})
	}
	require.NoError(t, insertUsers(ctx, store, users))

	friendships := make([]models.Friendship, 0, len(edges))
	for _, e := range edges {
		friendships = append(friendships, models.Friendship{DatasetID: dataset.ID, User1ID: e[0], User2ID: e[1]})
	}
	require.NoError(t, insertFriendships(ctx, store, friendships))

	return dataset
}

// =============================================================================
// Dataset Tests
// =============================================================================

func TestSQLiteStore_CreateDataset(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)

	dataset, err := createDataset(ctx, store, "facebook", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dataset.ID)
	assert.Equal(t, "facebook", dataset.Name)
	assert.True(t, now.Equal(dataset.CreatedAt))

	retrieved, err := store.GetDataset(ctx, dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, *dataset, *retrieved)
}

func TestSQLiteStore_CreateDatasetDuplicateName(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	_, err := createDataset(ctx, store, "twitter", time.Now())
	require.NoError(t, err)

	_, err = createDataset(ctx, store, "twitter", time.Now())
	assert.ErrorIs(t, err, storage.ErrDuplicateName)
}

func TestSQLiteStore_GetDatasetNotFound(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	_, err := store.GetDataset(context.Background(), 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLiteStore_DatasetNameExists(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	exists, err := store.DatasetNameExists(ctx, "Existing Dataset")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = createDataset(ctx, store, "Existing Dataset", time.Now())
	require.NoError(t, err)

	exists, err = store.DatasetNameExists(ctx, "Existing Dataset")
	require.NoError(t, err)
	assert.True(t, exists)

	// Exact match only
	exists, err = store.DatasetNameExists(ctx, "Existing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLiteStore_ListDatasetsNewestFirst(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	_, err := createDataset(ctx, store, "Dataset 1", now.AddDate(0, 0, -1))
	require.NoError(t, err)
	_, err = createDataset(ctx, store, "Dataset 2", now.AddDate(0, 0, -3))
	require.NoError(t, err)
	_, err = createDataset(ctx, store, "Dataset 3", now)
	require.NoError(t, err)

	datasets, err := store.ListDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, datasets, 3)

	assert.Equal(t, int64(3), datasets[0].ID)
	assert.Equal(t, int64(1), datasets[1].ID)
	assert.Equal(t, int64(2), datasets[2].ID)
}

func TestSQLiteStore_ListDatasetsTiesByID(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()
	same := time.Now()

	for i := 0; i < 3; i++ {
		_, err := createDataset(ctx, store, fmt.Sprintf("tie-%d", i), same)
		require.NoError(t, err)
	}

	datasets, err := store.ListDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, datasets, 3)
	assert.Equal(t, "tie-2", datasets[0].Name)
	assert.Equal(t, "tie-1", datasets[1].Name)
	assert.Equal(t, "tie-0", datasets[2].Name)
}

func TestSQLiteStore_ListDatasetsEmpty(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	datasets, err := store.ListDatasets(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, datasets)
	assert.Empty(t, datasets)
}

// =============================================================================
// User and Friendship Tests
// =============================================================================

func TestSQLiteStore_Counts(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()
	dataset := seedDataset(t, store, "test", []int64{1, 2, 3, 4, 5}, [][2]int64{
		{1, 2}, {1, 3}, {1, 4}, {2, 3}, {2, 5},
		{3, 4}, {3, 5}, {4, 5}, {1, 5}, {2, 4},
	})

	users, err := store.CountUsers(ctx, dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), users)

	friendships, err := store.CountFriendships(ctx, dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), friendships)

	// Unknown dataset counts as empty
	users, err = store.CountUsers(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(0), users)
}

func TestSQLiteStore_DuplicateFriendshipsKept(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	dataset := seedDataset(t, store, "dups", []int64{1, 2}, [][2]int64{{1, 2}, {2, 1}, {1, 2}})

	n, err := store.CountFriendships(context.Background(), dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSQLiteStore_UserIDsGloballyUnique(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()
	seedDataset(t, store, "first", []int64{1, 2}, [][2]int64{{1, 2}})

	second, err := createDataset(ctx, store, "second", time.Now())
	require.NoError(t, err)

	err = insertUsers(ctx, store, []models.User{{DatasetID: second.ID, UserID: 2}})
	assert.ErrorIs(t, err, storage.ErrUserIDExists)
}

func TestSQLiteStore_ExistingUserIDs(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()
	seedDataset(t, store, "a", []int64{1, 2, 3}, nil)
	seedDataset(t, store, "b", []int64{10, 20}, nil)

	found, err := store.ExistingUserIDs(ctx, []int64{3, 4, 20, 99})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 20}, found)

	found, err = store.ExistingUserIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLiteStore_ExistingUserIDsChunked(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ids := make([]int64, 0, 1200)
	for i := int64(0); i < 1200; i++ {
		ids = append(ids, i)
	}
	seedDataset(t, store, "big", ids, nil)

	found, err := store.ExistingUserIDs(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, found, 1200)
}

func TestSQLiteStore_DeleteDatasetCascades(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()
	dataset := seedDataset(t, store, "doomed", []int64{1, 2, 3}, [][2]int64{{1, 2}, {2, 3}})

	require.NoError(t, store.DeleteDataset(ctx, dataset.ID))

	_, err := store.GetDataset(ctx, dataset.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	users, err := store.CountUsers(ctx, dataset.ID)
	require.NoError(t, err)
	assert.Zero(t, users)

	friendships, err := store.CountFriendships(ctx, dataset.ID)
	require.NoError(t, err)
	assert.Zero(t, friendships)

	// User IDs are free again
	found, err := store.ExistingUserIDs(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLiteStore_DeleteDatasetNotFound(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	err := store.DeleteDataset(context.Background(), 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestSQLiteStore_TransactionCommit(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	var datasetID int64
	err := storage.WithTransaction(ctx, store, func(tx storage.Transaction) error {
		dataset, err := tx.CreateDataset(ctx, "committed", time.Now())
		if err != nil {
			return err
		}
		datasetID = dataset.ID
		if err := tx.InsertUsers(ctx, []models.User{{DatasetID: dataset.ID, UserID: 7}}); err != nil {
			return err
		}

		// Visible inside the transaction
		n, err := tx.CountUsers(ctx, dataset.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), n)
		return nil
	})
	require.NoError(t, err)

	n, err := store.CountUsers(ctx, datasetID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteStore_TransactionRollback(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()
	boom := errors.New("boom")

	err := storage.WithTransaction(ctx, store, func(tx storage.Transaction) error {
		dataset, err := tx.CreateDataset(ctx, "rolled back", time.Now())
		if err != nil {
			return err
		}
		if err := tx.InsertUsers(ctx, []models.User{{DatasetID: dataset.ID, UserID: 1}}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	datasets, err := store.ListDatasets(ctx)
	require.NoError(t, err)
	assert.Empty(t, datasets)

	found, err := store.ExistingUserIDs(ctx, []int64{1})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSQLiteStore_TransactionRollbackOnPanic(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	assert.Panics(t, func() {
		_ = storage.WithTransaction(ctx, store, func(tx storage.Transaction) error {
			if _, err := tx.CreateDataset(ctx, "panicked", time.Now()); err != nil {
				return err
			}
			panic("unexpected")
		})
	})

	exists, err := store.DatasetNameExists(ctx, "panicked")
	require.NoError(t, err)
	assert.False(t, exists)

	// The writer lock was released
	_, err = createDataset(ctx, store, "after panic", time.Now())
	require.NoError(t, err)
}

func TestSQLiteStore_TransactionUseAfterCommit(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	_, err = tx.CreateDataset(ctx, "late", time.Now())
	assert.ErrorIs(t, err, storage.ErrTxDone)
	assert.ErrorIs(t, tx.Commit(), storage.ErrTxDone)
	assert.NoError(t, tx.Rollback())
}

func TestSQLiteStore_ConcurrentTransactions(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()
	numWorkers := 8

	var wg sync.WaitGroup
	errs := make(chan error, numWorkers)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			errs <- storage.WithTransaction(ctx, store, func(tx storage.Transaction) error {
				dataset, err := tx.CreateDataset(ctx, fmt.Sprintf("worker-%d", worker), time.Now())
				if err != nil {
					return err
				}
				return tx.InsertUsers(ctx, []models.User{{DatasetID: dataset.ID, UserID: int64(worker)}})
			})
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	datasets, err := store.ListDatasets(ctx)
	require.NoError(t, err)
	assert.Len(t, datasets, numWorkers)
}

func TestSQLiteStore_ConcurrentSameName(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()
	numWorkers := 5

	var wg sync.WaitGroup
	errs := make(chan error, numWorkers)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- storage.WithTransaction(ctx, store, func(tx storage.Transaction) error {
				_, err := tx.CreateDataset(ctx, "contested", time.Now())
				return err
			})
		}()
	}

	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, storage.ErrDuplicateName)
	}
	assert.Equal(t, 1, succeeded)
}

// =============================================================================
// Store Metadata Tests
// =============================================================================

func TestSQLiteStore_Info(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	infoProvider, ok := store.(storage.InfoProvider)
	require.True(t, ok)

	info := infoProvider.Info()
	assert.Equal(t, "sqlite", info.Type)
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Path)
}

func TestSQLiteStore_Version(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	migrator, ok := store.(storage.Migrator)
	require.True(t, ok)

	// Migrate is idempotent
	require.NoError(t, migrator.Migrate(context.Background()))

	version, err := migrator.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestMemoryStore(t *testing.T) {
	store, err := storage.NewStore("memory", nil)
	require.NoError(t, err)
	defer store.Close()

	dataset := seedDataset(t, store, "in-memory", []int64{1, 2}, [][2]int64{{1, 2}})

	n, err := store.CountFriendships(context.Background(), dataset.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	info := store.(storage.InfoProvider).Info()
	assert.Equal(t, "memory", info.Type)
}

func TestNewStoreUnknownType(t *testing.T) {
	_, err := storage.NewStore("postgres", nil)
	assert.Error(t, err)
	assert.Subset(t, storage.ListStores(), []string{"memory", "sqlite"})
}

// =============================================================================
// Benchmark Tests
// =============================================================================

func BenchmarkSQLiteStore_InsertFriendships(b *testing.B) {
	tmpFile, _ := os.CreateTemp("", "socnet-bench-*.db")
	tmpFile.Close()
	dbPath := tmpFile.Name()
	defer os.Remove(dbPath)

	store, _ := storage.NewStore("sqlite", map[string]interface{}{"db_path": dbPath})
	defer store.Close()

	ctx := context.Background()
	dataset, _ := createDataset(ctx, store, "bench", time.Now())

	friendships := make([]models.Friendship, 1000)
	for i := range friendships {
		friendships[i] = models.Friendship{DatasetID: dataset.ID, User1ID: int64(i), User2ID: int64(i + 1)}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		insertFriendships(ctx, store, friendships)
	}
}
