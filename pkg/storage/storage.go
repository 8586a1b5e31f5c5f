package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ha1tch/socnet/pkg/models"
)

var (
	// ErrNotFound is returned when a dataset does not exist
	ErrNotFound = errors.New("dataset not found")
	// ErrDuplicateName is returned when a dataset name is already taken
	ErrDuplicateName = errors.New("dataset with the same name already exists")
	// ErrUserIDExists is returned when a user ID is already stored in any dataset
	ErrUserIDExists = errors.New("user ID already exists in database")
	// ErrTxDone is returned when a finished transaction is used again
	ErrTxDone = errors.New("transaction has already been committed or rolled back")
)

// Reader defines the read side of a dataset store
type Reader interface {
	ListDatasets(ctx context.Context) ([]models.Dataset, error)
	GetDataset(ctx context.Context, id int64) (*models.Dataset, error)
	DatasetNameExists(ctx context.Context, name string) (bool, error)
	CountUsers(ctx context.Context, datasetID int64) (int64, error)
	CountFriendships(ctx context.Context, datasetID int64) (int64, error)

	// ExistingUserIDs returns the subset of ids already stored as users,
	// regardless of the dataset they belong to.
	ExistingUserIDs(ctx context.Context, ids []int64) ([]int64, error)
}

// Writer defines the write side of a dataset store. Graph rows are only
// written inside a Transaction so an ingestion is all or nothing.
type Writer interface {
	CreateDataset(ctx context.Context, name string, createdAt time.Time) (*models.Dataset, error)
	InsertUsers(ctx context.Context, users []models.User) error
	InsertFriendships(ctx context.Context, friendships []models.Friendship) error
	DeleteDataset(ctx context.Context, id int64) error
}

// Store defines the core interface for dataset storage backends
type Store interface {
	Reader

	// DeleteDataset removes a dataset with its users and friendships in
	// its own transaction
	DeleteDataset(ctx context.Context, id int64) error

	// Begin starts a transaction. Writes made through it are invisible to
	// other readers until Commit.
	Begin(ctx context.Context) (Transaction, error)

	// Lifecycle
	Close() error
}

// Transaction represents a storage transaction
type Transaction interface {
	Reader
	Writer
	Commit() error
	Rollback() error
}

// Migrator defines optional schema migration support
type Migrator interface {
	Migrate(ctx context.Context) error
	Version(ctx context.Context) (int, error)
}

// StoreInfo provides metadata about the store implementation
type StoreInfo struct {
	Type    string // "sqlite", "memory"
	Version string
	Path    string
}

// InfoProvider allows stores to provide metadata about their capabilities
type InfoProvider interface {
	Info() StoreInfo
}
