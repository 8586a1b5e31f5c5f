package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ha1tch/socnet/pkg/models"
	"modernc.org/sqlite" // Pure Go SQLite driver
	sqlite3 "modernc.org/sqlite/lib"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// SQLite limits host parameters per statement; stay well below it
const maxInParams = 500

// SQLiteStore implements Store interface using SQLite database
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	config SQLiteConfig

	// writeMu serializes write transactions; readers go through WAL
	writeMu sync.Mutex
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	DBPath            string
	EnableWAL         bool // Write-Ahead Logging for better concurrency
	EnableForeignKeys bool
	CacheSize         int // Page cache size in KB
	BusyTimeout       int // Milliseconds to wait on locked database
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// NewSQLiteStore creates a new SQLite-based storage
func NewSQLiteStore(config SQLiteConfig) (*SQLiteStore, error) {
	if config.DBPath == "" {
		config.DBPath = "socnet.db"
	}

	// Open database
	db, err := sql.Open("sqlite", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool. Every connection to ":memory:" would see
	// its own empty database, so pin in-memory stores to one connection.
	if config.DBPath == MemoryPath {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	store := &SQLiteStore{
		db:     db,
		dbPath: config.DBPath,
		config: config,
	}

	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// dsn carries the pragmas in the connection string so that every pooled
// connection gets them, not only the first one.
func (c SQLiteConfig) dsn() string {
	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", c.BusyTimeout),
		fmt.Sprintf("_pragma=cache_size(-%d)", c.CacheSize),
		"_pragma=synchronous(NORMAL)",
	}
	if c.EnableForeignKeys {
		pragmas = append(pragmas, "_pragma=foreign_keys(1)")
	}
	if c.EnableWAL && c.DBPath != MemoryPath {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	return c.DBPath + "?" + strings.Join(pragmas, "&")
}

const schemaV1 = `
	CREATE TABLE IF NOT EXISTS datasets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL -- unix nanoseconds, UTC
	);

	CREATE INDEX IF NOT EXISTS idx_datasets_created_at ON datasets(created_at);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset_id INTEGER NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL,
		UNIQUE (dataset_id, user_id)
	);

	-- user IDs are unique across all datasets
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_user_id ON users(user_id);

	CREATE TABLE IF NOT EXISTS friendships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dataset_id INTEGER NOT NULL REFERENCES datasets(id) ON DELETE CASCADE,
		user1_id INTEGER NOT NULL,
		user2_id INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_friendships_dataset ON friendships(dataset_id);

	-- Version tracking for migrations
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
`

// Migrate creates the tables and indexes if they do not exist yet
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// Version returns the applied schema version
func (s *SQLiteStore) Version(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		"SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// Info returns store information
func (s *SQLiteStore) Info() StoreInfo {
	storeType := "sqlite"
	if s.dbPath == MemoryPath {
		storeType = "memory"
	}
	return StoreInfo{
		Type:    storeType,
		Version: "1.0.0",
		Path:    s.dbPath,
	}
}

// Begin starts a write transaction. Only one write transaction is open at
// a time; Begin blocks until the previous one finishes.
func (s *SQLiteStore) Begin(ctx context.Context) (Transaction, error) {
	s.writeMu.Lock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTx{tx: tx, release: s.writeMu.Unlock}, nil
}

// update runs fn in its own short write transaction
func (s *SQLiteStore) update(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	stx := tx.(*sqliteTx)

	if err := fn(stx.tx); err != nil {
		stx.Rollback()
		return err
	}
	return stx.Commit()
}

// ListDatasets returns all datasets, newest first
func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	return listDatasets(ctx, s.db)
}

// GetDataset retrieves a dataset by ID
func (s *SQLiteStore) GetDataset(ctx context.Context, id int64) (*models.Dataset, error) {
	return getDataset(ctx, s.db, id)
}

// DatasetNameExists reports whether a dataset with this exact name exists
func (s *SQLiteStore) DatasetNameExists(ctx context.Context, name string) (bool, error) {
	return datasetNameExists(ctx, s.db, name)
}

// CountUsers counts the users of a dataset
func (s *SQLiteStore) CountUsers(ctx context.Context, datasetID int64) (int64, error) {
	return count(ctx, s.db, "SELECT COUNT(*) FROM users WHERE dataset_id = ?", datasetID)
}

// CountFriendships counts the friendship rows of a dataset
func (s *SQLiteStore) CountFriendships(ctx context.Context, datasetID int64) (int64, error) {
	return count(ctx, s.db, "SELECT COUNT(*) FROM friendships WHERE dataset_id = ?", datasetID)
}

// ExistingUserIDs returns which of ids are already stored
func (s *SQLiteStore) ExistingUserIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return existingUserIDs(ctx, s.db, ids)
}

// DeleteDataset removes a dataset together with its users and friendships
func (s *SQLiteStore) DeleteDataset(ctx context.Context, id int64) error {
	return s.update(ctx, func(q querier) error {
		return deleteDataset(ctx, q, id)
	})
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteTx implements Transaction on top of *sql.Tx
type sqliteTx struct {
	tx      *sql.Tx
	release func()
	once    sync.Once
	done    bool
}

func (t *sqliteTx) finish() {
	t.once.Do(func() {
		t.done = true
		t.release()
	})
}

// Commit commits the transaction. Constraint violations detected at commit
// are reported as ErrDuplicateName or ErrUserIDExists.
func (t *sqliteTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	defer t.finish()

	if err := t.tx.Commit(); err != nil {
		return translateError(fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

// Rollback aborts the transaction; calling it after Commit is a no-op
func (t *sqliteTx) Rollback() error {
	if t.done {
		return nil
	}
	defer t.finish()

	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback: %w", err)
	}
	return nil
}

func (t *sqliteTx) ListDatasets(ctx context.Context) ([]models.Dataset, error) {
	return listDatasets(ctx, t.tx)
}

func (t *sqliteTx) GetDataset(ctx context.Context, id int64) (*models.Dataset, error) {
	return getDataset(ctx, t.tx, id)
}

func (t *sqliteTx) DatasetNameExists(ctx context.Context, name string) (bool, error) {
	return datasetNameExists(ctx, t.tx, name)
}

func (t *sqliteTx) CountUsers(ctx context.Context, datasetID int64) (int64, error) {
	return count(ctx, t.tx, "SELECT COUNT(*) FROM users WHERE dataset_id = ?", datasetID)
}

func (t *sqliteTx) CountFriendships(ctx context.Context, datasetID int64) (int64, error) {
	return count(ctx, t.tx, "SELECT COUNT(*) FROM friendships WHERE dataset_id = ?", datasetID)
}

func (t *sqliteTx) ExistingUserIDs(ctx context.Context, ids []int64) ([]int64, error) {
	return existingUserIDs(ctx, t.tx, ids)
}

func (t *sqliteTx) CreateDataset(ctx context.Context, name string, createdAt time.Time) (*models.Dataset, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return createDataset(ctx, t.tx, name, createdAt)
}

func (t *sqliteTx) InsertUsers(ctx context.Context, users []models.User) error {
	if t.done {
		return ErrTxDone
	}
	return insertUsers(ctx, t.tx, users)
}

func (t *sqliteTx) InsertFriendships(ctx context.Context, friendships []models.Friendship) error {
	if t.done {
		return ErrTxDone
	}
	return insertFriendships(ctx, t.tx, friendships)
}

func (t *sqliteTx) DeleteDataset(ctx context.Context, id int64) error {
	if t.done {
		return ErrTxDone
	}
	return deleteDataset(ctx, t.tx, id)
}

// Queries shared by the store and its transactions

func listDatasets(ctx context.Context, q querier) ([]models.Dataset, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, created_at FROM datasets
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	datasets := []models.Dataset{}
	for rows.Next() {
		var d models.Dataset
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.Name, &createdAt); err != nil {
			return nil, err
		}
		d.CreatedAt = fromUnixNano(createdAt)
		datasets = append(datasets, d)
	}

	return datasets, rows.Err()
}

func getDataset(ctx context.Context, q querier, id int64) (*models.Dataset, error) {
	var d models.Dataset
	var createdAt int64
	err := q.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM datasets WHERE id = ?
	`, id).Scan(&d.ID, &d.Name, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset: %w", err)
	}

	d.CreatedAt = fromUnixNano(createdAt)
	return &d, nil
}

func datasetNameExists(ctx context.Context, q querier, name string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM datasets WHERE name = ?)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check dataset name: %w", err)
	}
	return exists, nil
}

func count(ctx context.Context, q querier, query string, args ...interface{}) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

func existingUserIDs(ctx context.Context, q querier, ids []int64) ([]int64, error) {
	found := []int64{}

	for start := 0; start < len(ids); start += maxInParams {
		end := start + maxInParams
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := q.QueryContext(ctx,
			"SELECT DISTINCT user_id FROM users WHERE user_id IN ("+placeholders+") ORDER BY user_id",
			args...)
		if err != nil {
			return nil, fmt.Errorf("failed to look up user IDs: %w", err)
		}

		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			found = append(found, id)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	return found, nil
}

func createDataset(ctx context.Context, q querier, name string, createdAt time.Time) (*models.Dataset, error) {
	stamp := createdAt.UTC().UnixNano()

	res, err := q.ExecContext(ctx,
		"INSERT INTO datasets (name, created_at) VALUES (?, ?)", name, stamp)
	if err != nil {
		return nil, translateError(fmt.Errorf("failed to insert dataset: %w", err))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset ID: %w", err)
	}

	return &models.Dataset{
		ID:        id,
		Name:      name,
		CreatedAt: fromUnixNano(stamp),
	}, nil
}

func insertUsers(ctx context.Context, q querier, users []models.User) error {
	if len(users) == 0 {
		return nil
	}

	stmt, err := q.PrepareContext(ctx,
		"INSERT INTO users (dataset_id, user_id) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare user insert: %w", err)
	}
	defer stmt.Close()

	for _, u := range users {
		if _, err := stmt.ExecContext(ctx, u.DatasetID, u.UserID); err != nil {
			return translateError(fmt.Errorf("failed to insert user %d: %w", u.UserID, err))
		}
	}
	return nil
}

func insertFriendships(ctx context.Context, q querier, friendships []models.Friendship) error {
	if len(friendships) == 0 {
		return nil
	}

	stmt, err := q.PrepareContext(ctx,
		"INSERT INTO friendships (dataset_id, user1_id, user2_id) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare friendship insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range friendships {
		if _, err := stmt.ExecContext(ctx, f.DatasetID, f.User1ID, f.User2ID); err != nil {
			return translateError(fmt.Errorf("failed to insert friendship %d-%d: %w", f.User1ID, f.User2ID, err))
		}
	}
	return nil
}

func deleteDataset(ctx context.Context, q querier, id int64) error {
	// Children are removed explicitly as well, so a connection opened
	// without foreign_keys still leaves no orphans.
	if _, err := q.ExecContext(ctx, "DELETE FROM friendships WHERE dataset_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete friendships: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM users WHERE dataset_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete users: %w", err)
	}

	res, err := q.ExecContext(ctx, "DELETE FROM datasets WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// translateError maps unique constraint violations to domain errors
func translateError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
			return err
		}
		msg = sqliteErr.Error()
	}

	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "datasets.name"):
		return fmt.Errorf("%w: %v", ErrDuplicateName, err)
	case strings.Contains(msg, "users.user_id"):
		return fmt.Errorf("%w: %v", ErrUserIDExists, err)
	}
	return err
}
