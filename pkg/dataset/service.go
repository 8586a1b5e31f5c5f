package dataset

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ha1tch/socnet/pkg/cache"
	"github.com/ha1tch/socnet/pkg/graph"
	"github.com/ha1tch/socnet/pkg/metrics"
	"github.com/ha1tch/socnet/pkg/models"
	"github.com/ha1tch/socnet/pkg/storage"
	"github.com/rs/zerolog"
)

const (
	listCacheKey    = "datasets:list"
	statsCachePrefx = "stats:"
)

// Service ingests edge lists as datasets and answers statistics queries
type Service struct {
	store    storage.Store
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *metrics.Collector
	logger   zerolog.Logger

	// generation counts writes. A cache fill computed from reads that
	// started before a write is dropped.
	mu         sync.Mutex
	generation uint64
}

// NewService creates a dataset service. A nil cache disables caching and a
// nil collector disables metrics.
func NewService(
	store storage.Store,
	c cache.Cache,
	cacheTTL time.Duration,
	collector *metrics.Collector,
	logger zerolog.Logger,
) *Service {
	if c == nil {
		c = cache.NoopCache{}
	}
	return &Service{
		store:    store,
		cache:    c,
		cacheTTL: cacheTTL,
		metrics:  collector,
		logger:   logger.With().Str("component", "dataset").Logger(),
	}
}

// Create ingests content as a new dataset called name. The dataset row,
// its users and its friendships are written in one transaction; on any
// failure nothing is left behind.
func (s *Service) Create(ctx context.Context, name string, content []byte) (*models.Dataset, error) {
	const op = "dataset.Create"
	started := time.Now()
	log := s.logger.With().
		Str("ingest_id", uuid.NewString()).
		Str("dataset", name).
		Logger()

	if strings.TrimSpace(name) == "" {
		return nil, s.failIngestion(log, started, &Error{Kind: KindValidation, Op: op, Err: ErrBlankName})
	}

	var (
		created *models.Dataset
		list    *graph.EdgeList
	)
	err := storage.WithTransaction(ctx, s.store, func(tx storage.Transaction) error {
		// Fast path only; the unique index on datasets.name decides
		exists, err := tx.DatasetNameExists(ctx, name)
		if err != nil {
			return classifyWrite(op, err)
		}
		if exists {
			return classifyWrite(op, storage.ErrDuplicateName)
		}

		dataset, err := tx.CreateDataset(ctx, name, time.Now())
		if err != nil {
			return classifyWrite(op, err)
		}

		list, err = graph.Parse(content)
		if err != nil {
			var formatErr *graph.FormatError
			if errors.As(err, &formatErr) {
				return &Error{Kind: KindValidation, Op: op, Err: err}
			}
			return &Error{Kind: KindInternal, Op: op, Err: err}
		}

		taken, err := tx.ExistingUserIDs(ctx, list.Vertices)
		if err != nil {
			return classifyWrite(op, err)
		}
		if len(taken) > 0 {
			log.Debug().Int("conflicts", len(taken)).Int64("first_conflict", taken[0]).Msg("User IDs already stored")
			return classifyWrite(op, storage.ErrUserIDExists)
		}

		if list.IsEmpty() {
			return &Error{Kind: KindValidation, Op: op, Err: ErrEmptyGraph}
		}

		users, friendships := graph.Materialize(dataset.ID, list)
		if err := tx.InsertUsers(ctx, users); err != nil {
			return classifyWrite(op, err)
		}
		if err := tx.InsertFriendships(ctx, friendships); err != nil {
			return classifyWrite(op, err)
		}

		created = dataset
		return nil
	})
	if err != nil {
		return nil, s.failIngestion(log, started, classifyWrite(op, err))
	}

	s.invalidate(ctx, listCacheKey)
	if s.metrics != nil {
		s.metrics.ObserveIngestion(metrics.OutcomeSuccess, started, list.VertexCount(), list.EdgeCount())
	}

	log.Info().
		Int64("id", created.ID).
		Int("users", list.VertexCount()).
		Int("friendships", list.EdgeCount()).
		Dur("took", time.Since(started)).
		Msg("Created dataset")

	return created, nil
}

// failIngestion logs and counts a failed ingestion and returns err
func (s *Service) failIngestion(log zerolog.Logger, started time.Time, err error) error {
	kind := KindOf(err)

	outcome := metrics.OutcomeInternalError
	switch kind {
	case KindValidation:
		outcome = metrics.OutcomeValidationError
		log.Warn().Err(err).Msg("Rejected dataset")
	case KindStorage:
		outcome = metrics.OutcomeStorageError
		log.Error().Err(errors.Unwrap(err)).Msg("Database error while creating dataset")
	default:
		log.Error().Err(err).Msg("Unexpected error while creating dataset")
	}

	if s.metrics != nil {
		s.metrics.ObserveIngestion(outcome, started, 0, 0)
	}
	return err
}

// List returns all datasets, newest first
func (s *Service) List(ctx context.Context) ([]models.Dataset, error) {
	var datasets []models.Dataset
	if s.cached(ctx, listCacheKey, &datasets) {
		return datasets, nil
	}

	gen := s.currentGeneration()
	datasets, err := s.store.ListDatasets(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list datasets")
		return nil, &Error{
			Kind: KindInternal,
			Op:   "dataset.List",
			Msg:  "an error occurred while retrieving datasets",
			Err:  err,
		}
	}

	s.fill(ctx, gen, listCacheKey, datasets)
	return datasets, nil
}

// Statistics returns the user count and average friends per user of a
// dataset. A dataset without users yields zero statistics.
func (s *Service) Statistics(ctx context.Context, id int64) (*models.Statistics, error) {
	const op = "dataset.Statistics"
	key := statsCachePrefx + strconv.FormatInt(id, 10)

	var stats models.Statistics
	if s.cached(ctx, key, &stats) {
		s.countStatistics("cache")
		return &stats, nil
	}

	internal := func(err error) error {
		s.logger.Error().Err(err).Int64("dataset_id", id).Msg("Error retrieving statistics")
		s.countStatistics("error")
		return &Error{
			Kind: KindInternal,
			Op:   op,
			Msg:  fmt.Sprintf("failed to retrieve statistics for dataset with ID %d", id),
			Err:  err,
		}
	}

	gen := s.currentGeneration()
	if _, err := s.store.GetDataset(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn().Int64("dataset_id", id).Msg("Dataset not found")
			s.countStatistics("not_found")
			return nil, &Error{
				Kind: KindNotFound,
				Op:   op,
				Msg:  fmt.Sprintf("dataset with ID %d was not found", id),
				Err:  err,
			}
		}
		return nil, internal(err)
	}

	totalUsers, err := s.store.CountUsers(ctx, id)
	if err != nil {
		return nil, internal(err)
	}
	totalFriendships, err := s.store.CountFriendships(ctx, id)
	if err != nil {
		return nil, internal(err)
	}

	average, err := graph.AverageFriendsPerUser(totalFriendships, totalUsers)
	switch {
	case errors.Is(err, graph.ErrNoUsers):
		stats = models.Statistics{TotalUsers: 0, AverageFriendsPerUser: 0}
	case err != nil:
		return nil, internal(err)
	default:
		stats = models.Statistics{TotalUsers: totalUsers, AverageFriendsPerUser: average}
	}

	s.fill(ctx, gen, key, stats)
	s.countStatistics("computed")
	return &stats, nil
}

// NameExists reports whether a dataset called name exists
func (s *Service) NameExists(ctx context.Context, name string) (bool, error) {
	exists, err := s.store.DatasetNameExists(ctx, name)
	if err != nil {
		s.logger.Error().Err(err).Str("dataset", name).Msg("Failed to check dataset name")
		return false, &Error{Kind: KindInternal, Op: "dataset.NameExists", Err: err}
	}
	return exists, nil
}

// Delete removes a dataset with all of its users and friendships
func (s *Service) Delete(ctx context.Context, id int64) error {
	const op = "dataset.Delete"

	if err := s.store.DeleteDataset(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &Error{
				Kind: KindNotFound,
				Op:   op,
				Msg:  fmt.Sprintf("dataset with ID %d was not found", id),
				Err:  err,
			}
		}
		s.logger.Error().Err(err).Int64("dataset_id", id).Msg("Failed to delete dataset")
		return &Error{Kind: KindStorage, Op: op, Msg: "failed to delete dataset", Err: err}
	}

	s.invalidate(ctx, listCacheKey, statsCachePrefx+strconv.FormatInt(id, 10))
	if s.metrics != nil {
		s.metrics.DatasetsDeleted.Inc()
	}
	s.logger.Info().Int64("id", id).Msg("Deleted dataset")
	return nil
}

// Cache helpers. Cache failures never fail a request.

func (s *Service) cached(ctx context.Context, key string, dest interface{}) bool {
	err := cache.GetJSON(ctx, s.cache, key, dest)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed")
	}
	if s.metrics != nil {
		s.metrics.CacheResult(err == nil)
	}
	return err == nil
}

func (s *Service) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// fill caches value unless a write happened after gen was taken
func (s *Service) fill(ctx context.Context, gen uint64, key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, key, value, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// invalidate starts a new generation and drops keys. Callers invoke it
// after the write has committed.
func (s *Service) invalidate(ctx context.Context, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Cache invalidation failed")
		}
	}
}

func (s *Service) countStatistics(result string) {
	if s.metrics != nil {
		s.metrics.StatisticsRequests.WithLabelValues(result).Inc()
	}
}
