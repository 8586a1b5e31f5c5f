package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion outcomes
const (
	OutcomeSuccess         = "success"
	OutcomeValidationError = "validation_error"
	OutcomeStorageError    = "storage_error"
	OutcomeInternalError   = "internal_error"
)

// Collector holds all Prometheus metrics for the service. Each collector
// owns its registry, so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	Ingestions          *prometheus.CounterVec
	IngestionDuration   prometheus.Histogram
	UsersIngested       prometheus.Counter
	FriendshipsIngested prometheus.Counter
	DatasetsDeleted     prometheus.Counter

	StatisticsRequests *prometheus.CounterVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
}

// NewCollector creates a collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Ingestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingestions_total",
				Help:      "Dataset ingestions by outcome",
			},
			[]string{"outcome"},
		),
		IngestionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingestion_duration_seconds",
				Help:      "Time spent ingesting a dataset, parse through commit",
				Buckets:   prometheus.DefBuckets,
			},
		),
		UsersIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "users_ingested_total",
				Help:      "Users persisted by committed ingestions",
			},
		),
		FriendshipsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "friendships_ingested_total",
				Help:      "Friendships persisted by committed ingestions",
			},
		),
		DatasetsDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "datasets_deleted_total",
				Help:      "Datasets deleted",
			},
		),
		StatisticsRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "statistics_requests_total",
				Help:      "Statistics lookups by result",
			},
			[]string{"result"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
		),
	}

	registry.MustRegister(
		c.Ingestions,
		c.IngestionDuration,
		c.UsersIngested,
		c.FriendshipsIngested,
		c.DatasetsDeleted,
		c.StatisticsRequests,
		c.CacheHits,
		c.CacheMisses,
	)

	return c
}

// ObserveIngestion records one finished ingestion
func (c *Collector) ObserveIngestion(outcome string, started time.Time, users, friendships int) {
	c.Ingestions.WithLabelValues(outcome).Inc()
	c.IngestionDuration.Observe(time.Since(started).Seconds())
	if outcome == OutcomeSuccess {
		c.UsersIngested.Add(float64(users))
		c.FriendshipsIngested.Add(float64(friendships))
	}
}

// CacheResult counts a cache lookup
func (c *Collector) CacheResult(hit bool) {
	if hit {
		c.CacheHits.Inc()
		return
	}
	c.CacheMisses.Inc()
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
