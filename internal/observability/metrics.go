package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// SchedulerTicksTotal counts delivery loop ticks by outcome.
	SchedulerTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plume_scheduler_ticks_total",
		Help: "Total number of scheduler ticks by outcome",
	}, []string{"outcome"})

	// SchedulerTickDuration records how long one delivery tick takes.
	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "plume_scheduler_tick_duration_seconds",
		Help:    "Scheduler tick duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// DuePendingTweets is the number of due pending tweets seen by the last tick.
	DuePendingTweets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "plume_due_pending_tweets",
		Help: "Number of due pending tweets selected by the most recent scheduler tick",
	})

	// TweetsPublishedTotal counts tweets successfully published.
	TweetsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plume_tweets_published_total",
		Help: "Total number of tweets successfully published",
	})

	// TweetsFailedTotal counts tweets marked failed, by reason.
	TweetsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plume_tweets_failed_total",
		Help: "Total number of tweets marked failed by reason",
	}, []string{"reason"})

	// PublishRetriesTotal counts transient publish failures that leave a tweet pending.
	PublishRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "plume_publish_retries_total",
		Help: "Total number of transient publish failures left pending for retry",
	})

	// PublishDuration records publish call latency by outcome.
	PublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plume_publish_duration_seconds",
		Help:    "Publish call duration in seconds by outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// MediaUploadsTotal counts attachment upload attempts by result.
	MediaUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plume_media_uploads_total",
		Help: "Total number of attachment upload attempts by result",
	}, []string{"result"})

	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plume_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plume_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})
)

// DatabaseMetrics wraps DB access for recording query latency.
type DatabaseMetrics struct {
	db *gorm.DB
}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics(db *gorm.DB) *DatabaseMetrics {
	return &DatabaseMetrics{db: db}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	latency := time.Since(start).Seconds()
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(latency)
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}

// TrackQuery records query latency without a DatabaseMetrics instance.
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
