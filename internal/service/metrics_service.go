package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry and the collectors shared by handlers, services
// and the change feed.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheWrite      prometheus.Histogram
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	eventWrites     *prometheus.CounterVec
	scheduleClashes prometheus.Counter
	recurrenceSize  prometheus.Histogram
	hiddenRows      prometheus.Counter
	feedDelivered   prometheus.Counter
	feedDropped     prometheus.Counter
	feedSubscribers prometheus.Gauge

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache lookups",
			Buckets: prometheus.DefBuckets,
		}),
		cacheWrite: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_write_seconds",
			Help:    "Latency for cache set operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHitRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cache_hit_ratio",
			Help: "Ratio of cache hits to total cache lookups",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		eventWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_writes_total",
			Help: "Stored event mutations by kind and event type",
		}, []string{"kind", "event_type"}),
		scheduleClashes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedule_conflicts_total",
			Help: "Writes rejected because they overlap an existing event",
		}),
		recurrenceSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recurring_series_instances",
			Help:    "Number of instances created per recurring series",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 52, 104},
		}),
		hiddenRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visibility_rows_hidden_total",
			Help: "Rows returned by the store but rejected by the resolver",
		}),
		feedDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "event_feed_delivered_total",
			Help: "Changes delivered to feed subscribers",
		}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "event_feed_dropped_total",
			Help: "Changes dropped because a subscriber was slow",
		}),
		feedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "event_feed_subscribers",
			Help: "Open feed subscriptions",
		}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheWrite,
		m.cacheHitRatio, m.cacheHits, m.cacheMisses, m.eventWrites, m.scheduleClashes, m.recurrenceSize, m.hiddenRows,
		m.feedDelivered, m.feedDropped, m.feedSubscribers, goroutines)

	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordEventWrite counts n stored mutations of one kind.
func (m *MetricsService) RecordEventWrite(kind, eventType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventWrites.WithLabelValues(kind, eventType).Add(float64(n))
}

// RecordScheduleConflict counts a write rejected for overlap.
func (m *MetricsService) RecordScheduleConflict() {
	if m == nil {
		return
	}
	m.scheduleClashes.Inc()
}

// ObserveRecurrence records how many instances a series expanded to.
func (m *MetricsService) ObserveRecurrence(instances int) {
	if m == nil {
		return
	}
	m.recurrenceSize.Observe(float64(instances))
}

// RecordHiddenRows counts rows the resolver removed after the store query.
func (m *MetricsService) RecordHiddenRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.hiddenRows.Add(float64(n))
}

// RecordFeedDelivery counts one delivered or dropped feed change.
func (m *MetricsService) RecordFeedDelivery(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.feedDelivered.Inc()
		return
	}
	m.feedDropped.Inc()
}

// SetFeedSubscribers reports the number of open subscriptions.
func (m *MetricsService) SetFeedSubscribers(n int) {
	if m == nil {
		return
	}
	m.feedSubscribers.Set(float64(n))
}
