package service

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncMetrics encapsulates Prometheus instrumentation for the sync layer and
// provides lightweight snapshots for diagnostics.
type SyncMetrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	storeQueryDuration *prometheus.HistogramVec
	pageLoads          *prometheus.CounterVec
	subscriptionEvents *prometheus.CounterVec
	rollbacks          *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
	rollbackCount  uint64
}

// NewSyncMetrics registers the sync layer's Prometheus collectors.
func NewSyncMetrics() *SyncMetrics {
	registry := prometheus.NewRegistry()

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sync_cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_cache_hits_total",
		Help: "Total cache-scoped reads answered from cache",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_cache_misses_total",
		Help: "Total cache-scoped reads that fell back to the network",
	})

	storeQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_store_query_duration_seconds",
		Help:    "Duration of network-scoped store queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection"})

	pageLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_page_loads_total",
		Help: "Total pages loaded per paginated feed",
	}, []string{"collection"})

	subscriptionEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_subscription_events_total",
		Help: "Total live-query snapshots delivered per stream",
	}, []string{"stream"})

	rollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_rollbacks_total",
		Help: "Total optimistic mutations rolled back after write failure",
	}, []string{"operation"})

	registry.MustRegister(cacheHitRatio, cacheHits, cacheMisses, storeQueryDuration, pageLoads, subscriptionEvents, rollbacks)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &SyncMetrics{
		registry:           registry,
		handler:            handler,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		storeQueryDuration: storeQueryDuration,
		pageLoads:          pageLoads,
		subscriptionEvents: subscriptionEvents,
		rollbacks:          rollbacks,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *SyncMetrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// RecordCacheLookup records one cache-tier lookup and refreshes the hit
// ratio.
func (m *SyncMetrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveStoreQuery records one network-scoped query's duration.
func (m *SyncMetrics) ObserveStoreQuery(collection string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeQueryDuration.WithLabelValues(collection).Observe(duration.Seconds())
}

// RecordPageLoad counts one loaded page of a paginated feed.
func (m *SyncMetrics) RecordPageLoad(collection string) {
	if m == nil {
		return
	}
	m.pageLoads.WithLabelValues(collection).Inc()
}

// RecordSubscriptionEvent counts one delivered live-query snapshot.
func (m *SyncMetrics) RecordSubscriptionEvent(stream string) {
	if m == nil {
		return
	}
	m.subscriptionEvents.WithLabelValues(stream).Inc()
}

// RecordRollback counts one rolled-back optimistic mutation.
func (m *SyncMetrics) RecordRollback(operation string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(operation).Inc()
	atomic.AddUint64(&m.rollbackCount, 1)
}

// Rollbacks returns the total rollback count, for diagnostics.
func (m *SyncMetrics) Rollbacks() uint64 {
	if m == nil {
		return 0
	}
	return atomic.LoadUint64(&m.rollbackCount)
}
