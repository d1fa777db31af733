// Package metrics exposes the debug-info filter's Prometheus metrics
// (SPEC_FULL.md §2: "cache hit/miss counters, resolution latency
// histogram, fd-cache size gauge"). The metric set and server shape
// follow the host log-shipping agent's pattern of package-level
// promauto collectors plus a small standalone MetricsServer, just
// scoped to the filter's own domain rather than file/sink pipelines.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// MessagesProcessedTotal counts every message the iterator pump has
	// returned to downstream, by type (spec.md §4.5).
	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debuginfofilter_messages_processed_total",
			Help: "Total number of messages returned by the iterator pump, by message type",
		},
		[]string{"message_type"},
	)

	// BatchSize observes how many messages each Iterator.Next call
	// returned, against the capacity requested upstream.
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "debuginfofilter_batch_size",
		Help:    "Number of messages returned per Iterator.Next call",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// ResolutionRequestsTotal counts every ProcessSources.Query call, by
	// whether it hit the in-memory ip_to_resolved cache.
	ResolutionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debuginfofilter_resolution_requests_total",
			Help: "Instruction-pointer resolution attempts, partitioned by cache outcome",
		},
		[]string{"outcome"}, // "hit", "miss_resolved", "miss_unresolved"
	)

	// ResolutionDuration observes the wall-clock cost of resolving one
	// instruction pointer that missed the in-memory cache (DWARF/ELF
	// walk against an on-disk binary or separate debug-info file).
	ResolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "debuginfofilter_resolution_duration_seconds",
		Help:    "Time spent resolving an instruction pointer against a binary's debug info",
		Buckets: prometheus.DefBuckets,
	})

	// ResolvedInfoCacheTotal counts the opt-in on-disk resolved-info
	// cache's own hit/miss/invalidate outcomes (SPEC_FULL.md §5 item 5).
	ResolvedInfoCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debuginfofilter_resolved_info_cache_total",
			Help: "On-disk resolved-info cache outcomes",
		},
		[]string{"outcome"}, // "load_hit", "load_cold", "save", "invalidate"
	)

	// FDCacheSize is the current number of open file descriptors held by
	// the fd-cache (pkg/fdcache).
	FDCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "debuginfofilter_fdcache_size",
		Help: "Current number of file descriptors held open by the fd-cache",
	})

	// MappedBinariesGauge is the current number of binaries tracked
	// across every live ProcessSources.
	MappedBinariesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "debuginfofilter_mapped_binaries",
		Help: "Current number of binaries mapped across all tracked processes",
	})

	// ErrorsTotal counts FilterError occurrences, by code and severity
	// (pkg/ierrors).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debuginfofilter_errors_total",
			Help: "Total number of filter errors, by code and severity",
		},
		[]string{"code", "severity"},
	)

	// StatedumpResetsTotal counts statedump:start events that triggered a
	// ProcessSources.Reset (spec.md §8 "Statedump reset").
	StatedumpResetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "debuginfofilter_statedump_resets_total",
		Help: "Total number of statedump:start events that reset a tracked process's state",
	})
)

var metricsRegisteredOnce sync.Once

// safeRegister registers collector, swallowing the panic promauto's
// MustRegister would otherwise raise on a second registration — metrics
// are package-level vars, but tests construct more than one MetricsServer
// against the same default registry.
func safeRegister(collector prometheus.Collector) {
	defer func() {
		_ = recover()
	}()
	prometheus.MustRegister(collector)
}

// MetricsServer serves /metrics (Prometheus scrape) and /health.
type MetricsServer struct {
	server *http.Server
	logger *logrus.Logger
}

// NewMetricsServer builds a MetricsServer bound to addr. Metrics are
// (re-)registered against the default registry idempotently.
func NewMetricsServer(addr string, logger *logrus.Logger) *MetricsServer {
	metricsRegisteredOnce.Do(func() {
		safeRegister(MessagesProcessedTotal)
		safeRegister(BatchSize)
		safeRegister(ResolutionRequestsTotal)
		safeRegister(ResolutionDuration)
		safeRegister(ResolvedInfoCacheTotal)
		safeRegister(FDCacheSize)
		safeRegister(MappedBinariesGauge)
		safeRegister(ErrorsTotal)
		safeRegister(StatedumpResetsTotal)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &MetricsServer{
		server: &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start begins serving in the background.
func (ms *MetricsServer) Start() error {
	ms.logger.WithField("addr", ms.server.Addr).Info("starting metrics server")
	go func() {
		if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ms.logger.WithError(err).Error("metrics server error")
		}
	}()
	return nil
}

// Stop gracefully shuts the metrics server down.
func (ms *MetricsServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ms.server.Shutdown(ctx)
}

// RecordMessageProcessed increments MessagesProcessedTotal for one
// dispatched message.
func RecordMessageProcessed(messageType string) {
	MessagesProcessedTotal.WithLabelValues(messageType).Inc()
}

// RecordResolution records one ProcessSources.Query outcome and, for a
// cache miss, how long resolving it took.
func RecordResolution(outcome string, duration time.Duration) {
	ResolutionRequestsTotal.WithLabelValues(outcome).Inc()
	if outcome != "hit" {
		ResolutionDuration.Observe(duration.Seconds())
	}
}

// RecordResolvedInfoCache records one pkg/rescache outcome.
func RecordResolvedInfoCache(outcome string) {
	ResolvedInfoCacheTotal.WithLabelValues(outcome).Inc()
}

// RecordError increments ErrorsTotal for one FilterError.
func RecordError(code, severity string) {
	ErrorsTotal.WithLabelValues(code, severity).Inc()
}

// RecordStatedumpReset increments StatedumpResetsTotal.
func RecordStatedumpReset() {
	StatedumpResetsTotal.Inc()
}
