package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the asset cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationLoad records reads of the persisted asset cache.
	CacheOperationLoad CacheOperation = "load"
	// CacheOperationPut records asset cache writes.
	CacheOperationPut CacheOperation = "put"
	// CacheOperationClear records full invalidations.
	CacheOperationClear CacheOperation = "clear"
)

// CacheResult captures how a cache operation ended.
type CacheResult string

const (
	// CacheResultPersisted indicates the value reached durable storage.
	CacheResultPersisted CacheResult = "persisted"
	// CacheResultDegraded indicates the value only lives in process memory.
	CacheResultDegraded CacheResult = "degraded"
	// CacheResultUnchanged indicates an idempotent write that touched nothing.
	CacheResultUnchanged CacheResult = "unchanged"
	// CacheResultLoaded indicates persisted state was read successfully.
	CacheResultLoaded CacheResult = "loaded"
	// CacheResultEmpty indicates no persisted state existed.
	CacheResultEmpty CacheResult = "empty"
	// CacheResultCorrupt indicates persisted state could not be decoded.
	CacheResultCorrupt CacheResult = "corrupt"
	// CacheResultError indicates the operation failed.
	CacheResultError CacheResult = "error"
)

// Recorder publishes Prometheus metrics for asset acquisition activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	generations       *prometheus.CounterVec
	generationLatency *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	inFlight      prometheus.Gauge
	schedulerRuns *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	generations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worryhero",
		Subsystem: "generator",
		Name:      "requests_total",
		Help:      "Remote asset generation requests by catalog kind and outcome.",
	}, []string{"kind", "outcome"})

	generationLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "worryhero",
		Subsystem: "generator",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for remote asset generation requests.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	}, []string{"outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worryhero",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Durable asset cache operations.",
	}, []string{"operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "worryhero",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for durable asset cache operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"operation", "result"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "worryhero",
		Name:      "assets_in_flight",
		Help:      "Catalog items whose generation request has not settled yet.",
	})

	schedulerRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worryhero",
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Batch fetch scheduler runs by result.",
	}, []string{"result"})

	reg.MustRegister(generations, generationLatency, cacheOperations, cacheLatency, inFlight, schedulerRuns)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:          reg,
		handler:           handler,
		generations:       generations,
		generationLatency: generationLatency,
		cacheOperations:   cacheOperations,
		cacheLatency:      cacheLatency,
		inFlight:          inFlight,
		schedulerRuns:     schedulerRuns,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveGeneration records one settled remote generation request.
func (r *Recorder) ObserveGeneration(kind, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	outcomeLabel := normalizeLabel(outcome)
	r.generations.WithLabelValues(normalizeLabel(kind), outcomeLabel).Inc()
	r.generationLatency.WithLabelValues(outcomeLabel).Observe(duration.Seconds())
}

// ObserveCache records the result of an asset cache operation.
func (r *Recorder) ObserveCache(operation CacheOperation, result CacheResult, duration time.Duration) {
	if r == nil {
		return
	}
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(CacheOperationPut)
	}
	resLabel := string(result)
	if resLabel == "" {
		resLabel = string(CacheResultError)
	}
	r.cacheOperations.WithLabelValues(opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(opLabel, resLabel).Observe(duration.Seconds())
}

// SetInFlight publishes the current size of the in-flight set.
func (r *Recorder) SetInFlight(n int) {
	if r == nil {
		return
	}
	r.inFlight.Set(float64(n))
}

// ObserveSchedulerRun counts a finished scheduler run.
func (r *Recorder) ObserveSchedulerRun(result string) {
	if r == nil {
		return
	}
	r.schedulerRuns.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
