// Package metrics exports sync engine events to prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cs-go/internal/cs"
)

const namespace = "cs"

// Recorder implements cs.Metrics on its own prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	cycles           *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	materialized     *prometheus.CounterVec
	failed           *prometheus.CounterVec
	containersFailed prometheus.Counter
	pending          *prometheus.GaugeVec

	clock     cs.Clock
	mu        sync.RWMutex
	lastCycle CycleInfo
}

// CycleInfo describes the most recent finished cycle.
type CycleInfo struct {
	Status     string        `json:"status"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
}

var _ cs.Metrics = (*Recorder)(nil)

// NewRecorder creates a Recorder with Go runtime and process collectors.
// clock stamps the finish time of each cycle.
func NewRecorder(clock cs.Clock) *Recorder {
	r := &Recorder{
		clock:    clock,
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Poll cycles by outcome.",
		}, []string{"status"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a poll cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		materialized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_materialized_total",
			Help:      "Files and links written to the output root.",
		}, []string{"kind"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_failed_total",
			Help:      "Items left pending after a transport or mirror failure.",
		}, []string{"kind"}),
		containersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "containers_failed_total",
			Help:      "Folders whose entries could not be fetched.",
		}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_items",
			Help:      "Rows waiting for the next cycle, after the last cycle.",
		}, []string{"kind"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.cycles, r.cycleDuration, r.materialized, r.failed, r.containersFailed, r.pending,
	)
	return r
}

// Registry returns the registry served on /metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) CycleFinished(status string, d time.Duration) {
	r.cycles.WithLabelValues(status).Inc()
	r.cycleDuration.Observe(d.Seconds())

	r.mu.Lock()
	r.lastCycle = CycleInfo{Status: status, FinishedAt: r.clock.Now().UTC(), Duration: d}
	r.mu.Unlock()
}

func (r *Recorder) ItemMaterialized(kind string) { r.materialized.WithLabelValues(kind).Inc() }

func (r *Recorder) ItemFailed(kind string) { r.failed.WithLabelValues(kind).Inc() }

func (r *Recorder) ContainerFailed() { r.containersFailed.Inc() }

func (r *Recorder) SetPending(kind string, n int64) { r.pending.WithLabelValues(kind).Set(float64(n)) }

// LastCycle returns the most recent cycle, and false before the first one.
func (r *Recorder) LastCycle() (CycleInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastCycle, r.lastCycle.Status != ""
}
