package metrics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const defaultWindow = 1000

// Collector keeps the most recent samples in a ring buffer, exports them as
// Prometheus series and forwards them to an optional sink.
type Collector struct {
	mu    sync.Mutex
	ring  []Sample
	next  int
	full  bool
	sink  SampleSink
	total int64

	requests   *prometheus.CounterVec
	failures   *prometheus.CounterVec
	cacheHits  prometheus.Counter
	latency    *prometheus.HistogramVec
	apiLatency prometheus.Histogram
	attempts   prometheus.Histogram
}

// NewCollector registers the storemate series on reg. A window <= 0 keeps
// the default of 1000 samples. sink may be nil.
func NewCollector(reg prometheus.Registerer, sink SampleSink, window int) *Collector {
	if window <= 0 {
		window = defaultWindow
	}
	f := promauto.With(reg)
	return &Collector{
		ring: make([]Sample, window),
		sink: sink,

		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storemate_messages_total",
			Help: "Messages resolved, by source and task type",
		}, []string{"source", "task_type"}),

		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storemate_failures_total",
			Help: "Failures swallowed by the pipeline, by stage",
		}, []string{"stage"}),

		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "storemate_cache_hits_total",
			Help: "Messages answered from the response cache",
		}),

		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storemate_resolution_duration_seconds",
			Help:    "End-to-end message resolution latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),

		apiLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "storemate_model_call_duration_seconds",
			Help:    "Time spent in model calls, retries included",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		attempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "storemate_model_call_attempts",
			Help:    "Attempts used per model call",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
	}
}

// Record stores s. Sink failures are logged and do not affect the caller.
func (c *Collector) Record(ctx context.Context, s Sample) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	c.mu.Lock()
	c.ring[c.next] = s
	c.next = (c.next + 1) % len(c.ring)
	if c.next == 0 {
		c.full = true
	}
	c.total++
	c.mu.Unlock()

	c.requests.WithLabelValues(string(s.Source), string(s.TaskType)).Inc()
	c.latency.WithLabelValues(string(s.Source)).Observe(s.TotalTime.Seconds())
	if s.CacheHit {
		c.cacheHits.Inc()
	}
	if s.AttemptCount > 0 {
		c.apiLatency.Observe(s.APICallTime.Seconds())
		c.attempts.Observe(float64(s.AttemptCount))
	}

	if c.sink != nil {
		if err := c.sink.SaveSample(ctx, s); err != nil {
			slog.Warn("metrics: failed to persist sample", "id", s.ID, "error", err)
		}
	}
}

// Failure counts and logs a swallowed error.
func (c *Collector) Failure(stage string, err error) {
	c.failures.WithLabelValues(stage).Inc()
	slog.Warn("pipeline failure", "stage", stage, "error", err)
}

// Recent returns up to n of the newest samples, oldest first. n <= 0 returns
// the whole window.
func (c *Collector) Recent(n int) []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.next
	if c.full {
		size = len(c.ring)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Sample, 0, n)
	for i := size - n; i < size; i++ {
		idx := i
		if c.full {
			idx = (c.next + i) % len(c.ring)
		}
		out = append(out, c.ring[idx])
	}
	return out
}

// Total returns the number of samples recorded since start.
func (c *Collector) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
