// Package observability exposes Prometheus collectors for delegated-run and
// stream-delivery activity.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes collectors reporting delegated-run and stream activity.
type Metrics struct {
	runDuration   *prometheus.HistogramVec
	runsCompleted *prometheus.CounterVec
	eventsEmitted prometheus.Counter
	eventsDropped prometheus.Counter
	runsActive    prometheus.Gauge
	streamClients prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the package-level instance registered with the
// global Prometheus registry. Collectors are created only once to avoid
// duplicate registration panics when wiring happens more than once.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided
// registerer. Callers that need unique metric names (tests) supply a fresh
// registry. Registration errors panic, mirroring promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "parley",
			Subsystem: "delegate",
			Name:      "run_duration_seconds",
			Help:      "Duration of delegated runs.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	runsCompleted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "delegate",
			Name:      "runs_completed_total",
			Help:      "Delegated runs completed, by terminal status.",
		},
		[]string{"status", "finish_reason"},
	)
	eventsEmitted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "stream",
			Name:      "events_emitted_total",
			Help:      "Events delivered to stream clients.",
		},
	)
	eventsDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "stream",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a client buffer was full.",
		},
	)
	runsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "delegate",
			Name:      "runs_active",
			Help:      "Delegated runs currently executing.",
		},
	)
	streamClients := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "stream",
			Name:      "clients_active",
			Help:      "Stream clients currently connected.",
		},
	)

	collectors := []prometheus.Collector{runDuration, runsCompleted, eventsEmitted, eventsDropped, runsActive, streamClients}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector {
				case runDuration:
					runDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case runsCompleted:
					runsCompleted = already.ExistingCollector.(*prometheus.CounterVec)
				case eventsEmitted:
					eventsEmitted = already.ExistingCollector.(prometheus.Counter)
				case eventsDropped:
					eventsDropped = already.ExistingCollector.(prometheus.Counter)
				case runsActive:
					runsActive = already.ExistingCollector.(prometheus.Gauge)
				case streamClients:
					streamClients = already.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		runDuration:   runDuration,
		runsCompleted: runsCompleted,
		eventsEmitted: eventsEmitted,
		eventsDropped: eventsDropped,
		runsActive:    runsActive,
		streamClients: streamClients,
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// ObserveRun records a completed delegated run.
func (m *Metrics) ObserveRun(success bool, finishReason string, duration time.Duration) {
	if m == nil {
		return
	}
	status := statusLabel(success)
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.runsCompleted.WithLabelValues(status, finishReason).Inc()
}

// RunStarted marks a delegated run as active; the returned func marks it done.
func (m *Metrics) RunStarted() func() {
	if m == nil {
		return func() {}
	}
	m.runsActive.Inc()
	return func() { m.runsActive.Dec() }
}

// AddEventsEmitted accounts for events delivered to clients.
func (m *Metrics) AddEventsEmitted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsEmitted.Add(float64(n))
}

// AddEventsDropped accounts for events lost to full client buffers.
func (m *Metrics) AddEventsDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsDropped.Add(float64(n))
}

// ClientConnected tracks a stream client; the returned func tracks disconnect.
func (m *Metrics) ClientConnected() func() {
	if m == nil {
		return func() {}
	}
	m.streamClients.Inc()
	return func() { m.streamClients.Dec() }
}
