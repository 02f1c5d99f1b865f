// Package metrics provides Prometheus metrics for the maestro
// performance-session engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus collectors for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Session lifecycle
	sessionsCreated  prometheus.Counter
	sessionsActive   prometheus.Gauge
	sessionsFinished *prometheus.CounterVec // by terminal status

	// Event stream
	eventsAppended  *prometheus.CounterVec // by event type
	notesEmitted    prometheus.Counter
	noteErrors      prometheus.Counter
	driverLag       prometheus.Histogram
	controlCommands *prometheus.CounterVec // by command and result

	// Broadcast
	subscribersActive  prometheus.Gauge
	subscribersDropped prometheus.Counter
	replayedEvents     prometheus.Counter
	heartbeatsSent     prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// History
	historyRecords prometheus.Gauge

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry so the default Go collectors don't pollute /metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "maestro",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.sessionsCreated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_created_total",
		Help:      "Total number of performance sessions created",
	})

	m.sessionsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sessions_active",
		Help:      "Number of sessions currently held by the registry",
	})

	m.sessionsFinished = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "sessions_finished_total",
			Help:      "Total number of sessions that reached a terminal status",
		},
		[]string{"status"},
	)

	m.eventsAppended = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_appended_total",
			Help:      "Total number of events appended to session logs",
		},
		[]string{"type"},
	)

	m.notesEmitted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "notes_emitted_total",
		Help:      "Total number of note frames emitted by playback drivers",
	})

	m.noteErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "note_errors_total",
		Help:      "Total number of notes counted as errors during playback",
	})

	m.driverLag = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "driver_lag_milliseconds",
		Help:      "How far behind its ideal deadline each driver emission ran",
		Buckets:   m.histogramBuckets,
	})

	m.controlCommands = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "control_commands_total",
			Help:      "Total number of control commands by command and result",
		},
		[]string{"command", "result"},
	)

	m.subscribersActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "subscribers_active",
		Help:      "Number of currently attached stream subscribers",
	})

	m.subscribersDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "subscribers_dropped_total",
		Help:      "Total number of subscribers disconnected for falling behind",
	})

	m.replayedEvents = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "replayed_events_total",
		Help:      "Total number of retained events replayed to late subscribers",
	})

	m.heartbeatsSent = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "heartbeats_sent_total",
		Help:      "Total number of heartbeat pings sent to subscribers",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint, method and status",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.historyRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "history_records",
		Help:      "Number of finalized performance summaries retained in history",
	})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_usage_bytes",
		Help:      "Current heap memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutine_count",
		Help:      "Current number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "gc_pause_time_milliseconds",
		Help:      "Average garbage collection pause time in milliseconds",
		Buckets:   m.histogramBuckets,
	})
}

// GetRegistry returns the registry backing the global manager, for
// serving /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RecordSessionCreated increments the created-sessions counter.
func RecordSessionCreated() {
	globalManager.sessionsCreated.Inc()
}

// UpdateSessionsActive sets the live session count.
func UpdateSessionsActive(n int) {
	globalManager.sessionsActive.Set(float64(n))
}

// RecordSessionFinished counts a session reaching a terminal status.
func RecordSessionFinished(status string) {
	globalManager.sessionsFinished.WithLabelValues(status).Inc()
}

// RecordEventAppended counts an event appended to a session log.
func RecordEventAppended(eventType string) {
	globalManager.eventsAppended.WithLabelValues(eventType).Inc()
}

// RecordNoteEmitted increments the emitted-notes counter.
func RecordNoteEmitted() {
	globalManager.notesEmitted.Inc()
}

// RecordNoteError increments the error-notes counter.
func RecordNoteError() {
	globalManager.noteErrors.Inc()
}

// RecordDriverLag records how late an emission ran, in milliseconds.
func RecordDriverLag(lagMs float64) {
	globalManager.driverLag.Observe(lagMs)
}

// RecordControlCommand counts a control command and its result.
func RecordControlCommand(command, result string) {
	globalManager.controlCommands.WithLabelValues(command, result).Inc()
}

// RecordSubscriberAttached increments the attached subscriber gauge.
func RecordSubscriberAttached() {
	globalManager.subscribersActive.Inc()
}

// RecordSubscriberDetached decrements the attached subscriber gauge.
func RecordSubscriberDetached() {
	globalManager.subscribersActive.Dec()
}

// RecordSubscriberDropped counts a slow subscriber disconnect.
func RecordSubscriberDropped() {
	globalManager.subscribersDropped.Inc()
}

// RecordReplayedEvents counts events replayed on subscriber attach.
func RecordReplayedEvents(n int) {
	globalManager.replayedEvents.Add(float64(n))
}

// RecordHeartbeatSent increments the heartbeat counter.
func RecordHeartbeatSent() {
	globalManager.heartbeatsSent.Inc()
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// UpdateHistoryRecords sets the retained history record count.
func UpdateHistoryRecords(n int) {
	globalManager.historyRecords.Set(float64(n))
}

// UpdateSystemMemoryUsage sets the current heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the current goroutine count.
func UpdateSystemGoroutineCount(n int) {
	globalManager.systemGoroutineCount.Set(float64(n))
}

// RecordSystemGCPauseTime records an average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}
