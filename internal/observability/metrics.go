package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interpreter_active_sessions",
		Help: "Number of open pipeline sessions",
	})

	// Queue metrics
	segmentsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interpreter_segments_enqueued_total",
		Help: "Segments accepted into the pipeline queue",
	}, []string{"origin"})

	segmentsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interpreter_segments_rejected_total",
		Help: "Segments rejected because the queue was full",
	})

	segmentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interpreter_segments_processed_total",
		Help: "Segments drained from the queue",
	}, []string{"status"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interpreter_queue_depth",
		Help: "Segments waiting in pipeline queues",
	})

	// Stage metrics
	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interpreter_stage_latency_seconds",
		Help:    "Latency of translation and synthesis calls",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage", "status"})

	// Playback metrics
	scheduledAudio = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interpreter_scheduled_audio_seconds_total",
		Help: "Seconds of audio placed on output timelines",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interpreter_errors_total",
		Help: "Total number of reported failures",
	}, []string{"kind", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "interpreter_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})
)

// RecordSessionOpen records a session being created
func RecordSessionOpen() {
	activeSessions.Inc()
}

// RecordSessionClose records a session being torn down
func RecordSessionClose() {
	activeSessions.Dec()
}

// RecordEnqueued records an accepted segment
func RecordEnqueued(origin string) {
	segmentsEnqueued.WithLabelValues(origin).Inc()
	queueDepth.Inc()
}

// RecordRejected records a segment refused by a full queue
func RecordRejected() {
	segmentsRejected.Inc()
}

// RecordProcessed records a segment leaving the queue
func RecordProcessed(success bool) {
	queueDepth.Dec()
	segmentsProcessed.WithLabelValues(statusLabel(success)).Inc()
}

// ObserveStage records the latency of one external stage call
func ObserveStage(stage string, started time.Time, success bool) {
	stageLatency.WithLabelValues(stage, statusLabel(success)).Observe(time.Since(started).Seconds())
}

// RecordScheduledAudio records audio placed on a timeline
func RecordScheduledAudio(d time.Duration) {
	scheduledAudio.Add(d.Seconds())
}

// RecordError records a failure by kind and component
func RecordError(kind, component string) {
	errorsTotal.WithLabelValues(kind, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
