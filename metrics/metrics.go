package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// SubmissionsTotal counts finished submissions by outcome ("completed" or the failure kind).
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "submissions_total",
		Help:      "Total number of report submissions processed, labeled by result.",
	}, []string{"result"})

	// StageDurationSeconds is the time spent in each pipeline stage.
	StageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "stage_duration_seconds",
		Help:      "Time spent per pipeline stage (demux, buffer, transcribe, summarize, forward).",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	}, []string{"stage"})

	// InFlight is the current number of submissions being processed.
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "in_flight",
		Help:      "Current number of submissions inside the pipeline.",
	})

	// AudioBytesTotal counts audio bytes received for transcription.
	AudioBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "audio_bytes_total",
		Help:      "Total number of audio bytes buffered for transcription.",
	})

	// RabbitMQConnected is 1 when the report publisher considers itself connected.
	RabbitMQConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "rabbitmq_connected",
		Help:      "Whether the report publisher is currently connected (best-effort).",
	})

	// DeclinedFilesTotal counts file parts that were drained without being used.
	DeclinedFilesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "declined_files_total",
		Help:      "Total number of uploaded file parts ignored (non-audio fields and duplicate audio).",
	})

	PublishErrorTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "intake",
		Name:      "rabbitmq_publish_error_total",
		Help:      "Total number of failed report publishes.",
	})
)

// Register registers intake metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SubmissionsTotal,
			StageDurationSeconds,
			InFlight,
			AudioBytesTotal,
			DeclinedFilesTotal,
			RabbitMQConnected,
			PublishErrorTotal,
		)
	})
}
