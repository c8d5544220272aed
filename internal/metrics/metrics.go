// Package metrics provides Prometheus metrics for the transcription
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "roomscribe"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	SessionsStarted prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsFailed  prometheus.Counter

	ParticipantsActive prometheus.Gauge

	ChunksSpeech    prometheus.Counter
	ChunksSilence   prometheus.Counter
	ChunksForwarded prometheus.Counter
	ChunksDropped   prometheus.Counter

	AdapterReconnects       prometheus.Counter
	AdapterReconnectErrors  prometheus.Counter
	TranscriptsFinalized    prometheus.Counter
	TranscriptForwardErrors prometheus.Counter

	SpeechSeconds prometheus.Counter
}

// Default is the process-wide metrics instance.
var Default = New()

// New creates and registers all metrics.
func New() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Room transcription sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Room transcription sessions currently active",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Room joins that exhausted retries or failed to start",
		}),
		ParticipantsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_active",
			Help:      "Participant audio handlers currently live",
		}),
		ChunksSpeech: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_speech_total",
			Help:      "Audio chunks classified as speech",
		}),
		ChunksSilence: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_silence_total",
			Help:      "Audio chunks classified as silence and dropped",
		}),
		ChunksForwarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_forwarded_total",
			Help:      "Speech chunks forwarded to the transcription engine",
		}),
		ChunksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_dropped_total",
			Help:      "Speech chunks dropped because reconnect failed",
		}),
		AdapterReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_reconnects_total",
			Help:      "Lazy reconnect attempts to the transcription engine",
		}),
		AdapterReconnectErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_reconnect_errors_total",
			Help:      "Failed lazy reconnect attempts",
		}),
		TranscriptsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_finalized_total",
			Help:      "Finalized transcript events produced",
		}),
		TranscriptForwardErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_forward_errors_total",
			Help:      "Best-effort transcript delivery failures",
		}),
		SpeechSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_seconds_total",
			Help:      "Wall-clock seconds of gated speech forwarded",
		}),
	}
}
