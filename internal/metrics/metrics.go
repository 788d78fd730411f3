// Package metrics exposes Prometheus instruments for the audio pipeline
// and session lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the client records.
type Metrics struct {
	registry *prometheus.Registry

	BlocksCaptured prometheus.Counter
	BlocksSent     prometheus.Counter
	BlocksGated    prometheus.Counter
	InputAmplitude prometheus.Gauge

	ChunksReceived prometheus.Counter
	DecodeErrors   prometheus.Counter
	Interruptions  prometheus.Counter

	TranscriptItems *prometheus.CounterVec
	Connects        prometheus.Counter
	SessionErrors   prometheus.Counter
}

// New registers all instruments on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		BlocksCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interview_audio_blocks_captured_total",
			Help: "Capture blocks delivered by the microphone.",
		}),
		BlocksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interview_audio_blocks_sent_total",
			Help: "Capture blocks framed and transmitted as media inputs.",
		}),
		BlocksGated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interview_audio_blocks_gated_total",
			Help: "Capture blocks dropped below the silence threshold.",
		}),
		InputAmplitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "interview_input_amplitude",
			Help: "RMS amplitude of the most recent capture block.",
		}),
		ChunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interview_audio_chunks_received_total",
			Help: "Inbound synthesized speech parts.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interview_audio_decode_errors_total",
			Help: "Inbound audio parts dropped because they failed to decode.",
		}),
		Interruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interview_playback_interruptions_total",
			Help: "Barge-in interruptions that flushed scheduled playback.",
		}),
		TranscriptItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_transcript_items_total",
			Help: "Committed transcript items by speaker role.",
		}, []string{"role"}),
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interview_session_connects_total",
			Help: "Successful live session connections.",
		}),
		SessionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interview_session_errors_total",
			Help: "Sessions terminated by acquisition, connect, or transport errors.",
		}),
	}
	registry.MustRegister(
		m.BlocksCaptured, m.BlocksSent, m.BlocksGated, m.InputAmplitude,
		m.ChunksReceived, m.DecodeErrors, m.Interruptions,
		m.TranscriptItems, m.Connects, m.SessionErrors,
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
