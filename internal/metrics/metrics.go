// Package metrics exposes the relay's Prometheus collectors and an
// implementation of pipeline.Metrics backed by them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	speakersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_speakers_active",
		Help: "Currently active speaker tasks",
	})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_stage_duration_seconds",
		Help:    "Per-stage latency (asr, mt, tts)",
		Buckets: []float64{0.02, 0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0},
	}, []string{"stage"})

	resetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_context_resets_total",
		Help: "Context resets by reason",
	}, []string{"reason"})

	flushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_transcript_flushes_total",
		Help: "Transcript aggregation flushes",
	})

	deliveryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_delivery_errors_total",
		Help: "Per-listener delivery failures by stage",
	}, []string{"stage"})

	audioChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_audio_chunks_received_total",
		Help: "Inbound audio chunks accepted into the intake buffer",
	})
)

// Collector implements pipeline.Metrics against the package-level
// Prometheus collectors above.
type Collector struct{}

// New returns a Collector; there is no per-instance state, registration
// happens once at package init via promauto.
func New() Collector {
	return Collector{}
}

func (Collector) ObserveStageLatency(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (Collector) IncReset(reason string) {
	resetsTotal.WithLabelValues(reason).Inc()
}

func (Collector) IncFlush() {
	flushesTotal.Inc()
}

// IncDeliveryError records a per-listener delivery failure by stage.
func (Collector) IncDeliveryError(stage string) {
	deliveryErrorsTotal.WithLabelValues(stage).Inc()
}

// IncAudioChunk records one accepted inbound audio chunk.
func (Collector) IncAudioChunk() {
	audioChunksTotal.Inc()
}

// SetSpeakersActive reports the current count of running speaker tasks.
func (Collector) SetSpeakersActive(n int) {
	speakersActive.Set(float64(n))
}

// Handler returns the /metrics HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
