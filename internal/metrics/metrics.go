// Package metrics holds the process-wide prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Capture
	FramesCaptured = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lantern_audio_frames_captured_total",
			Help: "Total number of audio frames delivered by the capture stream",
		},
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lantern_audio_frames_dropped_total",
			Help: "Total number of audio frames dropped because the pipeline was busy",
		},
	)

	FramesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lantern_analysis_frames_skipped_total",
			Help: "Total number of frames too short to analyze",
		},
	)

	// Music pipeline
	ColorsMapped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lantern_colors_mapped_total",
			Help: "Total number of colours produced by the mapping engine",
		},
	)

	ColorsThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lantern_colors_throttled_total",
			Help: "Total number of colours held back by the rate limiter",
		},
	)

	// Dispatch
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lantern_dispatch_queue_depth",
			Help: "Commands waiting in the dispatch queue",
		},
	)

	CommandsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lantern_dispatch_commands_total",
			Help: "Commands executed by the dispatch queue, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lantern_dispatch_command_duration_seconds",
			Help:    "Time spent executing a command against the device",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	Connected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lantern_device_connected",
			Help: "1 while a device session is open",
		},
	)

	EmergencyOffs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lantern_emergency_off_total",
			Help: "Emergency power-off attempts, by the path that succeeded",
		},
		[]string{"path"},
	)
)

// Command outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeDropped = "dropped"
	OutcomeNoop    = "noop"
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
