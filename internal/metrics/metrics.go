// Package metrics exposes Prometheus counters for the attendance lifecycle.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Detection outcomes.
const (
	OutcomeSettled   = "settled"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Recorder is what the session service and worker report into.
type Recorder interface {
	CameraToggled(status string)
	DetectionFinished(outcome string, took time.Duration)
	StaleResultDropped()
	PersistenceFailed(kind string)
	NotificationsSent(n int)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	toggles       *prometheus.CounterVec
	detections    *prometheus.CounterVec
	latency       prometheus.Histogram
	stale         prometheus.Counter
	persistFail   *prometheus.CounterVec
	notifications prometheus.Counter
}

// NewCollector registers the metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartattend_camera_toggles_total",
			Help: "Camera toggles by resulting status.",
		}, []string{"status"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartattend_detections_total",
			Help: "Detection runs by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smartattend_detection_seconds",
			Help:    "Time from camera open to detection result.",
			Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30},
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartattend_stale_results_dropped_total",
			Help: "Detection results discarded because the camera was closed or reopened.",
		}),
		persistFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smartattend_persistence_failures_total",
			Help: "Persistence failures by kind.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smartattend_notifications_sent_total",
			Help: "Per-student attendance notices sent.",
		}),
	}
	reg.MustRegister(c.toggles, c.detections, c.latency, c.stale, c.persistFail, c.notifications)
	return c
}

func (c *Collector) CameraToggled(status string) { c.toggles.WithLabelValues(status).Inc() }

func (c *Collector) DetectionFinished(outcome string, took time.Duration) {
	c.detections.WithLabelValues(outcome).Inc()
	if outcome == OutcomeSettled {
		c.latency.Observe(took.Seconds())
	}
}

func (c *Collector) StaleResultDropped() { c.stale.Inc() }

func (c *Collector) PersistenceFailed(kind string) { c.persistFail.WithLabelValues(kind).Inc() }

func (c *Collector) NotificationsSent(n int) { c.notifications.Add(float64(n)) }

// Nop discards everything.
type Nop struct{}

func (Nop) CameraToggled(string)                    {}
func (Nop) DetectionFinished(string, time.Duration) {}
func (Nop) StaleResultDropped()                     {}
func (Nop) PersistenceFailed(string)                {}
func (Nop) NotificationsSent(int)                   {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
