package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollector_ExposesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.CameraToggled("open")
	c.CameraToggled("open")
	c.DetectionFinished(OutcomeSettled, 3*time.Second)
	c.DetectionFinished(OutcomeCancelled, 0)
	c.StaleResultDropped()
	c.PersistenceFailed("write_failed")
	c.NotificationsSent(7)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`smartattend_camera_toggles_total{status="open"} 2`,
		`smartattend_detections_total{outcome="settled"} 1`,
		`smartattend_detections_total{outcome="cancelled"} 1`,
		`smartattend_detection_seconds_count 1`,
		`smartattend_stale_results_dropped_total 1`,
		`smartattend_persistence_failures_total{kind="write_failed"} 1`,
		`smartattend_notifications_sent_total 7`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in scrape output", want)
		}
	}
}

func TestNop_SatisfiesRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.CameraToggled("closed")
	r.NotificationsSent(1)
}
