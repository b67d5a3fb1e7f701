// Package metrics records capture run metrics for Prometheus.
//
// portalcapture is a short-lived CLI, so metrics are not served over HTTP.
// After each run the registry is written to a node-exporter textfile
// collector file, which the node exporter picks up on its next scrape.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nao1215/portalcapture/internal/model"
)

const namespace = "portalcapture"

// Outcome labels. Failures are labelled with their error kind.
const (
	OutcomeSuccess = "success"
)

// Recorder collects run counters and durations.
type Recorder struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lastRun  *prometheus.GaugeVec

	mu   sync.Mutex
	path string
}

// NewRecorder creates a Recorder. path is the textfile to write; empty
// keeps the metrics in memory only.
func NewRecorder(path string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		path:     path,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Capture runs by artifact kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of capture runs, including the worker process.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 120},
		}, []string{"kind"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished run by outcome.",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(r.runs, r.duration, r.lastRun)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun records one finished run. err is the run's error, nil on success.
func (r *Recorder) ObserveRun(kind model.ArtifactKind, err error, d time.Duration) {
	outcome := OutcomeLabel(err)
	r.runs.WithLabelValues(string(kind), outcome).Inc()
	r.duration.WithLabelValues(string(kind)).Observe(d.Seconds())
	r.lastRun.WithLabelValues(outcome).SetToCurrentTime()
}

// OutcomeLabel maps a run error to its outcome label.
func OutcomeLabel(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return string(model.KindOf(err))
}

// Flush writes the metrics to the textfile, if one is configured.
// prometheus.WriteToTextfile writes through a temporary file and renames
// it, so the collector never reads a partial file.
func (r *Recorder) Flush() error {
	if r.path == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0750); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(r.path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
