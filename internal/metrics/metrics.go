// Package metrics records packaging run statistics in a Prometheus registry
// that can be dumped to a node_exporter textfile after the run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultAccepted = "accepted"
	resultRejected = "rejected"

	statusSuccess = "success"
	statusFailure = "failure"
)

// Recorder collects metrics for packaging runs.
type Recorder struct {
	// registry holds every collector of the recorder.
	registry *prometheus.Registry

	// files counts inspected outputs by filter result.
	files *prometheus.CounterVec
	// runs counts packaging runs by status.
	runs *prometheus.CounterVec
	// archiveBytes is the size of the last assembled archive.
	archiveBytes *prometheus.GaugeVec
	// duration observes how long each run took.
	duration *prometheus.HistogramVec
	// lastSuccessful is the time of the last successful run.
	lastSuccessful *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		files: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offline_package_files_total",
				Help: "Build outputs inspected by the packager, by filter result",
			},
			[]string{"package", "result"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offline_package_runs_total",
				Help: "Packaging runs, by status",
			},
			[]string{"package", "status"},
		),
		archiveBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "offline_package_archive_bytes",
				Help: "Size of the last assembled archive in bytes",
			},
			[]string{"package"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "offline_package_duration_seconds",
				Help:    "Packaging duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"package"},
		),
		lastSuccessful: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "offline_package_last_success_timestamp_seconds",
				Help: "Unix timestamp of the last successful packaging run",
			},
			[]string{"package"},
		),
	}
}

// ObserveFiles records how many outputs were accepted and rejected.
func (r *Recorder) ObserveFiles(pkg string, accepted, rejected int) {
	r.files.WithLabelValues(pkg, resultAccepted).Add(float64(accepted))
	r.files.WithLabelValues(pkg, resultRejected).Add(float64(rejected))
}

// ObserveRun records the outcome of one packaging run.
func (r *Recorder) ObserveRun(pkg string, archiveBytes int, elapsed time.Duration, err error) {
	r.duration.WithLabelValues(pkg).Observe(elapsed.Seconds())

	if err != nil {
		r.runs.WithLabelValues(pkg, statusFailure).Inc()
		return
	}

	r.runs.WithLabelValues(pkg, statusSuccess).Inc()
	r.archiveBytes.WithLabelValues(pkg).Set(float64(archiveBytes))
	r.lastSuccessful.WithLabelValues(pkg).SetToCurrentTime()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the collected metrics in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}

	return nil
}
