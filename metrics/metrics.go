// Package metrics exports training-run metrics in the Prometheus text format.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"healthrisk/ml"
)

const namespace = "healthrisk"

// Recorder holds the metrics of one training run on a private registry, so
// the exported file only ever carries this run's series.
type Recorder struct {
	registry *prometheus.Registry

	candidateR2       *prometheus.GaugeVec
	candidateRMSE     *prometheus.GaugeVec
	candidateFailures *prometheus.CounterVec

	rows      *prometheus.GaugeVec
	dropped   *prometheus.GaugeVec
	partition *prometheus.GaugeVec

	runDuration prometheus.Gauge
	lastSuccess prometheus.Gauge
}

func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		candidateR2: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "candidate",
			Name:      "r2",
			Help:      "Held-out coefficient of determination per candidate.",
		}, []string{"task", "model"}),
		candidateRMSE: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "candidate",
			Name:      "rmse",
			Help:      "Held-out root mean squared error per candidate.",
		}, []string{"task", "model"}),
		candidateFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candidate",
			Name:      "failures_total",
			Help:      "Candidates that failed to fit or evaluate.",
		}, []string{"task", "model"}),
		rows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "observations",
			Name:      "rows",
			Help:      "Observation rows by stage.",
		}, []string{"stage"}),
		dropped: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "observations",
			Name:      "dropped_rows",
			Help:      "Observation rows excluded before training, by reason.",
		}, []string{"reason"}),
		partition: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "partition_rows",
			Help:      "Rows in the train and test partitions.",
		}, []string{"partition"}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last training run.",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that wrote artifacts.",
		}),
	}
}

func (r *Recorder) ObserveRows(report ml.DropReport) {
	r.rows.WithLabelValues("loaded").Set(float64(report.Total))
	r.rows.WithLabelValues("kept").Set(float64(report.Kept))
	r.dropped.WithLabelValues("malformed_blood_pressure").Set(float64(report.MalformedBloodPressure))
	r.dropped.WithLabelValues("missing_value").Set(float64(report.MissingValues))
}

func (r *Recorder) ObservePartition(train, test int) {
	r.partition.WithLabelValues("train").Set(float64(train))
	r.partition.WithLabelValues("test").Set(float64(test))
}

func (r *Recorder) ObserveCandidate(task, model string, r2, rmse float64) {
	r.candidateR2.WithLabelValues(task, model).Set(r2)
	r.candidateRMSE.WithLabelValues(task, model).Set(rmse)
}

func (r *Recorder) CandidateFailed(task, model string) {
	r.candidateFailures.WithLabelValues(task, model).Inc()
}

// ObserveRun records the run duration and, for a successful run, the time
// it finished.
func (r *Recorder) ObserveRun(duration time.Duration, succeeded bool, finished time.Time) {
	r.runDuration.Set(duration.Seconds())
	if succeeded {
		r.lastSuccess.Set(float64(finished.Unix()))
	}
}

// WriteTextfile writes every series for a node-exporter textfile collector.
// An empty path disables the export.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
