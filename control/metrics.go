// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus export of benchmark results. A burn is a one-shot process, so
// results are written in the text exposition format for node_exporter's
// textfile collector instead of being served over HTTP.

package control

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/hioload-burn/stats"
)

const metricsNamespace = "hioload_burn"

// Exporter holds a private registry with one series per statistic.
type Exporter struct {
	registry *prometheus.Registry
	results  *prometheus.CounterVec
	workers  *prometheus.CounterVec
	duration prometheus.Gauge
	rate     prometheus.Gauge
	failed   prometheus.Gauge
}

// NewExporter builds an exporter whose series carry the run's constant labels.
func NewExporter(runID string, s Settings) *Exporter {
	labels := prometheus.Labels{
		"run_id":   runID,
		"target":   s.Target.String(),
		"protocol": s.Protocol.String(),
	}
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "events_total",
			Help:        "Echo cycle outcomes and errors by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		workers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "worker_successful_returns_total",
			Help:        "Byte-identical echoes per worker.",
			ConstLabels: labels,
		}, []string{"worker"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "duration_seconds",
			Help:        "Configured burn duration.",
			ConstLabels: labels,
		}),
		rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "good_pongs_per_second",
			Help:        "Average successful echoes per second.",
			ConstLabels: labels,
		}),
		failed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "failed_workers",
			Help:        "Workers that stopped on a fatal error.",
			ConstLabels: labels,
		}),
	}
	e.registry.MustRegister(e.results, e.workers, e.duration, e.rate, e.failed)
	e.duration.Set(s.Duration.Seconds())
	return e
}

// ObserveWorker records one worker's result.
func (e *Exporter) ObserveWorker(id int, st stats.Statistics, err error) {
	e.workers.WithLabelValues(fmt.Sprint(id)).Add(float64(st.SuccessfulReturns))
	if err != nil {
		e.failed.Inc()
	}
}

// ObserveReport records the merged totals.
func (e *Exporter) ObserveReport(r stats.Report) {
	s := r.Stats
	for kind, v := range map[string]uint64{
		"failed_connection": s.FailedConnections,
		"wrong_return":      s.WrongReturns,
		"successful_return": s.SuccessfulReturns,
		"send_error":        s.SendErrors,
		"read_error":        s.ReadErrors,
		"batch":             s.Batches,
		"completion":        s.Completions,
	} {
		e.results.WithLabelValues(kind).Add(float64(v))
	}
	e.rate.Set(float64(r.GoodPongsPerSecond()))
}

// Gatherer exposes the registry, mainly for tests.
func (e *Exporter) Gatherer() prometheus.Gatherer { return e.registry }

// WriteToTextfile atomically writes all series to path.
func (e *Exporter) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, e.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
