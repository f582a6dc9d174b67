// Package telemetry exports solver and calibration counters in the
// Prometheus text format, for scraping or for node_exporter's textfile
// collector.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/san-kum/hydrosim/internal/optim"
	"github.com/san-kum/hydrosim/internal/sim"
)

const namespace = "hydrosim"

// Recorder owns a private registry so several recorders can live in one
// process.
type Recorder struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	steps        *prometheus.CounterVec
	iterations   *prometheus.CounterVec
	nonConverged *prometheus.CounterVec
	maxResidual  *prometheus.GaugeVec

	trials    prometheus.Counter
	trialLoss prometheus.Histogram
	bestLoss  prometheus.Gauge

	mu   sync.Mutex
	best float64
	seen bool
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed simulation runs.",
		}, []string{"model"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of simulation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"model"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "steps_total",
			Help:      "Implicit steps solved per element.",
		}, []string{"model", "element"}),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "iterations_total",
			Help:      "Root-finder iterations per element.",
		}, []string{"model", "element"}),
		nonConverged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "nonconverged_steps_total",
			Help:      "Steps whose root search hit the iteration limit.",
		}, []string{"model", "element"}),
		maxResidual: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "max_residual",
			Help:      "Largest absolute residual accepted in the last run.",
		}, []string{"model", "element"}),
		trials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "trials_total",
			Help:      "Evaluated calibration trials.",
		}),
		trialLoss: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "trial_loss",
			Help:      "Loss of calibration trials.",
			Buckets:   prometheus.LinearBuckets(-1, 0.25, 12),
		}),
		bestLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "calibration",
			Name:      "best_loss",
			Help:      "Lowest loss seen so far.",
		}),
	}
	r.registry.MustRegister(r.runs, r.runDuration, r.steps, r.iterations, r.nonConverged,
		r.maxResidual, r.trials, r.trialLoss, r.bestLoss)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveRun records a finished simulation and its per-element solver
// diagnostics.
func (r *Recorder) ObserveRun(res *sim.Result, elapsed time.Duration) {
	r.runs.WithLabelValues(res.Model).Inc()
	r.runDuration.WithLabelValues(res.Model).Observe(elapsed.Seconds())
	for id, d := range res.Diagnostics {
		r.steps.WithLabelValues(res.Model, id).Add(float64(d.Steps))
		r.iterations.WithLabelValues(res.Model, id).Add(float64(d.TotalIterations))
		r.nonConverged.WithLabelValues(res.Model, id).Add(float64(len(d.NonConverged)))
		r.maxResidual.WithLabelValues(res.Model, id).Set(d.MaxResidual)
	}
}

// ObserveTrial fits optim.WithProgress.
func (r *Recorder) ObserveTrial(t optim.Trial) {
	r.trials.Inc()
	r.trialLoss.Observe(t.Loss)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.seen || t.Loss < r.best {
		r.best, r.seen = t.Loss, true
		r.bestLoss.Set(t.Loss)
	}
}

// WriteFile writes every metric to path atomically.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
