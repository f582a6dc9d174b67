// Package experiment turns a run configuration into a built model, its
// forcing and the simulations, calibrations and sweeps run on them.
package experiment

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/hydrosim/internal/analysis"
	"github.com/san-kum/hydrosim/internal/config"
	"github.com/san-kum/hydrosim/internal/forcing"
	"github.com/san-kum/hydrosim/internal/logging"
	"github.com/san-kum/hydrosim/internal/models"
	"github.com/san-kum/hydrosim/internal/optim"
	"github.com/san-kum/hydrosim/internal/sim"
	"github.com/san-kum/hydrosim/internal/telemetry"
)

type Option func(*Experiment)

func WithLogger(log logr.Logger) Option {
	return func(e *Experiment) { e.log = log }
}

// WithData uses an already loaded forcing table instead of cfg.Forcing.Path.
func WithData(data *forcing.Data) Option {
	return func(e *Experiment) { e.data = data }
}

func WithRecorder(rec *telemetry.Recorder) Option {
	return func(e *Experiment) { e.rec = rec }
}

func WithRegistry(r *Registry) Option {
	return func(e *Experiment) { e.registry = r }
}

type Experiment struct {
	cfg      *config.Config
	registry *Registry
	log      logr.Logger
	rec      *telemetry.Recorder

	data      *forcing.Data
	window    *forcing.Data
	simulator *sim.Simulator
}

func New(cfg *config.Config, opts ...Option) *Experiment {
	e := &Experiment{cfg: cfg, log: logr.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = NewRegistry()
	}
	return e
}

func (e *Experiment) Config() *config.Config { return e.cfg }

func (e *Experiment) modelOptions() models.Options {
	return models.Options{
		Solver:       e.cfg.SolverSettings(),
		Approximator: e.cfg.Solver.Approximator,
		Workers:      max(e.cfg.Workers, 1),
		Logger:       e.log,
	}
}

// NewModel builds the configured model with the configured parameters
// applied on top of its defaults.
func (e *Experiment) NewModel() (sim.Model, error) {
	m, err := e.registry.GetModel(e.cfg.Model, e.modelOptions())
	if err != nil {
		return nil, err
	}
	if err := m.SetParameters(e.cfg.Parameters); err != nil {
		return nil, err
	}
	return m, nil
}

// Setup validates the configuration, loads the forcing and builds the
// model with the configured initial states.
func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	if e.data == nil {
		if e.cfg.Forcing.Path == "" {
			return fmt.Errorf("no forcing: set forcing.path or pass data")
		}
		data, err := forcing.Load(e.cfg.Forcing.Path)
		if err != nil {
			return err
		}
		e.data = data
	}
	window, err := e.data.Slice(e.cfg.Forcing.Start, e.cfg.Forcing.End)
	if err != nil {
		return err
	}
	e.window = window

	m, err := e.NewModel()
	if err != nil {
		return err
	}
	if err := m.SetStates(e.cfg.States); err != nil {
		return err
	}
	e.simulator = sim.New(m)
	e.simulator.SetLogger(e.log)
	for _, metric := range e.registry.DefaultMetrics(e.cfg.Calibration.Warmup) {
		e.simulator.AddMetric(metric)
	}
	e.log.V(logging.DEBUG).Info("experiment ready", "model", e.cfg.Model, "catchment", e.cfg.Catchment,
		"steps", window.Len(), "approximator", e.cfg.Solver.Approximator)
	return nil
}

// Data returns the simulated window of the forcing.
func (e *Experiment) Data() *forcing.Data { return e.window }

// GetSimulator returns the underlying simulator for adding observers.
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}

// Run simulates the forcing window once.
func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	start := time.Now()
	res, err := e.simulator.Run(ctx, e.window, sim.Config{Dt: e.cfg.Dt})
	if err != nil {
		return nil, err
	}
	if e.rec != nil {
		e.rec.ObserveRun(res, time.Since(start))
	}
	return res, nil
}

// Calibrate searches the configured parameter space over the forcing
// window. Every trial starts from the model's initial states.
func (e *Experiment) Calibrate(ctx context.Context, progress ...func(optim.Trial)) (*optim.Calibration, error) {
	if e.window == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	cal := e.cfg.Calibration
	problem, err := optim.NewProblem(e.NewModel, e.window, e.cfg.Dt, cal.Parameters, cal.Objective, cal.Warmup)
	if err != nil {
		return nil, err
	}
	opt, err := e.registry.GetOptimizer(cal, problem.Dim())
	if err != nil {
		return nil, err
	}

	opts := []optim.CalibrateOption{optim.WithLogger(e.log), optim.WithTrials(true)}
	for _, fn := range progress {
		opts = append(opts, optim.WithProgress(fn))
	}
	if e.rec != nil {
		opts = append(opts, optim.WithProgress(e.rec.ObserveTrial))
	}
	return optim.Calibrate(ctx, problem, opt, opts...)
}

// RunCalibrated simulates the window again with the calibrated
// parameters applied on top of the configured ones.
func (e *Experiment) RunCalibrated(ctx context.Context, cal *optim.Calibration) (*sim.Result, error) {
	if cal == nil || len(cal.Best) == 0 {
		return nil, fmt.Errorf("no calibrated parameters")
	}
	cfg := *e.cfg
	cfg.Parameters = maps.Clone(e.cfg.Parameters)
	if cfg.Parameters == nil {
		cfg.Parameters = make(map[string]float64, len(cal.Best))
	}
	maps.Copy(cfg.Parameters, cal.Best)

	best := New(&cfg, WithLogger(e.log), WithRegistry(e.registry), WithData(e.data), WithRecorder(e.rec))
	if err := best.Setup(); err != nil {
		return nil, err
	}
	return best.Run(ctx)
}

// Sensitivity sweeps one parameter on pooled models, Workers at a time.
func (e *Experiment) Sensitivity(ctx context.Context, param string, values []float64) ([]analysis.SweepPoint, error) {
	if e.window == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	sweep := analysis.Sweep{
		Param:   param,
		Values:  values,
		Dt:      e.cfg.Dt,
		Workers: max(e.cfg.Workers, 1),
	}
	return sweep.RunEnsemble(ctx, sim.NewModelPool(e.NewModel), e.window)
}
