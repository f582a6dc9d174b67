package experiment

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/hydrosim/internal/config"
	"github.com/san-kum/hydrosim/internal/metrics"
	"github.com/san-kum/hydrosim/internal/models"
	"github.com/san-kum/hydrosim/internal/optim"
	"github.com/san-kum/hydrosim/internal/sim"
)

// Registry resolves the names used in configurations.
type Registry struct {
	models     map[string]models.Builder
	optimizers map[string]func(cal config.CalibrationConfig, dim int) optim.Optimizer
}

func NewRegistry() *Registry {
	r := &Registry{
		models:     make(map[string]models.Builder),
		optimizers: make(map[string]func(config.CalibrationConfig, int) optim.Optimizer),
	}

	r.models["m01"] = models.NewM01
	r.models["m02"] = models.NewM02
	r.models["m03"] = models.NewM03
	r.models["m04"] = models.NewM04

	// repetitions is the evaluation budget for every optimizer.
	r.optimizers["grid"] = func(cal config.CalibrationConfig, dim int) optim.Optimizer {
		points := int(math.Floor(math.Pow(float64(max(cal.Repetitions, 1)), 1/float64(max(dim, 1)))))
		return optim.NewGridSearch(max(points, 2))
	}
	r.optimizers["montecarlo"] = func(cal config.CalibrationConfig, dim int) optim.Optimizer {
		return optim.NewMonteCarlo(cal.Repetitions, cal.Seed, cal.Workers)
	}
	r.optimizers["neldermead"] = func(cal config.CalibrationConfig, dim int) optim.Optimizer {
		return optim.NewNelderMead(cal.Repetitions)
	}

	return r
}

func (r *Registry) GetModel(name string, opts models.Options) (sim.Model, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	m, err := fn(opts)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Registry) GetOptimizer(cal config.CalibrationConfig, dim int) (optim.Optimizer, error) {
	fn, ok := r.optimizers[cal.Optimizer]
	if !ok {
		return nil, fmt.Errorf("unknown optimizer: %s", cal.Optimizer)
	}
	return fn(cal, dim), nil
}

func (r *Registry) ListModels() []string { return sortedNames(r.models) }

func (r *Registry) ListOptimizers() []string { return sortedNames(r.optimizers) }

func (r *Registry) ListApproximators() []string {
	return []string{models.ApproxExplicitEuler, models.ApproxImplicitEuler}
}

func (r *Registry) ListObjectives() []string { return metrics.ObjectiveNames() }

// DefaultMetrics are recorded on every run; skill scores need observations.
func (r *Registry) DefaultMetrics(warmup int) []sim.Metric {
	return metrics.Default(warmup)
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
