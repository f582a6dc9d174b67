package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/hydrosim/internal/forcing"
	"github.com/san-kum/hydrosim/internal/sim"
)

// Elasticity estimates the relative change of total discharge per relative
// change of one parameter by running the model twice: once as configured
// and once with the parameter scaled by (1 + rel). Both runs start from the
// initial states and the parameter is restored afterwards.
func Elasticity(ctx context.Context, m sim.Model, data *forcing.Data, dt float64, param string, rel float64) (float64, error) {
	if rel == 0 {
		return 0, fmt.Errorf("relative perturbation must be non-zero")
	}
	base, ok := m.GetParams()[param]
	if !ok {
		return 0, fmt.Errorf("model %s has no parameter %q", m.ID(), param)
	}
	if base == 0 {
		return 0, fmt.Errorf("%s is zero; relative perturbation undefined", param)
	}
	defer m.SetParameters(map[string]float64{param: base})

	simulator := sim.New(m)
	run := func(v float64) (float64, error) {
		if err := m.SetParameters(map[string]float64{param: v}); err != nil {
			return 0, err
		}
		r, err := simulator.Run(ctx, data, sim.Config{Dt: dt, ResetStates: true})
		if err != nil {
			return 0, err
		}
		return r.Q.Sum(), nil
	}

	q0, err := run(base)
	if err != nil {
		return 0, err
	}
	q1, err := run(base * (1 + rel))
	if err != nil {
		return 0, err
	}
	m.ResetStates()
	if q0 == 0 {
		return 0, nil
	}
	return (q1 - q0) / q0 / rel, nil
}

// ElasticitySpectrum computes the elasticity of every parameter in names,
// skipping those that are zero.
func ElasticitySpectrum(ctx context.Context, m sim.Model, data *forcing.Data, dt float64, names []string, rel float64) (map[string]float64, error) {
	params := m.GetParams()
	out := make(map[string]float64, len(names))
	for _, name := range names {
		if params[name] == 0 {
			out[name] = math.NaN()
			continue
		}
		e, err := Elasticity(ctx, m, data, dt, name, rel)
		if err != nil {
			return nil, err
		}
		out[name] = e
	}
	return out, nil
}
