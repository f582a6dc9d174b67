package analysis

import (
	"fmt"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/elements"
)

// EnsembleApproximator solves many reservoirs in lockstep.
type EnsembleApproximator interface {
	dynamo.Approximator
	SolveEnsemble(evs []dynamo.FluxEvaluator, s0 []float64, n int, dt float64) ([]dynamo.Series, []dynamo.Diagnostics, error)
}

// ReservoirRun is the solution of one PowerReservoirET parameterisation.
type ReservoirRun struct {
	Params      elements.PowerReservoirETParams
	S           dynamo.Series
	Q           dynamo.Series
	AET         dynamo.Series
	Diagnostics dynamo.Diagnostics
}

// ReservoirSweep solves one PowerReservoirET per parameter set over the same
// forcing, all starting from s0, with a single ensemble solve.
func ReservoirSweep(approx EnsembleApproximator, p, pet dynamo.Series, dt, s0 float64, params []elements.PowerReservoirETParams, opts ...elements.Option) ([]ReservoirRun, error) {
	evs := make([]dynamo.FluxEvaluator, len(params))
	s0s := make([]float64, len(params))
	inputs := []dynamo.Series{p, pet}
	for i, par := range params {
		el, err := elements.NewPowerReservoirET(fmt.Sprintf("FR%d", i), par, s0, approx, opts...)
		if err != nil {
			return nil, err
		}
		if err := el.SetTimestep(dt); err != nil {
			return nil, err
		}
		if err := el.SetInputs(inputs); err != nil {
			return nil, err
		}
		if evs[i], err = el.Evaluator(); err != nil {
			return nil, err
		}
		s0s[i] = s0
	}

	states, diags, err := approx.SolveEnsemble(evs, s0s, len(p), dt)
	if err != nil {
		return nil, err
	}

	runs := make([]ReservoirRun, len(params))
	for i := range params {
		fluxes := approx.Fluxes(evs[i], states[i], s0)
		runs[i] = ReservoirRun{
			Params:      params[i],
			S:           states[i],
			Q:           fluxes[1].Negate(),
			AET:         fluxes[2].Negate(),
			Diagnostics: diags[i],
		}
	}
	return runs, nil
}
