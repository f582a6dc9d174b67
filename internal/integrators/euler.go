package integrators

import (
	"fmt"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// ExplicitEuler evaluates the fluxes at the start of the step:
// S_new = S_old + dt*sum(F(S_old)). Cheap but only conditionally stable,
// so storages are floored at zero.
type ExplicitEuler struct{}

func NewExplicitEuler() *ExplicitEuler {
	return &ExplicitEuler{}
}

func (e *ExplicitEuler) Name() string { return "explicit_euler" }

func (e *ExplicitEuler) Solve(ev dynamo.FluxEvaluator, s0 float64, n int, dt float64) (dynamo.Series, dynamo.Diagnostics, error) {
	var diag dynamo.Diagnostics
	if dt <= 0 {
		return nil, diag, fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrInputMismatch, dt)
	}

	states := make(dynamo.Series, n)
	buf := make([]float64, ev.NumFluxes())
	s := s0
	for i := 0; i < n; i++ {
		ev.Eval(s, s, i, buf)
		sum := 0.0
		for _, f := range buf {
			sum += f
		}
		s += dt * sum
		if s < 0 {
			s = 0
		}
		states[i] = s
		diag.Observe(i, dynamo.RootResult{Root: s, Converged: true})
	}
	return states, diag, nil
}

// Fluxes evaluates the flux terms at the start-of-step storages.
func (e *ExplicitEuler) Fluxes(ev dynamo.FluxEvaluator, states dynamo.Series, s0 float64) []dynamo.Series {
	nf := ev.NumFluxes()
	out := make([]dynamo.Series, nf)
	for j := range out {
		out[j] = make(dynamo.Series, len(states))
	}
	buf := make([]float64, nf)
	prev := s0
	for i := range states {
		ev.Eval(prev, prev, i, buf)
		for j := range buf {
			out[j][i] = buf[j]
		}
		prev = states[i]
	}
	return out
}
