package integrators

import (
	"fmt"
	"math"

	"github.com/go-logr/logr"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/logging"
)

// ImplicitEuler solves S_new = S_old + dt*sum(F(S_new)) at every step by
// root finding on g(S) = S_old + dt*sum(F(S)) - S.
type ImplicitEuler struct {
	rf     dynamo.RootFinder
	strict bool
	log    logr.Logger
}

type Option func(*ImplicitEuler)

// WithStrict makes a non-converged step abort the solve with
// dynamo.ErrNonConvergence instead of keeping the best estimate.
func WithStrict(strict bool) Option {
	return func(ie *ImplicitEuler) { ie.strict = strict }
}

func WithLogger(log logr.Logger) Option {
	return func(ie *ImplicitEuler) { ie.log = log }
}

func NewImplicitEuler(rf dynamo.RootFinder, opts ...Option) *ImplicitEuler {
	ie := &ImplicitEuler{rf: rf, log: logr.Discard()}
	for _, opt := range opts {
		opt(ie)
	}
	return ie
}

func (ie *ImplicitEuler) Name() string { return "implicit_euler" }

// bounds returns the clamped search interval for step i. When the store
// empties even at the floor, the root lies in [0, MinStorage] and is
// searched there, so outflows vanish with the storage instead of being
// evaluated at the floor. Outflows that do not vanish at zero leave no
// root; the interval collapses onto zero and the step is flagged.
func bounds(ev dynamo.FluxEvaluator, s0, dt float64, i int, buf []float64) (float64, float64) {
	lower, upper := ev.Eval(s0, s0, i, buf)
	lower = math.Max(lower, dynamo.MinStorage)
	upper = math.Max(upper, lower)
	if residual(ev, lower, s0, dt, i, buf) >= 0 {
		return lower, upper
	}
	if residual(ev, 0, s0, dt, i, buf) < 0 {
		return 0, 0
	}
	return 0, lower
}

func residual(ev dynamo.FluxEvaluator, s, s0, dt float64, i int, buf []float64) float64 {
	ev.Eval(s, s0, i, buf)
	sum := 0.0
	for _, f := range buf {
		sum += f
	}
	return s0 + dt*sum - s
}

func (ie *ImplicitEuler) Solve(ev dynamo.FluxEvaluator, s0 float64, n int, dt float64) (dynamo.Series, dynamo.Diagnostics, error) {
	var diag dynamo.Diagnostics
	if dt <= 0 {
		return nil, diag, fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrInputMismatch, dt)
	}

	states := make(dynamo.Series, n)
	buf := make([]float64, ev.NumFluxes())
	sOld := s0

	for i := 0; i < n; i++ {
		lower, upper := bounds(ev, sOld, dt, i, buf)
		step, prev := i, sOld
		res, err := ie.rf.Solve(func(s float64) float64 {
			return residual(ev, s, prev, dt, step, buf)
		}, lower, upper)
		if err != nil {
			return states[:i], diag, &dynamo.StepError{Step: i, State: sOld, Wrapped: err}
		}

		diag.Observe(i, res)
		if !res.Converged {
			if ie.strict {
				return states[:i], diag, &dynamo.StepError{Step: i, State: sOld, Wrapped: dynamo.ErrNonConvergence}
			}
			ie.log.V(logging.TRACE).Info("step did not converge", "step", i, "residual", res.Residual)
		}

		states[i] = res.Root
		sOld = res.Root
	}

	return states, diag, nil
}

// SolveEnsemble advances independent members in lockstep. At every step the
// root-finding problems of all members are handed to the root finder as one
// batch when it supports batching.
func (ie *ImplicitEuler) SolveEnsemble(evs []dynamo.FluxEvaluator, s0 []float64, n int, dt float64) ([]dynamo.Series, []dynamo.Diagnostics, error) {
	if len(evs) != len(s0) {
		return nil, nil, fmt.Errorf("%w: %d evaluators, %d initial states", dynamo.ErrInputMismatch, len(evs), len(s0))
	}
	if dt <= 0 {
		return nil, nil, fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrInputMismatch, dt)
	}

	batch, ok := ie.rf.(dynamo.BatchRootFinder)
	if !ok {
		states := make([]dynamo.Series, len(evs))
		diags := make([]dynamo.Diagnostics, len(evs))
		for j, ev := range evs {
			var err error
			states[j], diags[j], err = ie.Solve(ev, s0[j], n, dt)
			if err != nil {
				return nil, nil, fmt.Errorf("member %d: %w", j, err)
			}
		}
		return states, diags, nil
	}

	m := len(evs)
	states := make([]dynamo.Series, m)
	diags := make([]dynamo.Diagnostics, m)
	bufs := make([][]float64, m)
	sOld := make([]float64, m)
	lower := make([]float64, m)
	upper := make([]float64, m)
	for j, ev := range evs {
		states[j] = make(dynamo.Series, n)
		bufs[j] = make([]float64, ev.NumFluxes())
		sOld[j] = s0[j]
	}

	for i := 0; i < n; i++ {
		for j, ev := range evs {
			lower[j], upper[j] = bounds(ev, sOld[j], dt, i, bufs[j])
		}
		step := i
		results, err := batch.SolveBatch(func(j int, s float64) float64 {
			return residual(evs[j], s, sOld[j], dt, step, bufs[j])
		}, lower, upper)
		if err != nil {
			return nil, nil, &dynamo.StepError{Step: i, Wrapped: err}
		}

		for j, res := range results {
			diags[j].Observe(i, res)
			if !res.Converged {
				if ie.strict {
					return nil, nil, &dynamo.StepError{Step: i, State: sOld[j], Wrapped: fmt.Errorf("member %d: %w", j, dynamo.ErrNonConvergence)}
				}
				ie.log.V(logging.TRACE).Info("step did not converge", "member", j, "step", i, "residual", res.Residual)
			}
			states[j][i] = res.Root
			sOld[j] = res.Root
		}
	}

	for j, d := range diags {
		if !d.Converged() {
			ie.log.V(logging.DEBUG).Info("ensemble member finished with non-converged steps",
				"member", j, "steps", d.Steps, "nonConverged", len(d.NonConverged), "maxResidual", d.MaxResidual)
		}
	}
	return states, diags, nil
}

// Fluxes evaluates the flux terms at the end-of-step storages, which is
// where the implicit scheme balances them.
func (ie *ImplicitEuler) Fluxes(ev dynamo.FluxEvaluator, states dynamo.Series, s0 float64) []dynamo.Series {
	return dynamo.EndOfStepFluxes(ev, states, s0)
}
