package integrators

import (
	"bytes"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/logging"
	"github.com/san-kum/hydrosim/internal/rootfind"
)

// linearReservoir is dS/dt = P - k*S.
func linearReservoir(k float64, p []float64, dt float64) dynamo.GeneralEvaluator {
	return dynamo.GeneralEvaluator{N: 2, Law: func(s, s0 float64, i int) ([]float64, float64, float64) {
		return []float64{p[i], -k * s}, 0, s0 + p[i]*dt
	}}
}

// cubicReservoir is dS/dt = P - k*S^3.
type cubicReservoir struct {
	k, dt float64
	p     []float64
}

func (c *cubicReservoir) NumFluxes() int { return 2 }

func (c *cubicReservoir) Eval(s, s0 float64, i int, out []float64) (float64, float64) {
	out[0] = c.p[i]
	out[1] = -c.k * s * s * s
	return 0, s0 + c.p[i]*c.dt
}

func newImplicit(cfg dynamo.SolverConfig) *ImplicitEuler {
	return NewImplicitEuler(rootfind.NewPegasus(cfg), WithStrict(cfg.Strict))
}

func TestImplicitEulerLinearClosedForm(t *testing.T) {
	ie := newImplicit(dynamo.DefaultSolverConfig())
	ev := linearReservoir(0.1, make([]float64, 5), 1)

	states, diag, err := ie.Solve(ev, 20, 5, 1)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	want := 20.0
	for i, s := range states {
		want /= 1.1
		if math.Abs(s-want) > 1e-9 {
			t.Errorf("step %d: got %.12f, want %.12f", i, s, want)
		}
	}
	if !diag.Converged() || diag.Steps != 5 {
		t.Errorf("unexpected diagnostics: %+v", diag)
	}
}

func TestImplicitEulerTimestepScaling(t *testing.T) {
	ie := newImplicit(dynamo.DefaultSolverConfig())
	ev := linearReservoir(0.1, []float64{0}, 0.5)

	states, _, err := ie.Solve(ev, 20, 1, 0.5)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if want := 20 / 1.05; math.Abs(states[0]-want) > 1e-9 {
		t.Errorf("got %.12f, want %.12f", states[0], want)
	}
}

func TestImplicitEulerRejectsBadTimestep(t *testing.T) {
	ie := newImplicit(dynamo.DefaultSolverConfig())
	_, _, err := ie.Solve(linearReservoir(0.1, []float64{0}, 1), 20, 1, 0)
	if !errors.Is(err, dynamo.ErrInputMismatch) {
		t.Errorf("expected ErrInputMismatch, got %v", err)
	}
}

func TestImplicitEulerStrictMode(t *testing.T) {
	cfg := dynamo.DefaultSolverConfig()
	cfg.MaxIterations = 1
	ev := &cubicReservoir{k: 0.1, dt: 1, p: []float64{10, 0}}

	states, diag, err := newImplicit(cfg).Solve(ev, 20, 2, 1)
	if err != nil {
		t.Fatalf("permissive solve: %v", err)
	}
	if len(states) != 2 || diag.Converged() {
		t.Errorf("expected flagged best estimates, got states=%v diag=%+v", states, diag)
	}

	cfg.Strict = true
	_, _, err = newImplicit(cfg).Solve(ev, 20, 2, 1)
	if !errors.Is(err, dynamo.ErrNonConvergence) {
		t.Fatalf("expected ErrNonConvergence, got %v", err)
	}
	var se *dynamo.StepError
	if !errors.As(err, &se) || se.Step != 0 {
		t.Errorf("expected StepError at step 0, got %v", err)
	}
}

func TestImplicitEulerEnsembleMatchesMembers(t *testing.T) {
	ie := newImplicit(dynamo.DefaultSolverConfig())
	p := []float64{4, 0, 0, 12, 1, 0}
	evs := []dynamo.FluxEvaluator{
		&cubicReservoir{k: 0.01, dt: 1, p: p},
		&cubicReservoir{k: 0.1, dt: 1, p: p},
		linearReservoir(0.3, p, 1),
	}
	s0 := []float64{5, 20, 1}

	states, diags, err := ie.SolveEnsemble(evs, s0, len(p), 1)
	if err != nil {
		t.Fatalf("ensemble: %v", err)
	}
	for j, ev := range evs {
		want, _, err := ie.Solve(ev, s0[j], len(p), 1)
		if err != nil {
			t.Fatalf("member %d: %v", j, err)
		}
		for i := range want {
			if math.Abs(states[j][i]-want[i]) > 1e-12 {
				t.Errorf("member %d step %d: got %.12f, want %.12f", j, i, states[j][i], want[i])
			}
		}
		if diags[j].Steps != len(p) {
			t.Errorf("member %d: %d steps recorded", j, diags[j].Steps)
		}
	}

	if _, _, err := ie.SolveEnsemble(evs, s0[:2], len(p), 1); !errors.Is(err, dynamo.ErrInputMismatch) {
		t.Errorf("expected ErrInputMismatch, got %v", err)
	}
}

func TestImplicitEulerEnsembleLogsNonConvergence(t *testing.T) {
	var buf bytes.Buffer
	cfg := dynamo.DefaultSolverConfig()
	cfg.MaxIterations = 1
	ie := NewImplicitEuler(rootfind.NewPegasus(cfg), WithLogger(logging.NewTestLogger(&buf)))
	p := []float64{10, 0}
	evs := []dynamo.FluxEvaluator{
		linearReservoir(0.1, p, 1),
		&cubicReservoir{k: 0.1, dt: 1, p: p},
	}

	_, diags, err := ie.SolveEnsemble(evs, []float64{20, 20}, len(p), 1)
	if err != nil {
		t.Fatalf("permissive ensemble: %v", err)
	}
	if diags[1].Converged() {
		t.Fatalf("expected the cubic member to be flagged: %+v", diags[1])
	}
	out := buf.String()
	if !strings.Contains(out, "step did not converge") || !strings.Contains(out, "ensemble member finished with non-converged steps") {
		t.Errorf("non-converged members were not logged:\n%s", out)
	}
}

func TestImplicitEulerEndOfStepFluxes(t *testing.T) {
	ie := newImplicit(dynamo.DefaultSolverConfig())
	p := []float64{10, 0}
	ev := linearReservoir(0.1, p, 1)
	states, _, err := ie.Solve(ev, 20, 2, 1)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	fluxes := ie.Fluxes(ev, states, 20)
	for i, s := range states {
		if math.Abs(fluxes[1][i]+0.1*s) > 1e-12 {
			t.Errorf("step %d: outflow %.12f not evaluated at end-of-step storage %.12f", i, fluxes[1][i], s)
		}
	}
}

func TestExplicitEuler(t *testing.T) {
	ee := NewExplicitEuler()
	ev := linearReservoir(0.1, []float64{0, 0, 0}, 1)

	states, diag, err := ee.Solve(ev, 20, 3, 1)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	want := []float64{18, 16.2, 14.58}
	for i := range want {
		if math.Abs(states[i]-want[i]) > 1e-12 {
			t.Errorf("step %d: got %.12f, want %.12f", i, states[i], want[i])
		}
	}
	if !diag.Converged() {
		t.Errorf("explicit steps always converge")
	}

	fluxes := ee.Fluxes(ev, states, 20)
	if math.Abs(fluxes[1][0]+2) > 1e-12 {
		t.Errorf("first outflow should use the initial storage, got %v", fluxes[1][0])
	}

	drain := linearReservoir(5, []float64{0}, 1)
	states, _, _ = ee.Solve(drain, 1, 1, 1)
	if states[0] != 0 {
		t.Errorf("storage should be floored at zero, got %v", states[0])
	}
}

// powerReservoir is dS/dt = P - k*S^alpha.
func powerReservoir(k, alpha float64, p []float64, dt float64) dynamo.GeneralEvaluator {
	return dynamo.GeneralEvaluator{N: 2, Law: func(s, s0 float64, i int) ([]float64, float64, float64) {
		return []float64{p[i], -k * math.Pow(s, alpha)}, 0, s0 + p[i]*dt
	}}
}

func TestImplicitEulerEmptyStoreStaysEmpty(t *testing.T) {
	ie := newImplicit(dynamo.DefaultSolverConfig())
	for _, alpha := range []float64{0.1, 0.5, 1} {
		ev := powerReservoir(1, alpha, make([]float64, 10), 1)
		states, diag, err := ie.Solve(ev, 0, 10, 1)
		if err != nil {
			t.Fatalf("alpha=%g: solve: %v", alpha, err)
		}
		fluxes := ie.Fluxes(ev, states, 0)
		for i, s := range states {
			if s != 0 || fluxes[1][i] != 0 {
				t.Errorf("alpha=%g step %d: storage %g, outflow %g from an empty store", alpha, i, s, fluxes[1][i])
			}
		}
		if !diag.Converged() {
			t.Errorf("alpha=%g: %+v", alpha, diag)
		}
	}
}

func TestImplicitEulerDrainsBelowFloor(t *testing.T) {
	ie := newImplicit(dynamo.DefaultSolverConfig())
	ev := powerReservoir(5, 0.3, make([]float64, 6), 1)

	states, diag, err := ie.Solve(ev, 1, 6, 1)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	fluxes := ie.Fluxes(ev, states, 1)
	prev := 1.0
	for i, s := range states {
		if s < 0 {
			t.Errorf("step %d: negative storage %g", i, s)
		}
		if slices.Contains(diag.NonConverged, i) {
			prev = s
			continue
		}
		if balance := s - prev - (fluxes[0][i] + fluxes[1][i]); math.Abs(balance) > 1e-7 {
			t.Errorf("step %d: converged with mass balance error %g", i, balance)
		}
		prev = s
	}
}

func TestImplicitEulerUnsuppliedOutflow(t *testing.T) {
	// The outflow does not vanish with the storage, so no storage balances it.
	ev := dynamo.GeneralEvaluator{N: 1, Law: func(s, s0 float64, i int) ([]float64, float64, float64) {
		return []float64{-5}, 0, s0
	}}

	states, diag, err := newImplicit(dynamo.DefaultSolverConfig()).Solve(ev, 1, 2, 1)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	for i, s := range states {
		if s != 0 {
			t.Errorf("step %d: got %g, want an empty store", i, s)
		}
	}
	if !slices.Equal(diag.NonConverged, []int{0, 1}) {
		t.Errorf("unbalanced steps should be flagged: %+v", diag)
	}

	cfg := dynamo.DefaultSolverConfig()
	cfg.Strict = true
	if _, _, err := newImplicit(cfg).Solve(ev, 1, 2, 1); !errors.Is(err, dynamo.ErrNonConvergence) {
		t.Errorf("expected ErrNonConvergence, got %v", err)
	}
}
