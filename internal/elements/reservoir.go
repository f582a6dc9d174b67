package elements

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-logr/logr"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/logging"
)

// StateS0 is the name of the storage state of every reservoir.
const StateS0 = "S0"

type Option func(*reservoir)

// WithArchitecture selects the evaluator used inside the root finder.
func WithArchitecture(arch dynamo.Architecture) Option {
	return func(r *reservoir) { r.arch = arch }
}

func WithLogger(log logr.Logger) Option {
	return func(r *reservoir) { r.log = log }
}

// solution is the cached result of the most recent solve.
type solution struct {
	s0     float64
	states dynamo.Series
	fluxes []dynamo.Series
	diag   dynamo.Diagnostics
}

// reservoir holds what every storage element shares: id, timestep, inputs,
// storage state and the approximator. The concrete element supplies its
// flux law through general and compiled.
type reservoir struct {
	id     string
	approx dynamo.Approximator
	arch   dynamo.Architecture
	log    logr.Logger

	dt      float64
	inputs  []dynamo.Series
	nInputs int

	s0Init float64
	s0     float64

	outIdx int
	aetIdx int

	general  func() dynamo.FluxEvaluator
	compiled func() dynamo.FluxEvaluator

	last *solution
	diag dynamo.Diagnostics
}

func newReservoir(id string, s0 float64, nInputs int, approx dynamo.Approximator, opts []Option) (reservoir, error) {
	r := reservoir{
		id:      id,
		approx:  approx,
		arch:    dynamo.ArchGeneral,
		log:     logr.Discard(),
		nInputs: nInputs,
		aetIdx:  -1,
	}
	if id == "" {
		return r, fmt.Errorf("%w: element id must not be empty", dynamo.ErrInvalidParameter)
	}
	if approx == nil {
		return r, fmt.Errorf("%w: %s: approximator is required", dynamo.ErrInvalidParameter, id)
	}
	if err := checkNonNegative(StateS0, s0); err != nil {
		return r, fmt.Errorf("%s: %w", id, err)
	}
	for _, opt := range opts {
		opt(&r)
	}
	switch r.arch {
	case dynamo.ArchGeneral, dynamo.ArchCompiled:
	case "":
		r.arch = dynamo.ArchGeneral
	default:
		return r, fmt.Errorf("%w: %s: unknown architecture %q", dynamo.ErrInvalidParameter, id, r.arch)
	}
	r.s0Init, r.s0 = s0, s0
	r.log = r.log.WithValues("element", id)
	return r, nil
}

func (r *reservoir) ID() string { return r.id }

func (r *reservoir) Architecture() dynamo.Architecture { return r.arch }

// SetInputs stores references to the input series. All series must have
// the same, non-zero length.
func (r *reservoir) SetInputs(in []dynamo.Series) error {
	if len(in) != r.nInputs {
		return fmt.Errorf("%w: %s expects %d inputs, got %d", dynamo.ErrInputMismatch, r.id, r.nInputs, len(in))
	}
	if err := checkLengths(r.id, in); err != nil {
		return err
	}
	r.inputs = in
	r.last = nil
	return nil
}

func (r *reservoir) SetTimestep(dt float64) error {
	if err := checkPositive("dt", dt); err != nil {
		return fmt.Errorf("%s: %w", r.id, err)
	}
	r.dt = dt
	r.last = nil
	return nil
}

func (r *reservoir) Timestep() float64 { return r.dt }

func (r *reservoir) StateNames() []string { return []string{StateS0} }

func (r *reservoir) States() map[string]float64 {
	return map[string]float64{StateS0: r.s0}
}

// SetState sets the storage the next solve starts from.
func (r *reservoir) SetState(name string, value float64) error {
	if name != StateS0 {
		return fmt.Errorf("%w: %s has no state %q", dynamo.ErrInvalidParameter, r.id, name)
	}
	if err := checkNonNegative(name, value); err != nil {
		return fmt.Errorf("%s: %w", r.id, err)
	}
	r.s0 = value
	r.last = nil
	return nil
}

func (r *reservoir) SetStates(states map[string]float64) error {
	for _, name := range sortedKeys(states) {
		if err := r.SetState(name, states[name]); err != nil {
			return err
		}
	}
	return nil
}

// ResetStates restores the storage given at construction.
func (r *reservoir) ResetStates() {
	r.s0 = r.s0Init
	r.last = nil
}

// SetInitialState replaces the storage ResetStates returns to.
func (r *reservoir) SetInitialState(s0 float64) error {
	if err := checkNonNegative(StateS0, s0); err != nil {
		return fmt.Errorf("%s: %w", r.id, err)
	}
	r.s0Init = s0
	return nil
}

func (r *reservoir) Diagnostics() dynamo.Diagnostics { return r.diag }

func (r *reservoir) invalidate() { r.last = nil }

func (r *reservoir) length() (int, error) {
	if r.inputs == nil {
		return 0, fmt.Errorf("%w: %s: inputs not set", dynamo.ErrInputMismatch, r.id)
	}
	if r.dt <= 0 {
		return 0, fmt.Errorf("%w: %s: timestep not set", dynamo.ErrInputMismatch, r.id)
	}
	return len(r.inputs[0]), nil
}

func (r *reservoir) evaluator() dynamo.FluxEvaluator {
	if r.arch == dynamo.ArchCompiled {
		return r.compiled()
	}
	return r.general()
}

// solve runs the approximator over the whole input series from the
// current storage, caches the run and carries the storage forward.
func (r *reservoir) solve() (*solution, error) {
	n, err := r.length()
	if err != nil {
		return nil, err
	}

	s0 := r.s0
	states, diag, err := r.approx.Solve(r.evaluator(), s0, n, r.dt)
	r.diag = diag
	if err != nil {
		r.last = nil
		var se *dynamo.StepError
		if errors.As(err, &se) && se.Element == "" {
			se.Element = r.id
		}
		return nil, err
	}

	if !diag.Converged() {
		r.log.V(logging.DEBUG).Info("solve finished with non-converged steps",
			"steps", diag.Steps, "nonConverged", len(diag.NonConverged), "maxResidual", diag.MaxResidual)
	}

	sol := &solution{
		s0:     s0,
		states: states,
		fluxes: r.approx.Fluxes(r.general(), states, s0),
		diag:   diag,
	}
	r.last = sol
	if n > 0 {
		r.s0 = states[n-1]
	}
	return sol, nil
}

func (r *reservoir) output() (dynamo.Series, error) {
	sol, err := r.solve()
	if err != nil {
		return nil, err
	}
	return sol.fluxes[r.outIdx].Negate(), nil
}

// aet returns actual evapotranspiration of the cached solve.
func (r *reservoir) aet() (dynamo.Series, error) {
	if r.last == nil {
		return nil, fmt.Errorf("%w: %s: AET requires a solve with the current parameters and states", dynamo.ErrStateOrdering, r.id)
	}
	return r.last.fluxes[r.aetIdx].Negate(), nil
}

// Evaluator returns the flux evaluator for the current inputs, parameters
// and timestep, e.g. to solve many reservoirs in lockstep.
func (r *reservoir) Evaluator() (dynamo.FluxEvaluator, error) {
	if _, err := r.length(); err != nil {
		return nil, err
	}
	return r.evaluator(), nil
}

// StateSeries returns the storage trajectory of the cached solve.
func (r *reservoir) StateSeries() (dynamo.Series, error) {
	if r.last == nil {
		return nil, fmt.Errorf("%w: %s: no solve with the current parameters and states", dynamo.ErrStateOrdering, r.id)
	}
	return r.last.states.Clone(), nil
}

// Fluxes returns every signed flux term of the cached solve.
func (r *reservoir) Fluxes() ([]dynamo.Series, error) {
	if r.last == nil {
		return nil, fmt.Errorf("%w: %s: no solve with the current parameters and states", dynamo.ErrStateOrdering, r.id)
	}
	out := make([]dynamo.Series, len(r.last.fluxes))
	for i, f := range r.last.fluxes {
		out[i] = f.Clone()
	}
	return out, nil
}

// MassBalance returns the largest absolute deviation between storage change
// and net flux over the cached solve.
func (r *reservoir) MassBalance() (float64, error) {
	if r.last == nil {
		return 0, fmt.Errorf("%w: %s: no solve with the current parameters and states", dynamo.ErrStateOrdering, r.id)
	}
	worst := 0.0
	prev := r.last.s0
	for i, s := range r.last.states {
		net := 0.0
		for _, f := range r.last.fluxes {
			net += f[i]
		}
		worst = math.Max(worst, math.Abs(s-prev-r.dt*net))
		prev = s
	}
	return worst, nil
}

func checkLengths(id string, in []dynamo.Series) error {
	if len(in) == 0 {
		return nil
	}
	n := len(in[0])
	if n == 0 {
		return fmt.Errorf("%w: %s: input series are empty", dynamo.ErrInputMismatch, id)
	}
	for i, s := range in {
		if len(s) != n {
			return fmt.Errorf("%w: %s: input %d has length %d, want %d", dynamo.ErrInputMismatch, id, i, len(s), n)
		}
	}
	return nil
}
