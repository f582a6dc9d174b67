package dynamo

import (
	"fmt"
	"math"
)

// MinStorage is the lower end of the implicit solver's search interval.
// Power laws with fractional exponents are undefined below zero. A store
// that empties within a step is searched on [0, MinStorage] instead.
const MinStorage = 1e-12

type Series []float64

func (s Series) Clone() Series {
	c := make(Series, len(s))
	copy(c, s)
	return c
}

func (s Series) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s Series) Sum() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v
	}
	return sum
}

func (s Series) Scale(factor float64) Series {
	result := make(Series, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s Series) Add(other Series) Series {
	result := make(Series, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s Series) Negate() Series {
	return s.Scale(-1)
}

// FluxEvaluator evaluates the signed flux terms of a storage element at
// storage s for timestep i, given the storage s0 at the start of the step.
// Terms are written to out (len(out) == NumFluxes()) and the returned
// bounds bracket the storage at the end of the step.
type FluxEvaluator interface {
	NumFluxes() int
	Eval(s, s0 float64, i int, out []float64) (lower, upper float64)
}

// FluxLaw is the general form of a flux law: it allocates and returns the
// flux terms together with the bounds for the new storage.
type FluxLaw func(s, s0 float64, i int) (fluxes []float64, lower, upper float64)

// GeneralEvaluator adapts a FluxLaw to the FluxEvaluator contract.
type GeneralEvaluator struct {
	N   int
	Law FluxLaw
}

func (g GeneralEvaluator) NumFluxes() int { return g.N }

func (g GeneralEvaluator) Eval(s, s0 float64, i int, out []float64) (float64, float64) {
	fluxes, lower, upper := g.Law(s, s0, i)
	copy(out, fluxes)
	return lower, upper
}

// Architecture selects the flux evaluator used inside the root-finding loop.
type Architecture string

const (
	ArchGeneral  Architecture = "general"
	ArchCompiled Architecture = "compiled"
)

type RootResult struct {
	Root       float64
	Residual   float64
	Iterations int
	Converged  bool
}

type RootFinder interface {
	Solve(f func(x float64) float64, lower, upper float64) (RootResult, error)
}

// BatchRootFinder solves many independent problems sharing one iteration
// loop. f is called with the problem index and the trial point.
type BatchRootFinder interface {
	RootFinder
	SolveBatch(f func(j int, x float64) float64, lower, upper []float64) ([]RootResult, error)
}

// Approximator turns the flux law of an element into a sequence of solved
// storages, one per timestep, starting from s0.
type Approximator interface {
	Name() string
	Solve(ev FluxEvaluator, s0 float64, n int, dt float64) (Series, Diagnostics, error)
	Fluxes(ev FluxEvaluator, states Series, s0 float64) []Series
}

// EndOfStepFluxes evaluates every flux term along a solved trajectory. Term
// j of step i is evaluated at states[i] with the previous storage as s0.
func EndOfStepFluxes(ev FluxEvaluator, states Series, s0 float64) []Series {
	nf := ev.NumFluxes()
	out := make([]Series, nf)
	for j := range out {
		out[j] = make(Series, len(states))
	}
	buf := make([]float64, nf)
	prev := s0
	for i, s := range states {
		ev.Eval(s, prev, i, buf)
		for j := range buf {
			out[j][i] = buf[j]
		}
		prev = s
	}
	return out
}

// Diagnostics records how the root finder behaved over one solve.
type Diagnostics struct {
	Steps           int
	TotalIterations int
	MaxIterations   int
	MaxResidual     float64
	NonConverged    []int
}

func (d *Diagnostics) Observe(step int, r RootResult) {
	d.Steps++
	d.TotalIterations += r.Iterations
	if r.Iterations > d.MaxIterations {
		d.MaxIterations = r.Iterations
	}
	if res := math.Abs(r.Residual); res > d.MaxResidual {
		d.MaxResidual = res
	}
	if !r.Converged {
		d.NonConverged = append(d.NonConverged, step)
	}
}

func (d Diagnostics) Converged() bool { return len(d.NonConverged) == 0 }

// Merge folds the diagnostics of a later solve into d. Step indices of
// other are shifted by offset.
func (d *Diagnostics) Merge(other Diagnostics, offset int) {
	d.Steps += other.Steps
	d.TotalIterations += other.TotalIterations
	if other.MaxIterations > d.MaxIterations {
		d.MaxIterations = other.MaxIterations
	}
	if other.MaxResidual > d.MaxResidual {
		d.MaxResidual = other.MaxResidual
	}
	for _, step := range other.NonConverged {
		d.NonConverged = append(d.NonConverged, step+offset)
	}
}

type SolverConfig struct {
	Tolerance     float64
	XTolerance    float64
	MaxIterations int
	Architecture  Architecture
	Strict        bool
}

func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Tolerance:     1e-8,
		XTolerance:    1e-8,
		MaxIterations: 1000,
		Architecture:  ArchGeneral,
	}
}

func (c SolverConfig) Validate() error {
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", c.Tolerance)
	}
	if c.XTolerance < 0 {
		return fmt.Errorf("x tolerance must be non-negative, got %g", c.XTolerance)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be at least 1, got %d", c.MaxIterations)
	}
	switch c.Architecture {
	case ArchGeneral, ArchCompiled, "":
	default:
		return fmt.Errorf("unknown architecture %q", c.Architecture)
	}
	return nil
}

// Element is a node of a catchment model. Inputs and outputs are ordered
// lists of flux series.
type Element interface {
	ID() string
	SetInputs(in []Series) error
	Outputs() ([]Series, error)
}

// Timed elements need the timestep width before solving.
type Timed interface {
	SetTimestep(dt float64) error
}

// Configurable elements expose named scalar parameters.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

// Stateful elements carry state between runs.
type Stateful interface {
	States() map[string]float64
	SetState(name string, value float64) error
	ResetStates()
}

// Evapotranspirer elements report actual evapotranspiration of their last solve.
type Evapotranspirer interface {
	AET() (Series, error)
}

// Diagnosable elements report the root finder behaviour of their last solve.
type Diagnosable interface {
	Diagnostics() Diagnostics
}
