// Package optim calibrates model parameters against observed streamflow.
// A Problem turns a parameter vector into a loss; an Optimizer searches the
// box the Problem declares.
package optim

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/forcing"
	"github.com/san-kum/hydrosim/internal/metrics"
	"github.com/san-kum/hydrosim/internal/sim"
)

// Parameter is one calibrated dimension. With Log set the search runs over
// log(value), so Lower must be positive.
type Parameter struct {
	Name  string  `yaml:"name" json:"name"`
	Lower float64 `yaml:"lower" json:"lower"`
	Upper float64 `yaml:"upper" json:"upper"`
	Log   bool    `yaml:"log" json:"log"`
}

func (p Parameter) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: parameter without a name", dynamo.ErrInvalidParameter)
	}
	if !(p.Lower < p.Upper) {
		return fmt.Errorf("%w: %s: lower %g must be below upper %g", dynamo.ErrInvalidParameter, p.Name, p.Lower, p.Upper)
	}
	if p.Log && p.Lower <= 0 {
		return fmt.Errorf("%w: %s: log-scaled bounds must be positive", dynamo.ErrInvalidParameter, p.Name)
	}
	return nil
}

// bounds in search space.
func (p Parameter) bounds() (float64, float64) {
	if p.Log {
		return math.Log(p.Lower), math.Log(p.Upper)
	}
	return p.Lower, p.Upper
}

func (p Parameter) decode(x float64) float64 {
	if p.Log {
		return math.Exp(x)
	}
	return x
}

// Function is what optimizers minimise.
type Function interface {
	Dim() int
	Bounds() (lower, upper []float64)
	Evaluate(x []float64) (float64, error)
}

// Problem scores parameter vectors by running a model over a forcing table
// and comparing its first output with the observations after warm-up.
// Evaluate is safe for concurrent use.
type Problem struct {
	model     string
	space     []Parameter
	objective string
	warmup    int
	dt        float64
	data      *forcing.Data
	pool      *sim.ModelPool
}

func NewProblem(factory func() (sim.Model, error), data *forcing.Data, dt float64, space []Parameter, objective string, warmup int) (*Problem, error) {
	if len(space) == 0 {
		return nil, errors.New("no parameters to calibrate")
	}
	if dt <= 0 {
		return nil, fmt.Errorf("dt must be positive, got %f", dt)
	}
	if !data.HasObservations() {
		return nil, fmt.Errorf("%w: forcing has no observed discharge", dynamo.ErrInputMismatch)
	}
	if _, err := metrics.Score(objective, data.QObs, data.QObs, warmup); err != nil {
		return nil, fmt.Errorf("objective %s: %w", objective, err)
	}

	pool := sim.NewModelPool(factory)
	m, err := pool.Get()
	if err != nil {
		return nil, err
	}
	defer pool.Put(m)

	params := m.GetParams()
	seen := make(map[string]bool, len(space))
	for _, p := range space {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, ok := params[p.Name]; !ok {
			return nil, fmt.Errorf("%w: model %s has no parameter %q", dynamo.ErrInvalidParameter, m.ID(), p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: %s calibrated twice", dynamo.ErrInvalidParameter, p.Name)
		}
		seen[p.Name] = true
	}

	return &Problem{
		model:     m.ID(),
		space:     slices.Clone(space),
		objective: objective,
		warmup:    warmup,
		dt:        dt,
		data:      data,
		pool:      pool,
	}, nil
}

func (p *Problem) Model() string        { return p.model }
func (p *Problem) Objective() string    { return p.objective }
func (p *Problem) Space() []Parameter   { return slices.Clone(p.space) }
func (p *Problem) Dim() int             { return len(p.space) }
func (p *Problem) Data() *forcing.Data  { return p.data }
func (p *Problem) Pool() *sim.ModelPool { return p.pool }

func (p *Problem) Bounds() ([]float64, []float64) {
	lower := make([]float64, len(p.space))
	upper := make([]float64, len(p.space))
	for i, par := range p.space {
		lower[i], upper[i] = par.bounds()
	}
	return lower, upper
}

// Decode maps a search-space vector to named model parameters.
func (p *Problem) Decode(x []float64) map[string]float64 {
	out := make(map[string]float64, len(p.space))
	for i, par := range p.space {
		out[par.Name] = par.decode(x[i])
	}
	return out
}

// Evaluate runs one trial: set parameters, reset states, solve, score.
// A run that produces no usable score gets +Inf so the search moves on.
func (p *Problem) Evaluate(x []float64) (float64, error) {
	if len(x) != len(p.space) {
		return 0, fmt.Errorf("%w: %d values for %d parameters", dynamo.ErrInputMismatch, len(x), len(p.space))
	}
	q, err := p.Simulate(p.Decode(x))
	if err != nil {
		return 0, err
	}
	score, err := metrics.Score(p.objective, p.data.QObs, q, p.warmup)
	if err != nil || math.IsNaN(score) {
		return math.Inf(1), nil
	}
	return metrics.Loss(p.objective, score), nil
}

// Simulate returns the discharge for one parameter set, starting from the
// model's initial states.
func (p *Problem) Simulate(params map[string]float64) (dynamo.Series, error) {
	m, err := p.pool.Get()
	if err != nil {
		return nil, err
	}
	defer p.pool.Put(m)

	if err := m.SetParameters(params); err != nil {
		return nil, err
	}
	m.ResetStates()
	if err := m.SetTimestep(p.dt); err != nil {
		return nil, err
	}
	if err := m.SetInputs(p.data.Inputs()); err != nil {
		return nil, err
	}
	out, err := m.Outputs()
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
