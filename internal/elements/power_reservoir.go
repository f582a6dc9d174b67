package elements

import (
	"math"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

type PowerReservoirParams struct {
	K     float64 `yaml:"k" json:"k"`
	Alpha float64 `yaml:"alpha" json:"alpha"`
}

var powerReservoirParamNames = []string{"k", "alpha"}

func (p *PowerReservoirParams) field(name string) *float64 {
	switch name {
	case "k":
		return &p.K
	case "alpha":
		return &p.Alpha
	}
	return nil
}

func (p *PowerReservoirParams) Validate() error {
	if err := checkNonNegative("k", p.K); err != nil {
		return err
	}
	return checkPositive("alpha", p.Alpha)
}

func PowerReservoirParamsFromMap(values map[string]float64) (PowerReservoirParams, error) {
	return paramsFromMap[PowerReservoirParams](values, powerReservoirParamNames)
}

// PowerReservoir routes an upstream flux through a storage with outflow
// k*S^alpha. Used as the fast and slow reservoirs of the routing models.
type PowerReservoir struct {
	reservoir
	params PowerReservoirParams
}

func NewPowerReservoir(id string, params PowerReservoirParams, s0 float64, approx dynamo.Approximator, opts ...Option) (*PowerReservoir, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	base, err := newReservoir(id, s0, 1, approx, opts)
	if err != nil {
		return nil, err
	}
	r := &PowerReservoir{reservoir: base, params: params}
	r.outIdx = 1
	r.general = r.generalEvaluator
	r.compiled = r.compiledEvaluator
	return r, nil
}

func (r *PowerReservoir) SetInput(q dynamo.Series) error {
	return r.SetInputs([]dynamo.Series{q})
}

func (r *PowerReservoir) Params() PowerReservoirParams { return r.params }

func (r *PowerReservoir) SetParameters(values map[string]float64) error {
	next, err := updateParams[PowerReservoirParams](r.params, values, true)
	if err != nil {
		return err
	}
	r.params = next
	r.invalidate()
	return nil
}

func (r *PowerReservoir) Parameters(names ...string) (map[string]float64, error) {
	return selectParams(r.GetParams(), names)
}

func (r *PowerReservoir) GetParams() map[string]float64 {
	return paramMap[PowerReservoirParams](r.params, powerReservoirParamNames)
}

func (r *PowerReservoir) SetParam(name string, value float64) error {
	return r.SetParameters(map[string]float64{name: value})
}

func (r *PowerReservoir) Output() (dynamo.Series, error) { return r.output() }

func (r *PowerReservoir) Outputs() ([]dynamo.Series, error) {
	q, err := r.output()
	if err != nil {
		return nil, err
	}
	return []dynamo.Series{q}, nil
}

func (r *PowerReservoir) generalEvaluator() dynamo.FluxEvaluator {
	qin, par, dt := r.inputs[0], r.params, r.dt
	return dynamo.GeneralEvaluator{N: 2, Law: func(s, s0 float64, i int) ([]float64, float64, float64) {
		return []float64{qin[i], -par.K * math.Pow(s, par.Alpha)}, 0, s0 + qin[i]*dt
	}}
}

func (r *PowerReservoir) compiledEvaluator() dynamo.FluxEvaluator {
	return &powerReservoirKernel{
		qin:    r.inputs[0],
		k:      r.params.K,
		alpha:  r.params.Alpha,
		dt:     r.dt,
		linear: r.params.Alpha == 1,
	}
}

type powerReservoirKernel struct {
	qin          []float64
	k, alpha, dt float64
	linear       bool
}

func (k *powerReservoirKernel) NumFluxes() int { return 2 }

func (k *powerReservoirKernel) Eval(s, s0 float64, i int, out []float64) (float64, float64) {
	q := s
	if !k.linear {
		q = math.Pow(s, k.alpha)
	}
	out[0] = k.qin[i]
	out[1] = -k.k * q
	return 0, s0 + k.qin[i]*k.dt
}
