package elements

import (
	"math"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

type UnsaturatedReservoirParams struct {
	Smax float64 `yaml:"Smax" json:"Smax"`
	Ce   float64 `yaml:"Ce" json:"Ce"`
	M    float64 `yaml:"m" json:"m"`
	Beta float64 `yaml:"beta" json:"beta"`
}

var unsaturatedReservoirParamNames = []string{"Smax", "Ce", "m", "beta"}

func (p *UnsaturatedReservoirParams) field(name string) *float64 {
	switch name {
	case "Smax":
		return &p.Smax
	case "Ce":
		return &p.Ce
	case "m":
		return &p.M
	case "beta":
		return &p.Beta
	}
	return nil
}

func (p *UnsaturatedReservoirParams) Validate() error {
	if err := checkPositive("Smax", p.Smax); err != nil {
		return err
	}
	if err := checkNonNegative("Ce", p.Ce); err != nil {
		return err
	}
	if err := checkPositive("m", p.M); err != nil {
		return err
	}
	return checkNonNegative("beta", p.Beta)
}

func UnsaturatedReservoirParamsFromMap(values map[string]float64) (UnsaturatedReservoirParams, error) {
	return paramsFromMap[UnsaturatedReservoirParams](values, unsaturatedReservoirParamNames)
}

// UnsaturatedReservoir is the HBV soil moisture store. With r = S/Smax:
//
//	dS/dt = P - Ce*PET*r*(1+m)/(r+m) - P*r^beta
//
// The output is the effective rainfall P*r^beta.
type UnsaturatedReservoir struct {
	reservoir
	params UnsaturatedReservoirParams
}

func NewUnsaturatedReservoir(id string, params UnsaturatedReservoirParams, s0 float64, approx dynamo.Approximator, opts ...Option) (*UnsaturatedReservoir, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	base, err := newReservoir(id, s0, 2, approx, opts)
	if err != nil {
		return nil, err
	}
	r := &UnsaturatedReservoir{reservoir: base, params: params}
	r.outIdx, r.aetIdx = 2, 1
	r.general = r.generalEvaluator
	r.compiled = r.compiledEvaluator
	return r, nil
}

func (r *UnsaturatedReservoir) SetInput(p, pet dynamo.Series) error {
	return r.SetInputs([]dynamo.Series{p, pet})
}

func (r *UnsaturatedReservoir) Params() UnsaturatedReservoirParams { return r.params }

func (r *UnsaturatedReservoir) SetParameters(values map[string]float64) error {
	next, err := updateParams[UnsaturatedReservoirParams](r.params, values, true)
	if err != nil {
		return err
	}
	r.params = next
	r.invalidate()
	return nil
}

func (r *UnsaturatedReservoir) Parameters(names ...string) (map[string]float64, error) {
	return selectParams(r.GetParams(), names)
}

func (r *UnsaturatedReservoir) GetParams() map[string]float64 {
	return paramMap[UnsaturatedReservoirParams](r.params, unsaturatedReservoirParamNames)
}

func (r *UnsaturatedReservoir) SetParam(name string, value float64) error {
	return r.SetParameters(map[string]float64{name: value})
}

func (r *UnsaturatedReservoir) Output() (dynamo.Series, error) { return r.output() }

func (r *UnsaturatedReservoir) Outputs() ([]dynamo.Series, error) {
	q, err := r.output()
	if err != nil {
		return nil, err
	}
	return []dynamo.Series{q}, nil
}

func (r *UnsaturatedReservoir) AET() (dynamo.Series, error) { return r.aet() }

// The upper bound is Smax unless the store starts above it or rainfall
// can push it past Smax within the step.
func (r *UnsaturatedReservoir) generalEvaluator() dynamo.FluxEvaluator {
	p, pet, par, dt := r.inputs[0], r.inputs[1], r.params, r.dt
	return dynamo.GeneralEvaluator{N: 3, Law: func(s, s0 float64, i int) ([]float64, float64, float64) {
		rel := s / par.Smax
		return []float64{
			p[i],
			-par.Ce * pet[i] * (rel * (1 + par.M)) / (rel + par.M),
			-p[i] * math.Pow(rel, par.Beta),
		}, 0, math.Max(par.Smax, s0+p[i]*dt)
	}}
}

func (r *UnsaturatedReservoir) compiledEvaluator() dynamo.FluxEvaluator {
	return &unsaturatedReservoirKernel{
		p:    r.inputs[0],
		pet:  r.inputs[1],
		smax: r.params.Smax,
		ce:   r.params.Ce,
		m:    r.params.M,
		beta: r.params.Beta,
		dt:   r.dt,
	}
}

type unsaturatedReservoirKernel struct {
	p, pet                []float64
	smax, ce, m, beta, dt float64
}

func (k *unsaturatedReservoirKernel) NumFluxes() int { return 3 }

func (k *unsaturatedReservoirKernel) Eval(s, s0 float64, i int, out []float64) (float64, float64) {
	rel := s / k.smax
	out[0] = k.p[i]
	out[1] = -k.ce * k.pet[i] * (rel * (1 + k.m)) / (rel + k.m)
	out[2] = -k.p[i] * math.Pow(rel, k.beta)
	return 0, math.Max(k.smax, s0+k.p[i]*k.dt)
}
