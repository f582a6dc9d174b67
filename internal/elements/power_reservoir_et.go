package elements

import (
	"math"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// PowerReservoirETParams are the parameters of a PowerReservoirET.
type PowerReservoirETParams struct {
	K     float64 `yaml:"k" json:"k"`
	Alpha float64 `yaml:"alpha" json:"alpha"`
	Ce    float64 `yaml:"Ce" json:"Ce"`
	M     float64 `yaml:"m" json:"m"`
}

var powerReservoirETParamNames = []string{"k", "alpha", "Ce", "m"}

func (p *PowerReservoirETParams) field(name string) *float64 {
	switch name {
	case "k":
		return &p.K
	case "alpha":
		return &p.Alpha
	case "Ce":
		return &p.Ce
	case "m":
		return &p.M
	}
	return nil
}

func (p *PowerReservoirETParams) Validate() error {
	if err := checkNonNegative("k", p.K); err != nil {
		return err
	}
	if err := checkPositive("alpha", p.Alpha); err != nil {
		return err
	}
	if err := checkNonNegative("Ce", p.Ce); err != nil {
		return err
	}
	return checkPositive("m", p.M)
}

// PowerReservoirETParamsFromMap reads k, alpha, Ce and m from values.
func PowerReservoirETParamsFromMap(values map[string]float64) (PowerReservoirETParams, error) {
	return paramsFromMap[PowerReservoirETParams](values, powerReservoirETParamNames)
}

// PowerReservoirET is a single storage with power-law outflow and
// evapotranspiration that saturates with storage:
//
//	dS/dt = P - k*S^alpha - Ce*PET*(1 - exp(-S/m))
//
// Inputs are precipitation and potential evapotranspiration. The single
// output is the discharge k*S^alpha.
type PowerReservoirET struct {
	reservoir
	params PowerReservoirETParams
}

func NewPowerReservoirET(id string, params PowerReservoirETParams, s0 float64, approx dynamo.Approximator, opts ...Option) (*PowerReservoirET, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	base, err := newReservoir(id, s0, 2, approx, opts)
	if err != nil {
		return nil, err
	}
	r := &PowerReservoirET{reservoir: base, params: params}
	r.outIdx, r.aetIdx = 1, 2
	r.general = r.generalEvaluator
	r.compiled = r.compiledEvaluator
	return r, nil
}

// SetInput sets precipitation and potential evapotranspiration.
func (r *PowerReservoirET) SetInput(p, pet dynamo.Series) error {
	return r.SetInputs([]dynamo.Series{p, pet})
}

func (r *PowerReservoirET) Params() PowerReservoirETParams { return r.params }

// SetParameters updates any subset of k, alpha, Ce and m. Unknown names or
// invalid values leave the element unchanged.
func (r *PowerReservoirET) SetParameters(values map[string]float64) error {
	next, err := updateParams[PowerReservoirETParams](r.params, values, true)
	if err != nil {
		return err
	}
	r.params = next
	r.invalidate()
	return nil
}

// Parameters returns the named parameters, or all of them when no names
// are given.
func (r *PowerReservoirET) Parameters(names ...string) (map[string]float64, error) {
	return selectParams(r.GetParams(), names)
}

func (r *PowerReservoirET) GetParams() map[string]float64 {
	return paramMap[PowerReservoirETParams](r.params, powerReservoirETParamNames)
}

func (r *PowerReservoirET) SetParam(name string, value float64) error {
	return r.SetParameters(map[string]float64{name: value})
}

// Output solves the whole input series and returns the discharge.
func (r *PowerReservoirET) Output() (dynamo.Series, error) { return r.output() }

func (r *PowerReservoirET) Outputs() ([]dynamo.Series, error) {
	q, err := r.output()
	if err != nil {
		return nil, err
	}
	return []dynamo.Series{q}, nil
}

// AET returns the actual evapotranspiration of the last Output call.
func (r *PowerReservoirET) AET() (dynamo.Series, error) { return r.aet() }

func (r *PowerReservoirET) generalEvaluator() dynamo.FluxEvaluator {
	p, pet, par, dt := r.inputs[0], r.inputs[1], r.params, r.dt
	return dynamo.GeneralEvaluator{N: 3, Law: func(s, s0 float64, i int) ([]float64, float64, float64) {
		return []float64{
			p[i],
			-par.K * math.Pow(s, par.Alpha),
			-par.Ce * pet[i] * (1 - math.Exp(-s/par.M)),
		}, 0, s0 + p[i]*dt
	}}
}

func (r *PowerReservoirET) compiledEvaluator() dynamo.FluxEvaluator {
	return &powerReservoirETKernel{
		p:      r.inputs[0],
		pet:    r.inputs[1],
		k:      r.params.K,
		alpha:  r.params.Alpha,
		ce:     r.params.Ce,
		m:      r.params.M,
		dt:     r.dt,
		linear: r.params.Alpha == 1,
	}
}

type powerReservoirETKernel struct {
	p, pet              []float64
	k, alpha, ce, m, dt float64
	linear              bool
}

func (k *powerReservoirETKernel) NumFluxes() int { return 3 }

func (k *powerReservoirETKernel) Eval(s, s0 float64, i int, out []float64) (float64, float64) {
	q := s
	if !k.linear {
		q = math.Pow(s, k.alpha)
	}
	out[0] = k.p[i]
	out[1] = -k.k * q
	out[2] = -k.ce * k.pet[i] * (1 - math.Exp(-s/k.m))
	return 0, s0 + k.p[i]*k.dt
}
