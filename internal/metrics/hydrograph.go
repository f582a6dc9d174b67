package metrics

import (
	"math"

	"github.com/san-kum/hydrosim/internal/sim"
)

// PeakFlow is the largest simulated discharge.
type PeakFlow struct {
	peak float64
}

func NewPeakFlow() *PeakFlow { return &PeakFlow{} }

func (p *PeakFlow) Name() string { return "peak_flow" }

func (p *PeakFlow) Observe(s sim.Step) {
	p.peak = math.Max(p.peak, s.Q)
}

func (p *PeakFlow) Value() float64 { return p.peak }

func (p *PeakFlow) Reset() { p.peak = 0 }

// RunoffRatio is total discharge over total precipitation.
type RunoffRatio struct {
	q, p float64
}

func NewRunoffRatio() *RunoffRatio { return &RunoffRatio{} }

func (r *RunoffRatio) Name() string { return "runoff_ratio" }

func (r *RunoffRatio) Observe(s sim.Step) {
	r.q += s.Q
	r.p += s.P
}

func (r *RunoffRatio) Value() float64 {
	if r.p == 0 {
		return 0
	}
	return r.q / r.p
}

func (r *RunoffRatio) Reset() { r.q, r.p = 0, 0 }

// EvaporativeIndex is total actual over total potential evapotranspiration.
type EvaporativeIndex struct {
	aet, pet float64
}

func NewEvaporativeIndex() *EvaporativeIndex { return &EvaporativeIndex{} }

func (e *EvaporativeIndex) Name() string { return "evaporative_index" }

func (e *EvaporativeIndex) Observe(s sim.Step) {
	e.aet += s.AET
	e.pet += s.PET
}

func (e *EvaporativeIndex) Value() float64 {
	if e.pet == 0 {
		return 0
	}
	return e.aet / e.pet
}

func (e *EvaporativeIndex) Reset() { e.aet, e.pet = 0, 0 }

// Skill collects observed/simulated pairs after warm-up and scores them
// with an objective when read. Value is NaN when the objective is
// undefined for the collected steps.
type Skill struct {
	name   string
	fn     Objective
	warmup int
	obs    []float64
	sim    []float64
}

func NewSkill(name string, warmup int) (*Skill, error) {
	fn, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return &Skill{name: name, fn: fn, warmup: warmup}, nil
}

func (k *Skill) Name() string { return k.name }

func (k *Skill) Observe(s sim.Step) {
	if s.Index < k.warmup || math.IsNaN(s.QObs) {
		return
	}
	k.obs = append(k.obs, s.QObs)
	k.sim = append(k.sim, s.Q)
}

func (k *Skill) Value() float64 {
	if len(k.obs) == 0 {
		return math.NaN()
	}
	v, err := k.fn(k.obs, k.sim)
	if err != nil {
		return math.NaN()
	}
	return v
}

func (k *Skill) Reset() {
	k.obs = k.obs[:0]
	k.sim = k.sim[:0]
}

// Default returns the metrics recorded for every run.
func Default(warmup int) []sim.Metric {
	ms := []sim.Metric{NewPeakFlow(), NewRunoffRatio(), NewEvaporativeIndex()}
	for _, name := range []string{"nse", "kge"} {
		k, _ := NewSkill(name, warmup)
		ms = append(ms, k)
	}
	return ms
}
