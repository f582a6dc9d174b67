package analysis

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/forcing"
	"github.com/san-kum/hydrosim/internal/sim"
)

// initialFill is the fraction of Smax an unsaturated reservoir starts a
// sweep run with.
const initialFill = 0.2

// SweepPoint is the model response for one parameter value.
type SweepPoint struct {
	Value     float64
	Q         dynamo.Series
	AET       dynamo.Series
	StatesEnd map[string]float64
}

// Sweep varies one parameter over Values, every run starting from the
// initial states with Defaults applied first.
type Sweep struct {
	Param    string
	Values   []float64
	Defaults map[string]float64
	Dt       float64
	Workers  int
}

// Range returns steps evenly spaced values from lo to hi inclusive.
func Range(lo, hi float64, steps int) []float64 {
	if steps <= 1 {
		return []float64{lo}
	}
	step := (hi - lo) / float64(steps-1)
	out := make([]float64, steps)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// storageLinks finds the unsaturated reservoir storage and its capacity
// parameter, if the model has them.
func storageLinks(m sim.Model) (state, smax string) {
	states := sortedKeys(m.States())
	for _, s := range states {
		if strings.Contains(s, "UR") {
			state = s
			break
		}
	}
	for _, p := range sortedKeys(m.GetParams()) {
		if strings.Contains(p, "Smax") {
			smax = p
			break
		}
	}
	if state == "" || smax == "" {
		return "", ""
	}
	return state, smax
}

func (s Sweep) validate(m sim.Model) error {
	if len(s.Values) == 0 {
		return fmt.Errorf("sweep of %s has no values", s.Param)
	}
	if s.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", s.Dt)
	}
	if _, ok := m.GetParams()[s.Param]; !ok {
		return fmt.Errorf("%w: model %s has no parameter %q", dynamo.ErrInvalidParameter, m.ID(), s.Param)
	}
	return nil
}

// Run sweeps on a single model and restores its parameters afterwards.
func (s Sweep) Run(ctx context.Context, m sim.Model, data *forcing.Data) ([]SweepPoint, error) {
	if err := s.validate(m); err != nil {
		return nil, err
	}
	original := m.GetParams()
	defer m.SetParameters(original)
	if err := m.SetParameters(s.Defaults); err != nil {
		return nil, err
	}
	state, smax := storageLinks(m)

	simulator := sim.New(m)
	points := make([]SweepPoint, 0, len(s.Values))
	for _, v := range s.Values {
		m.ResetStates()
		if err := m.SetParameters(map[string]float64{s.Param: v}); err != nil {
			return nil, err
		}
		if smax != "" {
			if err := m.SetStates(map[string]float64{state: initialFill * m.GetParams()[smax]}); err != nil {
				return nil, err
			}
		}
		r, err := simulator.Run(ctx, data, sim.Config{Dt: s.Dt})
		if err != nil {
			return nil, fmt.Errorf("%s=%g: %w", s.Param, v, err)
		}
		points = append(points, pointOf(v, r))
	}
	m.ResetStates()
	return points, nil
}

// RunEnsemble sweeps on pooled models, Workers runs at a time. Points come
// back in the order of Values.
func (s Sweep) RunEnsemble(ctx context.Context, pool *sim.ModelPool, data *forcing.Data) ([]SweepPoint, error) {
	m, err := pool.Get()
	if err != nil {
		return nil, err
	}
	err = s.validate(m)
	state, smax := storageLinks(m)
	defaults := m.GetParams()
	pool.Put(m)
	if err != nil {
		return nil, err
	}
	maps.Copy(defaults, s.Defaults)

	members := make([]sim.Member, len(s.Values))
	for i, v := range s.Values {
		params := maps.Clone(s.Defaults)
		if params == nil {
			params = map[string]float64{}
		}
		params[s.Param] = v
		members[i].Params = params
		if smax != "" {
			capacity := defaults[smax]
			if s.Param == smax {
				capacity = v
			}
			members[i].States = map[string]float64{state: initialFill * capacity}
		}
	}

	results, err := sim.NewEnsemble(pool, s.Workers, nil).Run(ctx, data, sim.Config{Dt: s.Dt}, members)
	if err != nil {
		return nil, err
	}
	points := make([]SweepPoint, len(results))
	for i, r := range results {
		points[i] = pointOf(s.Values[i], r)
	}
	return points, nil
}

func pointOf(v float64, r *sim.Result) SweepPoint {
	return SweepPoint{Value: v, Q: r.Q, AET: r.AET, StatesEnd: r.StatesEnd}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
