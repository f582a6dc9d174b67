// Package metrics scores simulated against observed streamflow and
// accumulates per-step hydrograph statistics.
package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Objective scores a simulation against observations. Higher is better
// for the efficiencies; see Minimize for the error measures.
type Objective func(obs, sim []float64) (float64, error)

var objectives = map[string]Objective{
	"nse":    NSE,
	"lognse": LogNSE,
	"kge":    KGE,
	"rmse":   RMSE,
	"pbias":  PBIAS,
}

// minimized lists objectives where lower is better. PBIAS is scored on
// its absolute value.
var minimized = map[string]bool{
	"rmse":  true,
	"pbias": true,
}

func Lookup(name string) (Objective, error) {
	fn, ok := objectives[name]
	if !ok {
		return nil, fmt.Errorf("unknown objective: %s", name)
	}
	return fn, nil
}

func ObjectiveNames() []string {
	names := make([]string, 0, len(objectives))
	for name := range objectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Minimized reports whether lower values of the objective are better.
func Minimized(name string) bool { return minimized[name] }

// Loss turns an objective value into a quantity to minimise: efficiencies
// are negated, errors kept (PBIAS by magnitude).
func Loss(name string, value float64) float64 {
	if !minimized[name] {
		return -value
	}
	return math.Abs(value)
}

// Score evaluates the named objective on the steps after warmup.
func Score(name string, obs, sim dynamo.Series, warmup int) (float64, error) {
	fn, err := Lookup(name)
	if err != nil {
		return 0, err
	}
	o, s, err := Pairs(obs, sim, warmup)
	if err != nil {
		return 0, err
	}
	return fn(o, s)
}

// Pairs drops the warm-up steps and every step with a missing (NaN)
// observation.
func Pairs(obs, sim dynamo.Series, warmup int) ([]float64, []float64, error) {
	if len(obs) != len(sim) {
		return nil, nil, fmt.Errorf("%w: %d observations, %d simulated", dynamo.ErrInputMismatch, len(obs), len(sim))
	}
	if warmup < 0 || warmup >= len(obs) {
		return nil, nil, fmt.Errorf("%w: warm-up %d leaves no steps out of %d", dynamo.ErrInputMismatch, warmup, len(obs))
	}
	o := make([]float64, 0, len(obs)-warmup)
	s := make([]float64, 0, len(obs)-warmup)
	for i := warmup; i < len(obs); i++ {
		if math.IsNaN(obs[i]) {
			continue
		}
		o = append(o, obs[i])
		s = append(s, sim[i])
	}
	if len(o) == 0 {
		return nil, nil, fmt.Errorf("%w: no observed steps after warm-up", dynamo.ErrInputMismatch)
	}
	return o, s, nil
}

func sumSquares(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// NSE is the Nash-Sutcliffe efficiency: 1 - SSE / variance of obs.
func NSE(obs, sim []float64) (float64, error) {
	mean := stat.Mean(obs, nil)
	denom := 0.0
	for _, o := range obs {
		denom += (o - mean) * (o - mean)
	}
	if denom == 0 {
		return 0, fmt.Errorf("%w: observations have zero variance", dynamo.ErrInputMismatch)
	}
	return 1 - sumSquares(obs, sim)/denom, nil
}

// LogNSE is NSE on log flows, offset by 1% of the mean observed flow so
// zero flows stay finite.
func LogNSE(obs, sim []float64) (float64, error) {
	eps := 0.01 * stat.Mean(obs, nil)
	if eps <= 0 {
		eps = 1e-6
	}
	lo := make([]float64, len(obs))
	ls := make([]float64, len(sim))
	for i := range obs {
		lo[i] = math.Log(obs[i] + eps)
		ls[i] = math.Log(math.Max(sim[i], 0) + eps)
	}
	return NSE(lo, ls)
}

// KGE is the Kling-Gupta efficiency from correlation, variability ratio
// and bias ratio.
func KGE(obs, sim []float64) (float64, error) {
	if len(obs) < 2 {
		return 0, fmt.Errorf("%w: KGE needs at least two steps", dynamo.ErrInputMismatch)
	}
	mo, so := stat.MeanStdDev(obs, nil)
	ms, ss := stat.MeanStdDev(sim, nil)
	if so == 0 || mo == 0 {
		return 0, fmt.Errorf("%w: observations have zero mean or variance", dynamo.ErrInputMismatch)
	}
	r := 0.0
	if ss > 0 {
		r = stat.Correlation(obs, sim, nil)
	}
	alpha := ss / so
	beta := ms / mo
	return 1 - math.Sqrt((r-1)*(r-1)+(alpha-1)*(alpha-1)+(beta-1)*(beta-1)), nil
}

func RMSE(obs, sim []float64) (float64, error) {
	return floats.Distance(obs, sim, 2) / math.Sqrt(float64(len(obs))), nil
}

// PBIAS is the percent bias of total simulated volume; positive values
// mean overestimation.
func PBIAS(obs, sim []float64) (float64, error) {
	total := floats.Sum(obs)
	if total == 0 {
		return 0, fmt.Errorf("%w: observed volume is zero", dynamo.ErrInputMismatch)
	}
	return 100 * (floats.Sum(sim) - total) / total, nil
}
