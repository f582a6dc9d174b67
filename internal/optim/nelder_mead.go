package optim

import (
	"context"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// NelderMead runs gonum's downhill simplex from the centre of the box.
// The box is enforced by searching an unbounded variable y and mapping
// x = lo + (hi-lo)*(sin(y)+1)/2.
type NelderMead struct {
	MaxEvaluations int
	Start          []float64
}

func NewNelderMead(maxEvaluations int) *NelderMead {
	return &NelderMead{MaxEvaluations: maxEvaluations}
}

func (nm *NelderMead) Name() string { return "neldermead" }

func (nm *NelderMead) Minimize(ctx context.Context, f Function) ([]float64, float64, error) {
	lower, upper := f.Bounds()
	toBox := func(y []float64) []float64 {
		x := make([]float64, len(y))
		for i := range y {
			x[i] = lower[i] + (upper[i]-lower[i])*(math.Sin(y[i])+1)/2
		}
		return x
	}

	start := make([]float64, f.Dim())
	if nm.Start != nil {
		for i, x := range nm.Start {
			w := upper[i] - lower[i]
			start[i] = math.Asin(math.Max(-1, math.Min(1, 2*(x-lower[i])/w-1)))
		}
	}

	// gonum evaluates Func from one goroutine at a time.
	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}
	problem := optimize.Problem{
		Func: func(y []float64) float64 {
			if firstErr != nil {
				return math.Inf(1)
			}
			if err := ctx.Err(); err != nil {
				fail(err)
				return math.Inf(1)
			}
			loss, err := f.Evaluate(toBox(y))
			if err != nil {
				fail(err)
				return math.Inf(1)
			}
			return loss
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: nm.MaxEvaluations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Iterations: 50,
		},
	}
	result, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{SimplexSize: 0.5})
	if firstErr != nil {
		return nil, 0, firstErr
	}
	if result == nil {
		return nil, 0, err
	}
	if err != nil && math.IsInf(result.F, 1) {
		return nil, 0, err
	}
	return toBox(result.X), result.F, nil
}
