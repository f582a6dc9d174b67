// Package rootfind implements bracketing root finders for the implicit
// time-stepping schemes.
package rootfind

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Pegasus is the Pegasus variant of regula falsi. When the new point keeps
// the sign of the previous one, the function value of the retained endpoint
// is scaled by fb/(fb+fc) so the stale endpoint loses influence.
type Pegasus struct {
	tolF    float64
	tolX    float64
	maxIter int
}

func NewPegasus(cfg dynamo.SolverConfig) *Pegasus {
	return &Pegasus{
		tolF:    cfg.Tolerance,
		tolX:    cfg.XTolerance,
		maxIter: cfg.MaxIterations,
	}
}

// bracket is the iteration state of one problem.
type bracket struct {
	a, b   float64
	fa, fb float64
	iter   int
	done   bool
	conv   bool
}

func (p *Pegasus) init(fa, fb, a, b float64) (bracket, error) {
	br := bracket{a: a, b: b, fa: fa, fb: fb}
	switch {
	case math.IsNaN(fa) || math.IsNaN(fb):
		return br, fmt.Errorf("%w: residual is NaN on [%g, %g]", dynamo.ErrNoBracket, a, b)
	case fa == 0:
		br.b, br.fb = a, fa
		br.done, br.conv = true, true
	case fb == 0:
		br.done, br.conv = true, true
	case math.Abs(b-a) <= p.xTolerance(a, b):
		// A collapsed interval converges only on the residual.
		if math.Abs(fa) < math.Abs(fb) {
			br.b, br.fb = a, fa
		}
		br.done, br.conv = true, math.Abs(br.fb) < p.tolF
	case fa*fb > 0:
		return br, fmt.Errorf("%w: f(%g)=%g, f(%g)=%g", dynamo.ErrNoBracket, a, fa, b, fb)
	}
	return br, nil
}

// xTolerance is the bracket width accepted as converged. Below unit
// magnitude it shrinks with the bracket, so roots near zero are located
// relative to their size.
func (p *Pegasus) xTolerance(a, b float64) float64 {
	return p.tolX * math.Min(1, math.Max(math.Abs(a), math.Abs(b)))
}

// next returns the false-position point of the bracket.
func (br *bracket) next() float64 {
	return br.b - br.fb*(br.b-br.a)/(br.fb-br.fa)
}

func (p *Pegasus) update(br *bracket, x, fx float64) {
	br.iter++
	if fx == 0 {
		br.b, br.fb = x, fx
		br.done, br.conv = true, true
		return
	}
	if fx*br.fb < 0 {
		br.a, br.fa = br.b, br.fb
	} else {
		br.fa = br.fa * br.fb / (br.fb + fx)
	}
	br.b, br.fb = x, fx

	if math.Abs(br.b-br.a) < p.xTolerance(br.a, br.b) || math.Abs(br.fb) < p.tolF {
		br.done, br.conv = true, true
		return
	}
	if br.iter >= p.maxIter {
		br.done = true
	}
}

func (br *bracket) result() dynamo.RootResult {
	return dynamo.RootResult{
		Root:       br.b,
		Residual:   br.fb,
		Iterations: br.iter,
		Converged:  br.conv,
	}
}

// Solve finds a root of f in [lower, upper]. Exhausting the iteration
// budget is not an error: the best estimate is returned with
// Converged=false.
func (p *Pegasus) Solve(f func(x float64) float64, lower, upper float64) (dynamo.RootResult, error) {
	br, err := p.init(f(lower), f(upper), lower, upper)
	if err != nil {
		return dynamo.RootResult{Root: upper}, err
	}
	for !br.done {
		x := br.next()
		p.update(&br, x, f(x))
	}
	return br.result(), nil
}

// SolveBatch solves len(lower) independent problems. Every iteration
// advances all unfinished brackets once.
func (p *Pegasus) SolveBatch(f func(j int, x float64) float64, lower, upper []float64) ([]dynamo.RootResult, error) {
	if len(lower) != len(upper) {
		return nil, fmt.Errorf("%w: %d lower bounds, %d upper bounds", dynamo.ErrInputMismatch, len(lower), len(upper))
	}

	brs := make([]bracket, len(lower))
	var errs []error
	active := 0
	for j := range brs {
		br, err := p.init(f(j, lower[j]), f(j, upper[j]), lower[j], upper[j])
		if err != nil {
			errs = append(errs, fmt.Errorf("problem %d: %w", j, err))
			br.done = true
		}
		brs[j] = br
		if !br.done {
			active++
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for active > 0 {
		for j := range brs {
			br := &brs[j]
			if br.done {
				continue
			}
			x := br.next()
			p.update(br, x, f(j, x))
			if br.done {
				active--
			}
		}
	}

	results := make([]dynamo.RootResult, len(brs))
	for j := range brs {
		results[j] = brs[j].result()
	}
	return results, nil
}
