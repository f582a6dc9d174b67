package optim

import (
	"context"
	"fmt"
	"math"
	"slices"
)

// GridSearch evaluates every point of a regular grid over the search box,
// Points per dimension including both bounds.
type GridSearch struct {
	Points int
}

func NewGridSearch(points int) *GridSearch {
	return &GridSearch{Points: points}
}

func (g *GridSearch) Name() string { return "grid" }

func (g *GridSearch) Minimize(ctx context.Context, f Function) ([]float64, float64, error) {
	if g.Points < 1 {
		return nil, 0, fmt.Errorf("grid needs at least one point per dimension, got %d", g.Points)
	}
	lower, upper := f.Bounds()
	ranges := make([][]float64, f.Dim())
	for i := range ranges {
		ranges[i] = linspace(lower[i], upper[i], g.Points)
	}

	best := math.Inf(1)
	var bestX []float64
	err := g.searchRecursive(ctx, f, 0, make([]float64, f.Dim()), ranges, &best, &bestX)
	if err != nil {
		return nil, 0, err
	}
	if bestX == nil {
		bestX = center(lower, upper)
	}
	return bestX, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	f Function,
	depth int,
	current []float64,
	ranges [][]float64,
	best *float64,
	bestX *[]float64,
) error {
	if depth == len(ranges) {
		if err := ctx.Err(); err != nil {
			return err
		}
		val, err := f.Evaluate(current)
		if err != nil {
			return err
		}
		if val < *best {
			*best = val
			*bestX = slices.Clone(current)
		}
		return nil
	}

	for _, val := range ranges[depth] {
		current[depth] = val
		if err := g.searchRecursive(ctx, f, depth+1, current, ranges, best, bestX); err != nil {
			return err
		}
	}
	return nil
}

func linspace(lo, hi float64, n int) []float64 {
	if n == 1 {
		return []float64{0.5 * (lo + hi)}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
