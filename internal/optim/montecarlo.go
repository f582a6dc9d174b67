package optim

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// MonteCarlo draws Samples uniform points from the search box and keeps the
// best. Points depend only on Seed; Workers trials run at once.
type MonteCarlo struct {
	Samples int
	Seed    int64
	Workers int
}

func NewMonteCarlo(samples int, seed int64, workers int) *MonteCarlo {
	return &MonteCarlo{Samples: samples, Seed: seed, Workers: workers}
}

func (mc *MonteCarlo) Name() string { return "montecarlo" }

func (mc *MonteCarlo) Minimize(ctx context.Context, f Function) ([]float64, float64, error) {
	if mc.Samples < 1 {
		return nil, 0, fmt.Errorf("monte carlo needs at least one sample, got %d", mc.Samples)
	}
	points := mc.sample(f)
	losses := make([]float64, len(points))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(mc.Workers, 1))
	for i, x := range points {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			loss, err := f.Evaluate(x)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			losses[i] = loss
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	best := 0
	for i, l := range losses {
		if l < losses[best] {
			best = i
		}
	}
	if math.IsInf(losses[best], 1) {
		return nil, 0, fmt.Errorf("no sample produced a finite loss out of %d", len(points))
	}
	return points[best], losses[best], nil
}

func (mc *MonteCarlo) sample(f Function) [][]float64 {
	rng := rand.New(rand.NewSource(mc.Seed))
	lower, upper := f.Bounds()
	points := make([][]float64, mc.Samples)
	for i := range points {
		x := make([]float64, f.Dim())
		for j := range x {
			x[j] = lower[j] + rng.Float64()*(upper[j]-lower[j])
		}
		points[i] = x
	}
	return points
}
