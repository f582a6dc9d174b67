package sim

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/hydrosim/internal/forcing"
)

// Member is one ensemble run: parameter and state overrides applied on
// top of the model defaults.
type Member struct {
	Params map[string]float64
	States map[string]float64
}

// Ensemble runs many parameterisations of one model structure over the
// same forcing, at most workers at a time.
type Ensemble struct {
	pool    *ModelPool
	workers int
	metrics func() []Metric
}

func NewEnsemble(pool *ModelPool, workers int, metrics func() []Metric) *Ensemble {
	if workers < 1 {
		workers = 1
	}
	return &Ensemble{pool: pool, workers: workers, metrics: metrics}
}

func (e *Ensemble) Run(ctx context.Context, data *forcing.Data, cfg Config, members []Member) ([]*Result, error) {
	results := make([]*Result, len(members))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, member := range members {
		g.Go(func() error {
			r, err := e.runMember(ctx, data, cfg, member)
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Ensemble) runMember(ctx context.Context, data *forcing.Data, cfg Config, member Member) (*Result, error) {
	m, err := e.pool.Get()
	if err != nil {
		return nil, err
	}
	defer e.pool.Put(m)

	m.ResetStates()
	if err := m.SetParameters(member.Params); err != nil {
		return nil, err
	}
	if err := m.SetStates(member.States); err != nil {
		return nil, err
	}

	s := New(m)
	if e.metrics != nil {
		for _, metric := range e.metrics() {
			s.AddMetric(metric)
		}
	}
	memberCfg := cfg
	memberCfg.ResetStates = false
	return s.Run(ctx, data, memberCfg)
}
