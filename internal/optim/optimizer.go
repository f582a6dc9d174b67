package optim

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/hydrosim/internal/logging"
	"github.com/san-kum/hydrosim/internal/metrics"
)

// ErrNoFiniteLoss is returned when no parameter set could be scored.
var ErrNoFiniteLoss = errors.New("optim: no trial produced a finite loss")

// Optimizer searches the box of f for its minimum and returns the best
// point found.
type Optimizer interface {
	Name() string
	Minimize(ctx context.Context, f Function) ([]float64, float64, error)
}

// Trial is one completed evaluation.
type Trial struct {
	Index  int                `json:"index"`
	Params map[string]float64 `json:"params"`
	Loss   float64            `json:"loss"`
}

// Calibration is the outcome of a search.
type Calibration struct {
	Model       string             `json:"model"`
	Optimizer   string             `json:"optimizer"`
	Objective   string             `json:"objective"`
	Best        map[string]float64 `json:"best"`
	Loss        float64            `json:"loss"`
	Score       float64            `json:"score"`
	Evaluations int                `json:"evaluations"`
	Duration    time.Duration      `json:"duration"`
	Trials      []Trial            `json:"trials,omitempty"`
}

type CalibrateOption func(*calibrateOptions)

type calibrateOptions struct {
	log      logr.Logger
	progress []func(Trial)
	keep     bool
}

func WithLogger(log logr.Logger) CalibrateOption {
	return func(o *calibrateOptions) { o.log = log }
}

// WithProgress registers a callback invoked after every trial. Callbacks may
// run concurrently with the search but never with each other.
func WithProgress(fn func(Trial)) CalibrateOption {
	return func(o *calibrateOptions) { o.progress = append(o.progress, fn) }
}

// WithTrials keeps every trial in the result.
func WithTrials(keep bool) CalibrateOption {
	return func(o *calibrateOptions) { o.keep = keep }
}

// recorder wraps a Problem and numbers, logs and forwards every trial.
type recorder struct {
	*Problem
	opts calibrateOptions

	mu     sync.Mutex
	count  int
	best   float64
	trials []Trial
}

func (r *recorder) Evaluate(x []float64) (float64, error) {
	loss, err := r.Problem.Evaluate(x)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t := Trial{Index: r.count, Params: r.Decode(x), Loss: loss}
	r.count++
	if loss < r.best {
		r.best = loss
		r.opts.log.V(logging.DEBUG).Info("calibration improved", "trial", t.Index, "loss", loss, "params", t.Params)
	}
	if r.opts.keep {
		r.trials = append(r.trials, t)
	}
	for _, fn := range r.opts.progress {
		fn(t)
	}
	return loss, nil
}

// Calibrate minimises the problem's loss with opt.
func Calibrate(ctx context.Context, p *Problem, opt Optimizer, opts ...CalibrateOption) (*Calibration, error) {
	o := calibrateOptions{log: logr.Discard()}
	for _, fn := range opts {
		fn(&o)
	}
	rec := &recorder{Problem: p, opts: o, best: math.Inf(1)}

	o.log.V(logging.INFO).Info("calibration started", "model", p.Model(), "optimizer", opt.Name(),
		"objective", p.Objective(), "parameters", p.Dim())
	start := time.Now()
	x, loss, err := opt.Minimize(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opt.Name(), err)
	}
	if math.IsInf(loss, 0) || math.IsNaN(loss) {
		return nil, fmt.Errorf("%s after %d evaluations: %w", opt.Name(), rec.count, ErrNoFiniteLoss)
	}

	c := &Calibration{
		Model:       p.Model(),
		Optimizer:   opt.Name(),
		Objective:   p.Objective(),
		Best:        p.Decode(x),
		Loss:        loss,
		Score:       scoreOf(p.Objective(), loss),
		Evaluations: rec.count,
		Duration:    time.Since(start),
		Trials:      rec.trials,
	}
	slices.SortFunc(c.Trials, func(a, b Trial) int { return a.Index - b.Index })
	o.log.V(logging.INFO).Info("calibration finished", "model", c.Model, "loss", c.Loss,
		"evaluations", c.Evaluations, "duration", c.Duration, "best", c.Best)
	return c, nil
}

// scoreOf undoes metrics.Loss for reporting. Error measures are reported
// as their (absolute) loss.
func scoreOf(objective string, loss float64) float64 {
	if metrics.Minimized(objective) {
		return loss
	}
	return -loss
}

// BestTrial returns the lowest-loss trial, the earliest on ties.
func (c *Calibration) BestTrial() (Trial, bool) {
	if len(c.Trials) == 0 {
		return Trial{}, false
	}
	best := c.Trials[0]
	for _, t := range c.Trials[1:] {
		if t.Loss < best.Loss {
			best = t
		}
	}
	best.Params = maps.Clone(best.Params)
	return best, true
}

func center(lower, upper []float64) []float64 {
	x := make([]float64, len(lower))
	for i := range x {
		x[i] = 0.5 * (lower[i] + upper[i])
	}
	return x
}
