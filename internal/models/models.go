// Package models builds the catchment models m01 to m04 as element
// networks. All models take precipitation and potential evapotranspiration
// as inputs and return streamflow as their single output.
package models

import (
	"fmt"
	"sort"

	"github.com/go-logr/logr"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/elements"
	"github.com/san-kum/hydrosim/internal/integrators"
	"github.com/san-kum/hydrosim/internal/network"
	"github.com/san-kum/hydrosim/internal/rootfind"
)

const (
	ApproxImplicitEuler = "implicit_euler"
	ApproxExplicitEuler = "explicit_euler"
)

type Options struct {
	Solver       dynamo.SolverConfig
	Approximator string
	Workers      int
	Logger       logr.Logger
}

func DefaultOptions() Options {
	return Options{
		Solver:       dynamo.DefaultSolverConfig(),
		Approximator: ApproxImplicitEuler,
		Workers:      1,
		Logger:       logr.Discard(),
	}
}

// NewApproximator builds the named approximator from a solver config.
func NewApproximator(name string, cfg dynamo.SolverConfig, log logr.Logger) (dynamo.Approximator, error) {
	switch name {
	case ApproxImplicitEuler, "":
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", dynamo.ErrInvalidParameter, err)
		}
		return integrators.NewImplicitEuler(rootfind.NewPegasus(cfg),
			integrators.WithStrict(cfg.Strict),
			integrators.WithLogger(log)), nil
	case ApproxExplicitEuler:
		return integrators.NewExplicitEuler(), nil
	}
	return nil, fmt.Errorf("%w: unknown approximator %q", dynamo.ErrInvalidParameter, name)
}

func (o Options) elementOptions() []elements.Option {
	return []elements.Option{
		elements.WithArchitecture(o.Solver.Architecture),
		elements.WithLogger(o.Logger),
	}
}

func (o Options) network(id string, nodes []network.Node) (*network.Network, error) {
	return network.New(id, nodes, []network.Port{network.Out(nodes[len(nodes)-1].Element.ID(), 0)},
		network.WithWorkers(o.Workers), network.WithLogger(o.Logger))
}

type Builder func(opts Options) (*network.Network, error)

var builders = map[string]Builder{
	"m01": NewM01,
	"m02": NewM02,
	"m03": NewM03,
	"m04": NewM04,
}

// Names lists the available models.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the named model with its default parameters and states.
func Build(name string, opts Options) (*network.Network, error) {
	b, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return b(opts)
}

// Describe returns a one-line summary of the model structure.
func Describe(name string) string {
	switch name {
	case "m01":
		return "single power reservoir with evapotranspiration"
	case "m02":
		return "unsaturated reservoir feeding a fast power reservoir"
	case "m03":
		return "unsaturated reservoir, half-triangular lag, fast power reservoir"
	case "m04":
		return "unsaturated reservoir split between slow and fast power reservoirs"
	}
	return ""
}

// NewM01 is a single PowerReservoirET.
func NewM01(opts Options) (*network.Network, error) {
	approx, err := NewApproximator(opts.Approximator, opts.Solver, opts.Logger)
	if err != nil {
		return nil, err
	}
	fr, err := elements.NewPowerReservoirET("FR",
		elements.PowerReservoirETParams{K: 0.1, Alpha: 1.0, Ce: 1.0, M: 0.5},
		20.0, approx, opts.elementOptions()...)
	if err != nil {
		return nil, err
	}
	return opts.network("m01", []network.Node{
		{Element: fr, Inputs: []network.Port{network.In(0), network.In(1)}},
	})
}

func newUR(approx dynamo.Approximator, opts Options) (*elements.UnsaturatedReservoir, error) {
	return elements.NewUnsaturatedReservoir("UR",
		elements.UnsaturatedReservoirParams{Smax: 200.0, Ce: 1.0, M: 0.01, Beta: 0.02},
		100.0, approx, opts.elementOptions()...)
}

func newFR(approx dynamo.Approximator, opts Options) (*elements.PowerReservoir, error) {
	return elements.NewPowerReservoir("FR",
		elements.PowerReservoirParams{K: 0.1, Alpha: 1.0},
		2.0, approx, opts.elementOptions()...)
}

// NewM02 routes the effective rainfall of an unsaturated reservoir through
// a fast reservoir.
func NewM02(opts Options) (*network.Network, error) {
	approx, err := NewApproximator(opts.Approximator, opts.Solver, opts.Logger)
	if err != nil {
		return nil, err
	}
	ur, err := newUR(approx, opts)
	if err != nil {
		return nil, err
	}
	fr, err := newFR(approx, opts)
	if err != nil {
		return nil, err
	}
	return opts.network("m02", []network.Node{
		{Element: ur, Inputs: []network.Port{network.In(0), network.In(1)}},
		{Element: fr, Inputs: []network.Port{network.Out("UR", 0)}},
	})
}

// NewM03 is m02 with a half-triangular lag between the two reservoirs.
func NewM03(opts Options) (*network.Network, error) {
	approx, err := NewApproximator(opts.Approximator, opts.Solver, opts.Logger)
	if err != nil {
		return nil, err
	}
	ur, err := newUR(approx, opts)
	if err != nil {
		return nil, err
	}
	lag, err := elements.NewHalfTriangularLag("lag", 1.0)
	if err != nil {
		return nil, err
	}
	fr, err := newFR(approx, opts)
	if err != nil {
		return nil, err
	}
	return opts.network("m03", []network.Node{
		{Element: ur, Inputs: []network.Port{network.In(0), network.In(1)}},
		{Element: lag, Inputs: []network.Port{network.Out("UR", 0)}},
		{Element: fr, Inputs: []network.Port{network.Out("lag", 0)}},
	})
}

// NewM04 splits the effective rainfall between a slow and a fast reservoir
// and sums their outflows.
func NewM04(opts Options) (*network.Network, error) {
	approx, err := NewApproximator(opts.Approximator, opts.Solver, opts.Logger)
	if err != nil {
		return nil, err
	}
	ur, err := newUR(approx, opts)
	if err != nil {
		return nil, err
	}
	split, err := elements.NewSplitter("split", 0.3)
	if err != nil {
		return nil, err
	}
	sr, err := elements.NewPowerReservoir("SR",
		elements.PowerReservoirParams{K: 0.001, Alpha: 1.0},
		100.0, approx, opts.elementOptions()...)
	if err != nil {
		return nil, err
	}
	fr, err := newFR(approx, opts)
	if err != nil {
		return nil, err
	}
	junction, err := elements.NewJunction("junction", [][]int{{0, 1}})
	if err != nil {
		return nil, err
	}
	return opts.network("m04", []network.Node{
		{Element: ur, Inputs: []network.Port{network.In(0), network.In(1)}},
		{Element: split, Inputs: []network.Port{network.Out("UR", 0)}},
		{Element: sr, Inputs: []network.Port{network.Out("split", 0)}},
		{Element: fr, Inputs: []network.Port{network.Out("split", 1)}},
		{Element: junction, Inputs: []network.Port{network.Out("SR", 0), network.Out("FR", 0)}},
	})
}
