// Package network wires elements into a directed acyclic graph and
// evaluates it in topological order.
package network

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/logging"
)

// Port addresses one output flux of a node. An empty Node refers to the
// external input Index of the network.
type Port struct {
	Node  string
	Index int
}

// In returns the external input port i.
func In(i int) Port { return Port{Index: i} }

// Out returns output port i of node.
func Out(node string, i int) Port { return Port{Node: node, Index: i} }

func (p Port) External() bool { return p.Node == "" }

func (p Port) String() string {
	if p.External() {
		return fmt.Sprintf("in[%d]", p.Index)
	}
	return fmt.Sprintf("%s[%d]", p.Node, p.Index)
}

// Node is an element with the ports its inputs are read from, in order.
type Node struct {
	Element dynamo.Element
	Inputs  []Port
}

type Option func(*Network)

// WithWorkers evaluates up to n nodes of the same level concurrently.
func WithWorkers(n int) Option {
	return func(net *Network) { net.workers = n }
}

func WithLogger(log logr.Logger) Option {
	return func(net *Network) { net.log = log }
}

// Network is itself an element: its inputs are the external ports and its
// outputs the declared output ports. Parameter and state names are
// prefixed with the network id and the node id, e.g. m01_FR_k.
type Network struct {
	id      string
	nodes   []Node
	index   map[string]int
	levels  [][]int
	outputs []Port
	nInputs int

	inputs  []dynamo.Series
	dt      float64
	workers int
	log     logr.Logger
}

func New(id string, nodes []Node, outputs []Port, opts ...Option) (*Network, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: network id must not be empty", dynamo.ErrInvalidParameter)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: network %s has no nodes", dynamo.ErrInvalidParameter, id)
	}

	net := &Network{
		id:      id,
		nodes:   nodes,
		index:   make(map[string]int, len(nodes)),
		outputs: outputs,
		workers: 1,
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(net)
	}
	net.log = net.log.WithValues("network", id)

	for i, n := range nodes {
		if n.Element == nil {
			return nil, fmt.Errorf("%w: network %s: node %d has no element", dynamo.ErrInvalidParameter, id, i)
		}
		nid := n.Element.ID()
		if _, dup := net.index[nid]; dup {
			return nil, fmt.Errorf("%w: network %s: duplicate node %q", dynamo.ErrInvalidParameter, id, nid)
		}
		net.index[nid] = i
		for _, p := range n.Inputs {
			if p.Index < 0 {
				return nil, fmt.Errorf("%w: %s reads negative port %s", dynamo.ErrUnknownNode, nid, p)
			}
			if p.External() && p.Index+1 > net.nInputs {
				net.nInputs = p.Index + 1
			}
		}
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: network %s declares no outputs", dynamo.ErrInvalidParameter, id)
	}
	for _, p := range outputs {
		if p.External() {
			continue
		}
		if _, ok := net.index[p.Node]; !ok {
			return nil, fmt.Errorf("%w: network %s outputs %s", dynamo.ErrUnknownNode, id, p)
		}
	}

	lv, err := levels(nodes, net.index)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", id, err)
	}
	net.levels = lv
	return net, nil
}

func (net *Network) ID() string { return net.id }

func (net *Network) NumInputs() int { return net.nInputs }

// Levels returns node ids grouped by evaluation level.
func (net *Network) Levels() [][]string {
	out := make([][]string, len(net.levels))
	for l, level := range net.levels {
		for _, i := range level {
			out[l] = append(out[l], net.nodes[i].Element.ID())
		}
	}
	return out
}

// Element returns the node with the given id.
func (net *Network) Element(id string) (dynamo.Element, error) {
	i, ok := net.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q in network %s", dynamo.ErrUnknownNode, id, net.id)
	}
	return net.nodes[i].Element, nil
}

func (net *Network) SetInputs(in []dynamo.Series) error {
	if len(in) != net.nInputs {
		return fmt.Errorf("%w: network %s expects %d inputs, got %d", dynamo.ErrInputMismatch, net.id, net.nInputs, len(in))
	}
	for i, s := range in {
		if len(s) == 0 {
			return fmt.Errorf("%w: network %s: input %d is empty", dynamo.ErrInputMismatch, net.id, i)
		}
		if len(s) != len(in[0]) {
			return fmt.Errorf("%w: network %s: input %d has length %d, want %d", dynamo.ErrInputMismatch, net.id, i, len(s), len(in[0]))
		}
	}
	net.inputs = in
	return nil
}

// SetTimestep propagates dt to every node that needs it.
func (net *Network) SetTimestep(dt float64) error {
	for _, n := range net.nodes {
		if t, ok := n.Element.(dynamo.Timed); ok {
			if err := t.SetTimestep(dt); err != nil {
				return err
			}
		}
	}
	net.dt = dt
	return nil
}

func (net *Network) Timestep() float64 { return net.dt }

// Outputs evaluates every node once, level by level, and returns the
// declared output ports.
func (net *Network) Outputs() ([]dynamo.Series, error) {
	if net.inputs == nil && net.nInputs > 0 {
		return nil, fmt.Errorf("%w: network %s: inputs not set", dynamo.ErrInputMismatch, net.id)
	}

	results := make([][]dynamo.Series, len(net.nodes))
	for l, level := range net.levels {
		errs := make([]error, len(level))
		dynamo.ParallelFor(len(level), net.workers, func(start, end int) {
			for k := start; k < end; k++ {
				i := level[k]
				results[i], errs[k] = net.evalNode(i, results)
			}
		})
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
		net.log.V(logging.TRACE).Info("level evaluated", "level", l, "nodes", len(level))
	}

	out := make([]dynamo.Series, len(net.outputs))
	for k, p := range net.outputs {
		s, err := net.resolve(p, results)
		if err != nil {
			return nil, err
		}
		out[k] = s
	}
	return out, nil
}

func (net *Network) evalNode(i int, results [][]dynamo.Series) ([]dynamo.Series, error) {
	n := net.nodes[i]
	in := make([]dynamo.Series, len(n.Inputs))
	for k, p := range n.Inputs {
		s, err := net.resolve(p, results)
		if err != nil {
			return nil, err
		}
		in[k] = s
	}
	if err := n.Element.SetInputs(in); err != nil {
		return nil, err
	}
	return n.Element.Outputs()
}

func (net *Network) resolve(p Port, results [][]dynamo.Series) (dynamo.Series, error) {
	var src []dynamo.Series
	if p.External() {
		src = net.inputs
	} else {
		src = results[net.index[p.Node]]
	}
	if p.Index >= len(src) {
		return nil, fmt.Errorf("%w: network %s: port %s out of range (%d available)", dynamo.ErrUnknownNode, net.id, p, len(src))
	}
	return src[p.Index], nil
}

func (net *Network) prefix(node string) string {
	return net.id + "_" + node + "_"
}

// split resolves a prefixed name to the node and the bare name.
func (net *Network) split(name string) (int, string, error) {
	rest, ok := strings.CutPrefix(name, net.id+"_")
	if ok {
		best, bare := -1, ""
		for id, i := range net.index {
			if b, found := strings.CutPrefix(rest, id+"_"); found && b != "" {
				if best < 0 || len(id) > len(net.nodes[best].Element.ID()) {
					best, bare = i, b
				}
			}
		}
		if best >= 0 {
			return best, bare, nil
		}
	}
	return 0, "", fmt.Errorf("%w: %q does not name a node of network %s", dynamo.ErrInvalidParameter, name, net.id)
}

// GetParams returns the parameters of every configurable node.
func (net *Network) GetParams() map[string]float64 {
	out := map[string]float64{}
	for _, n := range net.nodes {
		c, ok := n.Element.(dynamo.Configurable)
		if !ok {
			continue
		}
		pre := net.prefix(n.Element.ID())
		for k, v := range c.GetParams() {
			out[pre+k] = v
		}
	}
	return out
}

func (net *Network) ParameterNames() []string { return sortedKeys(net.GetParams()) }

// Parameters returns the named parameters, or all of them.
func (net *Network) Parameters(names ...string) (map[string]float64, error) {
	all := net.GetParams()
	if len(names) == 0 {
		return all, nil
	}
	out := make(map[string]float64, len(names))
	for _, name := range names {
		v, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", dynamo.ErrInvalidParameter, name)
		}
		out[name] = v
	}
	return out, nil
}

func (net *Network) SetParam(name string, value float64) error {
	return net.SetParameters(map[string]float64{name: value})
}

type parameterSetter interface {
	SetParameters(values map[string]float64) error
}

// SetParameters routes prefixed names to their nodes. Every name is
// resolved before any node is updated, and nodes already updated are
// restored when a later node rejects its values.
func (net *Network) SetParameters(values map[string]float64) error {
	grouped := map[int]map[string]float64{}
	for name, v := range values {
		i, bare, err := net.split(name)
		if err != nil {
			return err
		}
		if _, ok := net.nodes[i].Element.(dynamo.Configurable); !ok {
			return fmt.Errorf("%w: node %s has no parameters", dynamo.ErrInvalidParameter, net.nodes[i].Element.ID())
		}
		if grouped[i] == nil {
			grouped[i] = map[string]float64{}
		}
		grouped[i][bare] = v
	}

	previous := map[int]map[string]float64{}
	var applied []int
	for _, i := range sortedNodes(grouped) {
		current := net.nodes[i].Element.(dynamo.Configurable).GetParams()
		previous[i] = map[string]float64{}
		for name := range grouped[i] {
			if v, ok := current[name]; ok {
				previous[i][name] = v
			}
		}
		if err := net.setNodeParameters(i, grouped[i]); err != nil {
			for _, j := range slices.Backward(applied) {
				_ = net.setNodeParameters(j, previous[j])
			}
			_ = net.setNodeParameters(i, previous[i])
			return err
		}
		applied = append(applied, i)
	}
	return nil
}

func (net *Network) setNodeParameters(i int, values map[string]float64) error {
	el := net.nodes[i].Element
	if ps, ok := el.(parameterSetter); ok {
		if err := ps.SetParameters(values); err != nil {
			return fmt.Errorf("%s: %w", el.ID(), err)
		}
		return nil
	}
	c := el.(dynamo.Configurable)
	for _, name := range sortedKeys(values) {
		if err := c.SetParam(name, values[name]); err != nil {
			return fmt.Errorf("%s: %w", el.ID(), err)
		}
	}
	return nil
}

func (net *Network) States() map[string]float64 {
	out := map[string]float64{}
	for _, n := range net.nodes {
		s, ok := n.Element.(dynamo.Stateful)
		if !ok {
			continue
		}
		pre := net.prefix(n.Element.ID())
		for k, v := range s.States() {
			out[pre+k] = v
		}
	}
	return out
}

func (net *Network) StateNames() []string { return sortedKeys(net.States()) }

func (net *Network) SetState(name string, value float64) error {
	i, bare, err := net.split(name)
	if err != nil {
		return err
	}
	s, ok := net.nodes[i].Element.(dynamo.Stateful)
	if !ok {
		return fmt.Errorf("%w: node %s has no states", dynamo.ErrInvalidParameter, net.nodes[i].Element.ID())
	}
	return s.SetState(bare, value)
}

func (net *Network) SetStates(states map[string]float64) error {
	for _, name := range sortedKeys(states) {
		if err := net.SetState(name, states[name]); err != nil {
			return err
		}
	}
	return nil
}

func (net *Network) ResetStates() {
	for _, n := range net.nodes {
		if s, ok := n.Element.(dynamo.Stateful); ok {
			s.ResetStates()
		}
	}
}

// AET sums the actual evapotranspiration of every node that reports it.
// Only valid after Outputs.
func (net *Network) AET() (dynamo.Series, error) {
	var total dynamo.Series
	for _, n := range net.nodes {
		et, ok := n.Element.(dynamo.Evapotranspirer)
		if !ok {
			continue
		}
		aet, err := et.AET()
		if err != nil {
			return nil, err
		}
		if total == nil {
			total = make(dynamo.Series, len(aet))
		}
		total = total.Add(aet)
	}
	if total == nil {
		return nil, fmt.Errorf("%w: network %s has no evapotranspiring node", dynamo.ErrUnknownNode, net.id)
	}
	return total, nil
}

// Diagnostics merges the root finder diagnostics of every reservoir,
// keyed by node id.
func (net *Network) Diagnostics() map[string]dynamo.Diagnostics {
	out := map[string]dynamo.Diagnostics{}
	for _, n := range net.nodes {
		if d, ok := n.Element.(dynamo.Diagnosable); ok {
			out[n.Element.ID()] = d.Diagnostics()
		}
	}
	return out
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedNodes(m map[int]map[string]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
