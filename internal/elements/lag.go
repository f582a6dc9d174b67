package elements

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

const (
	LagTimeParam = "lag-time"
	lagStatePre  = "lag_"
)

// HalfTriangularLag delays its input with a unit hydrograph whose
// cumulative area grows as (t/lag)^2 up to the lag time. The routing
// buffer carries over between runs.
type HalfTriangularLag struct {
	id      string
	lagTime float64
	weights []float64
	state   []float64
	input   dynamo.Series
}

func NewHalfTriangularLag(id string, lagTime float64) (*HalfTriangularLag, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: element id must not be empty", dynamo.ErrInvalidParameter)
	}
	l := &HalfTriangularLag{id: id}
	if err := l.SetParam(LagTimeParam, lagTime); err != nil {
		return nil, err
	}
	return l, nil
}

// lagArea is the cumulative unit hydrograph area at time t.
func lagArea(t, lag float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t < lag:
		return (t / lag) * (t / lag)
	default:
		return 1
	}
}

func lagWeights(lag float64) []float64 {
	n := int(math.Ceil(lag))
	w := make([]float64, n)
	for i := range w {
		w[i] = lagArea(float64(i+1), lag) - lagArea(float64(i), lag)
	}
	return w
}

func (l *HalfTriangularLag) ID() string { return l.id }

func (l *HalfTriangularLag) Weights() []float64 {
	return append([]float64(nil), l.weights...)
}

func (l *HalfTriangularLag) SetInput(q dynamo.Series) error {
	return l.SetInputs([]dynamo.Series{q})
}

func (l *HalfTriangularLag) SetInputs(in []dynamo.Series) error {
	if len(in) != 1 {
		return fmt.Errorf("%w: %s expects 1 input, got %d", dynamo.ErrInputMismatch, l.id, len(in))
	}
	if err := checkLengths(l.id, in); err != nil {
		return err
	}
	l.input = in[0]
	return nil
}

func (l *HalfTriangularLag) GetParams() map[string]float64 {
	return map[string]float64{LagTimeParam: l.lagTime}
}

// SetParam changes the lag time. The buffer is resized to the new number
// of bins, keeping the leading bins.
func (l *HalfTriangularLag) SetParam(name string, value float64) error {
	if name != LagTimeParam {
		return fmt.Errorf("%w: unknown parameter %q", dynamo.ErrInvalidParameter, name)
	}
	if err := checkPositive(name, value); err != nil {
		return err
	}
	l.lagTime = value
	l.weights = lagWeights(value)
	state := make([]float64, len(l.weights))
	copy(state, l.state)
	l.state = state
	return nil
}

func (l *HalfTriangularLag) SetParameters(values map[string]float64) error {
	for _, name := range sortedKeys(values) {
		if err := l.SetParam(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// States returns the routing buffer as lag_0 .. lag_{n-1}.
func (l *HalfTriangularLag) States() map[string]float64 {
	out := make(map[string]float64, len(l.state))
	for i, v := range l.state {
		out[lagStatePre+strconv.Itoa(i)] = v
	}
	return out
}

func (l *HalfTriangularLag) SetState(name string, value float64) error {
	idx, err := strconv.Atoi(strings.TrimPrefix(name, lagStatePre))
	if !strings.HasPrefix(name, lagStatePre) || err != nil || idx < 0 || idx >= len(l.state) {
		return fmt.Errorf("%w: %s has no state %q", dynamo.ErrInvalidParameter, l.id, name)
	}
	if err := checkFinite(name, value); err != nil {
		return err
	}
	l.state[idx] = value
	return nil
}

func (l *HalfTriangularLag) ResetStates() {
	for i := range l.state {
		l.state[i] = 0
	}
}

func (l *HalfTriangularLag) Outputs() ([]dynamo.Series, error) {
	if l.input == nil {
		return nil, fmt.Errorf("%w: %s: inputs not set", dynamo.ErrInputMismatch, l.id)
	}
	out := make(dynamo.Series, len(l.input))
	last := len(l.state) - 1
	for t, q := range l.input {
		for i, w := range l.weights {
			l.state[i] += w * q
		}
		out[t] = l.state[0]
		copy(l.state, l.state[1:])
		l.state[last] = 0
	}
	return []dynamo.Series{out}, nil
}
