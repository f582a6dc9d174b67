package elements

import (
	"fmt"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

const SplitParam = "split-par"

// Splitter sends a fraction split-par of its input to output 0 and the
// remainder to output 1.
type Splitter struct {
	id    string
	split float64
	input dynamo.Series
}

func NewSplitter(id string, split float64) (*Splitter, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: element id must not be empty", dynamo.ErrInvalidParameter)
	}
	s := &Splitter{id: id}
	if err := s.SetParam(SplitParam, split); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Splitter) ID() string { return s.id }

func (s *Splitter) SetInput(q dynamo.Series) error {
	return s.SetInputs([]dynamo.Series{q})
}

func (s *Splitter) SetInputs(in []dynamo.Series) error {
	if len(in) != 1 {
		return fmt.Errorf("%w: %s expects 1 input, got %d", dynamo.ErrInputMismatch, s.id, len(in))
	}
	if err := checkLengths(s.id, in); err != nil {
		return err
	}
	s.input = in[0]
	return nil
}

func (s *Splitter) GetParams() map[string]float64 {
	return map[string]float64{SplitParam: s.split}
}

func (s *Splitter) SetParam(name string, value float64) error {
	if name != SplitParam {
		return fmt.Errorf("%w: unknown parameter %q", dynamo.ErrInvalidParameter, name)
	}
	if err := checkFinite(name, value); err != nil {
		return err
	}
	if value < 0 || value > 1 {
		return fmt.Errorf("%w: %s must be in [0, 1], got %g", dynamo.ErrInvalidParameter, name, value)
	}
	s.split = value
	return nil
}

func (s *Splitter) SetParameters(values map[string]float64) error {
	for _, name := range sortedKeys(values) {
		if err := s.SetParam(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Splitter) Outputs() ([]dynamo.Series, error) {
	if s.input == nil {
		return nil, fmt.Errorf("%w: %s: inputs not set", dynamo.ErrInputMismatch, s.id)
	}
	first := make(dynamo.Series, len(s.input))
	second := make(dynamo.Series, len(s.input))
	for i, q := range s.input {
		first[i] = q * s.split
		second[i] = q * (1 - s.split)
	}
	return []dynamo.Series{first, second}, nil
}
