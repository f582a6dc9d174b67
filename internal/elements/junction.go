package elements

import (
	"fmt"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// Junction sums its inputs into one or more outputs. Direction[o] lists the
// inputs added into output o; an entry of -1 contributes nothing.
type Junction struct {
	id        string
	direction [][]int
	inputs    []dynamo.Series
}

func NewJunction(id string, direction [][]int) (*Junction, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: element id must not be empty", dynamo.ErrInvalidParameter)
	}
	if len(direction) == 0 {
		return nil, fmt.Errorf("%w: %s: direction must route at least one output", dynamo.ErrInvalidParameter, id)
	}
	for o, row := range direction {
		for _, i := range row {
			if i < -1 {
				return nil, fmt.Errorf("%w: %s: output %d routes invalid input %d", dynamo.ErrInvalidParameter, id, o, i)
			}
		}
	}
	j := &Junction{id: id, direction: direction}
	if j.NumInputs() == 0 {
		return nil, fmt.Errorf("%w: %s: direction routes no inputs", dynamo.ErrInvalidParameter, id)
	}
	return j, nil
}

func (j *Junction) ID() string { return j.id }

// NumInputs is the number of inputs the routing map refers to.
func (j *Junction) NumInputs() int {
	n := 0
	for _, row := range j.direction {
		for _, i := range row {
			if i+1 > n {
				n = i + 1
			}
		}
	}
	return n
}

func (j *Junction) SetInputs(in []dynamo.Series) error {
	if want := j.NumInputs(); len(in) != want {
		return fmt.Errorf("%w: %s expects %d inputs, got %d", dynamo.ErrInputMismatch, j.id, want, len(in))
	}
	if err := checkLengths(j.id, in); err != nil {
		return err
	}
	j.inputs = in
	return nil
}

func (j *Junction) Outputs() ([]dynamo.Series, error) {
	if j.inputs == nil {
		return nil, fmt.Errorf("%w: %s: inputs not set", dynamo.ErrInputMismatch, j.id)
	}
	n := len(j.inputs[0])
	out := make([]dynamo.Series, len(j.direction))
	for o, row := range j.direction {
		sum := make(dynamo.Series, n)
		for _, i := range row {
			if i < 0 {
				continue
			}
			for t, v := range j.inputs[i] {
				sum[t] += v
			}
		}
		out[o] = sum
	}
	return out, nil
}
