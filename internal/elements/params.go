package elements

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// paramSet is implemented by the typed parameter structs of each element.
type paramSet[T any] interface {
	*T
	field(name string) *float64
	Validate() error
}

func paramsFromMap[T any, P paramSet[T]](values map[string]float64, names []string) (T, error) {
	var p T
	for _, name := range names {
		if _, ok := values[name]; !ok {
			return p, fmt.Errorf("%w: missing parameter %q", dynamo.ErrInvalidParameter, name)
		}
	}
	return updateParams[T, P](p, values, true)
}

// updateParams applies values to a copy of cur and validates the result.
// cur is returned unchanged on error.
func updateParams[T any, P paramSet[T]](cur T, values map[string]float64, validate bool) (T, error) {
	next := cur
	for name, v := range values {
		f := P(&next).field(name)
		if f == nil {
			return cur, fmt.Errorf("%w: unknown parameter %q", dynamo.ErrInvalidParameter, name)
		}
		*f = v
	}
	if validate {
		if err := P(&next).Validate(); err != nil {
			return cur, err
		}
	}
	return next, nil
}

func paramMap[T any, P paramSet[T]](cur T, names []string) map[string]float64 {
	out := make(map[string]float64, len(names))
	for _, name := range names {
		out[name] = *P(&cur).field(name)
	}
	return out
}

func selectParams(all map[string]float64, names []string) (map[string]float64, error) {
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

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func checkFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be finite, got %g", dynamo.ErrInvalidParameter, name, v)
	}
	return nil
}

func checkPositive(name string, v float64) error {
	if err := checkFinite(name, v); err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %g", dynamo.ErrInvalidParameter, name, v)
	}
	return nil
}

func checkNonNegative(name string, v float64) error {
	if err := checkFinite(name, v); err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("%w: %s must be non-negative, got %g", dynamo.ErrInvalidParameter, name, v)
	}
	return nil
}
