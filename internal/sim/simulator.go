package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/go-logr/logr"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/forcing"
	"github.com/san-kum/hydrosim/internal/logging"
)

type diagnosable interface {
	Diagnostics() map[string]dynamo.Diagnostics
}

type Simulator struct {
	model     Model
	metrics   []Metric
	observers []Observer
	log       logr.Logger
}

func New(model Model) *Simulator {
	return &Simulator{
		model:     model,
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
		log:       logr.Discard(),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) SetLogger(log logr.Logger) {
	s.log = log
}

func (s *Simulator) Model() Model {
	return s.model
}

func (s *Simulator) Run(ctx context.Context, data *forcing.Data, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	window, err := data.Slice(cfg.Start, cfg.End)
	if err != nil {
		return nil, err
	}
	n := window.Len()

	if cfg.ResetStates {
		s.model.ResetStates()
	}
	if err := s.model.SetTimestep(cfg.Dt); err != nil {
		return nil, err
	}

	result := &Result{
		Model:       s.model.ID(),
		Dates:       window.Dates,
		P:           window.P,
		PET:         window.PET,
		QObs:        window.QObs,
		Q:           make(dynamo.Series, 0, n),
		StatesStart: s.model.States(),
		Params:      s.model.GetParams(),
		Metrics:     make(map[string]float64),
		Diagnostics: make(map[string]dynamo.Diagnostics),
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	et, hasET := s.model.(dynamo.Evapotranspirer)
	if hasET {
		result.AET = make(dynamo.Series, 0, n)
	}

	chunk := cfg.Chunk
	if chunk <= 0 || chunk > n {
		chunk = n
	}

	for start := 0; start < n; start += chunk {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		end := min(start+chunk, n)
		if err := s.model.SetInputs([]dynamo.Series{window.P[start:end], window.PET[start:end]}); err != nil {
			return nil, err
		}
		out, err := s.model.Outputs()
		if err != nil {
			return nil, fmt.Errorf("%s: steps [%d, %d): %w", s.model.ID(), start, end, err)
		}
		q := out[0]
		if cfg.ValidateState && !q.IsValid() {
			return result, SimError{Step: start, Message: "invalid discharge (NaN/Inf)"}
		}

		var aet dynamo.Series
		if hasET {
			if aet, err = et.AET(); err != nil {
				return nil, err
			}
			result.AET = append(result.AET, aet...)
		}
		result.Q = append(result.Q, q...)

		if d, ok := s.model.(diagnosable); ok {
			for id, diag := range d.Diagnostics() {
				merged := result.Diagnostics[id]
				merged.Merge(diag, start)
				result.Diagnostics[id] = merged
			}
		}

		for i := range q {
			step := stepOf(window, start+i, q[i])
			if aet != nil {
				step.AET = aet[i]
			}
			for _, m := range s.metrics {
				m.Observe(step)
			}
			for _, o := range s.observers {
				o.OnStep(step)
			}
		}
		result.StepsTaken = end
		s.log.V(logging.TRACE).Info("chunk solved", "model", s.model.ID(), "start", start, "end", end)
	}

	result.StatesEnd = s.model.States()
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	if nc := result.NonConverged(); nc > 0 {
		s.log.V(logging.DEBUG).Info("run finished with non-converged steps", "model", s.model.ID(), "steps", nc)
	}
	return result, nil
}

func stepOf(d *forcing.Data, i int, q float64) Step {
	step := Step{Index: i, P: d.P[i], PET: d.PET[i], Q: q, QObs: math.NaN()}
	if d.Dates != nil {
		step.Date = d.Dates[i]
	}
	if d.QObs != nil {
		step.QObs = d.QObs[i]
	}
	return step
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Dt <= 0 || math.IsNaN(cfg.Dt) || math.IsInf(cfg.Dt, 0) {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Start < 0 {
		return fmt.Errorf("start must be non-negative, got %d", cfg.Start)
	}
	return nil
}
