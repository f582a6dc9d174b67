// Package automation runs scripted batches of simulations and
// calibrations described in YAML.
package automation

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/hydrosim/internal/config"
	"github.com/san-kum/hydrosim/internal/experiment"
	"github.com/san-kum/hydrosim/internal/forcing"
	"github.com/san-kum/hydrosim/internal/logging"
	"github.com/san-kum/hydrosim/internal/optim"
	"github.com/san-kum/hydrosim/internal/sim"
	"github.com/san-kum/hydrosim/internal/telemetry"
)

// Scenario is an ordered list of runs.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is one run. Its configuration starts from the catchment preset when
// preset is set, otherwise from the defaults, and the step's own fields
// override either.
type Step struct {
	Name      string `yaml:"name"`
	Preset    string `yaml:"preset,omitempty"`
	Calibrate bool   `yaml:"calibrate,omitempty"`

	Config config.Config `yaml:",inline"`
}

// UnmarshalYAML decodes a step on top of its base configuration.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var head struct {
		Model  string `yaml:"model"`
		Preset string `yaml:"preset"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}

	base := config.DefaultConfig()
	if head.Preset != "" {
		base = config.GetPreset(head.Model, head.Preset)
		if base == nil {
			return fmt.Errorf("line %d: unknown preset %s/%s", node.Line, head.Model, head.Preset)
		}
	}

	type plain Step
	p := plain{Config: *base}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = Step(p)
	if len(s.Config.Calibration.Parameters) == 0 {
		s.Config.Calibration.Parameters = config.CalibrationSpace(s.Config.Model)
	}
	return nil
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	for i, step := range scenario.Steps {
		if err := step.Config.Validate(); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Name, err)
		}
	}
	return &scenario, nil
}

// Outcome is the result of one step. Calibration is nil for plain runs;
// for calibrating steps Result is the run at the best parameters.
type Outcome struct {
	Step        string
	Config      *config.Config
	Result      *sim.Result
	Calibration *optim.Calibration
}

type Option func(*Runner)

func WithLogger(log logr.Logger) Option {
	return func(r *Runner) { r.log = log }
}

func WithRecorder(rec *telemetry.Recorder) Option {
	return func(r *Runner) { r.rec = rec }
}

// WithLoader replaces forcing.Load for reading step forcing.
func WithLoader(load func(path string) (*forcing.Data, error)) Option {
	return func(r *Runner) { r.load = load }
}

// WithStepHook is called after every finished step.
func WithStepHook(fn func(i int, o Outcome)) Option {
	return func(r *Runner) { r.hook = fn }
}

// Runner executes scenarios. Forcing tables are read once per path.
type Runner struct {
	log   logr.Logger
	rec   *telemetry.Recorder
	load  func(path string) (*forcing.Data, error)
	hook  func(i int, o Outcome)
	cache map[string]*forcing.Data
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{log: logr.Discard(), load: forcing.Load, cache: make(map[string]*forcing.Data)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) data(path string) (*forcing.Data, error) {
	if d, ok := r.cache[path]; ok {
		return d, nil
	}
	d, err := r.load(path)
	if err != nil {
		return nil, err
	}
	r.cache[path] = d
	return d, nil
}

// Run executes every step in order and stops at the first failure,
// returning the outcomes so far.
func (r *Runner) Run(ctx context.Context, scenario *Scenario) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", step.Config.Model, i+1)
		}
		log := r.log.WithValues("scenario", scenario.Name, "step", name)
		log.Info("running step", "index", i+1, "of", len(scenario.Steps), "model", step.Config.Model, "calibrate", step.Calibrate)

		o, err := r.runStep(ctx, log, name, step)
		if err != nil {
			return outcomes, fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}
		outcomes = append(outcomes, o)
		if r.hook != nil {
			r.hook(i, o)
		}
	}
	return outcomes, nil
}

func (r *Runner) runStep(ctx context.Context, log logr.Logger, name string, step Step) (Outcome, error) {
	cfg := step.Config
	data, err := r.data(cfg.Forcing.Path)
	if err != nil {
		return Outcome{}, err
	}

	exp := experiment.New(&cfg, experiment.WithLogger(log), experiment.WithRecorder(r.rec), experiment.WithData(data))
	if err := exp.Setup(); err != nil {
		return Outcome{}, err
	}

	o := Outcome{Step: name, Config: &cfg}
	if !step.Calibrate {
		o.Result, err = exp.Run(ctx)
		return o, err
	}

	if o.Calibration, err = exp.Calibrate(ctx); err != nil {
		return Outcome{}, err
	}
	log.V(logging.DEBUG).Info("calibrated", "best", o.Calibration.Best, "score", o.Calibration.Score)
	o.Result, err = exp.RunCalibrated(ctx, o.Calibration)
	return o, err
}
