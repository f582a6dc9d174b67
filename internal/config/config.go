package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/optim"
)

const (
	DefaultModel        = "m01"
	DefaultDt           = 1.0
	DefaultApproximator = "implicit_euler"
	DefaultObjective    = "nse"
	DefaultOptimizer    = "montecarlo"
	DefaultRepetitions  = 500
	DefaultWarmup       = 100
)

type Config struct {
	Model       string             `yaml:"model"`
	Catchment   string             `yaml:"catchment,omitempty"`
	Dt          float64            `yaml:"dt"`
	Workers     int                `yaml:"workers"`
	Solver      SolverConfig       `yaml:"solver"`
	Forcing     ForcingConfig      `yaml:"forcing"`
	Parameters  map[string]float64 `yaml:"parameters,omitempty"`
	States      map[string]float64 `yaml:"states,omitempty"`
	Calibration CalibrationConfig  `yaml:"calibration"`
}

type SolverConfig struct {
	Approximator  string  `yaml:"approximator"`
	Architecture  string  `yaml:"architecture"`
	Tolerance     float64 `yaml:"tolerance"`
	XTolerance    float64 `yaml:"x_tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	Strict        bool    `yaml:"strict"`
}

// ForcingConfig selects the input table and the window [Start, End) of
// rows to simulate. End 0 means the last row.
type ForcingConfig struct {
	Path  string `yaml:"path"`
	Start int    `yaml:"start"`
	End   int    `yaml:"end"`
}

type CalibrationConfig struct {
	Optimizer   string            `yaml:"optimizer"`
	Objective   string            `yaml:"objective"`
	Warmup      int               `yaml:"warmup"`
	Repetitions int               `yaml:"repetitions"`
	Seed        int64             `yaml:"seed"`
	Workers     int               `yaml:"workers"`
	Parameters  []optim.Parameter `yaml:"parameters,omitempty"`
}

func DefaultConfig() *Config {
	sc := dynamo.DefaultSolverConfig()
	return &Config{
		Model: DefaultModel,
		Dt:    DefaultDt,
		Solver: SolverConfig{
			Approximator:  DefaultApproximator,
			Architecture:  string(sc.Architecture),
			Tolerance:     sc.Tolerance,
			XTolerance:    sc.XTolerance,
			MaxIterations: sc.MaxIterations,
		},
		Calibration: CalibrationConfig{
			Optimizer:   DefaultOptimizer,
			Objective:   DefaultObjective,
			Warmup:      DefaultWarmup,
			Repetitions: DefaultRepetitions,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SolverSettings converts the solver section for the approximators.
func (c *Config) SolverSettings() dynamo.SolverConfig {
	return dynamo.SolverConfig{
		Tolerance:     c.Solver.Tolerance,
		XTolerance:    c.Solver.XTolerance,
		MaxIterations: c.Solver.MaxIterations,
		Architecture:  dynamo.Architecture(c.Solver.Architecture),
		Strict:        c.Solver.Strict,
	}
}

// Validate checks value domains. Names of models, approximators and
// optimizers are resolved later by whoever builds them.
func (c *Config) Validate() error {
	var errs []error
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.Dt <= 0 {
		errs = append(errs, fmt.Errorf("dt must be positive, got %g", c.Dt))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be non-negative, got %d", c.Workers))
	}
	if err := c.SolverSettings().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("solver: %w", err))
	}
	if c.Forcing.Start < 0 {
		errs = append(errs, fmt.Errorf("forcing: start must be non-negative, got %d", c.Forcing.Start))
	}
	if c.Forcing.End != 0 && c.Forcing.End <= c.Forcing.Start {
		errs = append(errs, fmt.Errorf("forcing: end %d must follow start %d", c.Forcing.End, c.Forcing.Start))
	}

	cal := c.Calibration
	if cal.Warmup < 0 {
		errs = append(errs, fmt.Errorf("calibration: warmup must be non-negative, got %d", cal.Warmup))
	}
	if cal.Repetitions < 0 {
		errs = append(errs, fmt.Errorf("calibration: repetitions must be non-negative, got %d", cal.Repetitions))
	}
	if cal.Workers < 0 {
		errs = append(errs, fmt.Errorf("calibration: workers must be non-negative, got %d", cal.Workers))
	}
	for _, p := range cal.Parameters {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("calibration: %w", err))
		}
	}
	return errors.Join(errs...)
}
