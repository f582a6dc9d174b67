package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/hydrosim/internal/analysis"
	"github.com/san-kum/hydrosim/internal/automation"
	"github.com/san-kum/hydrosim/internal/config"
	"github.com/san-kum/hydrosim/internal/dynamo"
	"github.com/san-kum/hydrosim/internal/experiment"
	"github.com/san-kum/hydrosim/internal/export"
	"github.com/san-kum/hydrosim/internal/forcing"
	"github.com/san-kum/hydrosim/internal/models"
	"github.com/san-kum/hydrosim/internal/optim"
	"github.com/san-kum/hydrosim/internal/sim"
	"github.com/san-kum/hydrosim/internal/storage"
	"github.com/san-kum/hydrosim/internal/telemetry"
	"github.com/san-kum/hydrosim/internal/viz"
)

// buildConfig layers the configuration: defaults, then the catchment
// preset, then the config file, then explicitly set flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	model := ""
	if len(args) > 0 {
		model = args[0]
	}

	if catchment != "" {
		cfg = config.GetPreset(model, catchment)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", catchment, config.ListPresets(model))
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if model != "" {
		cfg.Model = model
	}

	flags := cmd.Flags()
	if flags.Changed("forcing") {
		cfg.Forcing.Path = forcingPath
	}
	if flags.Changed("start") {
		cfg.Forcing.Start = start
	}
	if flags.Changed("end") {
		cfg.Forcing.End = end
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("approximator") {
		cfg.Solver.Approximator = approximator
	}
	if flags.Changed("arch") {
		cfg.Solver.Architecture = architecture
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("seed") {
		cfg.Calibration.Seed = seed
	}
	if flags.Changed("optimizer") {
		cfg.Calibration.Optimizer = optimizerName
	}
	if flags.Changed("objective") {
		cfg.Calibration.Objective = objective
	}
	if flags.Changed("reps") {
		cfg.Calibration.Repetitions = repetitions
	}
	if flags.Changed("warmup") {
		cfg.Calibration.Warmup = warmup
	}
	if flags.Changed("cal-workers") {
		cfg.Calibration.Workers = calWorkers
	}

	var err error
	if cfg.Parameters, err = mergeValues(cfg.Parameters, params); err != nil {
		return nil, fmt.Errorf("--param: %w", err)
	}
	if cfg.States, err = mergeValues(cfg.States, states); err != nil {
		return nil, fmt.Errorf("--state: %w", err)
	}
	if len(cfg.Calibration.Parameters) == 0 {
		cfg.Calibration.Parameters = config.CalibrationSpace(cfg.Model)
	}
	return cfg, cfg.Validate()
}

func mergeValues(base map[string]float64, overrides map[string]string) (map[string]float64, error) {
	if len(overrides) == 0 {
		return base, nil
	}
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]float64, len(overrides))
	}
	for name, raw := range overrides {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// session is what every simulating command needs.
type session struct {
	cfg  *config.Config
	log  logr.Logger
	rec  *telemetry.Recorder
	data *forcing.Data
}

func newSession(cmd *cobra.Command, args []string) (*session, error) {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return nil, err
	}
	log, err := newLogger()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, log: log, rec: telemetry.New()}
	if s.data, err = s.loadData(cmd.Context()); err != nil {
		return nil, err
	}
	return s, nil
}

// loadData reads the forcing table, or generates synthetic forcing whose
// observations are the default model's discharge.
func (s *session) loadData(ctx context.Context) (*forcing.Data, error) {
	if synthetic <= 0 {
		if s.cfg.Forcing.Path == "" {
			return nil, fmt.Errorf("no forcing: pass --forcing, --catchment or --synthetic")
		}
		return forcing.Load(s.cfg.Forcing.Path)
	}

	data := forcing.Synthetic(synthetic, seed)
	truth := *s.cfg
	truth.Parameters, truth.States = nil, nil
	truth.Forcing = config.ForcingConfig{}
	exp := experiment.New(&truth, experiment.WithData(data), experiment.WithLogger(s.log))
	if err := exp.Setup(); err != nil {
		return nil, err
	}
	res, err := exp.Run(ctx)
	if err != nil {
		return nil, err
	}
	data.QObs = res.Q.Clone()
	return data, nil
}

func (s *session) experiment() (*experiment.Experiment, error) {
	exp := experiment.New(s.cfg,
		experiment.WithLogger(s.log),
		experiment.WithRecorder(s.rec),
		experiment.WithData(s.data),
	)
	return exp, exp.Setup()
}

func (s *session) writeMetrics() error {
	path := viper.GetString("metrics-out")
	if path == "" {
		return nil
	}
	return s.rec.WriteFile(path)
}

func openStore() (*storage.Store, error) {
	st := storage.New(viper.GetString("store"))
	return st, st.Init()
}

func (s *session) save(res *sim.Result, cal *optim.Calibration) (string, error) {
	st, err := openStore()
	if err != nil {
		return "", err
	}
	id, err := st.Save(storage.RunMetadata{
		Catchment:    s.cfg.Catchment,
		Dt:           s.cfg.Dt,
		Approximator: s.cfg.Solver.Approximator,
		Architecture: s.cfg.Solver.Architecture,
		Calibration:  cal,
	}, res)
	if err != nil {
		return "", err
	}
	if cal != nil && len(cal.Trials) > 0 {
		if err := st.SaveTrials(id, cal.Trials); err != nil {
			return "", err
		}
	}
	return id, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, args)
	if err != nil {
		return err
	}
	exp, err := s.experiment()
	if err != nil {
		return err
	}

	fmt.Printf("running %s simulation...\n", s.cfg.Model)
	start := time.Now()
	res, err := exp.Run(cmd.Context())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	id, err := s.save(res, nil)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", id)
	printResult(os.Stdout, res)
	if plot {
		fmt.Println()
		fmt.Println(viz.Hydrograph(res, viz.PlotOptions{}))
	}
	return s.writeMetrics()
}

func printResult(w io.Writer, res *sim.Result) {
	fmt.Fprintf(w, "steps: %d\n", res.StepsTaken)
	if n := res.NonConverged(); n > 0 {
		fmt.Fprintf(w, "non-converged steps: %d\n", n)
	}
	fmt.Fprintln(w, "\nmetrics:")
	for _, name := range slices.Sorted(maps.Keys(res.Metrics)) {
		fmt.Fprintf(w, "  %s: %.6f\n", name, res.Metrics[name])
	}
}

func runCalibration(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, args)
	if err != nil {
		return err
	}
	exp, err := s.experiment()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var cal *optim.Calibration
	if watch {
		title := s.cfg.Model + " " + s.cfg.Calibration.Optimizer
		cal, err = viz.WatchCalibration(ctx, title, s.cfg.Calibration.Repetitions,
			func(ctx context.Context, progress func(optim.Trial)) (*optim.Calibration, error) {
				return exp.Calibrate(ctx, progress)
			})
	} else {
		fmt.Printf("calibrating %s with %s on %s...\n", s.cfg.Model, s.cfg.Calibration.Optimizer, s.cfg.Calibration.Objective)
		cal, err = exp.Calibrate(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Printf("completed %d evaluations in %v\n", cal.Evaluations, cal.Duration.Truncate(time.Millisecond))
	fmt.Printf("best %s: %.6f\n", cal.Objective, cal.Score)
	fmt.Println("\nparameters:")
	for _, name := range slices.Sorted(maps.Keys(cal.Best)) {
		fmt.Printf("  %s: %.6g\n", name, cal.Best[name])
	}

	res, err := exp.RunCalibrated(ctx, cal)
	if err != nil {
		return err
	}
	id, err := s.save(res, cal)
	if err != nil {
		return err
	}
	fmt.Printf("\nrun id: %s\n", id)
	if plot {
		fmt.Println(viz.Hydrograph(res, viz.PlotOptions{}))
	}
	return s.writeMetrics()
}

func runSensitivity(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, args[:1])
	if err != nil {
		return err
	}
	exp, err := s.experiment()
	if err != nil {
		return err
	}

	param := args[1]
	points, err := exp.Sensitivity(cmd.Context(), param, analysis.Range(from, to, steps))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VALUE\tTOTAL Q\tPEAK Q\tTOTAL AET")
	for _, p := range points {
		fmt.Fprintf(w, "%.4g\t%.2f\t%.3f\t%.2f\n", p.Value, floats.Sum(p.Q), floats.Max(p.Q), floats.Sum(p.AET))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if plot {
		fmt.Println()
		fmt.Println(viz.SweepPlot(param, points, viz.PlotOptions{}))
	}
	return nil
}

type elementLookup interface {
	Element(id string) (dynamo.Element, error)
}

type solvedReservoir interface {
	dynamo.Element
	StateSeries() (dynamo.Series, error)
}

func runInspect(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd, args[:1])
	if err != nil {
		return err
	}
	exp, err := s.experiment()
	if err != nil {
		return err
	}
	window := exp.Data()

	m, err := exp.NewModel()
	if err != nil {
		return err
	}
	if err := m.SetStates(s.cfg.States); err != nil {
		return err
	}
	if err := m.SetTimestep(s.cfg.Dt); err != nil {
		return err
	}
	if err := m.SetInputs(window.Inputs()); err != nil {
		return err
	}
	out, err := m.Outputs()
	if err != nil {
		return err
	}

	elementID := "FR"
	if len(args) > 1 {
		elementID = args[1]
	}
	if net, ok := m.(elementLookup); ok {
		el, err := net.Element(elementID)
		if err != nil {
			return err
		}
		r, ok := el.(solvedReservoir)
		if !ok {
			return fmt.Errorf("element %s has no storage", elementID)
		}
		portrait, err := analysis.StorageDischarge(r)
		if err != nil {
			return err
		}
		fmt.Println(viz.Title.Render(portrait.YLabel + " vs " + portrait.XLabel))
		fmt.Print(viz.Scatter(portrait, 60, 15))
		if svgPath != "" {
			if err := writeFile(svgPath, func(w io.Writer) error { return export.PortraitSVG(w, portrait, 600, 400) }); err != nil {
				return err
			}
		}
	}

	spectrum := analysis.Spectrum(out[0], s.cfg.Dt)
	fmt.Println()
	fmt.Println(viz.Metric("Dominant", fmt.Sprintf("%.1f days", spectrum.Dominant())))
	fmt.Println(viz.Sparkline(spectrum.Power, 60))

	names := slices.Sorted(maps.Keys(m.GetParams()))
	el, err := analysis.ElasticitySpectrum(cmd.Context(), m, window, s.cfg.Dt, names, 0.1)
	if err != nil {
		return err
	}
	fmt.Println("\nelasticity of total discharge:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, name := range names {
		v := el[name]
		if math.IsNaN(v) {
			fmt.Fprintf(w, "  %s\t-\n", name)
			continue
		}
		fmt.Fprintf(w, "  %s\t%+.3f\n", name, v)
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tCATCHMENT\tSTEPS\tNSE\tCALIBRATED\tTIME")
	for _, r := range runs {
		nse := "-"
		if v, ok := r.Metrics["nse"]; ok {
			nse = fmt.Sprintf("%.3f", v)
		}
		calibrated := "no"
		if r.Calibration != nil {
			calibrated = r.Calibration.Optimizer
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Model, r.Catchment, r.Steps, nse, calibrated, r.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

// loadResult rebuilds the series and metrics of a stored run.
func loadResult(runID string) (*storage.RunMetadata, *sim.Result, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return nil, nil, err
	}
	return meta, &sim.Result{
		Model:       meta.Model,
		Dates:       series.Dates,
		P:           series.P,
		PET:         series.PET,
		Q:           series.Q,
		QObs:        series.QObs,
		AET:         series.AET,
		Params:      meta.Params,
		StatesStart: meta.StatesStart,
		StatesEnd:   meta.StatesEnd,
		Metrics:     meta.Metrics,
		StepsTaken:  meta.Steps,
	}, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	_, res, err := loadResult(args[0])
	if err != nil {
		return err
	}
	fmt.Println(viz.Hydrograph(res, viz.PlotOptions{}))
	fmt.Println()
	fmt.Println(viz.Fluxes(res, viz.PlotOptions{}))
	return nil
}

// writeFile streams to path, or to stdout when path is empty.
func writeFile(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, res, err := loadResult(args[0])
	if err != nil {
		return err
	}
	return writeFile(outPath, func(w io.Writer) error { return storage.WriteSeriesCSV(w, res) })
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, res, err := loadResult(args[0])
	if err != nil {
		return err
	}
	return writeFile(outPath, func(w io.Writer) error { return storage.ExportJSON(w, meta.Dt, res) })
}

func exportSVG(cmd *cobra.Command, args []string) error {
	_, res, err := loadResult(args[0])
	if err != nil {
		return err
	}
	return writeFile(outPath, func(w io.Writer) error { return export.HydrographSVG(w, res, svgSize[0], svgSize[1]) })
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	rec := telemetry.New()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tMODEL\tCATCHMENT\tNSE\tKGE\tRUN ID")
	var saveErr error
	runner := automation.NewRunner(
		automation.WithLogger(log),
		automation.WithRecorder(rec),
		automation.WithStepHook(func(i int, o automation.Outcome) {
			id, err := st.Save(storage.RunMetadata{
				Catchment:    o.Config.Catchment,
				Dt:           o.Config.Dt,
				Approximator: o.Config.Solver.Approximator,
				Architecture: o.Config.Solver.Architecture,
				Calibration:  o.Calibration,
			}, o.Result)
			if err == nil && o.Calibration != nil {
				err = st.SaveTrials(id, o.Calibration.Trials)
			}
			if err != nil {
				saveErr = errors.Join(saveErr, fmt.Errorf("%s: %w", o.Step, err))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%.3f\t%s\n", o.Step, o.Config.Model, o.Config.Catchment,
				o.Result.Metrics["nse"], o.Result.Metrics["kge"], id)
		}),
	)

	fmt.Printf("scenario %s: %d steps\n", scenario.Name, len(scenario.Steps))
	_, runErr := runner.Run(cmd.Context(), scenario)
	if err := w.Flush(); err != nil {
		return err
	}
	if err := errors.Join(runErr, saveErr); err != nil {
		return err
	}
	if path := viper.GetString("metrics-out"); path != "" {
		return rec.WriteFile(path)
	}
	return nil
}

func listModels(cmd *cobra.Command, args []string) error {
	registry := experiment.NewRegistry()

	fmt.Println("models:")
	for _, name := range registry.ListModels() {
		fmt.Printf("  %s  %s\n", name, models.Describe(name))
		m, err := registry.GetModel(name, models.DefaultOptions())
		if err != nil {
			return err
		}
		for _, p := range slices.Sorted(maps.Keys(m.GetParams())) {
			fmt.Printf("      %s\n", p)
		}
	}
	fmt.Printf("\napproximators: %v\n", registry.ListApproximators())
	fmt.Printf("optimizers:    %v\n", registry.ListOptimizers())
	fmt.Printf("objectives:    %v\n", registry.ListObjectives())
	fmt.Printf("themes:        %v\n", viz.ThemeNames())
	return nil
}
