package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/san-kum/hydrosim/internal/config"
	"github.com/san-kum/hydrosim/internal/logging"
	"github.com/san-kum/hydrosim/internal/viz"
)

var (
	configFile   string
	catchment    string
	forcingPath  string
	dt           float64
	start        int
	end          int
	approximator string
	architecture string
	params       map[string]string
	states       map[string]string
	workers      int
	synthetic    int
	seed         int64
	plot         bool

	optimizerName string
	objective     string
	repetitions   int
	warmup        int
	calWorkers    int
	watch         bool

	from  float64
	to    float64
	steps int

	outPath string
	svgPath string
	svgSize [2]int
)

// main registers the hydrosim commands and flags and executes the root
// command, exiting with status 1 on error.
func main() {
	rootCmd := &cobra.Command{
		Use:           "hydrosim",
		Short:         "conceptual hydrological model lab",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			viz.SetTheme(viper.GetString("theme"))
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("store", ".hydrosim", "run store directory")
	pf.String("log-level", "info", "log level (info, debug, trace)")
	pf.Bool("dev", false, "human readable logs")
	pf.String("metrics-out", "", "write prometheus metrics to this file")
	pf.String("theme", "cyberpunk", "colour theme ("+strings.Join(viz.ThemeNames(), ", ")+")")
	bindEnv(pf)

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "simulate a model over the forcing",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	runCmd.Flags().AddFlagSet(modelFlags())
	runCmd.Flags().BoolVar(&plot, "plot", false, "plot the hydrograph")

	calibrateCmd := &cobra.Command{
		Use:   "calibrate [model]",
		Short: "search parameters that best reproduce the observed discharge",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCalibration,
	}
	calibrateCmd.Flags().AddFlagSet(modelFlags())
	calibrateCmd.Flags().AddFlagSet(calibrationFlags())
	calibrateCmd.Flags().BoolVar(&plot, "plot", false, "plot the hydrograph of the best run")

	sensitivityCmd := &cobra.Command{
		Use:   "sensitivity [model] [parameter]",
		Short: "sweep one parameter and compare the discharge",
		Args:  cobra.ExactArgs(2),
		RunE:  runSensitivity,
	}
	sensitivityCmd.Flags().AddFlagSet(modelFlags())
	sensitivityCmd.Flags().Float64Var(&from, "from", 0, "first parameter value")
	sensitivityCmd.Flags().Float64Var(&to, "to", 1, "last parameter value")
	sensitivityCmd.Flags().IntVar(&steps, "steps", 5, "number of values")
	sensitivityCmd.Flags().BoolVar(&plot, "plot", false, "plot the discharge of every value")

	inspectCmd := &cobra.Command{
		Use:   "inspect [model] [element]",
		Short: "storage-discharge portrait, spectrum and elasticities",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runInspect,
	}
	inspectCmd.Flags().AddFlagSet(modelFlags())
	inspectCmd.Flags().StringVar(&svgPath, "svg", "", "also write the portrait as SVG")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export a stored run to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a stored run to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "export the hydrograph of a stored run to SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	exportSVGCmd.Flags().IntVar(&svgSize[0], "width", 900, "image width")
	exportSVGCmd.Flags().IntVar(&svgSize[1], "height", 400, "image height")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a YAML batch of simulations and calibrations",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list catchment presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models, approximators, optimizers and objectives",
		Args:  cobra.NoArgs,
		RunE:  listModels,
	}

	rootCmd.AddCommand(runCmd, calibrateCmd, sensitivityCmd, inspectCmd, scenarioCmd, listCmd, plotCmd,
		exportCSVCmd, exportJSONCmd, exportSVGCmd, presetsCmd, modelsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// bindEnv lets every persistent flag be set as HYDROSIM_<FLAG>.
func bindEnv(fs *pflag.FlagSet) {
	viper.SetEnvPrefix("hydrosim")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(fs); err != nil {
		panic(err)
	}
}

func modelFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("model", pflag.ExitOnError)
	fs.StringVar(&configFile, "config", "", "config file path (yaml)")
	fs.StringVar(&catchment, "catchment", "", "start from a catchment preset")
	fs.StringVar(&forcingPath, "forcing", "", "forcing table (csv)")
	fs.Float64Var(&dt, "dt", config.DefaultDt, "timestep in days")
	fs.IntVar(&start, "start", 0, "first forcing row")
	fs.IntVar(&end, "end", 0, "end forcing row, exclusive (0 for all)")
	fs.StringVar(&approximator, "approximator", config.DefaultApproximator, "approximator")
	fs.StringVar(&architecture, "arch", "", "flux evaluator architecture (general, compiled)")
	fs.StringToStringVar(&params, "param", nil, "parameter override, name=value")
	fs.StringToStringVar(&states, "state", nil, "initial state override, name=value")
	fs.IntVar(&workers, "workers", 1, "solver and ensemble workers")
	fs.IntVar(&synthetic, "synthetic", 0, "simulate this many synthetic days, observed by the default model")
	fs.Int64Var(&seed, "seed", 1, "random seed")
	return fs
}

func calibrationFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("calibration", pflag.ExitOnError)
	fs.StringVar(&optimizerName, "optimizer", config.DefaultOptimizer, "optimizer")
	fs.StringVar(&objective, "objective", config.DefaultObjective, "objective")
	fs.IntVar(&repetitions, "reps", config.DefaultRepetitions, "evaluation budget")
	fs.IntVar(&warmup, "warmup", config.DefaultWarmup, "steps excluded from scoring")
	fs.IntVar(&calWorkers, "cal-workers", 1, "parallel evaluations")
	fs.BoolVar(&watch, "watch", false, "show live progress")
	return fs
}

func newLogger() (logr.Logger, error) {
	level, err := logging.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return logr.Discard(), err
	}
	return logging.New(level, viper.GetBool("dev"))
}
