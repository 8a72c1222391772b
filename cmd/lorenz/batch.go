package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/lorenz/internal/analysis"
	"github.com/san-kum/lorenz/internal/automation"
	"github.com/san-kum/lorenz/internal/config"
	"github.com/san-kum/lorenz/internal/experiment"
	"github.com/san-kum/lorenz/internal/optim"
)

var (
	mcTrials int
	mcPert   float64
	mcSeed   int64
	mcBound  float64

	searchParams []string
	searchMetric string
	searchMax    bool
)

func batchCommands() []*cobra.Command {
	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a scripted sequence of simulations from yaml",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().BoolVar(&noSave, "no-save", false, "ignore save flags in the scenario")

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [model]",
		Short: "randomly perturb the initial state and count bounded trials",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addRunFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&mcTrials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Float64Var(&mcPert, "perturb", 0.1, "maximum offset per component")
	monteCarloCmd.Flags().Int64Var(&mcSeed, "seed", 0, "random seed (0 = clock)")
	monteCarloCmd.Flags().Float64Var(&mcBound, "bound", automation.DefaultBound, "largest |component| of a stable trial")
	monteCarloCmd.Flags().IntVar(&workers, "workers", 0, "concurrent trials (0 = NumCPU)")

	searchCmd := &cobra.Command{
		Use:   "search [model]",
		Short: "grid search parameters for the best value of a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSearch,
	}
	addRunFlags(searchCmd)
	searchCmd.Flags().StringArrayVar(&searchParams, "grid", nil, "name=from:to:n, repeatable")
	searchCmd.Flags().StringVar(&searchMetric, "metric", "max_abs", "metric to optimise")
	searchCmd.Flags().BoolVar(&searchMax, "maximize", false, "pick the largest value")
	searchCmd.Flags().IntVar(&workers, "workers", 0, "concurrent grid points (0 = NumCPU)")

	return []*cobra.Command{scenarioCmd, monteCarloCmd, searchCmd}
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	base, err := config.Resolve("", preset, configFile)
	if err != nil {
		return err
	}
	if dataDir != "" {
		base.DataDir = dataDir
	}

	runner := &automation.Runner{
		Registry: experiment.NewRegistry(),
		Logf:     log.Printf,
	}
	if !noSave {
		st, idx, err := openStore(base.DataDir)
		if err != nil {
			return err
		}
		defer idx.Close()
		runner.Store = st
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("scenario: %s\n", sc.Name)
	if sc.Description != "" {
		fmt.Println(sc.Description)
	}
	start := time.Now()
	results, runErr := runner.Run(ctx, sc, base)
	fmt.Printf("%d/%d steps in %v\n\n", len(results), len(sc.Steps), time.Since(start).Round(time.Millisecond))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tMODEL\tT\tSTEPS\tREJECTED\tRUN")
	for i, r := range results {
		id := r.RunID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%.3f\t%d\t%d\t%s\n",
			i+1, r.Config.Model, r.Result.T, r.Result.StepsTaken, r.Result.Rejections, id)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return runErr
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}
	run := experiment.SimConfig(cfg)
	if run.MaxSteps == 0 && run.Duration == 0 {
		return fmt.Errorf("montecarlo needs --steps or --time")
	}

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	results, err := automation.RunMonteCarlo(ctx, exp, run, automation.MonteCarloConfig{
		Trials:       mcTrials,
		Perturbation: mcPert,
		Seed:         mcSeed,
		Bound:        mcBound,
		Workers:      workers,
	})
	if err != nil {
		return err
	}

	stable, unstable := automation.MonteCarloStats(results)
	fmt.Printf("%d trials in %v\n", len(results), time.Since(start).Round(time.Millisecond))
	fmt.Printf("stable: %d, unstable: %d\n", stable, unstable)
	for _, r := range results {
		if r.Err != nil {
			log.Printf("trial %d diverged: %v", r.Trial, r.Err)
		}
	}
	return nil
}

// parseGrid reads name=from:to:n into an evenly spaced range.
func parseGrid(arg string) (string, []float64, error) {
	name, rng, ok := strings.Cut(arg, "=")
	parts := strings.Split(rng, ":")
	if !ok || name == "" || len(parts) != 3 {
		return "", nil, fmt.Errorf("grid %q: want name=from:to:n", arg)
	}
	from, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return "", nil, fmt.Errorf("grid %q: %w", arg, err)
	}
	to, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", nil, fmt.Errorf("grid %q: %w", arg, err)
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil || n < 1 {
		return "", nil, fmt.Errorf("grid %q: bad count %q", arg, parts[2])
	}
	return name, analysis.Sweep(from, to, n), nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	if len(searchParams) == 0 {
		return fmt.Errorf("search needs at least one --grid")
	}
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	reg := experiment.NewRegistry()
	exp, err := experiment.New(cfg, reg)
	if err != nil {
		return err
	}
	run := experiment.SimConfig(cfg)
	if run.MaxSteps == 0 && run.Duration == 0 {
		return fmt.Errorf("search needs --steps or --time")
	}

	names := make([]string, len(searchParams))
	ranges := make([][]float64, len(searchParams))
	for i, arg := range searchParams {
		names[i], ranges[i], err = parseGrid(arg)
		if err != nil {
			return err
		}
	}
	g := optim.NewGridSearch(names, ranges)
	g.Maximize = searchMax
	g.Workers = workers

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	best, all, err := g.Search(ctx, exp.System(), exp.Integrator(), exp.InitialState(), run, reg.DefaultMetrics, searchMetric)
	if err != nil {
		return err
	}
	fmt.Printf("%d grid points in %v\n\n", len(all), time.Since(start).Round(time.Millisecond))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", strings.ToUpper(strings.Join(names, "\t")), strings.ToUpper(searchMetric))
	for _, c := range all {
		fmt.Fprintf(w, "%s\t%.6g\n", formatParams(names, c.Params, "\t"), c.Value)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nbest: %s = %s, %s = %.6g\n",
		strings.Join(names, ","), formatParams(names, best.Params, ","), searchMetric, best.Value)
	return nil
}

func formatParams(names []string, params map[string]float64, sep string) string {
	vals := make([]string, len(names))
	for i, name := range names {
		vals[i] = strconv.FormatFloat(params[name], 'g', 6, 64)
	}
	return strings.Join(vals, sep)
}
