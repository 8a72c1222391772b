package main

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/lorenz/internal/analysis"
	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/experiment"
	"github.com/san-kum/lorenz/internal/sim"
)

var (
	component  int
	resampleDt float64

	lyapSteps int
	lyapD0    float64

	bifParam     string
	bifFrom      float64
	bifTo        float64
	bifCount     int
	bifTransient float64
	bifDuration  float64
	bifIndex     int
	workers      int

	members int
	spread  float64

	xAxis     int
	yAxis     int
	poincare  bool
	crossAt   float64
	crossAxis int
)

func analysisCommands() []*cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "power spectrum and Lorenz map of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().IntVar(&component, "index", 0, "state component to analyse")
	analyzeCmd.Flags().Float64Var(&resampleDt, "dt", 0.01, "uniform resampling interval")

	lyapunovCmd := &cobra.Command{
		Use:   "lyapunov [model]",
		Short: "estimate the largest Lyapunov exponent",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLyapunov,
	}
	addRunFlags(lyapunovCmd)
	lyapunovCmd.Flags().IntVar(&lyapSteps, "lyap-steps", 20000, "accepted steps of the paired trajectory")
	lyapunovCmd.Flags().Float64Var(&lyapD0, "d0", 1e-8, "initial separation")

	bifurcateCmd := &cobra.Command{
		Use:   "bifurcate [model]",
		Short: "sweep a parameter and plot the maxima of one component",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBifurcation,
	}
	addRunFlags(bifurcateCmd)
	bifurcateCmd.Flags().StringVar(&bifParam, "param", "r", "parameter to sweep")
	bifurcateCmd.Flags().Float64Var(&bifFrom, "from", 20, "first value")
	bifurcateCmd.Flags().Float64Var(&bifTo, "to", 200, "last value")
	bifurcateCmd.Flags().IntVar(&bifCount, "n", 60, "number of values")
	bifurcateCmd.Flags().Float64Var(&bifTransient, "transient", 40, "time discarded before recording maxima")
	bifurcateCmd.Flags().Float64Var(&bifDuration, "until", 60, "time each member runs to")
	bifurcateCmd.Flags().IntVar(&bifIndex, "index", 2, "state component whose maxima are recorded")
	bifurcateCmd.Flags().IntVar(&workers, "workers", 0, "concurrent members (0 = NumCPU)")

	ensembleCmd := &cobra.Command{
		Use:   "ensemble [model]",
		Short: "run nearby initial conditions concurrently and compare",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEnsemble,
	}
	addRunFlags(ensembleCmd)
	ensembleCmd.Flags().IntVar(&members, "members", 8, "number of trajectories")
	ensembleCmd.Flags().Float64Var(&spread, "spread", 1e-6, "offset added to x per member")
	ensembleCmd.Flags().IntVar(&workers, "workers", 0, "concurrent members (0 = NumCPU)")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase space plot",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().IntVar(&xAxis, "x-axis", 0, "state index for x-axis")
	phaseCmd.Flags().IntVar(&yAxis, "y-axis", 2, "state index for y-axis")
	phaseCmd.Flags().BoolVar(&poincare, "poincare", false, "plot a Poincaré section instead")
	phaseCmd.Flags().IntVar(&crossAxis, "cross", 2, "component whose upward crossing is recorded")
	phaseCmd.Flags().Float64Var(&crossAt, "at", 27, "crossing threshold")

	return []*cobra.Command{analyzeCmd, lyapunovCmd, bifurcateCmd, ensembleCmd, phaseCmd}
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, samples, err := loadRun(args[0])
	if err != nil {
		return err
	}

	series, err := analysis.Resample(samples, component, resampleDt)
	if err != nil {
		return err
	}
	freqs, power := analysis.PowerSpectrum(series, resampleDt)

	fmt.Printf("frequency analysis: %s\n", meta.ID)
	fmt.Printf("model: %s, component x%d, %d points at dt=%g\n\n", meta.Model, component, len(series), resampleDt)

	if len(power) > 1 {
		plotData := power[:max(2, len(power)/4)]
		fmt.Println(asciigraph.Plot(plotData,
			asciigraph.Height(15),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("power spectrum (x%d)", component)),
		))
		fmt.Println()
	}

	freq := analysis.DominantFrequency(freqs, power)
	fmt.Printf("dominant frequency: %.4f\n", freq)
	if freq > 0 {
		fmt.Printf("period: %.4f\n", 1.0/freq)
	}

	maxima := analysis.ZMaxima(samples, len(samples[0].Y)-1)
	pairs := analysis.LorenzMap(maxima)
	fmt.Printf("\nmaxima of x%d: %d\n", len(samples[0].Y)-1, len(maxima))
	if len(pairs) > 0 {
		next := make([]float64, len(pairs))
		for i, p := range pairs {
			next[i] = p[1]
		}
		fmt.Println(asciigraph.Plot(next,
			asciigraph.Height(8),
			asciigraph.Width(80),
			asciigraph.Caption("successive maxima"),
		))
	}
	return nil
}

func runLyapunov(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}

	start := time.Now()
	lambda, err := analysis.LyapunovExponent(
		exp.System(), exp.Integrator(), exp.InitialState(),
		experiment.SimConfig(cfg), lyapSteps, lyapD0,
	)
	if err != nil {
		return err
	}

	fmt.Printf("model: %s %v\n", cfg.Model, params(exp.System()))
	fmt.Printf("largest lyapunov exponent: %.4f (%d steps, %v)\n", lambda, lyapSteps, time.Since(start).Round(time.Millisecond))
	switch {
	case lambda > 0.05:
		fmt.Println("trajectory is chaotic")
	case lambda < -0.05:
		fmt.Println("trajectory settles to a fixed point")
	default:
		fmt.Println("trajectory is periodic or marginal")
	}
	return nil
}

func params(sys dynamo.System) map[string]float64 {
	if cs, ok := sys.(dynamo.Configurable); ok {
		return cs.Params()
	}
	return nil
}

func runBifurcation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}

	run := experiment.SimConfig(cfg)
	run.MaxSteps = 0
	run.Duration = bifDuration

	ctx, cancel := signalContext()
	defer cancel()

	values := analysis.Sweep(bifFrom, bifTo, bifCount)
	fmt.Printf("sweeping %s over %d values from %g to %g...\n", bifParam, len(values), bifFrom, bifTo)
	start := time.Now()
	points, err := analysis.Bifurcation(ctx, exp.System(), exp.Integrator(), exp.InitialState(), analysis.BifurcationConfig{
		Param:     bifParam,
		Values:    values,
		Index:     bifIndex,
		Transient: bifTransient,
		Run:       run,
		Workers:   workers,
	})
	if err != nil {
		return err
	}
	fmt.Printf("completed in %v\n\n", time.Since(start).Round(time.Millisecond))

	fmt.Println(analysis.BifurcationToASCII(points, 80, 24))
	fmt.Printf("%s: %g → %g\n", bifParam, bifFrom, bifTo)
	return nil
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if members < 1 {
		return fmt.Errorf("need at least one member, got %d", members)
	}
	reg := experiment.NewRegistry()
	exp, err := experiment.New(cfg, reg)
	if err != nil {
		return err
	}

	run := experiment.SimConfig(cfg)
	run.Record = false
	if run.MaxSteps == 0 && run.Duration == 0 {
		return fmt.Errorf("ensemble needs --steps or --time")
	}

	base := exp.InitialState()
	ms := make([]sim.Member, members)
	for i := range ms {
		y0 := base.Clone()
		y0[0] += float64(i) * spread
		ms[i] = sim.Member{System: exp.System(), Y0: y0}
	}

	ens := sim.NewEnsemble(exp.Integrator(), run, workers)
	ens.Metrics = reg.DefaultMetrics

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	results, err := ens.Run(ctx, ms)
	if err != nil {
		return err
	}
	fmt.Printf("%d members in %v\n\n", len(results), time.Since(start).Round(time.Millisecond))

	ref := results[0].Final
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MEMBER\tOFFSET\tT\tSTEPS\tREJECTED\tMEAN_H\tDISTANCE")
	for i, res := range results {
		fmt.Fprintf(w, "%d\t%.1e\t%.3f\t%d\t%d\t%.3e\t%.4g\n",
			i,
			float64(i)*spread,
			res.T,
			res.StepsTaken,
			res.Rejections,
			res.Metrics["mean_step"],
			distance(res.Final, ref),
		)
	}
	return w.Flush()
}

func distance(a, b dynamo.State) float64 {
	if len(a) != len(b) {
		return math.NaN()
	}
	return a.Sub(b).Norm()
}

func phasePlot(cmd *cobra.Command, args []string) error {
	meta, samples, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)

	if poincare {
		section := analysis.NewPoincareSection(samples, crossAxis, crossAt, xAxis, yAxis)
		if section == nil {
			return fmt.Errorf("state dimension too small for selected axes")
		}
		fmt.Printf("section x%d = %g upward, %d crossings, x%d vs x%d\n\n", crossAxis, crossAt, len(section.Points), xAxis, yAxis)
		fmt.Println(analysis.PoincareSectionToASCII(section, 70, 20))
		return nil
	}

	portrait := analysis.PhasePortrait(samples, xAxis, yAxis)
	if portrait == nil {
		return fmt.Errorf("state dimension too small for selected axes")
	}
	fmt.Printf("x-axis: x%d, y-axis: x%d\n\n", xAxis, yAxis)
	fmt.Println(analysis.PhasePortraitToASCII(portrait, 70, 20))
	return nil
}
