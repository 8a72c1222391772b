package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/lorenz/internal/config"
	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/experiment"
	"github.com/san-kum/lorenz/internal/export"
	"github.com/san-kum/lorenz/internal/sim"
	"github.com/san-kum/lorenz/internal/storage"
	"github.com/san-kum/lorenz/internal/storage/sqlite"
	"github.com/san-kum/lorenz/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string

	// Run overrides; applied only when the flag is set.
	tolerance   float64
	initialStep float64
	blockSize   int
	steps       int
	duration    float64
	maxShrinks  int
	initState   []float64
	setParams   map[string]string

	noSave bool
	fps    int
	theme  string

	listModel string
	listLimit int

	svgBeta   float64
	svgWidth  int
	svgHeight int
	svgStroke string
	svgDots   bool
	outPath   string
	csvFull   bool
	ptScale   float64
)

func main() {
	log.SetPrefix("[LORENZ] ")
	log.SetFlags(0)

	rootCmd := &cobra.Command{
		Use:          "lorenz",
		Short:        "adaptive Runge-Kutta integration of the Lorenz equations",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (default from config)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "use preset configuration")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "integrate a model and save the trajectory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "print the summary without saving")

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "integrate and plot in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)
	liveCmd.Flags().IntVar(&fps, "fps", viz.DefaultFPS, "frame rate")
	liveCmd.Flags().StringVar(&theme, "theme", "", "color theme")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}
	listCmd.Flags().StringVar(&listModel, "model", "", "only runs of this model")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum number of runs")

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "print run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot each state component and the step size",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().BoolVar(&csvFull, "full", false, "include hdid, hnext and rejected columns")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "draw the trajectory as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().Float64Var(&svgBeta, "beta", config.DefaultBeta, "viewing angle in radians")
	exportSVGCmd.Flags().IntVar(&svgWidth, "width", 800, "image width")
	exportSVGCmd.Flags().IntVar(&svgHeight, "height", 600, "image height")
	exportSVGCmd.Flags().StringVar(&svgStroke, "stroke", "#33ff66", "path color")
	exportSVGCmd.Flags().BoolVar(&svgDots, "dots", false, "render the terminal canvas instead of a path")
	exportSVGCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	pointsCmd := &cobra.Command{
		Use:   "points [run_id]",
		Short: "write scaled x y z lines for gnuplot",
		Args:  cobra.ExactArgs(1),
		RunE:  writePoints,
	}
	pointsCmd.Flags().Float64Var(&ptScale, "scale", 1, "factor applied to every component")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, showCmd, plotCmd, exportCSVCmd, exportJSONCmd, exportSVGCmd, pointsCmd, presetsCmd)
	rootCmd.AddCommand(analysisCommands()...)
	rootCmd.AddCommand(batchCommands()...)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&tolerance, "tol", config.DefaultTolerance, "relative error tolerance")
	cmd.Flags().Float64Var(&initialStep, "h0", config.DefaultInitialStep, "initial trial step")
	cmd.Flags().IntVar(&blockSize, "block", config.DefaultBlockSize, "steps between command polls")
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "accepted steps to take (0 = unbounded)")
	cmd.Flags().Float64Var(&duration, "time", 0, "integrate until |t| reaches this (0 = unbounded)")
	cmd.Flags().IntVar(&maxShrinks, "max-shrinks", config.DefaultMaxShrinks, "rejections allowed per step")
	cmd.Flags().Float64SliceVar(&initState, "init", nil, "initial state, e.g. 0.6,0.65,0.7")
	cmd.Flags().StringToStringVar(&setParams, "set", nil, "model parameters, e.g. r=28,sigma=10")
}

// loadConfig layers preset, file and environment, then any flag the user
// set explicitly.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	model := ""
	if len(args) > 0 {
		model = args[0]
	}
	cfg, err := config.Resolve(model, preset, configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("tol") {
		cfg.Tolerance = tolerance
	}
	if flags.Changed("h0") {
		cfg.InitialStep = initialStep
	}
	if flags.Changed("block") {
		cfg.BlockSize = blockSize
	}
	if flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("max-shrinks") {
		cfg.MaxShrinks = maxShrinks
	}
	if flags.Changed("init") {
		cfg.InitState = initState
	}
	if len(setParams) > 0 {
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64, len(setParams))
		}
		for name, raw := range setParams {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("--set %s: %w", name, err)
			}
			cfg.Params[name] = v
		}
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, cfg.Validate()
}

// openStore returns the run store with its SQLite index attached. The
// caller closes the index.
func openStore(dir string) (*storage.Store, *sqlite.Store, error) {
	if dir == "" {
		dir = config.DefaultDataDir
	}
	st := storage.New(dir)
	if err := st.Init(); err != nil {
		return nil, nil, err
	}
	idx, err := sqlite.Open(filepath.Join(dir, sqlite.FileName))
	if err != nil {
		return nil, nil, err
	}
	return st.WithIndex(idx), idx, nil
}

func storeDir() string {
	if dataDir != "" {
		return dataDir
	}
	cfg, err := config.Resolve("", "", configFile)
	if err != nil {
		return config.DefaultDataDir
	}
	return cfg.DataDir
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if cfg.Steps == 0 && cfg.Duration == 0 {
		return fmt.Errorf("run needs --steps or --time; use live for an open-ended run")
	}

	exp, err := experiment.New(cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("running %s simulation...\n", cfg.Model)
	start := time.Now()
	result, runErr := exp.Run(ctx, nil)
	elapsed := time.Since(start)
	if runErr != nil {
		log.Printf("run stopped early: %v", runErr)
	}

	fmt.Printf("completed in %v\n", elapsed)
	printSummary(result)

	if noSave || len(result.Samples) == 0 {
		return runErr
	}

	st, idx, err := openStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer idx.Close()

	meta := storage.NewMetadata(cfg.Model, experiment.SimConfig(cfg), result)
	// Save even after an interrupt.
	runID, err := st.Save(context.Background(), meta, result.Samples)
	if err != nil {
		if runID == "" {
			return err
		}
		log.Printf("saved without index: %v", err)
	}
	fmt.Printf("run id: %s\n", runID)
	return runErr
}

func printSummary(result *sim.Result) {
	fmt.Printf("stopped: %s\n", result.Stopped)
	fmt.Printf("steps: %d (rejected trials %d, evaluations %d)\n", result.StepsTaken, result.Rejections, result.Evaluations)
	fmt.Printf("t: %.6f\n", result.T)
	fmt.Printf("final: %v\n", []float64(result.Final))

	if len(result.Samples) > 1 {
		hdid := make([]float64, len(result.Samples))
		for i, s := range result.Samples {
			hdid[i] = s.HDid
		}
		fmt.Println()
		fmt.Println(asciigraph.Plot(hdid,
			asciigraph.Height(6),
			asciigraph.Width(70),
			asciigraph.Caption("hdid per accepted step"),
		))
	}

	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6g\n", name, result.Metrics[name])
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	view, err := fitRunViewport(cfg)
	if err != nil {
		return err
	}

	exp, err := experiment.New(cfg, experiment.NewRegistry())
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("theme") {
		cfg.View.Theme = theme
	}
	opts := viz.Options{
		Title:      cfg.Model,
		Param:      liveParam(exp.System(), cfg.View.Param),
		DeltaParam: cfg.View.DeltaR,
		Beta:       cfg.View.Beta,
		DeltaBeta:  cfg.View.DeltaBeta,
		View:       view,
		Theme:      cfg.View.Theme,
		FPS:        fps,
	}
	m, err := viz.NewModel(exp.System(), exp.Integrator(), exp.InitialState(), experiment.SimConfig(cfg), opts)
	if err != nil {
		return err
	}

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	fm, ok := final.(viz.Model)
	if !ok {
		return nil
	}
	fmt.Printf("total points plotted = %d\n", fm.Points())
	return fm.Err()
}

// fitRunViewport integrates a short copy of the run to size the canvas.
func fitRunViewport(cfg *config.Config) (viz.Viewport, error) {
	short := cfg.Clone()
	short.Steps = 4000
	short.Duration = 0
	exp, err := experiment.New(short, experiment.NewRegistry())
	if err != nil {
		return viz.Viewport{}, err
	}
	res, err := exp.Run(context.Background(), nil)
	if err != nil && len(res.Samples) == 0 {
		return viz.Viewport{}, err
	}
	return viz.FitViewport(res.Samples, 0.05), nil
}

// liveParam keeps want if the system has it, else the first parameter by
// name, so r/R always move something.
func liveParam(sys dynamo.System, want string) string {
	cs, ok := sys.(dynamo.Configurable)
	if !ok {
		return want
	}
	params := cs.Params()
	if _, ok := params[want]; ok {
		return want
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return want
	}
	return names[0]
}

func listRuns(cmd *cobra.Command, args []string) error {
	_, idx, err := openStore(storeDir())
	if err != nil {
		return err
	}
	defer idx.Close()

	runs, err := idx.List(cmd.Context(), listModel, listLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tSTEPS\tT\tREJECTED\tSTOPPED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.3f\t%d\t%s\n",
			run.ID,
			run.Model,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.Steps,
			run.FinalT,
			run.Rejections,
			run.Stopped,
		)
	}
	return w.Flush()
}

func loadRun(runID string) (*storage.RunMetadata, []sim.Sample, error) {
	st := storage.New(storeDir())
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	samples, err := st.LoadTrace(runID)
	if err != nil {
		return nil, nil, err
	}
	if len(samples) == 0 {
		return nil, nil, fmt.Errorf("run %s has no samples", runID)
	}
	return meta, samples, nil
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(storeDir())
	meta, err := st.Load(args[0])
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no run %s in %s", args[0], st.Dir())
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, samples, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", len(samples))

	captions := []string{"x vs step", "y vs step", "z vs step"}
	for idx := range samples[0].Y {
		data := make([]float64, len(samples))
		for i, s := range samples {
			data[i] = s.Y[idx]
		}
		caption := fmt.Sprintf("x%d vs step", idx)
		if idx < len(captions) && len(samples[0].Y) == 3 {
			caption = captions[idx]
		}
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(caption),
		))
		fmt.Println()
	}

	hdid := make([]float64, 0, len(samples))
	for _, s := range samples[1:] {
		hdid = append(hdid, s.HDid)
	}
	if len(hdid) > 1 {
		fmt.Println(asciigraph.Plot(hdid,
			asciigraph.Height(6),
			asciigraph.Width(80),
			asciigraph.Caption("hdid"),
		))
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, samples, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if csvFull {
		return storage.WriteTrace(os.Stdout, samples)
	}
	names := []string{"x", "y", "z"}
	if len(samples[0].Y) != 3 {
		names = nil
	}
	return export.WriteCSV(os.Stdout, samples, names...)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	meta, samples, err := loadRun(args[0])
	if err != nil {
		return err
	}
	if outPath != "" {
		return export.ExportJSON(outPath, *meta, samples)
	}
	return export.WriteJSON(os.Stdout, *meta, samples)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	_, samples, err := loadRun(args[0])
	if err != nil {
		return err
	}

	var svg string
	if svgDots {
		canvas := viz.NewCanvas(viz.DefaultWidth, viz.DefaultHeight)
		view := viz.FitViewport(samples, 0.05)
		canvas.Axes(view)
		for _, s := range samples {
			u, v := viz.Project(s.Y, svgBeta)
			canvas.Plot(view, u, v)
		}
		svg = export.CanvasToSVG(canvas, 4)
	} else {
		svg = export.TrajectorySVG(samples, svgBeta, svgWidth, svgHeight, svgStroke)
	}

	if outPath == "" {
		_, err := fmt.Println(svg)
		return err
	}
	if err := os.WriteFile(outPath, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", outPath)
	return nil
}

func writePoints(cmd *cobra.Command, args []string) error {
	_, samples, err := loadRun(args[0])
	if err != nil {
		return err
	}
	return export.WritePoints(os.Stdout, samples, ptScale)
}

func listPresets(cmd *cobra.Command, args []string) error {
	models := config.ListModels()
	if len(args) > 0 {
		models = args
	}
	for _, model := range models {
		presets := config.ListPresets(model)
		if len(presets) == 0 {
			fmt.Printf("no presets for model: %s\n", model)
			continue
		}
		fmt.Printf("presets for %s:\n", model)
		for _, p := range presets {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}
