package automation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/lorenz/internal/config"
	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/experiment"
	"github.com/san-kum/lorenz/internal/sim"
	"github.com/san-kum/lorenz/internal/storage"
)

// Scenario defines a scripted sequence of runs
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is a single run. Fields left unset come from the preset,
// then from the base config the scenario runs over.
type ScenarioStep struct {
	Model     string             `yaml:"model"`
	Preset    string             `yaml:"preset"`
	Params    map[string]float64 `yaml:"params"`
	InitState []float64          `yaml:"init_state"`
	Tolerance float64            `yaml:"tolerance"`
	Steps     int                `yaml:"steps"`
	Duration  float64            `yaml:"duration"`
	Save      bool               `yaml:"save"`
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}

	return &scenario, nil
}

// Config layers the step over base, which is left untouched.
func (s ScenarioStep) Config(base *config.Config) (*config.Config, error) {
	cfg := base.Clone()
	model := s.Model
	if model == "" {
		model = cfg.Model
	}

	if s.Preset != "" {
		p := config.GetPreset(model, s.Preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset %q for model %q", s.Preset, model)
		}
		p.View = cfg.View
		p.DataDir = cfg.DataDir
		cfg = p
	} else if model != cfg.Model {
		cfg.Params = nil
		cfg.InitState = nil
	}
	cfg.Model = model

	for k, v := range s.Params {
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64, len(s.Params))
		}
		cfg.Params[k] = v
	}
	if len(s.InitState) > 0 {
		cfg.InitState = append([]float64(nil), s.InitState...)
	}
	if s.Tolerance > 0 {
		cfg.Tolerance = s.Tolerance
	}
	if s.Steps > 0 || s.Duration > 0 {
		cfg.Steps = s.Steps
		cfg.Duration = s.Duration
	}
	if cfg.Steps == 0 && cfg.Duration == 0 {
		return nil, fmt.Errorf("%s needs steps or duration", cfg.Model)
	}

	return cfg, cfg.Validate()
}

// Saver persists a finished run; *storage.Store implements it.
type Saver interface {
	Save(ctx context.Context, meta storage.RunMetadata, samples []sim.Sample) (string, error)
}

type StepResult struct {
	Config *config.Config
	Result *sim.Result
	RunID  string
}

// Runner executes scenarios. Store may be nil, in which case save flags
// are ignored.
type Runner struct {
	Registry *experiment.Registry
	Store    Saver
	Logf     func(format string, args ...any)
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

// Run executes all steps in order and stops at the first failure. The
// results of completed steps are returned alongside the error.
func (r *Runner) Run(ctx context.Context, scenario *Scenario, base *config.Config) ([]StepResult, error) {
	reg := r.Registry
	if reg == nil {
		reg = experiment.NewRegistry()
	}
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Config(base)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		r.logf("step %d/%d: %s %v", i+1, len(scenario.Steps), cfg.Model, cfg.Params)

		exp, err := experiment.New(cfg, reg)
		if err != nil {
			return results, fmt.Errorf("step %d setup: %w", i+1, err)
		}
		result, err := exp.Run(ctx, nil)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		sr := StepResult{Config: cfg, Result: result}
		if step.Save && r.Store != nil {
			meta := storage.NewMetadata(cfg.Model, experiment.SimConfig(cfg), result)
			id, err := r.Store.Save(ctx, meta, result.Samples)
			if id == "" && err != nil {
				return results, fmt.Errorf("step %d save: %w", i+1, err)
			}
			if err != nil {
				r.logf("step %d saved without index: %v", i+1, err)
			}
			sr.RunID = id
		}
		results = append(results, sr)
	}

	return results, nil
}

const DefaultBound = 1e6

// MonteCarloConfig defines Monte Carlo simulation parameters
type MonteCarloConfig struct {
	Trials       int
	Perturbation float64
	Seed         int64
	// Bound is the largest |component| a stable trial may end with.
	Bound   float64
	Workers int
}

// MonteCarloResult holds one trial of a Monte Carlo run
type MonteCarloResult struct {
	Trial      int
	InitState  dynamo.State
	FinalState dynamo.State
	Steps      int
	Stable     bool
	// Err is set when the trial's integration failed; it counts as unstable.
	Err error
}

// RunMonteCarlo integrates trials whose initial states are base plus a
// uniform perturbation in [-Perturbation, Perturbation] per component.
// A trial that blows up is reported as unstable without stopping the
// others. A zero seed draws one from the clock.
func RunMonteCarlo(ctx context.Context, exp *experiment.Experiment, run sim.Config, mc MonteCarloConfig) ([]MonteCarloResult, error) {
	if mc.Trials < 1 {
		return nil, fmt.Errorf("need at least one trial, got %d", mc.Trials)
	}
	if mc.Bound <= 0 {
		mc.Bound = DefaultBound
	}
	seed := mc.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	base := exp.InitialState()
	members := make([]sim.Member, mc.Trials)
	for i := range members {
		y0 := base.Clone()
		for j := range y0 {
			y0[j] += (rng.Float64() - 0.5) * 2 * mc.Perturbation
		}
		members[i] = sim.Member{System: exp.System(), Y0: y0}
	}

	run.Record = false
	ens := sim.NewEnsemble(exp.Integrator(), run, mc.Workers)
	ens.KeepFailed = true
	results, err := ens.Run(ctx, members)
	if err != nil {
		return nil, err
	}

	out := make([]MonteCarloResult, len(results))
	for i, res := range results {
		out[i] = MonteCarloResult{
			Trial:      i,
			InitState:  members[i].Y0,
			FinalState: res.Final,
			Steps:      res.StepsTaken,
			Stable:     res.Err == nil && bounded(res.Final, mc.Bound),
			Err:        res.Err,
		}
	}
	return out, nil
}

func bounded(y dynamo.State, bound float64) bool {
	if !y.IsValid() {
		return false
	}
	for _, v := range y {
		if math.Abs(v) > bound {
			return false
		}
	}
	return true
}

// MonteCarloStats counts stable and unstable trials
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
