package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModel       = "lorenz"
	DefaultTolerance   = 2.0e-5
	DefaultInitialStep = 0.005
	DefaultBlockSize   = 50
	DefaultSteps       = 5000
	DefaultMaxShrinks  = 200
	DefaultBeta        = math.Pi / 4
	DefaultDeltaBeta   = math.Pi / 16
	DefaultDeltaR      = 0.4
	DefaultViewParam   = "r"
	DefaultTheme       = "phosphor"
	DefaultDataDir     = "./runs"
)

type Config struct {
	Model string `yaml:"model" env:"LORENZ_MODEL"`
	// Params override the model's defaults by name.
	Params    map[string]float64 `yaml:"params,omitempty"`
	InitState []float64          `yaml:"init_state,omitempty" env:"LORENZ_INIT_STATE"`

	Tolerance   float64 `yaml:"tolerance" env:"LORENZ_TOLERANCE"`
	InitialStep float64 `yaml:"initial_step" env:"LORENZ_INITIAL_STEP"`
	BlockSize   int     `yaml:"block_size" env:"LORENZ_BLOCK_SIZE"`
	Steps       int     `yaml:"steps" env:"LORENZ_STEPS"`
	Duration    float64 `yaml:"duration" env:"LORENZ_DURATION"`
	MaxShrinks  int     `yaml:"max_shrinks" env:"LORENZ_MAX_SHRINKS"`

	View    ViewConfig `yaml:"view" envPrefix:"LORENZ_VIEW_"`
	DataDir string     `yaml:"data_dir" env:"LORENZ_DATA_DIR"`
}

// ViewConfig controls the projection xx = x*cos(beta) + y*sin(beta)
// used by the live view and the SVG export. Param is the parameter the
// live view steps by DeltaR.
type ViewConfig struct {
	Beta      float64 `yaml:"beta" env:"BETA"`
	DeltaBeta float64 `yaml:"delta_beta" env:"DELTA_BETA"`
	DeltaR    float64 `yaml:"delta_r" env:"DELTA_R"`
	Param     string  `yaml:"param" env:"PARAM"`
	Theme     string  `yaml:"theme" env:"THEME"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:       DefaultModel,
		Tolerance:   DefaultTolerance,
		InitialStep: DefaultInitialStep,
		BlockSize:   DefaultBlockSize,
		Steps:       DefaultSteps,
		MaxShrinks:  DefaultMaxShrinks,
		View: ViewConfig{
			Beta:      DefaultBeta,
			DeltaBeta: DefaultDeltaBeta,
			DeltaR:    DefaultDeltaR,
			Param:     DefaultViewParam,
			Theme:     DefaultTheme,
		},
		DataDir: DefaultDataDir,
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.Params != nil {
		out.Params = make(map[string]float64, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	if c.InitState != nil {
		out.InitState = append([]float64(nil), c.InitState...)
	}
	return &out
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	return LoadOver(DefaultConfig(), path)
}

// LoadOver reads a YAML file over base, which is left untouched.
func LoadOver(base *Config, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := base.Clone()
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

// Resolve layers a config: preset (or defaults), then the file at path if
// any, then LORENZ_* environment variables. Command-line flags go on top
// in the caller.
func Resolve(model, preset, path string) (*Config, error) {
	cfg := DefaultConfig()
	if model != "" {
		cfg.Model = model
	}
	if preset != "" {
		p := GetPreset(cfg.Model, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset %q for model %q", preset, cfg.Model)
		}
		cfg = p
	}
	if path != "" {
		loaded, err := LoadOver(cfg, path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch {
	case c.Model == "":
		return fmt.Errorf("model is required")
	case !(c.Tolerance > 0) || math.IsInf(c.Tolerance, 0):
		return fmt.Errorf("tolerance must be positive, got %g", c.Tolerance)
	case c.InitialStep == 0 || math.IsNaN(c.InitialStep) || math.IsInf(c.InitialStep, 0):
		return fmt.Errorf("initial_step must be non-zero, got %g", c.InitialStep)
	case c.BlockSize <= 0:
		return fmt.Errorf("block_size must be positive, got %d", c.BlockSize)
	case c.Steps < 0:
		return fmt.Errorf("steps must not be negative, got %d", c.Steps)
	case c.Duration < 0:
		return fmt.Errorf("duration must not be negative, got %g", c.Duration)
	case c.MaxShrinks < 0:
		return fmt.Errorf("max_shrinks must not be negative, got %d", c.MaxShrinks)
	}
	return nil
}
