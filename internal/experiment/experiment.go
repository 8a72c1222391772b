package experiment

import (
	"context"
	"fmt"
	"sort"

	"github.com/san-kum/lorenz/internal/config"
	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/integrators"
	"github.com/san-kum/lorenz/internal/sim"
)

// Experiment turns a resolved config into a ready-to-run driver.
type Experiment struct {
	cfg    *config.Config
	system dynamo.System
	integ  *integrators.RKQC
	y0     dynamo.State
	driver *sim.Driver
}

func New(cfg *config.Config, reg *Registry) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sys, err := reg.GetModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	sys, err = ApplyParams(sys, cfg.Params)
	if err != nil {
		return nil, err
	}

	y0, err := InitialState(sys, cfg.InitState)
	if err != nil {
		return nil, err
	}

	integ := integrators.NewRKQC()
	if cfg.MaxShrinks > 0 {
		integ.MaxShrinks = cfg.MaxShrinks
	}

	d, err := sim.New(sys, integ, SimConfig(cfg))
	if err != nil {
		return nil, err
	}
	for _, m := range reg.DefaultMetrics() {
		d.AddMetric(m)
	}
	if err := d.Reset(y0); err != nil {
		return nil, err
	}

	return &Experiment{cfg: cfg, system: sys, integ: integ, y0: y0, driver: d}, nil
}

// ApplyParams sets each named parameter in a stable order.
func ApplyParams(sys dynamo.System, params map[string]float64) (dynamo.System, error) {
	if len(params) == 0 {
		return sys, nil
	}
	cs, ok := sys.(dynamo.Configurable)
	if !ok {
		return nil, sim.ErrNotConfigurable
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		next, err := cs.WithParam(name, params[name])
		if err != nil {
			return nil, err
		}
		nc, ok := next.(dynamo.Configurable)
		if !ok {
			return next, nil
		}
		sys, cs = next, nc
	}
	return sys, nil
}

// InitialState uses the configured state, else the system's default.
func InitialState(sys dynamo.System, configured []float64) (dynamo.State, error) {
	if len(configured) > 0 {
		if len(configured) != sys.StateDim() {
			return nil, fmt.Errorf("%w: init_state has %d values, model wants %d",
				dynamo.ErrDimensionMismatch, len(configured), sys.StateDim())
		}
		return dynamo.State(configured).Clone(), nil
	}
	if d, ok := sys.(dynamo.Defaulter); ok {
		return d.DefaultState(), nil
	}
	return make(dynamo.State, sys.StateDim()), nil
}

func SimConfig(cfg *config.Config) sim.Config {
	sc := sim.DefaultConfig()
	sc.Tolerance = cfg.Tolerance
	sc.InitialStep = cfg.InitialStep
	sc.BlockSize = cfg.BlockSize
	sc.MaxSteps = cfg.Steps
	sc.Duration = cfg.Duration
	return sc
}

func (e *Experiment) Run(ctx context.Context, cmds <-chan sim.Command) (*sim.Result, error) {
	return e.driver.Run(ctx, cmds)
}

func (e *Experiment) Driver() *sim.Driver           { return e.driver }
func (e *Experiment) System() dynamo.System         { return e.system }
func (e *Experiment) Integrator() *integrators.RKQC { return e.integ }
func (e *Experiment) InitialState() dynamo.State    { return e.y0.Clone() }
func (e *Experiment) Config() *config.Config        { return e.cfg }
