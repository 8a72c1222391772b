package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/lorenz/internal/dynamo"
)

// ErrNotConfigurable is returned when a parameter command targets a system
// without tunable parameters.
var ErrNotConfigurable = errors.New("sim: system has no tunable parameters")

// Driver owns one trajectory: the current system, state, time and trial
// step. It is not safe for concurrent use; send Commands through Run
// instead of calling Apply from another goroutine.
type Driver struct {
	sys   dynamo.System
	integ dynamo.AdaptiveIntegrator
	cfg   Config

	y       dynamo.State
	initial dynamo.State
	t       float64
	h       float64

	steps       int
	rejections  int
	evaluations int
	quit        bool

	metrics   []Metric
	observers []Observer
}

func New(sys dynamo.System, integ dynamo.AdaptiveIntegrator, cfg Config) (*Driver, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if sys == nil || integ == nil {
		return nil, fmt.Errorf("sim: system and integrator are required")
	}
	return &Driver{
		sys:       sys,
		integ:     integ,
		cfg:       cfg,
		h:         cfg.InitialStep,
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
	}, nil
}

func (d *Driver) AddMetric(m Metric)     { d.metrics = append(d.metrics, m) }
func (d *Driver) AddObserver(o Observer) { d.observers = append(d.observers, o) }

func (d *Driver) System() dynamo.System { return d.sys }
func (d *Driver) State() dynamo.State   { return d.y.Clone() }
func (d *Driver) Time() float64         { return d.t }
func (d *Driver) NextStep() float64     { return d.h }
func (d *Driver) Steps() int            { return d.steps }
func (d *Driver) Rejections() int       { return d.rejections }
func (d *Driver) Evaluations() int      { return d.evaluations }
func (d *Driver) Config() Config        { return d.cfg }

// Reset starts a fresh trajectory from y0 at t=0 and clears counters and
// metrics.
func (d *Driver) Reset(y0 dynamo.State) error {
	if err := d.checkState(y0); err != nil {
		return err
	}
	d.y = y0.Clone()
	d.initial = y0.Clone()
	d.t = 0
	d.h = d.cfg.InitialStep
	d.steps = 0
	d.rejections = 0
	d.evaluations = 0
	d.quit = false
	for _, m := range d.metrics {
		m.Reset()
	}
	return nil
}

func (d *Driver) checkState(y dynamo.State) error {
	switch {
	case len(y) == 0:
		return dynamo.ErrEmptyState
	case len(y) != d.sys.StateDim():
		return fmt.Errorf("%w: state has %d components, system wants %d",
			dynamo.ErrDimensionMismatch, len(y), d.sys.StateDim())
	case !y.IsValid():
		return dynamo.ErrInvalidState
	}
	return nil
}

// Step takes one accepted adaptive step and notifies metrics and observers.
// On failure the driver keeps its last good state.
func (d *Driver) Step() (Sample, error) {
	if d.y == nil {
		return Sample{}, fmt.Errorf("sim: driver has no state, call Reset first")
	}

	f := d.sys.Derive
	dydt := f(d.t, d.y)
	d.evaluations++

	res, err := d.integ.Step(f, d.y, dydt, d.t, d.h, d.cfg.Tolerance)
	d.evaluations += res.Evaluations
	if err != nil {
		return Sample{}, &dynamo.SimulationError{
			Step:    d.steps,
			Time:    d.t,
			State:   d.y.Clone(),
			Wrapped: err,
		}
	}

	d.y = res.Y
	d.t += res.HDid
	d.h = res.HNext
	d.steps++
	d.rejections += res.Rejected

	s := Sample{
		Step:     d.steps,
		T:        d.t,
		Y:        d.y,
		HDid:     res.HDid,
		HNext:    res.HNext,
		Rejected: res.Rejected,
	}
	for _, m := range d.metrics {
		m.Observe(s)
	}
	for _, obs := range d.observers {
		obs.OnStep(s)
	}
	return s, nil
}

// Apply executes one command against the driver.
func (d *Driver) Apply(cmd Command) error {
	switch c := cmd.(type) {
	case Quit:
		d.quit = true
	case AdjustParam:
		cs, ok := d.sys.(dynamo.Configurable)
		if !ok {
			return ErrNotConfigurable
		}
		v, ok := cs.Params()[c.Name]
		if !ok {
			return fmt.Errorf("%w: %q", dynamo.ErrUnknownParam, c.Name)
		}
		return d.setParam(cs, c.Name, v+c.Delta)
	case SetParam:
		cs, ok := d.sys.(dynamo.Configurable)
		if !ok {
			return ErrNotConfigurable
		}
		return d.setParam(cs, c.Name, c.Value)
	case Restart:
		if err := d.checkState(c.State); err != nil {
			return err
		}
		d.y = c.State.Clone()
		d.h = d.cfg.InitialStep
	case Nudge:
		if c.Index < 0 || c.Index >= len(d.y) {
			return fmt.Errorf("sim: nudge index %d out of range [0,%d)", c.Index, len(d.y))
		}
		if math.IsNaN(c.Delta) || math.IsInf(c.Delta, 0) {
			return dynamo.ErrInvalidState
		}
		// Samples already handed out alias d.y.
		next := d.y.Clone()
		next[c.Index] += c.Delta
		d.y = next
	default:
		return fmt.Errorf("sim: unknown command %T", cmd)
	}
	return nil
}

func (d *Driver) setParam(cs dynamo.Configurable, name string, value float64) error {
	next, err := cs.WithParam(name, value)
	if err != nil {
		return err
	}
	d.sys = next
	return nil
}

// Run steps until a Quit command, MaxSteps, Duration, context cancellation
// or an integration failure. Commands are drained every BlockSize steps;
// cmds may be nil. The returned Result is non-nil even on error.
func (d *Driver) Run(ctx context.Context, cmds <-chan Command) (*Result, error) {
	if d.y == nil {
		return nil, fmt.Errorf("sim: driver has no state, call Reset first")
	}

	result := &Result{
		Initial: d.initial.Clone(),
		Metrics: make(map[string]float64),
	}
	if d.cfg.Record {
		capHint := d.cfg.MaxSteps
		if capHint <= 0 || capHint > 1<<16 {
			capHint = 1024
		}
		result.Samples = make([]Sample, 0, capHint)
	}

	var runErr error
	taken := 0
	for {
		select {
		case <-ctx.Done():
			result.Stopped = StopCanceled
			runErr = ctx.Err()
		default:
		}
		if runErr != nil {
			break
		}

		if taken%d.cfg.BlockSize == 0 {
			if err := d.drain(cmds); err != nil {
				result.Stopped = StopFailed
				runErr = err
				break
			}
		}
		if d.quit {
			result.Stopped = StopQuit
			break
		}
		if d.cfg.MaxSteps > 0 && taken >= d.cfg.MaxSteps {
			result.Stopped = StopSteps
			break
		}
		if d.cfg.Duration > 0 && math.Abs(d.t) >= d.cfg.Duration {
			result.Stopped = StopDuration
			break
		}

		s, err := d.Step()
		if err != nil {
			result.Stopped = StopFailed
			runErr = err
			break
		}
		taken++
		if d.cfg.Record {
			result.Samples = append(result.Samples, s)
		}
	}

	d.finish(result)
	return result, runErr
}

func (d *Driver) drain(cmds <-chan Command) error {
	if cmds == nil {
		return nil
	}
	for {
		select {
		case cmd, ok := <-cmds:
			if !ok {
				return nil
			}
			if err := d.Apply(cmd); err != nil {
				return fmt.Errorf("apply %T: %w", cmd, err)
			}
		default:
			return nil
		}
	}
}

func (d *Driver) finish(result *Result) {
	result.Final = d.y.Clone()
	result.T = d.t
	result.StepsTaken = d.steps
	result.Rejections = d.rejections
	result.Evaluations = d.evaluations
	if cs, ok := d.sys.(dynamo.Configurable); ok {
		result.Params = cs.Params()
	}
	for _, m := range d.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
}

func validateConfig(cfg Config) error {
	if !(cfg.Tolerance > 0) || math.IsInf(cfg.Tolerance, 0) {
		return fmt.Errorf("%w, got %g", dynamo.ErrInvalidTolerance, cfg.Tolerance)
	}
	if cfg.InitialStep == 0 || math.IsNaN(cfg.InitialStep) || math.IsInf(cfg.InitialStep, 0) {
		return fmt.Errorf("%w, got %g", dynamo.ErrInvalidStep, cfg.InitialStep)
	}
	if cfg.BlockSize <= 0 {
		return fmt.Errorf("block size must be positive, got %d", cfg.BlockSize)
	}
	if cfg.MaxSteps < 0 {
		return fmt.Errorf("max steps must not be negative, got %d", cfg.MaxSteps)
	}
	if cfg.Duration < 0 || math.IsNaN(cfg.Duration) {
		return fmt.Errorf("duration must not be negative, got %g", cfg.Duration)
	}
	return nil
}
