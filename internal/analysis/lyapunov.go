package analysis

import (
	"fmt"
	"math"

	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/sim"
)

// RenormEvery is how many accepted steps pass between renormalisations
// of the separation vector.
const RenormEvery = 10

// pair integrates a reference and a perturbed trajectory as one system so
// both see the same adaptive steps.
type pair struct {
	sys dynamo.System
	n   int
}

func (p pair) StateDim() int { return 2 * p.n }

func (p pair) Derive(t float64, y dynamo.State) dynamo.State {
	out := make(dynamo.State, 0, 2*p.n)
	out = append(out, p.sys.Derive(t, y[:p.n])...)
	return append(out, p.sys.Derive(t, y[p.n:])...)
}

// LyapunovExponent estimates the largest Lyapunov exponent by the
// trajectory separation method. The perturbed copy starts d0 away along
// the first axis and is pulled back to distance d0 every RenormEvery
// steps; the exponent is the summed log growth over elapsed time.
func LyapunovExponent(
	sys dynamo.System,
	integ dynamo.AdaptiveIntegrator,
	x0 dynamo.State,
	cfg sim.Config,
	steps int,
	d0 float64,
) (float64, error) {
	n := len(x0)
	if n == 0 {
		return 0, dynamo.ErrEmptyState
	}
	if n != sys.StateDim() {
		return 0, fmt.Errorf("%w: x0 has %d values, model wants %d",
			dynamo.ErrDimensionMismatch, n, sys.StateDim())
	}
	if steps < RenormEvery {
		return 0, fmt.Errorf("lyapunov: need at least %d steps, got %d", RenormEvery, steps)
	}
	if !(d0 > 0) {
		return 0, fmt.Errorf("lyapunov: separation must be positive, got %g", d0)
	}

	cfg.Record = false
	cfg.MaxSteps = 0
	cfg.Duration = 0
	d, err := sim.New(pair{sys: sys, n: n}, integ, cfg)
	if err != nil {
		return 0, err
	}

	joint := make(dynamo.State, 2*n)
	copy(joint, x0)
	copy(joint[n:], x0)
	joint[n] += d0
	if err := d.Reset(joint); err != nil {
		return 0, err
	}

	sumLog := 0.0
	for i := 1; i <= steps; i++ {
		if _, err := d.Step(); err != nil {
			return 0, err
		}
		if i%RenormEvery != 0 {
			continue
		}

		y := d.State()
		ref, offset := y[:n], y[n:].Sub(y[:n])
		sep := offset.Norm()
		if sep == 0 {
			continue
		}
		sumLog += math.Log(sep / d0)

		copy(y[n:], ref.Add(offset.Scale(d0/sep)))
		if err := d.Apply(sim.Restart{State: y}); err != nil {
			return 0, err
		}
	}

	if d.Time() == 0 {
		return 0, nil
	}
	return sumLog / d.Time(), nil
}
