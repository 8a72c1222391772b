package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/lorenz/internal/dynamo"
)

// Decay is dy/dt = -K*y in Dim components. It has a closed form, which
// makes it the reference problem for checking integrator order.
type Decay struct {
	K   float64
	Dim int
}

func NewDecay() Decay { return Decay{K: 1.0, Dim: 1} }

func (d Decay) StateDim() int {
	if d.Dim < 1 {
		return 1
	}
	return d.Dim
}

func (d Decay) Derive(_ float64, s dynamo.State) dynamo.State {
	dx := make(dynamo.State, len(s))
	for i, v := range s {
		dx[i] = -d.K * v
	}
	return dx
}

// Exact returns y0 * exp(-K*t).
func (d Decay) Exact(t float64, y0 dynamo.State) dynamo.State {
	return y0.Scale(math.Exp(-d.K * t))
}

func (d Decay) DefaultState() dynamo.State {
	s := make(dynamo.State, d.StateDim())
	for i := range s {
		s[i] = 1.0
	}
	return s
}

func (d Decay) Params() map[string]float64 { return map[string]float64{"k": d.K} }
func (d Decay) WithParam(n string, v float64) (dynamo.System, error) {
	if n != "k" {
		return nil, fmt.Errorf("decay %q: %w", n, dynamo.ErrUnknownParam)
	}
	d.K = v
	return d, nil
}
