package physics

import (
	"fmt"

	"github.com/san-kum/lorenz/internal/dynamo"
)

type Rossler struct{ A, B, C float64 }

func NewRossler() Rossler       { return Rossler{A: 0.2, B: 0.2, C: 5.7} }
func (r Rossler) StateDim() int { return 3 }

// Derive calculates the Rossler attractor derivatives.
func (r Rossler) Derive(_ float64, s dynamo.State) dynamo.State {
	return dynamo.State{-s[1] - s[2], s[0] + r.A*s[1], r.B + s[2]*(s[0]-r.C)}
}
func (r Rossler) DefaultState() dynamo.State { return dynamo.State{1.0, 1.0, 1.0} }
func (r Rossler) Params() map[string]float64 {
	return map[string]float64{"a": r.A, "b": r.B, "c": r.C}
}
func (r Rossler) WithParam(n string, v float64) (dynamo.System, error) {
	switch n {
	case "a":
		r.A = v
	case "b":
		r.B = v
	case "c":
		r.C = v
	default:
		return nil, fmt.Errorf("rossler %q: %w", n, dynamo.ErrUnknownParam)
	}
	return r, nil
}
