package physics

import (
	"fmt"

	"github.com/san-kum/lorenz/internal/dynamo"
)

// Lorenz holds the Prandtl number Sigma, the Rayleigh number R and the
// aspect ratio B. It is a value type; WithParam returns a modified copy.
type Lorenz struct{ Sigma, R, B float64 }

func NewLorenz() Lorenz        { return Lorenz{Sigma: 10.0, R: 25.0, B: 8.0 / 3.0} }
func (l Lorenz) StateDim() int { return 3 }

// Derive calculates the Lorenz attractor derivatives.
func (l Lorenz) Derive(_ float64, s dynamo.State) dynamo.State {
	return dynamo.State{l.Sigma * (s[1] - s[0]), s[0]*(l.R-s[2]) - s[1], s[0]*s[1] - l.B*s[2]}
}
func (l Lorenz) DefaultState() dynamo.State { return dynamo.State{0.6, 0.65, 0.7} }
func (l Lorenz) Params() map[string]float64 {
	return map[string]float64{"sigma": l.Sigma, "r": l.R, "b": l.B}
}
func (l Lorenz) WithParam(n string, v float64) (dynamo.System, error) {
	switch n {
	case "sigma":
		l.Sigma = v
	case "r", "rho":
		l.R = v
	case "b", "beta":
		l.B = v
	default:
		return nil, fmt.Errorf("lorenz %q: %w", n, dynamo.ErrUnknownParam)
	}
	return l, nil
}
