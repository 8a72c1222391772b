// Package dynamo provides core primitives for integrating ordinary
// differential equations.
//
// The package defines the fundamental types shared by the integrators,
// the vector fields and the driving loop:
//
//   - [State]: vector representing the dynamical variables at one time
//   - [DerivFunc]: the derivative-evaluation callback f(t, y)
//   - [System]: a vector field that can hand out its [DerivFunc]
//   - [Configurable]: systems whose parameters can be varied by
//     building a new, immutable system
//
// # Example
//
//	sys := physics.NewLorenz()
//	f := sys.Derive
//	dydt := f(0, y0)
//	step, err := integrators.NewRKQC().Step(f, y0, dydt, 0, 0.005, 2e-5)
//
// # Thread Safety
//
// States are plain slices and are not safe for concurrent mutation. Systems
// are values and may be shared freely between goroutines; each trajectory
// must own its own State.
package dynamo
