// Package physics provides the vector fields the integrator is driven with.
//
// Each model implements [dynamo.System] and [dynamo.Configurable]:
//
//   - [Lorenz]: convection rolls, the butterfly attractor
//   - [Rossler]: spiral chaos
//   - [Decay]: exponential decay with a closed-form solution
//
// Models are values. Changing a parameter builds a new model, so a
// derivative function captured by a running integrator never observes a
// half-applied change:
//
//	sys := physics.NewLorenz()
//	next, err := sys.WithParam("r", sys.R+0.4)
package physics
