package integrators

import "github.com/san-kum/lorenz/internal/dynamo"

// RK4 is the classical fourth-order Runge-Kutta stepper. It holds no
// scratch state, so one value may be shared by concurrent trajectories.
type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

// Step advances y from t to t+h. dydt must be f(t, y); it is used as the
// first stage and is not recomputed. y and dydt are left untouched.
func (r *RK4) Step(f dynamo.DerivFunc, y, dydt dynamo.State, t, h float64) dynamo.State {
	n := len(y)
	hh := h * 0.5
	th := t + hh
	scratch := make(dynamo.State, n)

	for i := 0; i < n; i++ {
		scratch[i] = y[i] + hh*dydt[i]
	}
	k2 := f(th, scratch)

	for i := 0; i < n; i++ {
		scratch[i] = y[i] + hh*k2[i]
	}
	k3 := f(th, scratch)

	for i := 0; i < n; i++ {
		scratch[i] = y[i] + h*k3[i]
	}
	k4 := f(t+h, scratch)

	result := make(dynamo.State, n)
	h6 := h / 6.0
	for i := 0; i < n; i++ {
		result[i] = y[i] + h6*(dydt[i]+2*k2[i]+2*k3[i]+k4[i])
	}

	return result
}
