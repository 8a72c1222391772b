package dynamo

import (
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// DerivFunc evaluates dy/dt at (t, y). It must not modify y.
type DerivFunc func(t float64, y State) State

type System interface {
	Derive(t float64, y State) State
	StateDim() int
}

// Configurable systems are immutable: WithParam returns a new System and
// leaves the receiver untouched, so a DerivFunc already handed out keeps
// seeing the parameters it was built with.
type Configurable interface {
	Params() map[string]float64
	WithParam(name string, value float64) (System, error)
}

// Defaulter is implemented by systems that know a sensible starting point.
type Defaulter interface {
	DefaultState() State
}

// Stepper advances y by exactly h and never fails.
type Stepper interface {
	Step(f DerivFunc, y, dydt State, t, h float64) State
}

// StepResult is what an adaptive step reports back to the driving loop.
// HDid is the step actually taken, HNext the suggested next trial step.
type StepResult struct {
	Y           State
	HDid        float64
	HNext       float64
	Rejected    int
	Evaluations int
}

type AdaptiveIntegrator interface {
	Step(f DerivFunc, y, dydt State, t, hTry, eps float64) (StepResult, error)
}
