package sim

import (
	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/integrators"
)

// Sample is one accepted step as seen by observers.
type Sample struct {
	Step     int
	T        float64
	Y        dynamo.State
	HDid     float64
	HNext    float64
	Rejected int
}

type Observer interface {
	OnStep(s Sample)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(s Sample)

func (f ObserverFunc) OnStep(s Sample) { f(s) }

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Config struct {
	Tolerance   float64
	InitialStep float64
	// BlockSize is how many accepted steps pass between command polls.
	BlockSize int
	// MaxSteps and Duration bound Run; zero means unbounded.
	MaxSteps int
	Duration float64
	Record   bool
}

func DefaultConfig() Config {
	return Config{
		Tolerance:   integrators.DefaultTolerance,
		InitialStep: integrators.DefaultInitialStep,
		BlockSize:   50,
		Record:      true,
	}
}

type Result struct {
	Samples     []Sample
	Initial     dynamo.State
	Final       dynamo.State
	T           float64
	StepsTaken  int
	Rejections  int
	Evaluations int
	Params      map[string]float64
	Metrics     map[string]float64
	Stopped     StopReason
	// Err is the integration failure of a member kept by an Ensemble
	// with KeepFailed set.
	Err error
}

type StopReason string

const (
	StopQuit     StopReason = "quit"
	StopSteps    StopReason = "max-steps"
	StopDuration StopReason = "duration"
	StopCanceled StopReason = "canceled"
	StopFailed   StopReason = "failed"
)
