package metrics

import (
	"math"

	"github.com/san-kum/lorenz/internal/sim"
)

// StepSize tracks the accepted step lengths. Value is the mean |hdid|.
type StepSize struct {
	name    string
	sum     float64
	min     float64
	max     float64
	samples int
}

func NewStepSize() *StepSize {
	s := &StepSize{name: "mean_step"}
	s.Reset()
	return s
}

func (s *StepSize) Name() string {
	return s.name
}

func (s *StepSize) Observe(smp sim.Sample) {
	h := math.Abs(smp.HDid)
	s.sum += h
	s.min = math.Min(s.min, h)
	s.max = math.Max(s.max, h)
	s.samples++
}

func (s *StepSize) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return s.sum / float64(s.samples)
}

func (s *StepSize) Min() float64 {
	if s.samples == 0 {
		return 0
	}
	return s.min
}

func (s *StepSize) Max() float64 { return s.max }

func (s *StepSize) Reset() {
	s.sum = 0
	s.min = math.Inf(1)
	s.max = 0
	s.samples = 0
}
