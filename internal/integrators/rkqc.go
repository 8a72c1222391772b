package integrators

import (
	"math"

	"github.com/san-kum/lorenz/internal/dynamo"
)

// Step-doubling quality control constants.
const (
	PGrow   = -0.2
	PShrink = -0.25
	FCor    = 1.0 / 15.0
	Safety  = 0.9
	// ErrCon is about (4/Safety)^(1/PGrow): below it growth is capped at 4x.
	ErrCon = 6.0e-4
	Tiny   = 1.0e-30

	DefaultTolerance   = 2.0e-5
	DefaultInitialStep = 0.005
	DefaultMaxShrinks  = 200
)

// Trial is one step-doubling attempt at a fixed h.
type Trial struct {
	Big    dynamo.State
	Small  dynamo.State
	Err    dynamo.State
	ErrMax float64
}

// RKQC wraps an RK4 stepper with step-doubling error control.
type RKQC struct {
	stepper    dynamo.Stepper
	MaxShrinks int
}

func NewRKQC() *RKQC {
	return &RKQC{
		stepper:    NewRK4(),
		MaxShrinks: DefaultMaxShrinks,
	}
}

// ErrorScale returns |y| + |h*dydt| + Tiny per component.
func ErrorScale(y, dydt dynamo.State, h float64) dynamo.State {
	scale := make(dynamo.State, len(y))
	for i := range y {
		scale[i] = math.Abs(y[i]) + math.Abs(h*dydt[i]) + Tiny
	}
	return scale
}

// Trial takes one full step and two half steps of size h and measures
// their disagreement against scale and eps. ErrMax is NaN if any
// component of the estimate is NaN, which happens when a trial step is
// large enough to overflow the vector field.
func (q *RKQC) Trial(f dynamo.DerivFunc, y, dydt dynamo.State, t, h, eps float64, scale dynamo.State) Trial {
	hh := 0.5 * h
	mid := q.stepper.Step(f, y, dydt, t, hh)
	tm := t + hh
	small := q.stepper.Step(f, mid, f(tm, mid), tm, hh)
	big := q.stepper.Step(f, y, dydt, t, h)

	diff := make(dynamo.State, len(y))
	errMax := 0.0
	for i := range y {
		diff[i] = small[i] - big[i]
		e := math.Abs(diff[i] / scale[i])
		if math.IsNaN(e) {
			errMax = math.NaN()
			continue
		}
		if e > errMax {
			errMax = e
		}
	}

	return Trial{Big: big, Small: small, Err: diff, ErrMax: errMax / eps}
}

// Step advances y by the largest h no greater than hTry that meets eps.
// Rejected trials shrink h by Safety*errmax^PShrink, never by more than a
// factor of 4 per retry. The accepted result carries the fifth-order
// correction Small + Err*FCor.
//
// Step fails with ErrStepUnderflow once t+h == t or after MaxShrinks
// rejections, and with ErrInvalidState if the estimate was still NaN at
// that point. Both arrive wrapped in a *dynamo.StepError.
func (q *RKQC) Step(f dynamo.DerivFunc, y, dydt dynamo.State, t, hTry, eps float64) (dynamo.StepResult, error) {
	if err := checkStep(y, dydt, t, hTry, eps); err != nil {
		return dynamo.StepResult{}, err
	}

	evals := 0
	counted := func(t float64, y dynamo.State) dynamo.State {
		evals++
		return f(t, y)
	}

	maxShrinks := q.MaxShrinks
	if maxShrinks <= 0 {
		maxShrinks = DefaultMaxShrinks
	}

	scale := ErrorScale(y, dydt, hTry)
	h := hTry
	shrinks := 0
	blewUp := false
	for {
		if t+h == t || shrinks > maxShrinks {
			cause := dynamo.ErrStepUnderflow
			if blewUp {
				cause = dynamo.ErrInvalidState
			}
			return dynamo.StepResult{}, &dynamo.StepError{T: t, H: h, Shrinks: shrinks, Err: cause}
		}

		tr := q.Trial(counted, y, dydt, t, h, eps, scale)
		blewUp = math.IsNaN(tr.ErrMax)

		if tr.ErrMax <= 1.0 {
			yNew := make(dynamo.State, len(y))
			for i := range yNew {
				yNew[i] = tr.Small[i] + tr.Err[i]*FCor
			}

			hNext := 4.0 * h
			if tr.ErrMax > ErrCon {
				hNext = Safety * h * math.Pow(tr.ErrMax, PGrow)
			}

			return dynamo.StepResult{
				Y:           yNew,
				HDid:        h,
				HNext:       hNext,
				Rejected:    shrinks,
				Evaluations: evals,
			}, nil
		}

		shrinks++
		// NaN and +Inf both take the 4x floor.
		hNew := 0.25 * h
		if !blewUp {
			if s := Safety * h * math.Pow(tr.ErrMax, PShrink); math.Abs(s) > math.Abs(hNew) {
				hNew = s
			}
		}
		h = hNew
	}
}

func checkStep(y, dydt dynamo.State, t, h, eps float64) error {
	switch {
	case len(y) == 0:
		return dynamo.ErrEmptyState
	case len(dydt) != len(y):
		return dynamo.ErrDimensionMismatch
	case !y.IsValid() || !dydt.IsValid() || math.IsNaN(t) || math.IsInf(t, 0):
		return dynamo.ErrInvalidState
	case h == 0 || math.IsNaN(h) || math.IsInf(h, 0):
		return dynamo.ErrInvalidStep
	case !(eps > 0) || math.IsInf(eps, 0):
		return dynamo.ErrInvalidTolerance
	}
	return nil
}
