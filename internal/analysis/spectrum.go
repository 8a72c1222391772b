package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/san-kum/lorenz/internal/sim"
)

// Resample linearly interpolates component index of an adaptive run onto
// a uniform grid of spacing dt starting at the first sample.
func Resample(samples []sim.Sample, index int, dt float64) ([]float64, error) {
	if !(dt > 0) {
		return nil, fmt.Errorf("resample: dt must be positive, got %g", dt)
	}
	if len(samples) < 2 {
		return nil, fmt.Errorf("resample: need at least 2 samples, got %d", len(samples))
	}
	if index < 0 || index >= len(samples[0].Y) {
		return nil, fmt.Errorf("resample: index %d out of range", index)
	}

	t0 := samples[0].T
	span := samples[len(samples)-1].T - t0
	n := int(span/dt) + 1
	out := make([]float64, n)

	j := 0
	for i := range out {
		t := t0 + float64(i)*dt
		for j+1 < len(samples)-1 && samples[j+1].T < t {
			j++
		}
		a, b := samples[j], samples[j+1]
		frac := 0.0
		if b.T > a.T {
			frac = (t - a.T) / (b.T - a.T)
		}
		frac = math.Max(0, math.Min(1, frac))
		out[i] = a.Y[index] + frac*(b.Y[index]-a.Y[index])
	}
	return out, nil
}

// PowerSpectrum returns the one-sided power of a uniformly sampled signal
// after removing its mean and applying a Hann window. freqs are in cycles
// per unit time.
func PowerSpectrum(signal []float64, dt float64) (freqs, power []float64) {
	n := len(signal)
	if n < 2 || !(dt > 0) {
		return nil, nil
	}

	mean := 0.0
	for _, v := range signal {
		mean += v
	}
	mean /= float64(n)

	x := make([]float64, n)
	for i, v := range signal {
		x[i] = v - mean
	}
	window.Apply(x, window.Hann)

	spec := fft.FFTReal(x)
	half := n/2 + 1
	freqs = make([]float64, half)
	power = make([]float64, half)
	for k := 0; k < half; k++ {
		freqs[k] = float64(k) / (float64(n) * dt)
		a := cmplx.Abs(spec[k])
		power[k] = a * a / float64(n)
	}
	return freqs, power
}

// DominantFrequency is the non-zero frequency with the most power.
func DominantFrequency(freqs, power []float64) float64 {
	best, at := 0.0, 0.0
	for k := 1; k < len(power) && k < len(freqs); k++ {
		if power[k] > best {
			best, at = power[k], freqs[k]
		}
	}
	return at
}
