package analysis

import "github.com/san-kum/lorenz/internal/sim"

// ZMaxima returns the successive local maxima of component index along a
// recorded trajectory. Each maximum is refined by fitting a parabola
// through the three samples around it.
func ZMaxima(samples []sim.Sample, index int) []float64 {
	maxima := make([]float64, 0)
	if len(samples) < 3 || index < 0 {
		return maxima
	}
	for i := 1; i+1 < len(samples); i++ {
		if index >= len(samples[i].Y) {
			return maxima
		}
		a := samples[i-1].Y[index]
		b := samples[i].Y[index]
		c := samples[i+1].Y[index]
		if b > a && b >= c {
			maxima = append(maxima, peak(samples[i-1].T, samples[i].T, samples[i+1].T, a, b, c))
		}
	}
	return maxima
}

// peak is the vertex height of the parabola through three points, or b
// when they are degenerate.
func peak(t0, t1, t2, a, b, c float64) float64 {
	d0 := t1 - t0
	d1 := t2 - t1
	if d0 <= 0 || d1 <= 0 {
		return b
	}
	// Divided differences of the interpolating quadratic.
	s0 := (b - a) / d0
	s1 := (c - b) / d1
	curv := (s1 - s0) / (t2 - t0)
	if curv >= 0 {
		return b
	}
	slopeAtT1 := s0 + curv*d0
	v := b - slopeAtT1*slopeAtT1/(4*curv)
	if v < b {
		return b
	}
	return v
}

// LorenzMap pairs each maximum with the next one, (z_n, z_n+1).
func LorenzMap(maxima []float64) [][2]float64 {
	if len(maxima) < 2 {
		return nil
	}
	out := make([][2]float64, len(maxima)-1)
	for i := range out {
		out[i] = [2]float64{maxima[i], maxima[i+1]}
	}
	return out
}
