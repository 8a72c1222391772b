// Package analysis provides chaos diagnostics built on the adaptive driver.
//
//   - [LyapunovExponent]: largest exponent from two co-integrated trajectories
//   - [ZMaxima] and [LorenzMap]: successive maxima of one component
//   - [Bifurcation]: maxima over a parameter sweep, run as an ensemble
//   - [PowerSpectrum]: windowed FFT of a uniformly resampled component
//   - [PhasePortrait] and [PoincareSection]: projections of a recorded run
//
// # Chaos Detection
//
// A positive largest Lyapunov exponent indicates chaotic dynamics:
//
//	lambda, err := analysis.LyapunovExponent(sys, integ, x0, cfg, 20000, 1e-8)
//	if err == nil && lambda > 0 {
//	    // System is chaotic
//	}
package analysis
