// Package filter implements the zero-phase FIR band-pass filter used to
// isolate QRS energy before peak detection.
//
// Taps are designed by frequency sampling (firwin2 style): the desired
// piecewise-linear gain is sampled on a power-of-two grid, inverted with a
// real FFT, truncated to the requested length and shaped with a Hann
// window. The filter is applied twice (forward and reverse), so the
// magnitude response is squared and the phase response cancels.
package filter
