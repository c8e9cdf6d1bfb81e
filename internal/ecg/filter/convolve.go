package filter

import "gonum.org/v1/gonum/dsp/fourier"

// directKernelMax is the kernel length below which direct convolution is
// used instead of the FFT.
const directKernelMax = 64

// Convolve returns the full linear convolution of x and h, of length
// len(x)+len(h)-1.
func Convolve(x, h []float64) []float64 {
	if len(x) == 0 || len(h) == 0 {
		return []float64{}
	}
	if len(h) < directKernelMax || len(x) < directKernelMax {
		return convolveDirect(x, h)
	}
	return convolveFFT(x, h)
}

func convolveDirect(x, h []float64) []float64 {
	out := make([]float64, len(x)+len(h)-1)
	for i, xv := range x {
		if xv == 0 {
			continue
		}
		for j, hv := range h {
			out[i+j] += xv * hv
		}
	}
	return out
}

func convolveFFT(x, h []float64) []float64 {
	n := len(x) + len(h) - 1
	size := 1
	for size < n {
		size <<= 1
	}
	fft := fourier.NewFFT(size)

	xp := make([]float64, size)
	copy(xp, x)
	hp := make([]float64, size)
	copy(hp, h)

	xc := fft.Coefficients(nil, xp)
	hc := fft.Coefficients(nil, hp)
	for i := range xc {
		xc[i] *= hc[i]
	}
	y := fft.Sequence(nil, xc)

	out := make([]float64, n)
	scale := 1 / float64(size)
	for i := range out {
		out[i] = y[i] * scale
	}
	return out
}

// convolveSame convolves x with the odd-length symmetric kernel h and
// returns the len(x) samples centred on the kernel, which cancels the
// kernel's group delay.
func convolveSame(x, h []float64) []float64 {
	full := Convolve(x, h)
	delay := (len(h) - 1) / 2
	return full[delay : delay+len(x)]
}
