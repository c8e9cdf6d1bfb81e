package filter

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/banshee-data/heartbeat/internal/monitoring"
)

// DefaultTransBandwidth is the width in Hz of both transition bands.
const DefaultTransBandwidth = 0.5

// DefaultLength is the filter length used when Params.Length is empty.
const DefaultLength = "10s"

var (
	// ErrInvalidParams is returned for band edges that cannot be realised
	// at the given sampling rate.
	ErrInvalidParams = errors.New("invalid filter parameters")
	// ErrInvalidLength is returned for an unparseable or non-positive
	// filter length.
	ErrInvalidLength = errors.New("invalid filter length")
)

// Params describes a band-pass filter. An edge that is zero or negative
// is disabled, so LFreq<=0 gives a low-pass filter and HFreq<=0 a
// high-pass filter.
type Params struct {
	LFreq float64
	HFreq float64
	// Length is a duration ("10s", "500ms") or a tap count ("2049").
	Length string

	LTransBandwidth float64
	HTransBandwidth float64
}

// Enabled reports whether either band edge is active.
func (p Params) Enabled() bool {
	return p.LFreq > 0 || p.HFreq > 0
}

func (p Params) ltb() float64 {
	if p.LTransBandwidth > 0 {
		return p.LTransBandwidth
	}
	return DefaultTransBandwidth
}

func (p Params) htb() float64 {
	if p.HTransBandwidth > 0 {
		return p.HTransBandwidth
	}
	return DefaultTransBandwidth
}

// Validate checks the band edges against the Nyquist frequency.
func (p Params) Validate(rate float64) error {
	if rate <= 0 || math.IsNaN(rate) {
		return fmt.Errorf("%w: sampling rate must be positive, got %g", ErrInvalidParams, rate)
	}
	nyq := rate / 2
	if p.HFreq > 0 && p.HFreq >= nyq {
		return fmt.Errorf("%w: h_freq (%g) must be less than the Nyquist frequency (%g)", ErrInvalidParams, p.HFreq, nyq)
	}
	if p.LFreq > 0 && p.LFreq >= nyq {
		return fmt.Errorf("%w: l_freq (%g) must be less than the Nyquist frequency (%g)", ErrInvalidParams, p.LFreq, nyq)
	}
	if p.LFreq > 0 && p.HFreq > 0 && p.LFreq >= p.HFreq {
		return fmt.Errorf("%w: l_freq (%g) must be less than h_freq (%g)", ErrInvalidParams, p.LFreq, p.HFreq)
	}
	return nil
}

// Taps converts a filter length such as "10s" or "501" into an odd number of filter taps.
func Taps(length string, rate float64) (int, error) {
	length = strings.TrimSpace(length)
	if length == "" {
		length = DefaultLength
	}
	var n int
	if v, err := strconv.Atoi(length); err == nil {
		n = v
	} else {
		d, err := time.ParseDuration(length)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is neither a tap count nor a duration", ErrInvalidLength, length)
		}
		n = int(math.Ceil(d.Seconds() * rate))
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %q gives %d taps", ErrInvalidLength, length, n)
	}
	if n%2 == 0 {
		n++
	}
	return n, nil
}

// response returns the breakpoints of the desired gain curve.
func (p Params) response(nyq float64) (freq, gain []float64) {
	lo, hi := p.LFreq > 0, p.HFreq > 0
	switch {
	case lo && hi:
		return []float64{0, math.Max(p.LFreq-p.ltb(), 0), p.LFreq, p.HFreq, math.Min(p.HFreq+p.htb(), nyq), nyq},
			[]float64{0, 0, 1, 1, 0, 0}
	case hi:
		return []float64{0, p.HFreq, math.Min(p.HFreq+p.htb(), nyq), nyq},
			[]float64{1, 1, 0, 0}
	default:
		return []float64{0, math.Max(p.LFreq-p.ltb(), 0), p.LFreq, nyq},
			[]float64{0, 0, 1, 1}
	}
}

// interp evaluates the piecewise-linear curve (xp, fp) at x. Breakpoints
// must be non-decreasing; zero-width segments are skipped.
func interp(x float64, xp, fp []float64) float64 {
	if x <= xp[0] {
		return fp[0]
	}
	last := len(xp) - 1
	if x >= xp[last] {
		return fp[last]
	}
	for j := 0; j < last; j++ {
		x0, x1 := xp[j], xp[j+1]
		if x1 <= x0 || x < x0 || x > x1 {
			continue
		}
		return fp[j] + (fp[j+1]-fp[j])*(x-x0)/(x1-x0)
	}
	return fp[last]
}

// Design returns n Hann-windowed FIR taps approximating the band of p.
func Design(p Params, rate float64, n int) ([]float64, error) {
	if err := p.Validate(rate); err != nil {
		return nil, err
	}
	if !p.Enabled() {
		return nil, fmt.Errorf("%w: no band edge enabled", ErrInvalidParams)
	}
	if n <= 0 || n%2 == 0 {
		return nil, fmt.Errorf("%w: tap count must be odd and positive, got %d", ErrInvalidLength, n)
	}

	nyq := rate / 2
	freq, gain := p.response(nyq)

	// Grid of 1+2^ceil(log2(n)) points from DC to Nyquist.
	nfreqs := 1 + 1<<bits.Len(uint(n-1))
	m := 2 * (nfreqs - 1)
	coeff := make([]complex128, nfreqs)
	delay := float64(n-1) / 2
	for k := range coeff {
		f := nyq * float64(k) / float64(nfreqs-1)
		g := interp(f, freq, gain)
		phase := -delay * math.Pi * f / nyq
		coeff[k] = complex(g*math.Cos(phase), g*math.Sin(phase))
	}

	full := fourier.NewFFT(m).Sequence(nil, coeff)
	h := make([]float64, n)
	for i := range h {
		h[i] = full[i] / float64(m)
	}
	return window.Hann(h), nil
}

// BandPass filters x with the zero-phase FIR described by p. The input
// is not modified. Parameter details are reported through logf; a nil
// logf discards them.
func BandPass(x []float64, rate float64, p Params, logf monitoring.LogFunc) ([]float64, error) {
	if logf == nil {
		logf = monitoring.Discard
	}
	if !p.Enabled() {
		return append([]float64(nil), x...), nil
	}
	if err := p.Validate(rate); err != nil {
		return nil, err
	}
	n, err := Taps(p.Length, rate)
	if err != nil {
		return nil, err
	}
	h, err := Design(p, rate, n)
	if err != nil {
		return nil, err
	}

	switch {
	case p.LFreq > 0 && p.HFreq > 0:
		logf("Setting up band-pass filter from %g - %g Hz", p.LFreq, p.HFreq)
	case p.HFreq > 0:
		logf("Setting up low-pass filter at %g Hz", p.HFreq)
	default:
		logf("Setting up high-pass filter at %g Hz", p.LFreq)
	}
	logf("- Two-pass forward and reverse, zero-phase, non-causal FIR (firwin2, Hann window)")
	logf("- Filter length: %d samples (%.3f s)", n, float64(n)/rate)
	if n > len(x) {
		logf("filter_length (%d) is longer than the signal (%d), distortion is likely. Reduce filter length or filter a longer signal.", n, len(x))
	}

	return applyZeroPhase(x, h), nil
}

// applyZeroPhase runs the symmetric FIR h twice over a reflect-padded
// copy of x and strips the padding.
func applyZeroPhase(x, h []float64) []float64 {
	if len(x) == 0 {
		return []float64{}
	}
	npad := min(len(h), len(x)) - 1
	y := padReflectLimited(x, npad)
	for pass := 0; pass < 2; pass++ {
		y = convolveSame(y, h)
	}
	out := make([]float64, len(x))
	copy(out, y[npad:npad+len(x)])
	return out
}

// padReflectLimited extends x by npad samples on each side using an odd
// reflection about the end samples. Padding that would need more samples
// than x has is zero.
func padReflectLimited(x []float64, npad int) []float64 {
	n := len(x)
	out := make([]float64, n+2*npad)
	copy(out[npad:], x)
	for k := 1; k <= npad; k++ {
		if k >= n {
			break
		}
		out[npad-k] = 2*x[0] - x[k]
		out[npad+n-1+k] = 2*x[n-1] - x[n-1-k]
	}
	return out
}
