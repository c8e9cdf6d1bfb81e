// Package simulate generates deterministic synthetic recordings for tests,
// demos and the -simulate mode of the heartbeat command.
package simulate

import (
	"math"
	"math/rand/v2"
)

// rPhase is the position of the R wave within a cardiac cycle.
const rPhase = 0.32

// ECG produces a non-clinical ECG-like trace: baseline wander, Gaussian
// P, Q, R, S and T waves, and seeded uniform noise.
type ECG struct {
	rate  float64
	bpm   float64
	noise float64
	// RAmplitude scales the R wave.
	RAmplitude float64

	phase float64
	n     int
	rng   *rand.Rand
}

// NewECG returns a generator at rate Hz and bpm beats per minute with
// uniform noise in [-noise, noise].
func NewECG(rate, bpm, noise float64, seed uint64) *ECG {
	return &ECG{
		rate:       rate,
		bpm:        bpm,
		noise:      noise,
		RAmplitude: 1,
		rng:        rand.New(rand.NewPCG(seed, seed^0x2545f4914f6cdd1d)),
	}
}

// Next returns the next sample.
func (s *ECG) Next() float64 {
	t := s.phase
	sec := float64(s.n) / s.rate

	baseline := 0.05 * math.Sin(2*math.Pi*0.33*sec)
	p := 0.08 * gauss(t, 0.18, 0.03)
	q := -0.12 * gauss(t, 0.30, 0.01)
	r := s.RAmplitude * gauss(t, rPhase, 0.008)
	sw := -0.25 * gauss(t, 0.35, 0.012)
	tw := 0.25 * gauss(t, 0.60, 0.06)
	n := s.noise * (2*s.rng.Float64() - 1)

	s.n++
	s.phase += s.bpm / 60 / s.rate
	if s.phase >= 1 {
		s.phase -= 1
	}
	return baseline + p + q + r + sw + tw + n
}

// Samples returns the next n samples.
func (s *ECG) Samples(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Next()
	}
	return out
}

// RPeaks returns the sample indices of the R waves in the first n samples
// of a fresh generator with the same rate and bpm.
func RPeaks(rate, bpm float64, n int) []int {
	period := 60 / bpm * rate
	var out []int
	for k := 0; ; k++ {
		i := int(math.Round((float64(k) + rPhase) * period))
		if i >= n {
			return out
		}
		out = append(out, i)
	}
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

// PulseTrain returns Gaussian pulses of the given width (seconds) every
// 60/bpm seconds starting at first, plus uniform noise.
func PulseTrain(rate, seconds, bpm, first, width, noise float64, seed uint64) []float64 {
	n := int(seconds * rate)
	x := make([]float64, n)
	for c := first; c < seconds; c += 60 / bpm {
		lo := max(int((c-10*width)*rate), 0)
		hi := min(int((c+10*width)*rate)+1, n)
		for i := lo; i < hi; i++ {
			x[i] += gauss(float64(i)/rate, c, width)
		}
	}
	rng := rand.New(rand.NewPCG(seed, ^seed))
	for i := range x {
		x[i] += noise * (2*rng.Float64() - 1)
	}
	return x
}
