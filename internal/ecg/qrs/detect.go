package qrs

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Defaults for Params.
const (
	DefaultLevels  = 2.5
	DefaultNThresh = 3
)

// Params configures Detect.
type Params struct {
	Threshold Threshold
	// Levels is the number of standard deviations above the mean window
	// RMS at which a window is rejected as an outlier.
	Levels float64
	// NThresh is the exclusive upper bound on threshold crossings per
	// window.
	NThresh int
	// StartSeconds skips a warm-up transient at the start of the signal.
	StartSeconds float64
	// Breaks lists indices of the amplitude signal at which a new
	// contiguous segment starts. Scan windows never extend across a
	// break. Must be sorted ascending.
	Breaks []int
	// Parallel evaluates threshold candidates concurrently.
	Parallel bool
}

// DefaultParams returns the automatic sweep with the standard outlier
// settings.
func DefaultParams() Params {
	return Params{
		Threshold: Auto(),
		Levels:    DefaultLevels,
		NThresh:   DefaultNThresh,
	}
}

// Peak is one above-threshold window found by Scan.
type Peak struct {
	// Index of the window maximum.
	Index int `json:"index"`
	// Crossings is the number of below-to-above transitions in the window,
	// counting an above-threshold first sample as one.
	Crossings int     `json:"crossings"`
	RMS       float64 `json:"rms"`
}

// Candidate is the outcome of one threshold fraction.
type Candidate struct {
	Fraction  float64 `json:"fraction"`
	Threshold float64 `json:"threshold"`
	Peaks     []Peak  `json:"peaks"`
	// Events are the surviving peak indices in amplitude-signal
	// coordinates (warm-up skip restored).
	Events []int `json:"events"`
	// Rate is the heart rate implied by Events over the whole signal.
	Rate float64 `json:"rate"`
	// Degenerate is set when the scan found no peak at all.
	Degenerate bool `json:"degenerate"`
}

// Detection is the result of Detect.
type Detection struct {
	// Events of the selected candidate, ascending.
	Events      []int       `json:"events"`
	Selected    int         `json:"selected"`
	TargetRate  float64     `json:"target_rate"`
	Candidates  []Candidate `json:"candidates"`
	WindowSize  int         `json:"window_size"`
	StartOffset int         `json:"start_offset"`
	InitMax     float64     `json:"init_max"`
	// Degenerate is set when the selected candidate found no peak, which
	// happens only when every candidate is degenerate.
	Degenerate bool     `json:"degenerate"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Rectify returns |x|.
func Rectify(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Abs(v)
	}
	return out
}

// Detect finds QRS events in amplitude, a rectified signal sampled at
// rate Hz. amplitude is not modified.
func Detect(rate float64, amplitude []float64, p Params) (Detection, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return Detection{}, fmt.Errorf("%w: sampling rate must be positive, got %g", ErrInsufficientData, rate)
	}
	if err := p.Threshold.Validate(); err != nil {
		return Detection{}, err
	}
	if p.StartSeconds < 0 || math.IsNaN(p.StartSeconds) {
		return Detection{}, fmt.Errorf("%w: tstart must be non-negative, got %g", ErrConfiguration, p.StartSeconds)
	}

	windowSize := max(int(math.Round(60*rate/120)), 1)
	calib := int(math.Round(rate))
	startOffset := int(math.Round(rate * p.StartSeconds))
	if calib < 1 || startOffset > len(amplitude) || len(amplitude)-startOffset < 3*calib {
		return Detection{}, fmt.Errorf("%w: need %d samples after skipping %d, have %d",
			ErrInsufficientData, 3*calib, startOffset, max(len(amplitude)-startOffset, 0))
	}
	x := amplitude[startOffset:]

	initMax := (floats.Max(x[:calib]) + floats.Max(x[calib:2*calib]) + floats.Max(x[2*calib:3*calib])) / 3

	breaks := shiftBreaks(p.Breaks, startOffset)
	fractions := p.Threshold.Fractions()
	cands := make([]Candidate, len(fractions))
	evaluate := func(k int) {
		cands[k] = evaluateCandidate(x, fractions[k], initMax, windowSize, breaks, p.Levels, p.NThresh, startOffset)
	}
	if p.Parallel && len(fractions) > 1 {
		var wg sync.WaitGroup
		for k := range fractions {
			wg.Add(1)
			go func(k int) {
				defer wg.Done()
				evaluate(k)
			}(k)
		}
		wg.Wait()
	} else {
		for k := range fractions {
			evaluate(k)
		}
	}

	duration := float64(len(amplitude)) / rate
	rates := make([]float64, len(cands))
	var warnings []string
	for k := range cands {
		cands[k].Rate = 60 * float64(len(cands[k].Events)) / duration
		rates[k] = cands[k].Rate
		if cands[k].Degenerate {
			warnings = append(warnings, fmt.Sprintf("threshold %.2f found no QRS candidates", cands[k].Fraction))
		}
	}

	best, target := Select(rates)
	return Detection{
		Events:      append([]int{}, cands[best].Events...),
		Selected:    best,
		TargetRate:  target,
		Candidates:  cands,
		WindowSize:  windowSize,
		StartOffset: startOffset,
		InitMax:     initMax,
		Degenerate:  cands[best].Degenerate,
		Warnings:    warnings,
	}, nil
}

func evaluateCandidate(x []float64, fraction, initMax float64, windowSize int, breaks []int, levels float64, nThresh, startOffset int) Candidate {
	threshold := initMax * fraction
	peaks := Scan(x, threshold, windowSize, breaks)
	c := Candidate{
		Fraction:   fraction,
		Threshold:  threshold,
		Peaks:      peaks,
		Degenerate: len(peaks) == 0,
	}
	c.Events = Clean(peaks, levels, nThresh)
	for i := range c.Events {
		c.Events[i] += startOffset
	}
	return c
}

// shiftBreaks moves breaks into the coordinates of the trimmed signal,
// dropping those at or before the trim point.
func shiftBreaks(breaks []int, offset int) []int {
	var out []int
	for _, b := range breaks {
		if b > offset {
			out = append(out, b-offset)
		}
	}
	return out
}

// Scan walks x once. At each sample above threshold it records the
// window of windowSize samples starting there (cut short at the next
// break) and jumps past it; otherwise it advances one sample.
func Scan(x []float64, threshold float64, windowSize int, breaks []int) []Peak {
	var peaks []Peak
	n := len(x)
	b := 0
	for i := 0; i < n-windowSize; {
		for b < len(breaks) && breaks[b] <= i {
			b++
		}
		if !(x[i] > threshold) {
			i++
			continue
		}
		end := i + windowSize
		if b < len(breaks) && breaks[b] < end {
			end = breaks[b]
		}
		w := x[i:end]
		peaks = append(peaks, Peak{
			Index:     i + floats.MaxIdx(w),
			Crossings: risingEdges(w, threshold),
			RMS:       math.Sqrt(floats.Dot(w, w) / float64(len(w))),
		})
		i = end
	}
	return peaks
}

// risingEdges counts below-to-above transitions of w, treating the sample
// before w as below threshold.
func risingEdges(w []float64, threshold float64) int {
	count := 0
	above := false
	for _, v := range w {
		now := v > threshold
		if now && !above {
			count++
		}
		above = now
	}
	return count
}

// Clean keeps the peaks whose RMS is below mean+levels*std of all peak
// RMS values and whose crossing count is below nThresh. The result is
// never nil.
func Clean(peaks []Peak, levels float64, nThresh int) []int {
	events := []int{}
	if len(peaks) == 0 {
		return events
	}
	rms := make([]float64, len(peaks))
	for i, pk := range peaks {
		rms[i] = pk.RMS
	}
	mean, std := stat.PopMeanStdDev(rms, nil)
	limit := mean + levels*std
	for _, pk := range peaks {
		if pk.RMS < limit && pk.Crossings < nThresh {
			events = append(events, pk.Index)
		}
	}
	return events
}
