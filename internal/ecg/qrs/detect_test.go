package qrs

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pulseTrain builds a rectified train of Gaussian pulses with a little
// uniform noise so that window RMS values differ.
func pulseTrain(rate, seconds, bpm float64, seed uint64) []float64 {
	n := int(seconds * rate)
	x := make([]float64, n)
	period := 60 / bpm
	for c := 0.5; c < seconds; c += period {
		lo := max(int((c-0.1)*rate), 0)
		hi := min(int((c+0.1)*rate)+1, n)
		for i := lo; i < hi; i++ {
			d := (float64(i)/rate - c) / 0.01
			x[i] += math.Exp(-0.5 * d * d)
		}
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := range x {
		x[i] = math.Abs(x[i] + (rng.Float64()*2-1)*0.02)
	}
	return x
}

func TestDetectPeriodicPulses(t *testing.T) {
	const rate = 250.0
	x := pulseTrain(rate, 120, 72, 1)
	orig := append([]float64(nil), x...)

	det, err := Detect(rate, x, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, orig, x, "input must not be modified")

	assert.Len(t, det.Candidates, 16)
	assert.Equal(t, 125, det.WindowSize)
	assert.False(t, det.Degenerate)
	assert.InDelta(t, 144, len(det.Events), 2)
	assert.InDelta(t, 72, det.Candidates[det.Selected].Rate, 2)
	for i := 1; i < len(det.Events); i++ {
		assert.Greater(t, det.Events[i], det.Events[i-1])
	}
	for _, e := range det.Events {
		assert.GreaterOrEqual(t, e, 0)
		assert.Less(t, e, len(x))
	}
}

func TestDetectEventsNearPulseCentres(t *testing.T) {
	const rate = 250.0
	x := pulseTrain(rate, 30, 60, 7)
	det, err := Detect(rate, x, DefaultParams())
	require.NoError(t, err)
	require.NotEmpty(t, det.Events)
	for _, e := range det.Events {
		sec := float64(e) / rate
		// Pulses sit at 0.5, 1.5, 2.5, ...
		frac := math.Mod(sec-0.5, 1)
		if frac > 0.5 {
			frac -= 1
		}
		assert.InDelta(t, 0, frac, 0.02, "event at %.3fs", sec)
	}
}

func TestDetectAllZeros(t *testing.T) {
	det, err := Detect(100, make([]float64, 1000), DefaultParams())
	require.NoError(t, err)
	assert.True(t, det.Degenerate)
	assert.Equal(t, 0, det.Selected)
	assert.Empty(t, det.Events)
	assert.NotNil(t, det.Events)
	assert.Len(t, det.Warnings, 16)
	for _, c := range det.Candidates {
		assert.True(t, c.Degenerate)
		assert.Zero(t, c.Rate)
	}
	assert.Equal(t, DefaultTargetRate, det.TargetRate)
}

func TestDetectInsufficientData(t *testing.T) {
	_, err := Detect(100, make([]float64, 299), DefaultParams())
	assert.ErrorIs(t, err, ErrInsufficientData)

	p := DefaultParams()
	p.StartSeconds = 1
	_, err = Detect(100, make([]float64, 350), p)
	assert.ErrorIs(t, err, ErrInsufficientData)

	p.StartSeconds = 10
	_, err = Detect(100, make([]float64, 350), p)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Detect(0, make([]float64, 350), DefaultParams())
	assert.Error(t, err)
}

func TestDetectRejectsBadThreshold(t *testing.T) {
	p := DefaultParams()
	p.Threshold = Fixed(1.2)
	_, err := Detect(100, make([]float64, 1000), p)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestDetectFixedThreshold(t *testing.T) {
	const rate = 250.0
	x := pulseTrain(rate, 60, 60, 3)
	p := DefaultParams()
	p.Threshold = Fixed(0.5)
	det, err := Detect(rate, x, p)
	require.NoError(t, err)
	require.Len(t, det.Candidates, 1)
	assert.Equal(t, 0, det.Selected)
	assert.InDelta(t, 0.5*det.InitMax, det.Candidates[0].Threshold, 1e-12)
	assert.InDelta(t, 60, len(det.Events), 2)
}

func TestDetectStartOffsetRestoresCoordinates(t *testing.T) {
	const rate = 250.0
	x := pulseTrain(rate, 60, 60, 11)
	p := DefaultParams()
	p.StartSeconds = 5
	det, err := Detect(rate, x, p)
	require.NoError(t, err)
	assert.Equal(t, 1250, det.StartOffset)
	require.NotEmpty(t, det.Events)
	assert.GreaterOrEqual(t, det.Events[0], 1250)
	// The first retained pulse is the one at 5.5s.
	assert.InDelta(t, 5.5*rate, det.Events[0], 5)
}

func TestDetectParallelMatchesSequential(t *testing.T) {
	const rate = 250.0
	x := pulseTrain(rate, 60, 85, 5)
	seq, err := Detect(rate, x, DefaultParams())
	require.NoError(t, err)

	p := DefaultParams()
	p.Parallel = true
	par, err := Detect(rate, x, p)
	require.NoError(t, err)
	if diff := cmp.Diff(seq, par); diff != "" {
		t.Errorf("parallel detection differs (-seq +par):\n%s", diff)
	}
}

func TestScanRespectsBreaks(t *testing.T) {
	x := make([]float64, 200)
	for i := 96; i < 100; i++ {
		x[i] = 1
	}
	x[98] = 2
	for i := 100; i < 104; i++ {
		x[i] = 1
	}
	x[101] = 3

	peaks := Scan(x, 0.5, 20, nil)
	require.Len(t, peaks, 1)
	assert.Equal(t, 101, peaks[0].Index)
	assert.Equal(t, 1, peaks[0].Crossings)

	peaks = Scan(x, 0.5, 20, []int{100})
	require.Len(t, peaks, 2)
	assert.Equal(t, 98, peaks[0].Index)
	assert.Equal(t, 101, peaks[1].Index)
}

func TestScanStopsBeforeLastWindow(t *testing.T) {
	x := make([]float64, 50)
	x[45] = 1
	assert.Empty(t, Scan(x, 0.5, 10, nil))
	x[39] = 1
	peaks := Scan(x, 0.5, 10, nil)
	require.Len(t, peaks, 1)
	assert.Equal(t, 39, peaks[0].Index)
	assert.Equal(t, 2, peaks[0].Crossings)
}

func TestRisingEdges(t *testing.T) {
	testCases := []struct {
		name string
		w    []float64
		want int
	}{
		{"none", []float64{0, 0, 0}, 0},
		{"starts_above", []float64{1, 1, 0}, 1},
		{"single", []float64{0, 1, 1, 0}, 1},
		{"double", []float64{1, 0, 1, 0}, 2},
		{"triple", []float64{1, 0, 1, 0, 1}, 3},
		{"equal_is_not_above", []float64{0.5, 0.5}, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, risingEdges(tc.w, 0.5))
		})
	}
}

func TestClean(t *testing.T) {
	peaks := []Peak{
		{Index: 10, Crossings: 1, RMS: 1.0},
		{Index: 20, Crossings: 1, RMS: 1.1},
		{Index: 30, Crossings: 3, RMS: 0.9},
		{Index: 40, Crossings: 2, RMS: 1.05},
		{Index: 50, Crossings: 1, RMS: 0.95},
		{Index: 60, Crossings: 1, RMS: 1.0},
		{Index: 70, Crossings: 1, RMS: 1.02},
		{Index: 80, Crossings: 1, RMS: 0.98},
		{Index: 90, Crossings: 1, RMS: 50},
	}
	got := Clean(peaks, DefaultLevels, DefaultNThresh)
	assert.Equal(t, []int{10, 20, 40, 50, 60, 70, 80}, got)

	assert.Equal(t, []int{}, Clean(nil, DefaultLevels, DefaultNThresh))

	// Identical RMS values are all rejected: none is strictly below mean+0.
	same := []Peak{{Index: 1, RMS: 2}, {Index: 2, RMS: 2}}
	assert.Empty(t, Clean(same, DefaultLevels, DefaultNThresh))
}

func TestSelect(t *testing.T) {
	testCases := []struct {
		name       string
		rates      []float64
		wantBest   int
		wantTarget float64
	}{
		{"median_of_plausible", []float64{0, 60, 70, 72, 200}, 2, 70},
		{"tie_goes_to_first", []float64{0, 70, 72, 200}, 1, 71},
		{"none_plausible", []float64{0, 200, 30}, 2, 80},
		{"bounds_inclusive", []float64{40, 160}, 0, 100},
		{"single", []float64{0}, 0, 80},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			best, target := Select(tc.rates)
			assert.Equal(t, tc.wantBest, best)
			assert.Equal(t, tc.wantTarget, target)
		})
	}
}

func TestRectify(t *testing.T) {
	assert.Equal(t, []float64{1, 0, 2.5}, Rectify([]float64{-1, 0, 2.5}))
}
