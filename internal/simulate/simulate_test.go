package simulate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/heartbeat/internal/ecg/recording"
)

func TestECGDeterministic(t *testing.T) {
	a := NewECG(250, 72, 0.02, 9).Samples(1000)
	b := NewECG(250, 72, 0.02, 9).Samples(1000)
	c := NewECG(250, 72, 0.02, 10).Samples(1000)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestRPeaksMatchWaveformMaxima(t *testing.T) {
	const rate, bpm = 250.0, 60.0
	x := NewECG(rate, bpm, 0, 1).Samples(2500)
	peaks := RPeaks(rate, bpm, len(x))
	require.Len(t, peaks, 10)
	for k, p := range peaks {
		lo, hi := k*250, (k+1)*250
		assert.InDelta(t, p, lo+floats.MaxIdx(x[lo:hi]), 1, "beat %d", k)
	}
}

func TestPulseTrain(t *testing.T) {
	x := PulseTrain(100, 10, 60, 0.5, 0.01, 0, 1)
	require.Len(t, x, 1000)
	assert.InDelta(t, 1, x[50], 1e-9)
	assert.InDelta(t, 1, x[950], 1e-9)
	assert.InDelta(t, 0, x[100], 1e-9)
}

func TestRecording(t *testing.T) {
	o := DefaultOptions()
	o.Seconds = 5
	o.Mags = 3
	rec, err := Recording(o)
	require.NoError(t, err)
	require.NoError(t, rec.Validate())
	assert.Len(t, rec.Channels, 4)
	assert.Equal(t, 1250, rec.Len())
	assert.Equal(t, []int{1, 2, 3}, rec.Pick(recording.TypeMag))

	o.ECG = false
	o.Mags = 0
	_, err = Recording(o)
	assert.ErrorIs(t, err, recording.ErrInvalid)

	_, err = Recording(Options{Rate: 0, Seconds: 1, BPM: 60})
	assert.ErrorIs(t, err, recording.ErrInvalid)
}
