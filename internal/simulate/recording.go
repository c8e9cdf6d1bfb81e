package simulate

import (
	"fmt"
	"math/rand/v2"

	"github.com/banshee-data/heartbeat/internal/ecg/recording"
)

// Options describe a synthetic recording.
type Options struct {
	Rate    float64
	Seconds float64
	BPM     float64
	Noise   float64
	Seed    uint64
	// ECG adds a dedicated ECG channel.
	ECG bool
	// Mags adds magnetometer channels that carry a scaled copy of the
	// cardiac signal plus independent noise.
	Mags        int
	FirstSample int
}

// DefaultOptions is one minute at 250 Hz and 72 bpm with an ECG channel.
func DefaultOptions() Options {
	return Options{Rate: 250, Seconds: 60, BPM: 72, Noise: 0.02, Seed: 1, ECG: true}
}

// Recording builds a recording from o.
func Recording(o Options) (*recording.Recording, error) {
	if o.Rate <= 0 || o.Seconds <= 0 || o.BPM <= 0 {
		return nil, fmt.Errorf("%w: rate, duration and bpm must be positive", recording.ErrInvalid)
	}
	n := int(o.Seconds * o.Rate)
	cardiac := NewECG(o.Rate, o.BPM, 0, o.Seed).Samples(n)
	rng := rand.New(rand.NewPCG(o.Seed, o.Seed+1))

	rec := &recording.Recording{Rate: o.Rate, FirstSample: o.FirstSample}
	if o.ECG {
		data := make([]float64, n)
		for i, v := range cardiac {
			data[i] = v + o.Noise*(2*rng.Float64()-1)
		}
		rec.Channels = append(rec.Channels, recording.Channel{Name: "ECG 063", Type: recording.TypeECG, Data: data})
	}
	for m := 0; m < o.Mags; m++ {
		gain := 1e-12 * (1 + 0.1*float64(m))
		data := make([]float64, n)
		for i, v := range cardiac {
			data[i] = gain * (v + o.Noise*(2*rng.Float64()-1))
		}
		rec.Channels = append(rec.Channels, recording.Channel{
			Name: fmt.Sprintf("MEG %04d", 111+10*m),
			Type: recording.TypeMag,
			Data: data,
		})
	}
	if len(rec.Channels) == 0 {
		return nil, fmt.Errorf("%w: no channels requested", recording.ErrInvalid)
	}
	return rec, nil
}
