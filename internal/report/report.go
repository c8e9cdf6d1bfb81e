// Package report renders detection results as PNG plots and HTML charts.
package report

import (
	"errors"
	"fmt"

	"github.com/banshee-data/heartbeat/internal/ecg"
	"github.com/banshee-data/heartbeat/internal/ecg/events"
	"github.com/banshee-data/heartbeat/internal/ecg/qrs"
	"github.com/banshee-data/heartbeat/internal/ecg/recording"
)

// MaxPoints bounds the number of signal points drawn per chart.
const MaxPoints = 20000

var ErrEmptySignal = errors.New("empty signal")

// Trace is one ECG signal in recording coordinates with the events
// detected on it.
type Trace struct {
	Title       string
	Signal      []float64
	Rate        float64
	FirstSample int
	Events      events.Table
	Candidates  []qrs.Candidate
	Selected    int
}

// FromResult builds a Trace from the channel FindEvents used, or the
// synthesized signal when no ECG channel was present.
func FromResult(rec *recording.Recording, res *ecg.Result, title string) (Trace, error) {
	var signal []float64
	if res.Synthesized() {
		s, err := rec.SynthesizeECG()
		if err != nil {
			return Trace{}, err
		}
		signal = s
	} else {
		if res.Channel >= len(rec.Channels) {
			return Trace{}, fmt.Errorf("channel %d out of range", res.Channel)
		}
		signal = rec.Channels[res.Channel].Data
	}
	if title == "" {
		title = res.ChannelName
	}
	return Trace{
		Title:       title,
		Signal:      signal,
		Rate:        rec.Rate,
		FirstSample: rec.FirstSample,
		Events:      res.Events,
		Candidates:  res.Detection.Candidates,
		Selected:    res.Detection.Selected,
	}, nil
}

func (tr Trace) validate() error {
	if len(tr.Signal) == 0 {
		return ErrEmptySignal
	}
	if tr.Rate <= 0 {
		return fmt.Errorf("invalid sampling rate %g", tr.Rate)
	}
	return nil
}

// point is one (seconds, value) pair.
type point struct {
	T, V float64
}

// decimate keeps the minimum and maximum of each bucket so that QRS
// complexes survive downsampling.
func decimate(signal []float64, rate float64, limit int) []point {
	n := len(signal)
	if n <= limit {
		out := make([]point, n)
		for i, v := range signal {
			out[i] = point{float64(i) / rate, v}
		}
		return out
	}
	bucket := (2*n + limit - 1) / limit
	out := make([]point, 0, 2*(n/bucket+1))
	for start := 0; start < n; start += bucket {
		end := min(start+bucket, n)
		lo, hi := start, start
		for i := start + 1; i < end; i++ {
			if signal[i] < signal[lo] {
				lo = i
			}
			if signal[i] > signal[hi] {
				hi = i
			}
		}
		first, second := min(lo, hi), max(lo, hi)
		out = append(out, point{float64(first) / rate, signal[first]})
		if second != first {
			out = append(out, point{float64(second) / rate, signal[second]})
		}
	}
	return out
}

// markers returns the signal value at each event that falls inside the
// signal.
func (tr Trace) markers() []point {
	out := make([]point, 0, len(tr.Events))
	for _, ev := range tr.Events {
		i := ev.Sample - tr.FirstSample
		if i < 0 || i >= len(tr.Signal) {
			continue
		}
		out = append(out, point{float64(i) / tr.Rate, tr.Signal[i]})
	}
	return out
}
