// Package heartbeat derives the time window of a full heartbeat around
// its R peak from the average heart rate.
package heartbeat

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/heartbeat/internal/ecg/annotation"
)

// FastRate is the heart rate from which windows are widened.
const FastRate = 80.0

var ErrInvalidRate = errors.New("heart rate must be positive")

// Window returns the onset (<= 0) and offset (>= 0) in seconds of a
// heartbeat relative to its R peak for an average rate of bpm.
func Window(bpm float64) (onset, offset float64, err error) {
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return 0, 0, fmt.Errorf("%w: got %g", ErrInvalidRate, bpm)
	}
	m := bpm / 60
	onset = -0.35 / m
	offset = 0.5 / m
	if bpm >= FastRate {
		onset -= 0.1
		offset += 0.1
	}
	return onset, offset, nil
}

// Expand turns R-peak times (seconds) into heartbeat annotations. Onsets
// are shifted by the window onset and clamped at 0; every annotation
// gets the window's full duration.
func Expand(peaks []float64, bpm float64, description string) ([]annotation.Annotation, error) {
	onset, offset, err := Window(bpm)
	if err != nil {
		return nil, err
	}
	dur := offset - onset
	out := make([]annotation.Annotation, len(peaks))
	for i, t := range peaks {
		out[i] = annotation.Annotation{
			Onset:       max(t+onset, 0),
			Duration:    dur,
			Description: description,
		}
	}
	return out, nil
}
