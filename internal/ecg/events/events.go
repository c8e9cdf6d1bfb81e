// Package events turns detector output into an event table in the
// coordinates of the full recording.
package events

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/heartbeat/internal/ecg/segment"
)

// DefaultCode labels ECG events when the caller does not choose one.
const DefaultCode = 999

var (
	ErrIndexOutOfRange = errors.New("event index outside the filtered signal")
	ErrMalformed       = errors.New("malformed event table")
)

// Record is one row of the event table.
type Record struct {
	// Sample is the absolute sample number, including the recording's
	// first-sample offset.
	Sample int `json:"sample"`
	// Prev is the value before the event; always 0 for detected beats.
	Prev int `json:"prev"`
	Code int `json:"code"`
}

// Table is an ordered list of events.
type Table []Record

// Map converts indices into the concatenated filtered signal back to
// original-recording sample numbers via m and adds firstSample. The
// result is never nil.
func Map(indices []int, m segment.IndexMap, firstSample, code int) (Table, error) {
	t := make(Table, 0, len(indices))
	for _, i := range indices {
		orig, ok := m.Original(i)
		if !ok {
			return nil, fmt.Errorf("%w: index %d, filtered length %d", ErrIndexOutOfRange, i, len(m))
		}
		t = append(t, Record{Sample: orig + firstSample, Code: code})
	}
	return t, nil
}

// Samples returns the absolute sample column.
func (t Table) Samples() []int {
	out := make([]int, len(t))
	for i, r := range t {
		out[i] = r.Sample
	}
	return out
}

// Times converts samples to seconds relative to firstSample.
func (t Table) Times(rate float64, firstSample int) []float64 {
	out := make([]float64, len(t))
	for i, r := range t {
		out[i] = float64(r.Sample-firstSample) / rate
	}
	return out
}

// UsableSeconds is the duration of the signal after the warm-up skip.
func UsableSeconds(nSamples int, rate, startSeconds float64) float64 {
	return float64(nSamples)/rate - startSeconds
}

// AveragePulse returns beats per minute for n events over usableSeconds,
// or 0 when no usable time remains.
func AveragePulse(n int, usableSeconds float64) float64 {
	if usableSeconds <= 0 {
		return 0
	}
	return float64(n) / (usableSeconds / 60)
}

// Write emits one "sample prev code" line per record.
func Write(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	for _, r := range t {
		if _, err := fmt.Fprintf(bw, "%d %d %d\n", r.Sample, r.Prev, r.Code); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Read parses the format produced by Write. Blank lines and lines
// starting with '#' are ignored.
func Read(r io.Reader) (Table, error) {
	t := Table{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: line %d has %d fields, expected 3", ErrMalformed, line, len(fields))
		}
		var vals [3]int
		for k, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
			}
			vals[k] = v
		}
		t = append(t, Record{Sample: vals[0], Prev: vals[1], Code: vals[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}
