package acquire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/heartbeat/internal/ecg/recording"
	"github.com/banshee-data/heartbeat/internal/monitoring"
)

// DefaultChannel names the captured channel when Options.Channel is empty.
const DefaultChannel = "ECG 001"

var ErrNoSamples = errors.New("no samples captured")

// Options bound a capture.
type Options struct {
	// Rate is the front-end sampling rate in Hz.
	Rate float64
	// Duration bounds the capture; zero reads until EOF or cancellation.
	Duration time.Duration
	Channel  string
	// FirstSample is the absolute sample number of the first sample.
	FirstSample int
	Logf        monitoring.LogFunc
}

// Stats counts what a capture read.
type Stats struct {
	Lines     int `json:"lines"`
	Samples   int `json:"samples"`
	Malformed int `json:"malformed"`
	Status    int `json:"status"`
}

// Limit is the number of samples Duration allows, or 0 for no limit.
func (o Options) Limit() int {
	if o.Duration <= 0 {
		return 0
	}
	return int(math.Round(o.Duration.Seconds() * o.Rate))
}

// ParseSample extracts the sample value from one line. A line holds a
// single number, or comma, tab or space separated fields of which the
// last is the sample (for front-ends that prefix a counter or
// timestamp). ok is false for status lines starting with '#' or '{'.
func ParseSample(line string) (v float64, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "{") {
		return 0, false, nil
	}
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})
	if len(fields) == 0 {
		return 0, false, fmt.Errorf("malformed line %q", line)
	}
	v, err = strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("malformed line %q", line)
	}
	return v, true, nil
}

// Capture reads newline separated samples from r until the sample count
// implied by o.Duration is reached, ctx is cancelled or r is exhausted,
// and returns them as a single-channel recording. Malformed lines are
// counted and skipped. Cancellation ends the capture like EOF does.
func Capture(ctx context.Context, r io.Reader, o Options) (*recording.Recording, Stats, error) {
	var stats Stats
	if o.Rate <= 0 || math.IsNaN(o.Rate) || math.IsInf(o.Rate, 0) {
		return nil, stats, fmt.Errorf("%w: sampling rate must be positive", recording.ErrInvalid)
	}
	logf := monitoring.Or(o.Logf)
	name := o.Channel
	if name == "" {
		name = DefaultChannel
	}
	limit := o.Limit()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scan := bufio.NewScanner(r)
	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs apart from the loop below so that
	// cancellation is seen even when the port is silent.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	data := make([]float64, 0, limit)
	var readErr error
loop:
	for limit == 0 || len(data) < limit {
		select {
		case <-ctx.Done():
			logf("capture cancelled after %d samples", len(data))
			break loop
		case err := <-scanErrChan:
			readErr = err
			break loop
		case line, ok := <-lineChan:
			if !ok {
				select {
				case readErr = <-scanErrChan:
				default:
				}
				break loop
			}
			stats.Lines++
			v, isSample, err := ParseSample(line)
			switch {
			case err != nil:
				stats.Malformed++
				logf("skipping %v", err)
			case !isSample:
				if strings.TrimSpace(line) != "" {
					stats.Status++
					logf("device: %s", strings.TrimSpace(line))
				}
			default:
				data = append(data, v)
			}
		}
	}
	stats.Samples = len(data)

	if readErr != nil {
		return nil, stats, fmt.Errorf("failed to read samples: %w", readErr)
	}
	if len(data) == 0 {
		return nil, stats, ErrNoSamples
	}
	logf("captured %d samples (%.1f s), %d malformed lines skipped",
		len(data), float64(len(data))/o.Rate, stats.Malformed)

	rec := &recording.Recording{
		Rate:        o.Rate,
		FirstSample: o.FirstSample,
		Channels:    []recording.Channel{{Name: name, Type: recording.TypeECG, Data: data}},
	}
	return rec, stats, nil
}
