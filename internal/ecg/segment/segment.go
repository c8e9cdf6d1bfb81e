// Package segment filters a signal span by span so that no filter ever
// runs across an excluded gap, and keeps the map from the concatenated
// output back to original sample indices.
package segment

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/heartbeat/internal/ecg/annotation"
	"github.com/banshee-data/heartbeat/internal/ecg/filter"
	"github.com/banshee-data/heartbeat/internal/monitoring"
)

// ErrInvalidSpan is returned for spans that are reversed, overlapping,
// out of order or outside the signal.
var ErrInvalidSpan = errors.New("invalid segment span")

// Span is the half-open sample range [Start, Stop) of a usable stretch
// of signal.
type Span struct {
	Start int `json:"start"`
	Stop  int `json:"stop"`
}

// Len returns the number of samples in the span.
func (s Span) Len() int { return s.Stop - s.Start }

// IndexMap maps a position in the concatenated signal to the original
// sample index.
type IndexMap []int

// Original returns the original sample index for concatenated index i.
func (m IndexMap) Original(i int) (int, bool) {
	if i < 0 || i >= len(m) {
		return 0, false
	}
	return m[i], true
}

// BuildIndexMap lays the spans end to end.
func BuildIndexMap(spans []Span) IndexMap {
	total := 0
	for _, s := range spans {
		total += max(s.Len(), 0)
	}
	m := make(IndexMap, 0, total)
	for _, s := range spans {
		for i := s.Start; i < s.Stop; i++ {
			m = append(m, i)
		}
	}
	return m
}

// FilterFunc filters one contiguous span.
type FilterFunc func(x []float64, rate float64, p filter.Params, logf monitoring.LogFunc) ([]float64, error)

// LogPolicy selects which spans may report filter parameters.
type LogPolicy int

const (
	// LogLongestOnly lets only the longest span log, so a recording cut
	// into many spans reports its filter once.
	LogLongestOnly LogPolicy = iota
	// LogAll lets every span log.
	LogAll
	// LogNone silences filter logging.
	LogNone
)

// Options configures FilterSegments.
type Options struct {
	// Filter defaults to filter.BandPass.
	Filter FilterFunc
	// Logf defaults to monitoring.Logf.
	Logf   monitoring.LogFunc
	Policy LogPolicy
}

// Validate checks that spans are ordered, non-overlapping and inside a
// signal of n samples.
func Validate(spans []Span, n int) error {
	prev := 0
	for i, s := range spans {
		if s.Start < 0 || s.Stop > n || s.Start > s.Stop {
			return fmt.Errorf("%w: span %d [%d, %d) outside signal of %d samples", ErrInvalidSpan, i, s.Start, s.Stop, n)
		}
		if s.Start < prev {
			return fmt.Errorf("%w: span %d [%d, %d) overlaps or precedes previous span ending at %d", ErrInvalidSpan, i, s.Start, s.Stop, prev)
		}
		prev = s.Stop
	}
	return nil
}

// Longest returns the index of the first longest span, or -1 when spans
// is empty.
func Longest(spans []Span) int {
	best := -1
	for i, s := range spans {
		if best < 0 || s.Len() > spans[best].Len() {
			best = i
		}
	}
	return best
}

// FilterSegments filters each span of signal independently with the same
// parameters and concatenates the results in span order. An empty span
// list means the whole signal is usable. The returned IndexMap has one
// entry per output sample.
func FilterSegments(signal []float64, rate float64, spans []Span, p filter.Params, opts Options) ([]float64, IndexMap, error) {
	if len(spans) == 0 {
		spans = []Span{{Start: 0, Stop: len(signal)}}
	}
	if err := Validate(spans, len(signal)); err != nil {
		return nil, nil, err
	}
	apply := opts.Filter
	if apply == nil {
		apply = filter.BandPass
	}
	logf := monitoring.Or(opts.Logf)
	longest := Longest(spans)

	out := make([]float64, 0, TotalLen(spans))
	for i, s := range spans {
		if s.Len() == 0 {
			continue
		}
		spanLog := monitoring.LogFunc(monitoring.Discard)
		switch opts.Policy {
		case LogAll:
			spanLog = logf
		case LogLongestOnly:
			if i == longest {
				spanLog = logf
			}
		}
		y, err := apply(signal[s.Start:s.Stop], rate, p, spanLog)
		if err != nil {
			return nil, nil, fmt.Errorf("filtering segment %d [%d, %d): %w", i, s.Start, s.Stop, err)
		}
		if len(y) != s.Len() {
			return nil, nil, fmt.Errorf("filtering segment %d returned %d samples, want %d", i, len(y), s.Len())
		}
		out = append(out, y...)
	}
	return out, BuildIndexMap(spans), nil
}

// UsableSpans returns the spans of an n-sample recording not covered by
// an annotation whose description starts with one of the prefixes.
// Annotation times are seconds from the first sample. The result is never
// nil; it is empty when everything is excluded.
func UsableSpans(n int, rate float64, anns []annotation.Annotation, prefixes []string) []Span {
	type interval struct{ start, stop int }
	var bad []interval
	for _, a := range anns {
		if !a.HasPrefix(prefixes...) {
			continue
		}
		start := int(math.Round(a.Onset * rate))
		stop := int(math.Round(a.End() * rate))
		start = min(max(start, 0), n)
		stop = min(max(stop, 0), n)
		if stop > start {
			bad = append(bad, interval{start, stop})
		}
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i].start < bad[j].start })

	spans := []Span{}
	cursor := 0
	for _, b := range bad {
		if b.start > cursor {
			spans = append(spans, Span{Start: cursor, Stop: b.start})
		}
		cursor = max(cursor, b.stop)
	}
	if cursor < n {
		spans = append(spans, Span{Start: cursor, Stop: n})
	}
	return spans
}

// TotalLen returns the number of samples covered by spans.
func TotalLen(spans []Span) int {
	total := 0
	for _, s := range spans {
		total += s.Len()
	}
	return total
}
