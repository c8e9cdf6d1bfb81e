// Package annotation describes labelled time spans of a recording: the
// BAD/EDGE spans excluded from detection and the R-peak and heartbeat
// annotations produced from detected events.
package annotation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Default descriptions for generated annotations.
const (
	DescRPeak     = "ECG/R peak"
	DescHeartbeat = "ECG/Heartbeat"
)

// DefaultSkipPrefixes are the description prefixes excluded from detection
// when rejecting by annotation.
var DefaultSkipPrefixes = []string{"edge", "bad"}

// ErrMalformed is returned when an annotation file cannot be parsed.
var ErrMalformed = errors.New("malformed annotation")

// Annotation is a labelled span. Onset and Duration are in seconds
// relative to the first sample of the recording.
type Annotation struct {
	Onset       float64 `json:"onset"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
}

// End returns the offset of the span in seconds.
func (a Annotation) End() float64 { return a.Onset + a.Duration }

// HasPrefix reports whether the description starts with any of the
// prefixes, ignoring case.
func (a Annotation) HasPrefix(prefixes ...string) bool {
	desc := strings.ToLower(a.Description)
	for _, p := range prefixes {
		if strings.HasPrefix(desc, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Set is an ordered collection of annotations sharing a time origin.
type Set struct {
	OrigTime    time.Time    `json:"orig_time"`
	Annotations []Annotation `json:"annotations"`
}

// Len returns the number of annotations.
func (s Set) Len() int { return len(s.Annotations) }

// Matching returns the annotations whose description starts with one of
// the prefixes.
func (s Set) Matching(prefixes ...string) []Annotation {
	var out []Annotation
	for _, a := range s.Annotations {
		if a.HasPrefix(prefixes...) {
			out = append(out, a)
		}
	}
	return out
}

// Append adds an annotation to the set.
func (s *Set) Append(onset, duration float64, description string) {
	s.Annotations = append(s.Annotations, Annotation{Onset: onset, Duration: duration, Description: description})
}

// ReadCSV parses "onset,duration,description" rows. A header row whose
// first field is "onset" is skipped.
func ReadCSV(r io.Reader) (Set, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return Set{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var set Set
	for i, row := range rows {
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "onset") {
			continue
		}
		onset, err := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		if err != nil {
			return Set{}, fmt.Errorf("%w: row %d onset %q", ErrMalformed, i+1, row[0])
		}
		duration, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return Set{}, fmt.Errorf("%w: row %d duration %q", ErrMalformed, i+1, row[1])
		}
		if duration < 0 || math.IsNaN(duration) {
			return Set{}, fmt.Errorf("%w: row %d negative duration", ErrMalformed, i+1)
		}
		set.Append(onset, duration, strings.TrimSpace(row[2]))
	}
	return set, nil
}

// WriteCSV writes the set with a header row.
func WriteCSV(w io.Writer, s Set) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"onset", "duration", "description"}); err != nil {
		return err
	}
	for _, a := range s.Annotations {
		if err := cw.Write([]string{
			strconv.FormatFloat(a.Onset, 'f', -1, 64),
			strconv.FormatFloat(a.Duration, 'f', -1, 64),
			a.Description,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
