package qrs

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AutoKeyword selects the automatic threshold sweep.
const AutoKeyword = "auto"

// The automatic sweep covers [autoStart, autoStop) in autoStep increments.
const (
	autoStart = 0.30
	autoStep  = 0.05
	autoStop  = 1.10
)

var (
	// ErrConfiguration is returned for a threshold that is neither "auto"
	// nor a fraction in (0, 1], and for other invalid detector parameters.
	ErrConfiguration = errors.New("invalid QRS detector configuration")
	// ErrInsufficientData is returned when fewer than three seconds of
	// signal remain after the warm-up skip.
	ErrInsufficientData = errors.New("insufficient data for QRS detection")
)

// Threshold is either the automatic sweep or one fixed fraction of the
// calibrated peak amplitude. The zero value is the automatic sweep.
type Threshold struct {
	fixed    bool
	fraction float64
}

// Auto returns the automatic threshold sweep.
func Auto() Threshold { return Threshold{} }

// Fixed returns a single-fraction threshold.
func Fixed(fraction float64) Threshold { return Threshold{fixed: true, fraction: fraction} }

// ParseThreshold accepts "auto" or a decimal fraction.
func ParseThreshold(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == AutoKeyword {
		return Auto(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("%w: threshold value must be %q or a float, got %q", ErrConfiguration, AutoKeyword, s)
	}
	t := Fixed(f)
	if err := t.Validate(); err != nil {
		return Threshold{}, err
	}
	return t, nil
}

// IsAuto reports whether t is the automatic sweep.
func (t Threshold) IsAuto() bool { return !t.fixed }

// Fraction returns the fixed fraction, or 0 for the automatic sweep.
func (t Threshold) Fraction() float64 { return t.fraction }

// Validate rejects fixed fractions outside (0, 1].
func (t Threshold) Validate() error {
	if !t.fixed {
		return nil
	}
	if math.IsNaN(t.fraction) || t.fraction <= 0 || t.fraction > 1 {
		return fmt.Errorf("%w: threshold fraction must be in (0, 1], got %g", ErrConfiguration, t.fraction)
	}
	return nil
}

// Fractions resolves t into the candidate list, in evaluation order.
func (t Threshold) Fractions() []float64 {
	if t.fixed {
		return []float64{t.fraction}
	}
	n := int(math.Ceil((autoStop - autoStart) / autoStep))
	out := make([]float64, n)
	for i := range out {
		out[i] = autoStart + float64(i)*autoStep
	}
	return out
}

func (t Threshold) String() string {
	if !t.fixed {
		return AutoKeyword
	}
	return strconv.FormatFloat(t.fraction, 'g', -1, 64)
}

// MarshalText implements encoding.TextMarshaler.
func (t Threshold) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Threshold) UnmarshalText(b []byte) error {
	parsed, err := ParseThreshold(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
