// Package recording holds a multichannel recording and the channel
// selection rules used to find, or synthesize, an ECG trace.
package recording

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/heartbeat/internal/ecg/annotation"
	"github.com/banshee-data/heartbeat/internal/monitoring"
)

// ChannelType is the kind of sensor a channel records.
type ChannelType string

const (
	TypeECG  ChannelType = "ecg"
	TypeMag  ChannelType = "mag"
	TypeGrad ChannelType = "grad"
	TypeEEG  ChannelType = "eeg"
	TypeEOG  ChannelType = "eog"
	TypeEMG  ChannelType = "emg"
	TypeStim ChannelType = "stim"
	TypeMisc ChannelType = "misc"
)

var knownTypes = []ChannelType{TypeECG, TypeMag, TypeGrad, TypeEEG, TypeEOG, TypeEMG, TypeStim, TypeMisc}

// ParseChannelType accepts the lower-case type names.
func ParseChannelType(s string) (ChannelType, error) {
	t := ChannelType(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(knownTypes, t) {
		return "", fmt.Errorf("%w: unknown channel type %q", ErrInvalid, s)
	}
	return t, nil
}

var (
	ErrInvalid         = errors.New("invalid recording")
	ErrChannelNotFound = errors.New("channel not found")
	ErrNoSensors       = errors.New("no magnetometer or gradiometer channels to synthesize ECG from")
)

// Channel is one sampled trace.
type Channel struct {
	Name string      `json:"name"`
	Type ChannelType `json:"type"`
	Data []float64   `json:"-"`
}

// Recording is a set of equal-length channels sampled at Rate Hz.
// FirstSample is the absolute index of sample 0 in the acquisition.
type Recording struct {
	Rate        float64
	FirstSample int
	Channels    []Channel
	// Bads names channels excluded from automatic selection.
	Bads        []string
	Annotations annotation.Set
	// Logf receives selection warnings; nil means monitoring.Logf.
	Logf monitoring.LogFunc
}

// Len returns the number of samples per channel.
func (r *Recording) Len() int {
	if len(r.Channels) == 0 {
		return 0
	}
	return len(r.Channels[0].Data)
}

// Duration returns the length of the recording in seconds.
func (r *Recording) Duration() float64 {
	if r.Rate <= 0 {
		return 0
	}
	return float64(r.Len()) / r.Rate
}

// Validate checks the rate, channel lengths and name uniqueness.
func (r *Recording) Validate() error {
	if !(r.Rate > 0) {
		return fmt.Errorf("%w: sampling rate must be positive, got %g", ErrInvalid, r.Rate)
	}
	if len(r.Channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrInvalid)
	}
	n := r.Len()
	seen := make(map[string]bool, len(r.Channels))
	for _, ch := range r.Channels {
		if len(ch.Data) != n {
			return fmt.Errorf("%w: channel %q has %d samples, expected %d", ErrInvalid, ch.Name, len(ch.Data), n)
		}
		if seen[ch.Name] {
			return fmt.Errorf("%w: duplicate channel name %q", ErrInvalid, ch.Name)
		}
		seen[ch.Name] = true
	}
	return nil
}

// IsBad reports whether the named channel is marked bad.
func (r *Recording) IsBad(name string) bool {
	return slices.Contains(r.Bads, name)
}

// Index returns the position of the named channel, or -1.
func (r *Recording) Index(name string) int {
	return slices.IndexFunc(r.Channels, func(ch Channel) bool { return ch.Name == name })
}

// Pick returns the indices of good channels of the given types, in
// channel order. No types means every good channel.
func (r *Recording) Pick(types ...ChannelType) []int {
	var out []int
	for i, ch := range r.Channels {
		if r.IsBad(ch.Name) {
			continue
		}
		if len(types) == 0 || slices.Contains(types, ch.Type) {
			out = append(out, i)
		}
	}
	return out
}

// ECGChannelIndex returns the index of the ECG channel. A non-empty name
// must match a channel. Otherwise the first good channel of type ecg is
// used, with a warning if there are several. It returns -1 when the
// recording has no ECG channel.
func (r *Recording) ECGChannelIndex(name string) (int, error) {
	logf := monitoring.Or(r.Logf)
	if name != "" {
		idx := r.Index(name)
		if idx < 0 {
			return -1, fmt.Errorf("%w: %s is not a channel; specify a valid ECG channel name", ErrChannelNotFound, name)
		}
		return idx, nil
	}
	picks := r.Pick(TypeECG)
	if len(picks) == 0 {
		return -1, nil
	}
	if len(picks) > 1 {
		logf("More than one ECG channel found. Using only %s.", r.Channels[picks[0]].Name)
	}
	return picks[0], nil
}

// SynthesizeECG averages the good magnetometer channels, falling back to
// gradiometers when there are none.
func (r *Recording) SynthesizeECG() ([]float64, error) {
	picks := r.Pick(TypeMag)
	kind := TypeMag
	if len(picks) == 0 {
		picks = r.Pick(TypeGrad)
		kind = TypeGrad
	}
	if len(picks) == 0 {
		return nil, ErrNoSensors
	}
	monitoring.Or(r.Logf)("Reconstructing ECG signal from %d %s channels", len(picks), kind)
	out := make([]float64, r.Len())
	for _, i := range picks {
		floats.Add(out, r.Channels[i].Data)
	}
	floats.Scale(1/float64(len(picks)), out)
	return out, nil
}
