package ecg

import (
	"fmt"

	"github.com/banshee-data/heartbeat/internal/ecg/epochs"
	"github.com/banshee-data/heartbeat/internal/ecg/recording"
)

// EpochOptions configure CreateEpochs.
type EpochOptions struct {
	Options
	TMin float64
	TMax float64
	// Types restricts the epoched channels; empty means every good
	// channel.
	Types    []recording.ChannelType
	Baseline *epochs.Interval
	Flat     float64
	// KeepECG adds the synthesized ECG as channel ECG-SYN. It is only
	// valid when the recording has no ECG channel.
	KeepECG bool
}

// DefaultEpochOptions uses a narrower 8-16 Hz band than event detection
// and one second windows centred on the R peak.
func DefaultEpochOptions() EpochOptions {
	o := DefaultOptions()
	o.LFreq = 8
	o.HFreq = 16
	return EpochOptions{Options: o, TMin: -0.5, TMax: 0.5}
}

// CreateEpochs detects heartbeats and cuts an epoch around each one.
// Epochs hold unfiltered data; filtering is applied only to find events.
func CreateEpochs(rec *recording.Recording, o EpochOptions) (*epochs.Epochs, error) {
	if o.KeepECG && (o.ChannelName != "" || len(rec.Pick(recording.TypeECG)) > 0) {
		return nil, fmt.Errorf("%w: keep ECG can be set only if the ECG channel is created synthetically", ErrInvalidOption)
	}
	find := o.Options
	find.ReturnSignal = o.KeepECG
	res, err := FindEvents(rec, find)
	if err != nil {
		return nil, err
	}

	src := rec
	picks := rec.Pick(o.Types...)
	if o.KeepECG {
		syn := make([]float64, rec.Len())
		for i, v := range res.Signal {
			syn[res.IndexMap[i]] = v
		}
		src = withChannel(rec, recording.Channel{Name: SyntheticChannel, Type: recording.TypeECG, Data: syn})
		picks = append(picks, len(src.Channels)-1)
	}
	return epochs.Extract(src, res.Events, picks, epochs.Options{
		TMin:               o.TMin,
		TMax:               o.TMax,
		Baseline:           o.Baseline,
		RejectByAnnotation: o.RejectByAnnotation,
		Flat:               o.Flat,
		Logf:               o.Logf,
	})
}

// withChannel returns a shallow copy of rec with ch appended.
func withChannel(rec *recording.Recording, ch recording.Channel) *recording.Recording {
	cp := *rec
	cp.Channels = append(append([]recording.Channel(nil), rec.Channels...), ch)
	return &cp
}
