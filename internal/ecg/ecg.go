// Package ecg finds heartbeats in a recording. It ties together channel
// selection, segmented band-pass filtering, QRS detection and the mapping
// of detected peaks back to recording samples, and builds annotations and
// epochs from the result.
package ecg

import (
	"errors"
	"fmt"

	"github.com/banshee-data/heartbeat/internal/ecg/annotation"
	"github.com/banshee-data/heartbeat/internal/ecg/events"
	"github.com/banshee-data/heartbeat/internal/ecg/filter"
	"github.com/banshee-data/heartbeat/internal/ecg/qrs"
	"github.com/banshee-data/heartbeat/internal/ecg/recording"
	"github.com/banshee-data/heartbeat/internal/ecg/segment"
	"github.com/banshee-data/heartbeat/internal/monitoring"
)

// SyntheticChannel names the ECG reconstructed from MEG sensors.
const SyntheticChannel = "ECG-SYN"

var (
	ErrInvalidOption = errors.New("invalid option")
	ErrNoUsableData  = errors.New("no usable data left after rejecting annotated spans")
)

// Options configure FindEvents.
type Options struct {
	// ChannelName selects the ECG channel. Empty picks the first ECG
	// channel, or synthesizes one from MEG sensors.
	ChannelName string
	EventID     int
	Threshold   qrs.Threshold
	Levels      float64
	NThresh     int
	LFreq       float64
	HFreq       float64
	// TStart skips the first seconds of the concatenated signal.
	TStart       float64
	FilterLength string
	// RejectByAnnotation excludes BAD and EDGE annotated spans.
	RejectByAnnotation bool
	// ReturnSignal keeps the filtered signal in the Result.
	ReturnSignal bool
	Parallel     bool
	Logf         monitoring.LogFunc
}

// DefaultOptions returns the standard detection settings.
func DefaultOptions() Options {
	return Options{
		EventID:            events.DefaultCode,
		Threshold:          qrs.Auto(),
		Levels:             qrs.DefaultLevels,
		NThresh:            qrs.DefaultNThresh,
		LFreq:              5,
		HFreq:              35,
		FilterLength:       filter.DefaultLength,
		RejectByAnnotation: true,
	}
}

// FilterParams returns the band-pass settings of o.
func (o Options) FilterParams() filter.Params {
	return filter.Params{LFreq: o.LFreq, HFreq: o.HFreq, Length: o.FilterLength}
}

// Result is the outcome of FindEvents.
type Result struct {
	Events       events.Table `json:"events"`
	AveragePulse float64      `json:"average_pulse"`
	// Channel is the index of the ECG channel used, or -1 when the signal
	// was synthesized.
	Channel     int            `json:"channel"`
	ChannelName string         `json:"channel_name"`
	Spans       []segment.Span `json:"spans"`
	Detection   qrs.Detection  `json:"detection"`
	// Signal is the concatenated filtered ECG, set when ReturnSignal is.
	Signal   []float64        `json:"-"`
	IndexMap segment.IndexMap `json:"-"`
}

// Synthesized reports whether the ECG was reconstructed from MEG sensors.
func (r *Result) Synthesized() bool { return r.Channel < 0 }

// FindEvents locates R peaks in rec.
func FindEvents(rec *recording.Recording, o Options) (*Result, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if err := o.Threshold.Validate(); err != nil {
		return nil, err
	}
	logf := monitoring.Or(o.Logf)
	if rec.Logf == nil {
		cp := *rec
		cp.Logf = logf
		rec = &cp
	}

	res := &Result{}
	idx, err := rec.ECGChannelIndex(o.ChannelName)
	if err != nil {
		return nil, err
	}
	var signal []float64
	if idx >= 0 {
		logf("Using channel %s to identify heart beats.", rec.Channels[idx].Name)
		signal = rec.Channels[idx].Data
		res.ChannelName = rec.Channels[idx].Name
	} else {
		if signal, err = rec.SynthesizeECG(); err != nil {
			return nil, err
		}
		res.ChannelName = SyntheticChannel
	}
	res.Channel = idx

	var spans []segment.Span
	if o.RejectByAnnotation {
		spans = segment.UsableSpans(len(signal), rec.Rate, rec.Annotations.Annotations, annotation.DefaultSkipPrefixes)
		if segment.TotalLen(spans) == 0 {
			return nil, ErrNoUsableData
		}
	}
	filtered, imap, err := segment.FilterSegments(signal, rec.Rate, spans, o.FilterParams(), segment.Options{Logf: logf})
	if err != nil {
		return nil, fmt.Errorf("filtering ECG: %w", err)
	}
	if len(spans) == 0 {
		spans = []segment.Span{{Start: 0, Stop: len(signal)}}
	}
	res.Spans = spans

	det, err := qrs.Detect(rec.Rate, qrs.Rectify(filtered), qrs.Params{
		Threshold:    o.Threshold,
		Levels:       o.Levels,
		NThresh:      o.NThresh,
		StartSeconds: o.TStart,
		Breaks:       breaks(spans),
		Parallel:     o.Parallel,
	})
	if err != nil {
		return nil, err
	}
	for _, w := range det.Warnings {
		logf("%s", w)
	}
	res.Detection = det

	table, err := events.Map(det.Events, imap, rec.FirstSample, o.EventID)
	if err != nil {
		return nil, err
	}
	res.Events = table
	res.AveragePulse = events.AveragePulse(len(table), events.UsableSeconds(len(filtered), rec.Rate, o.TStart))
	logf("Number of ECG events detected : %d (average pulse %d / min.)", len(table), int(res.AveragePulse))

	if o.ReturnSignal {
		res.Signal = filtered
		res.IndexMap = imap
	}
	return res, nil
}

// breaks returns the offsets in the concatenated signal at which each
// span after the first begins.
func breaks(spans []segment.Span) []int {
	var out []int
	offset := 0
	for i, s := range spans {
		if i > 0 && s.Len() > 0 {
			out = append(out, offset)
		}
		offset += s.Len()
	}
	return out
}
