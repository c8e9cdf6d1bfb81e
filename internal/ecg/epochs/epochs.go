// Package epochs cuts fixed windows around events out of a recording.
package epochs

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/heartbeat/internal/ecg/annotation"
	"github.com/banshee-data/heartbeat/internal/ecg/events"
	"github.com/banshee-data/heartbeat/internal/ecg/recording"
	"github.com/banshee-data/heartbeat/internal/monitoring"
)

// Drop reasons that are not annotation descriptions or channel names.
const (
	ReasonNoData = "NO_DATA"
)

var ErrInvalidWindow = errors.New("invalid epoch window")

// Interval is a time range in seconds relative to the event.
type Interval struct {
	Start float64
	Stop  float64
}

// Options control Extract.
type Options struct {
	TMin float64
	TMax float64
	// Baseline, when set, is subtracted per channel as the mean over the
	// interval.
	Baseline *Interval
	// RejectByAnnotation drops epochs overlapping BAD annotations.
	RejectByAnnotation bool
	// Flat drops epochs in which any channel's peak-to-peak amplitude is
	// below this value. Zero disables it.
	Flat float64
	Logf monitoring.LogFunc
}

// Epoch is one accepted window. Data is indexed [channel][time].
type Epoch struct {
	Event events.Record `json:"event"`
	Data  [][]float64   `json:"data"`
}

// Drop records why an event produced no epoch.
type Drop struct {
	Event  events.Record `json:"event"`
	Reason string        `json:"reason"`
}

// Epochs is the result of Extract.
type Epochs struct {
	Rate     float64  `json:"rate"`
	TMin     float64  `json:"tmin"`
	Channels []string `json:"channels"`
	Epochs   []Epoch  `json:"epochs"`
	DropLog  []Drop   `json:"drop_log,omitempty"`
}

// Len returns the number of accepted epochs.
func (e *Epochs) Len() int { return len(e.Epochs) }

// Times returns the sample times of an epoch relative to its event.
func (e *Epochs) Times() []float64 {
	if len(e.Epochs) == 0 || len(e.Epochs[0].Data) == 0 {
		return nil
	}
	n := len(e.Epochs[0].Data[0])
	out := make([]float64, n)
	for i := range out {
		out[i] = e.TMin + float64(i)/e.Rate
	}
	return out
}

// Average returns the mean over epochs, indexed [channel][time].
func (e *Epochs) Average() [][]float64 {
	if len(e.Epochs) == 0 {
		return nil
	}
	out := make([][]float64, len(e.Channels))
	for c := range out {
		out[c] = make([]float64, len(e.Epochs[0].Data[c]))
		for _, ep := range e.Epochs {
			floats.Add(out[c], ep.Data[c])
		}
		floats.Scale(1/float64(len(e.Epochs)), out[c])
	}
	return out
}

// Extract cuts [TMin, TMax] around each event for the picked channels.
// Event samples are absolute; rec.FirstSample is subtracted.
func Extract(rec *recording.Recording, table events.Table, picks []int, o Options) (*Epochs, error) {
	if o.TMin > o.TMax || math.IsNaN(o.TMin) || math.IsNaN(o.TMax) {
		return nil, fmt.Errorf("%w: tmin %g must not exceed tmax %g", ErrInvalidWindow, o.TMin, o.TMax)
	}
	if b := o.Baseline; b != nil && (b.Start > b.Stop || b.Start < o.TMin || b.Stop > o.TMax) {
		return nil, fmt.Errorf("%w: baseline [%g, %g] outside epoch [%g, %g]", ErrInvalidWindow, b.Start, b.Stop, o.TMin, o.TMax)
	}
	logf := monitoring.Or(o.Logf)

	lo := int(math.Round(o.TMin * rec.Rate))
	hi := int(math.Round(o.TMax * rec.Rate))
	out := &Epochs{Rate: rec.Rate, TMin: float64(lo) / rec.Rate}
	for _, p := range picks {
		out.Channels = append(out.Channels, rec.Channels[p].Name)
	}

	var bad []annotation.Annotation
	if o.RejectByAnnotation {
		bad = rec.Annotations.Matching("bad")
	}
	var b0, b1 int
	if o.Baseline != nil {
		b0 = int(math.Round(o.Baseline.Start*rec.Rate)) - lo
		b1 = int(math.Round(o.Baseline.Stop*rec.Rate)) - lo + 1
	}

	for _, ev := range table {
		center := ev.Sample - rec.FirstSample
		start, stop := center+lo, center+hi+1
		if start < 0 || stop > rec.Len() {
			out.DropLog = append(out.DropLog, Drop{Event: ev, Reason: ReasonNoData})
			continue
		}
		if desc, ok := overlaps(bad, float64(start)/rec.Rate, float64(stop-1)/rec.Rate); ok {
			out.DropLog = append(out.DropLog, Drop{Event: ev, Reason: desc})
			continue
		}
		data := make([][]float64, len(picks))
		for c, p := range picks {
			data[c] = append([]float64(nil), rec.Channels[p].Data[start:stop]...)
			if o.Baseline != nil {
				mean := stat.Mean(data[c][b0:b1], nil)
				floats.AddConst(-mean, data[c])
			}
		}
		if o.Flat > 0 {
			if ch, ok := flatChannel(data, out.Channels, o.Flat); ok {
				out.DropLog = append(out.DropLog, Drop{Event: ev, Reason: ch})
				continue
			}
		}
		out.Epochs = append(out.Epochs, Epoch{Event: ev, Data: data})
	}
	if len(out.DropLog) > 0 {
		logf("%d of %d epochs dropped", len(out.DropLog), len(table))
	}
	return out, nil
}

func overlaps(anns []annotation.Annotation, t0, t1 float64) (string, bool) {
	for _, a := range anns {
		if a.Onset <= t1 && a.End() >= t0 {
			return a.Description, true
		}
	}
	return "", false
}

func flatChannel(data [][]float64, names []string, limit float64) (string, bool) {
	for c, d := range data {
		if floats.Max(d)-floats.Min(d) < limit {
			return names[c], true
		}
	}
	return "", false
}
