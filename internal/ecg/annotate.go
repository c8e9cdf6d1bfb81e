package ecg

import (
	"fmt"

	"github.com/banshee-data/heartbeat/internal/ecg/annotation"
	"github.com/banshee-data/heartbeat/internal/ecg/heartbeat"
	"github.com/banshee-data/heartbeat/internal/ecg/recording"
	"github.com/banshee-data/heartbeat/internal/monitoring"
)

// What selects the kind of annotation Annotate produces.
type What string

const (
	WhatRPeaks     What = "r-peaks"
	WhatHeartbeats What = "heartbeats"
)

// ParseWhat accepts "r-peaks" or "heartbeats".
func ParseWhat(s string) (What, error) {
	switch w := What(s); w {
	case WhatRPeaks, WhatHeartbeats:
		return w, nil
	}
	return "", fmt.Errorf("%w: what must be %q or %q, got %q", ErrInvalidOption, WhatRPeaks, WhatHeartbeats, s)
}

// Annotate detects heartbeats and returns them as annotations sharing
// rec's time origin: zero-length R-peak markers, or heartbeat spans sized
// from the average pulse. When no ECG activity is found the set is empty.
func Annotate(rec *recording.Recording, what What, o Options) (annotation.Set, error) {
	if _, err := ParseWhat(string(what)); err != nil {
		return annotation.Set{}, err
	}
	logf := monitoring.Or(o.Logf)
	logf("Detecting R wave peaks.")

	res, err := FindEvents(rec, o)
	if err != nil {
		return annotation.Set{}, err
	}
	set := annotation.Set{OrigTime: rec.Annotations.OrigTime}
	if len(res.Events) == 0 {
		logf("No ECG activity found.")
		return set, nil
	}

	peaks := res.Events.Times(rec.Rate, rec.FirstSample)
	switch what {
	case WhatRPeaks:
		for _, t := range peaks {
			set.Append(t, 0, annotation.DescRPeak)
		}
	case WhatHeartbeats:
		anns, err := heartbeat.Expand(peaks, res.AveragePulse, annotation.DescHeartbeat)
		if err != nil {
			return annotation.Set{}, err
		}
		set.Annotations = anns
	}
	return set, nil
}
