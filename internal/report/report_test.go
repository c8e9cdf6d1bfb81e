package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/heartbeat/internal/ecg"
	"github.com/banshee-data/heartbeat/internal/ecg/events"
	"github.com/banshee-data/heartbeat/internal/ecg/qrs"
	"github.com/banshee-data/heartbeat/internal/monitoring"
	"github.com/banshee-data/heartbeat/internal/simulate"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func testTrace() Trace {
	signal := simulate.NewECG(250, 72, 0.01, 3).Samples(2500)
	table := events.Table{}
	for _, p := range simulate.RPeaks(250, 72, 2500) {
		table = append(table, events.Record{Sample: 1000 + p, Code: 999})
	}
	return Trace{
		Title:       "ECG 063",
		Signal:      signal,
		Rate:        250,
		FirstSample: 1000,
		Events:      table,
		Candidates: []qrs.Candidate{
			{Fraction: 0.30, Rate: 140},
			{Fraction: 0.35, Rate: 72},
			{Fraction: 0.40, Rate: 70},
		},
		Selected: 1,
	}
}

func TestDecimateKeepsExtremes(t *testing.T) {
	signal := make([]float64, 100000)
	signal[54321] = 5
	signal[12345] = -3

	pts := decimate(signal, 1000, 1000)
	assert.LessOrEqual(t, len(pts), 1002)

	var hi, lo point
	for i, pt := range pts {
		if i > 0 {
			require.GreaterOrEqual(t, pt.T, pts[i-1].T, "points out of order at %d", i)
		}
		if pt.V > hi.V {
			hi = pt
		}
		if pt.V < lo.V {
			lo = pt
		}
	}
	assert.Equal(t, point{54.321, 5}, hi)
	assert.Equal(t, point{12.345, -3}, lo)
}

func TestDecimateShortSignalUnchanged(t *testing.T) {
	pts := decimate([]float64{1, 2, 3}, 2, 10)
	assert.Equal(t, []point{{0, 1}, {0.5, 2}, {1, 3}}, pts)
}

func TestMarkersSkipOutOfRange(t *testing.T) {
	tr := Trace{
		Signal:      []float64{0, 1, 2, 3},
		Rate:        2,
		FirstSample: 10,
		Events:      events.Table{{Sample: 9}, {Sample: 11}, {Sample: 13}, {Sample: 14}},
	}
	assert.Equal(t, []point{{0.5, 1}, {1.5, 3}}, tr.markers())
}

func TestSavePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.png")
	require.NoError(t, SavePNG(path, testTrace()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic), "expected PNG header")
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, testTrace()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic), "expected PNG header")
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, testTrace()))

	html := buf.String()
	assert.Contains(t, html, "echarts")
	assert.Contains(t, html, "ECG 063")
	assert.Contains(t, html, "R peak")
	assert.Contains(t, html, "Threshold candidates")
}

func TestRenderHTMLWithoutCandidates(t *testing.T) {
	tr := testTrace()
	tr.Candidates = nil

	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, tr))
	assert.NotContains(t, buf.String(), "Threshold candidates")
}

func TestEmptySignal(t *testing.T) {
	tr := Trace{Rate: 250}
	assert.ErrorIs(t, SavePNG(filepath.Join(t.TempDir(), "x.png"), tr), ErrEmptySignal)
	assert.ErrorIs(t, RenderHTML(&bytes.Buffer{}, tr), ErrEmptySignal)

	tr.Signal = []float64{1}
	tr.Rate = 0
	assert.Error(t, RenderHTML(&bytes.Buffer{}, tr))
}

func TestFromResult(t *testing.T) {
	o := simulate.DefaultOptions()
	o.Seconds = 20
	o.FirstSample = 250
	rec, err := simulate.Recording(o)
	require.NoError(t, err)

	opts := ecg.DefaultOptions()
	opts.Logf = monitoring.Discard
	res, err := ecg.FindEvents(rec, opts)
	require.NoError(t, err)

	tr, err := FromResult(rec, res, "")
	require.NoError(t, err)
	assert.Equal(t, res.ChannelName, tr.Title)
	assert.Equal(t, rec.Len(), len(tr.Signal))
	assert.Equal(t, 250, tr.FirstSample)
	assert.Len(t, tr.markers(), len(res.Events))
	assert.Len(t, tr.Candidates, len(qrs.Auto().Fractions()))
}

func TestFromResultSynthesized(t *testing.T) {
	o := simulate.DefaultOptions()
	o.Seconds = 20
	o.ECG = false
	o.Mags = 3
	rec, err := simulate.Recording(o)
	require.NoError(t, err)

	opts := ecg.DefaultOptions()
	opts.Logf = monitoring.Discard
	res, err := ecg.FindEvents(rec, opts)
	require.NoError(t, err)
	require.True(t, res.Synthesized())

	tr, err := FromResult(rec, res, "synthetic")
	require.NoError(t, err)
	assert.Equal(t, "synthetic", tr.Title)
	assert.Equal(t, rec.Len(), len(tr.Signal))
	assert.Equal(t, ecg.SyntheticChannel, res.ChannelName)
}
