package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// SignalChart renders the signal as a line with the events overlaid.
func SignalChart(tr Trace) (*charts.Line, error) {
	if err := tr.validate(); err != nil {
		return nil, err
	}

	pts := decimate(tr.Signal, tr.Rate, MaxPoints)
	data := make([]opts.LineData, len(pts))
	for i, pt := range pts {
		data[i] = opts.LineData{Value: []interface{}{pt.T, pt.V}}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "ECG events", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: tr.Title, Subtitle: fmt.Sprintf("rate=%g Hz events=%d", tr.Rate, len(tr.Events))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Amplitude"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 10}),
	)
	line.AddSeries("ECG", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#1f77b4"}),
	)

	m := tr.markers()
	peaks := make([]opts.ScatterData, len(m))
	for i, pt := range m {
		peaks[i] = opts.ScatterData{Value: []interface{}{pt.T, pt.V}}
	}
	scatter := charts.NewScatter()
	scatter.AddSeries("R peak", peaks,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#d62728"}),
	)
	line.Overlap(scatter)
	return line, nil
}

// CandidateChart renders the heart rate each threshold candidate implies,
// with the selected candidate highlighted.
func CandidateChart(tr Trace) *charts.Bar {
	x := make([]string, len(tr.Candidates))
	y := make([]opts.BarData, len(tr.Candidates))
	for i, c := range tr.Candidates {
		x[i] = fmt.Sprintf("%.2f", c.Fraction)
		y[i] = opts.BarData{Value: c.Rate}
		if i == tr.Selected {
			y[i].ItemStyle = &opts.ItemStyle{Color: "#d62728"}
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Threshold candidates", Subtitle: "implied heart rate (beats/min) per threshold fraction"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Fraction"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "bpm"}),
	)
	bar.SetXAxis(x).
		AddSeries("rate", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// RenderHTML writes a page with the signal chart and, when candidates
// are present, the candidate rate chart.
func RenderHTML(w io.Writer, tr Trace) error {
	line, err := SignalChart(tr)
	if err != nil {
		return err
	}

	page := components.NewPage()
	page.SetPageTitle("ECG events")
	page.AddCharts(line)
	if len(tr.Candidates) > 0 {
		page.AddCharts(CandidateChart(tr))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}
