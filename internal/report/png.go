package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	signalColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	peakColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// NewPlot draws the signal with a marker at each detected event.
func NewPlot(tr Trace) (*plot.Plot, error) {
	if err := tr.validate(); err != nil {
		return nil, err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - %d events", tr.Title, len(tr.Events))
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Amplitude"

	pts := decimate(tr.Signal, tr.Rate, MaxPoints)
	xys := make(plotter.XYs, len(pts))
	for i, pt := range pts {
		xys[i] = plotter.XY{X: pt.T, Y: pt.V}
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	line.Color = signalColor
	line.Width = vg.Points(0.5)
	p.Add(line)
	p.Legend.Add("ECG", line)

	if m := tr.markers(); len(m) > 0 {
		peaks := make(plotter.XYs, len(m))
		for i, pt := range m {
			peaks[i] = plotter.XY{X: pt.T, Y: pt.V}
		}
		sc, err := plotter.NewScatter(peaks)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = peakColor
		sc.GlyphStyle.Radius = vg.Points(2.5)
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(sc)
		p.Legend.Add("R peak", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SavePNG writes the plot of tr to path.
func SavePNG(path string, tr Trace) error {
	p, err := NewPlot(tr)
	if err != nil {
		return err
	}
	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}

// WritePNG writes the plot of tr to w as PNG.
func WritePNG(w io.Writer, tr Trace) error {
	p, err := NewPlot(tr)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
