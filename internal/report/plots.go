package report

import (
	"bytes"
	"fmt"
	"image/color"

	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/trackeff.report/internal/efficiency"
	"github.com/banshee-data/trackeff.report/internal/hist"
)

// HistogramPNG draws a 1-D histogram with its entry summary.
func HistogramPNG(h *hist.H1, width, height vg.Length) ([]byte, error) {
	p := hplot.New()
	if name, ok := h.Ann["name"].(string); ok {
		p.Title.Text = name
	}
	p.Title.Padding = 2 * vg.Millimeter
	p.X.Label.Text = h.Axis.Title
	p.Y.Label.Text = "Entries"

	hh := hplot.NewH1D(h.H1D)
	hh.Infos.Style = hplot.HInfoSummary
	hh.FillColor = color.NRGBA{R: 70, G: 130, B: 180, A: 120}
	p.Add(hh, hplot.NewGrid())

	return hplot.Show(p, width, height, "png")
}

// curvePoints adapts the populated bins of a curve to plotter.XYer and
// plotter.YErrorer.
type curvePoints struct {
	pts    []efficiency.Point
	single bool
}

func newCurvePoints(c efficiency.Curve, single bool) curvePoints {
	cp := curvePoints{single: single}
	for _, p := range c.Points {
		if !p.Empty() {
			cp.pts = append(cp.pts, p)
		}
	}
	return cp
}

func (c curvePoints) Len() int { return len(c.pts) }

func (c curvePoints) XY(i int) (float64, float64) {
	if c.single {
		return c.pts[i].Center, c.pts[i].SingleEff
	}
	return c.pts[i].Center, c.pts[i].Efficiency
}

func (c curvePoints) YError(i int) (float64, float64) {
	p := c.pts[i]
	return p.Efficiency - p.Lower, p.Upper - p.Efficiency
}

// EfficiencyPNG draws a curve with its confidence intervals as error bars,
// plus the at-least-one-daughter efficiency for comparison.
func EfficiencyPNG(c efficiency.Curve, width, height vg.Length) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s efficiency vs %s (%.3f < m < %.3f)", statusLabel(c.Status), c.Variable, c.MassMin, c.MassMax)
	p.X.Label.Text = c.Title
	p.Y.Label.Text = "Efficiency"
	p.Y.Min, p.Y.Max = 0, 1.05
	if n := len(c.Points); n > 0 {
		p.X.Min, p.X.Max = c.Points[0].Low, c.Points[n-1].High
	}
	p.Add(plotter.NewGrid())

	both := newCurvePoints(c, false)
	if both.Len() > 0 {
		pts, err := plotter.NewScatter(both)
		if err != nil {
			return nil, err
		}
		pts.GlyphStyle.Shape = draw.CircleGlyph{}
		pts.GlyphStyle.Color = color.NRGBA{R: 200, A: 255}
		bars, err := plotter.NewYErrorBars(both)
		if err != nil {
			return nil, err
		}
		bars.LineStyle.Color = pts.GlyphStyle.Color
		p.Add(pts, bars)
		p.Legend.Add("both daughters", pts)

		single, err := plotter.NewLine(newCurvePoints(c, true))
		if err != nil {
			return nil, err
		}
		single.LineStyle.Width = vg.Points(1)
		single.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(single)
		p.Legend.Add("at least one", single)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func statusLabel(s efficiency.Status) string {
	if s == efficiency.StatusIB {
		return "Inner-barrel"
	}
	return "ITS"
}
