package report

import (
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/trackeff.report/internal/efficiency"
	"github.com/banshee-data/trackeff.report/internal/hist"
)

const chartWidth, chartHeight = "1100px", "420px"

// RenderCharts writes an HTML page with a bar chart per 1-D histogram and a
// line chart per efficiency curve.
func RenderCharts(w io.Writer, title string, reg *hist.Registry, curves []efficiency.Curve) error {
	page := components.NewPage()
	page.PageTitle = title

	for _, c := range curves {
		page.AddCharts(efficiencyChart(c))
	}
	for _, name := range reg.Names() {
		if h := reg.H1(name); h != nil {
			page.AddCharts(histogramChart(name, h))
		}
	}
	return page.Render(w)
}

func histogramChart(name string, h *hist.H1) *charts.Bar {
	labels := make([]string, 0, h.Axis.NBins)
	data := make([]opts.BarData, 0, h.Axis.NBins)
	for bin := 1; bin <= h.Axis.NBins; bin++ {
		label := h.BinLabel(bin)
		if label == "" {
			label = strconv.FormatFloat(h.Axis.BinCenter(bin), 'g', 4, 64)
		}
		labels = append(labels, label)
		data = append(data, opts.BarData{Value: h.BinContent(bin)})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    name,
			Subtitle: "entries=" + strconv.FormatInt(int64(h.Entries()), 10),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: h.Axis.Title}),
	)
	bar.SetXAxis(labels).AddSeries(name, data)
	return bar
}

func efficiencyChart(c efficiency.Curve) *charts.Line {
	labels := make([]string, 0, len(c.Points))
	eff := make([]opts.LineData, 0, len(c.Points))
	lower := make([]opts.LineData, 0, len(c.Points))
	upper := make([]opts.LineData, 0, len(c.Points))
	single := make([]opts.LineData, 0, len(c.Points))
	for _, p := range c.Points {
		labels = append(labels, strconv.FormatFloat(p.Center, 'g', 4, 64))
		if p.Empty() {
			// echarts treats "-" as a gap
			eff = append(eff, opts.LineData{Value: "-"})
			lower = append(lower, opts.LineData{Value: "-"})
			upper = append(upper, opts.LineData{Value: "-"})
			single = append(single, opts.LineData{Value: "-"})
			continue
		}
		eff = append(eff, opts.LineData{Value: p.Efficiency})
		lower = append(lower, opts.LineData{Value: p.Lower})
		upper = append(upper, opts.LineData{Value: p.Upper})
		single = append(single, opts.LineData{Value: p.SingleEff})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    statusLabel(c.Status) + " efficiency vs " + string(c.Variable),
			Subtitle: "mass window " + strconv.FormatFloat(c.MassMin, 'f', 3, 64) + "-" + strconv.FormatFloat(c.MassMax, 'f', 3, 64),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: c.Title}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1.05}),
	)
	line.SetXAxis(labels).
		AddSeries("both daughters", eff).
		AddSeries("lower", lower).
		AddSeries("upper", upper).
		AddSeries("at least one", single)
	return line
}
