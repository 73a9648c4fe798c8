// Package report renders the histograms and efficiency curves of an analysis
// run to PNG plots, an HTML chart page, a YODA file and a JSON summary.
package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/trackeff.report/internal/db"
	"github.com/banshee-data/trackeff.report/internal/efficiency"
	"github.com/banshee-data/trackeff.report/internal/fsutil"
	"github.com/banshee-data/trackeff.report/internal/hist"
	"github.com/banshee-data/trackeff.report/internal/monitoring"
	"github.com/banshee-data/trackeff.report/internal/security"
)

// Output file names relative to the report directory.
const (
	SummaryFile = "summary.json"
	YODAFile    = "histograms.yoda"
	ChartsFile  = "charts.html"
	PlotsDir    = "plots"
)

// Options controls report generation.
type Options struct {
	Efficiency efficiency.Options
	// Plot size; zero values use 14x6 inches.
	Width, Height vg.Length
	// NoPlots skips PNG rendering.
	NoPlots bool
}

func (o Options) size() (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w <= 0 {
		w = 14 * vg.Inch
	}
	if h <= 0 {
		h = 6 * vg.Inch
	}
	return w, h
}

// Curves computes the ITS and inner-barrel efficiencies vs R and vs pT.
func Curves(reg *hist.Registry, opts efficiency.Options) ([]efficiency.Curve, error) {
	var out []efficiency.Curve
	for _, status := range []efficiency.Status{efficiency.StatusITS, efficiency.StatusIB} {
		for _, v := range []efficiency.Variable{efficiency.VsRadius, efficiency.VsPt} {
			c, err := efficiency.FromRegistry(reg, status, v, opts)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// Write renders every output for run into dir and returns the paths written.
func Write(fsys fsutil.FileSystem, dir string, run db.Run, reg *hist.Registry, opts Options) ([]string, error) {
	curves, err := Curves(reg, opts.Efficiency)
	if err != nil {
		return nil, err
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	var written []string
	put := func(name string, data []byte) error {
		path := filepath.Join(dir, name)
		if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
			return err
		}
		if err := fsys.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}

	sum, err := json.MarshalIndent(NewSummary(run, reg, curves), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	if err := put(SummaryFile, append(sum, '\n')); err != nil {
		return nil, err
	}

	var yoda strings.Builder
	if err := EncodeYODA(&yoda, reg); err != nil {
		return nil, err
	}
	if err := put(YODAFile, []byte(yoda.String())); err != nil {
		return nil, err
	}

	var page strings.Builder
	if err := RenderCharts(&page, chartsTitle(run, reg), reg, curves); err != nil {
		return nil, err
	}
	if err := put(ChartsFile, []byte(page.String())); err != nil {
		return nil, err
	}

	if !opts.NoPlots {
		if err := fsys.MkdirAll(filepath.Join(dir, PlotsDir), 0o755); err != nil {
			return nil, fmt.Errorf("create plots dir: %w", err)
		}
		w, h := opts.size()
		for _, name := range reg.Names() {
			h1 := reg.H1(name)
			if h1 == nil {
				continue
			}
			img, err := HistogramPNG(h1, w, h)
			if err != nil {
				return nil, fmt.Errorf("plot %s: %w", name, err)
			}
			if err := put(filepath.Join(PlotsDir, FileName(name)+".png"), img); err != nil {
				return nil, err
			}
		}
		for _, c := range curves {
			img, err := EfficiencyPNG(c, w, h)
			if err != nil {
				return nil, fmt.Errorf("plot efficiency %s vs %s: %w", c.Status, c.Variable, err)
			}
			name := fmt.Sprintf("eff_%s_vs_%s.png", c.Status, c.Variable)
			if err := put(filepath.Join(PlotsDir, name), img); err != nil {
				return nil, err
			}
		}
	}

	monitoring.Logf("report: wrote %d files to %s", len(written), dir)
	return written, nil
}

// FileName turns a histogram name such as "Test/h_R" into a file stem.
func FileName(histogram string) string {
	return security.SanitizeFilename(histogram)
}

func chartsTitle(run db.Run, reg *hist.Registry) string {
	if run.ID == "" {
		return reg.Name()
	}
	return fmt.Sprintf("%s (run %s)", reg.Name(), run.ID)
}

// Summary is the JSON document describing a run.
type Summary struct {
	db.Run
	DurationSeconds float64                `json:"duration_seconds"`
	Histograms      []HistogramSummary     `json:"histograms"`
	Efficiency      []IntegratedEfficiency `json:"efficiency"`
}

// HistogramSummary lists one registered histogram.
type HistogramSummary struct {
	Name    string    `json:"name"`
	Kind    hist.Kind `json:"kind"`
	Entries int64     `json:"entries"`
}

// IntegratedEfficiency is an efficiency curve summed over all its bins.
type IntegratedEfficiency struct {
	Status     efficiency.Status   `json:"status"`
	Variable   efficiency.Variable `json:"variable"`
	Pass       float64             `json:"pass"`
	Single     float64             `json:"single"`
	Total      float64             `json:"total"`
	Efficiency float64             `json:"efficiency"`
	Lower      float64             `json:"lower"`
	Upper      float64             `json:"upper"`
}

// NewSummary builds the summary document for run.
func NewSummary(run db.Run, reg *hist.Registry, curves []efficiency.Curve) Summary {
	s := Summary{Run: run}
	if !run.StartedAt.IsZero() && !run.FinishedAt.IsZero() {
		s.DurationSeconds = run.Duration().Round(time.Millisecond).Seconds()
	}
	for _, name := range reg.Names() {
		k, _ := reg.Kind(name)
		hs := HistogramSummary{Name: name, Kind: k}
		switch k {
		case hist.KindH1:
			hs.Entries = int64(reg.H1(name).Entries())
		case hist.KindSparse:
			hs.Entries = reg.Sparse(name).Entries()
		}
		s.Histograms = append(s.Histograms, hs)
	}
	for _, c := range curves {
		ie := IntegratedEfficiency{Status: c.Status, Variable: c.Variable}
		for _, p := range c.Points {
			ie.Pass += p.Pass
			ie.Single += p.Single
			ie.Total += p.Total
		}
		if ie.Total > 0 {
			ie.Efficiency = ie.Pass / ie.Total
			ie.Lower, ie.Upper = efficiency.ClopperPearson(ie.Pass, ie.Total, c.ConfidenceLevel)
		}
		s.Efficiency = append(s.Efficiency, ie)
	}
	return s
}
