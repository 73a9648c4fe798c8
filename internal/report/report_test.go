package report

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/trackeff.report/internal/config"
	"github.com/banshee-data/trackeff.report/internal/db"
	"github.com/banshee-data/trackeff.report/internal/efficiency"
	"github.com/banshee-data/trackeff.report/internal/fsutil"
	"github.com/banshee-data/trackeff.report/internal/hist"
	"github.com/banshee-data/trackeff.report/internal/k0seff"
	"github.com/banshee-data/trackeff.report/internal/monitoring"
	"github.com/banshee-data/trackeff.report/internal/pipeline"
	"github.com/banshee-data/trackeff.report/internal/toymc"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func analysed(t *testing.T) (*hist.Registry, db.Run) {
	t.Helper()
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	cfg := toymc.DefaultConfig()
	cfg.Events = 200
	gen, err := toymc.New(cfg)
	require.NoError(t, err)

	task := k0seff.NewTask(config.DefaultSelection())
	sum, err := pipeline.Run(context.Background(), gen, task, pipeline.Options{})
	require.NoError(t, err)
	require.Positive(t, sum.Stats.CandidatesAccepted)

	return task.Registry(), db.Run{
		ID:         "run-1",
		StartedAt:  sum.Started,
		FinishedAt: sum.Started.Add(1500 * time.Millisecond),
		Registry:   task.Registry().Name(),
		Input:      "toymc",
		Stats:      sum.Stats,
	}
}

func defaultEfficiency() efficiency.Options {
	return efficiency.Options{MassMin: 0.4, MassMax: 0.6, ConfidenceLevel: 0.683}
}

func TestWriteProducesAllOutputs(t *testing.T) {
	reg, run := analysed(t)
	fsys := fsutil.NewMemoryFileSystem()

	files, err := Write(fsys, "/out", run, reg, Options{
		Efficiency: defaultEfficiency(),
		Width:      4 * vg.Inch,
		Height:     3 * vg.Inch,
	})
	require.NoError(t, err)

	// 3 documents, 10 histogram plots, 4 efficiency plots
	assert.Len(t, files, 17)
	assert.ElementsMatch(t, files, fsys.Files("/out"))
	for _, want := range []string{
		"/out/summary.json",
		"/out/histograms.yoda",
		"/out/charts.html",
		"/out/plots/h_EventCounter.png",
		"/out/plots/Test_h_R.png",
		"/out/plots/eff_its_vs_r.png",
		"/out/plots/eff_ib_vs_pt.png",
	} {
		assert.Contains(t, files, want)
	}

	for _, f := range files {
		if filepath.Ext(f) != ".png" {
			continue
		}
		data, err := fsys.ReadFile(f)
		require.NoError(t, err)
		assert.True(t, len(data) > len(pngMagic) && string(data[:len(pngMagic)]) == string(pngMagic), "%s is not a PNG", f)
	}
}

func TestWriteWithoutPlots(t *testing.T) {
	reg, run := analysed(t)
	fsys := fsutil.NewMemoryFileSystem()

	files, err := Write(fsys, "/out", run, reg, Options{Efficiency: defaultEfficiency(), NoPlots: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"/out/charts.html", "/out/histograms.yoda", "/out/summary.json"}, fsys.Files("/out"))
	assert.Len(t, files, 3)
}

func TestSummaryDocument(t *testing.T) {
	reg, run := analysed(t)
	fsys := fsutil.NewMemoryFileSystem()
	_, err := Write(fsys, "/out", run, reg, Options{Efficiency: defaultEfficiency(), NoPlots: true})
	require.NoError(t, err)

	raw, err := fsys.ReadFile("/out/summary.json")
	require.NoError(t, err)

	var doc Summary
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "run-1", doc.ID)
	assert.Equal(t, run.Stats, doc.Stats)
	assert.InDelta(t, 1.5, doc.DurationSeconds, 1e-9)
	require.Len(t, doc.Histograms, 12)
	assert.Equal(t, k0seff.HEventCounter, doc.Histograms[0].Name)
	assert.Equal(t, run.Stats.EventsSeen+run.Stats.EventsSelected, doc.Histograms[0].Entries)

	require.Len(t, doc.Efficiency, 4)
	for _, e := range doc.Efficiency {
		assert.LessOrEqual(t, e.Pass, e.Single)
		assert.LessOrEqual(t, e.Single, e.Total)
		assert.Positive(t, e.Total)
		assert.LessOrEqual(t, e.Lower, e.Efficiency)
		assert.GreaterOrEqual(t, e.Upper, e.Efficiency)
	}
}

func TestNewSummaryEmptyRegistry(t *testing.T) {
	task := k0seff.NewTask(config.DefaultSelection())
	curves, err := Curves(task.Registry(), defaultEfficiency())
	require.NoError(t, err)

	s := NewSummary(db.Run{}, task.Registry(), curves)
	assert.Zero(t, s.DurationSeconds)
	for _, e := range s.Efficiency {
		assert.Zero(t, e.Total)
		assert.Zero(t, e.Efficiency)
	}
}

func TestCurvesNeedStatusHistograms(t *testing.T) {
	reg := hist.NewRegistry("empty")
	_, err := Curves(reg, defaultEfficiency())
	assert.ErrorIs(t, err, efficiency.ErrNoHistogram)
}

func TestEncodeYODA(t *testing.T) {
	reg, _ := analysed(t)
	var sb strings.Builder
	require.NoError(t, EncodeYODA(&sb, reg))

	out := sb.String()
	// 10 histograms plus 5 projections of each status histogram
	assert.Equal(t, 20, strings.Count(out, "BEGIN YODA_HISTO1D"))
	assert.Contains(t, out, "h_EventCounter")
	assert.Contains(t, out, "h5_RpTmassITSStatus_proj2")
}

func TestRenderCharts(t *testing.T) {
	reg, _ := analysed(t)
	curves, err := Curves(reg, defaultEfficiency())
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, RenderCharts(&sb, "K0S run", reg, curves))
	html := sb.String()
	assert.Contains(t, html, "K0S run")
	assert.Contains(t, html, "echarts")
	assert.Contains(t, html, "Test/h_pT")
	assert.Contains(t, html, "Selected")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Test_h_negIBhits", FileName("Test/h_negIBhits"))
	assert.Equal(t, "h_EventCounter", FileName("h_EventCounter"))
}
