package db

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackeff.report/internal/config"
	"github.com/banshee-data/trackeff.report/internal/hist"
	"github.com/banshee-data/trackeff.report/internal/k0seff"
)

func filledTask(t *testing.T) *k0seff.Task {
	t.Helper()
	task := k0seff.NewTask(config.DefaultSelection())
	for _, id := range []int64{1, 2, 3} {
		ev := testEvent(id)
		require.NoError(t, ev.Validate())
		task.Process(ev)
	}
	require.Equal(t, int64(3), task.Stats().CandidatesAccepted)
	return task
}

func TestRecordRunAndLoadRegistry(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	task := filledTask(t)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &Run{
		StartedAt:     started,
		FinishedAt:    started.Add(1500 * time.Millisecond),
		Input:         "events.jsonl",
		Config:        json.RawMessage(`{"v0cospa":0.995}`),
		Stats:         task.Stats(),
		EventsSkipped: 1,
	}
	require.NoError(t, db.RecordRun(ctx, run, task.Registry()))
	require.NotEmpty(t, run.ID)
	assert.Equal(t, k0seff.RegistryName, run.Registry)

	got, err := db.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, got.Duration())
	assert.Equal(t, "events.jsonl", got.Input)
	assert.JSONEq(t, `{"v0cospa":0.995}`, string(got.Config))
	assert.Equal(t, task.Stats(), got.Stats)
	assert.Equal(t, int64(1), got.EventsSkipped)

	reg, err := db.LoadRunRegistry(ctx, run.ID)
	require.NoError(t, err)
	orig := task.Registry()
	assert.Equal(t, orig.Name(), reg.Name())
	assert.Equal(t, orig.Names(), reg.Names())

	for _, name := range orig.Names() {
		kind, _ := orig.Kind(name)
		switch kind {
		case hist.KindH1:
			want, have := orig.H1(name), reg.H1(name)
			require.NotNil(t, have, name)
			assert.Equal(t, want.Axis, have.Axis, name)
			assert.Equal(t, want.Entries(), have.Entries(), name)
			for bin := 0; bin <= want.Axis.NBins+1; bin++ {
				assert.Equal(t, want.BinContent(bin), have.BinContent(bin), "%s bin %d", name, bin)
			}
			assert.Equal(t, want.BinLabels(), have.BinLabels(), name)
		case hist.KindSparse:
			want, have := orig.Sparse(name), reg.Sparse(name)
			require.NotNil(t, have, name)
			assert.Equal(t, want.Axes(), have.Axes(), name)
			assert.Equal(t, want.Entries(), have.Entries(), name)
			assert.Equal(t, want.NFilledBins(), have.NFilledBins(), name)
			want.Each(func(bins []int, content hist.SparseBin) {
				b, ok := have.Bin(bins...)
				assert.True(t, ok, "%s %v", name, bins)
				assert.Equal(t, content, b)
			})
		}
	}

	infos, err := db.RunHistograms(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, infos, len(orig.Names()))
	assert.Equal(t, k0seff.HEventCounter, infos[0].Name)
	assert.Equal(t, map[int]string{1: "Total", 2: "Selected"}, infos[0].Labels)

	var h1Rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM run_h1_bins WHERE run_id = ? AND name = ?`,
		run.ID, k0seff.HRadius).Scan(&h1Rows))
	assert.Equal(t, 1, h1Rows)
}

func TestLoadRunRegistryKeepsFullPrecision(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	reg := hist.NewRegistry(k0seff.RegistryName)
	counter := reg.Add1D(k0seff.HEventCounter, "", hist.NewAxis(2, -0.5, 1.5, ""))
	counter.Fill(0, 12345678)
	counter.Fill(0, 0.5)
	counter.Fill(1, 9876543.5)
	counter.Fill(7, 3) // overflow

	run := &Run{StartedAt: time.Unix(0, 0), FinishedAt: time.Unix(1, 0)}
	require.NoError(t, db.RecordRun(ctx, run, reg))

	var stored float64
	require.NoError(t, db.QueryRow(`SELECT sumw FROM run_h1_bins WHERE run_id = ? AND name = ? AND bin = 1`,
		run.ID, k0seff.HEventCounter).Scan(&stored))
	assert.Equal(t, 12345678.5, stored)

	loaded, err := db.LoadRunRegistry(ctx, run.ID)
	require.NoError(t, err)
	have := loaded.H1(k0seff.HEventCounter)
	require.NotNil(t, have)

	assert.Equal(t, 12345678.5, have.BinContent(1))
	assert.Equal(t, 9876543.5, have.BinContent(2))
	assert.Equal(t, 3.0, have.BinContent(3))
	assert.Equal(t, counter.Entries(), have.Entries())
	assert.Equal(t, counter.SumW(), have.SumW())
	assert.Equal(t, counter.SumW2(), have.SumW2())
	assert.Equal(t, counter.XMean(), have.XMean())
	assert.Equal(t, counter.Binning.Bins[0].SumW2(), have.Binning.Bins[0].SumW2())
}

func TestListAndDeleteRuns(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	task := filledTask(t)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		run := &Run{StartedAt: base.Add(time.Duration(i) * time.Hour), FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Second)}
		require.NoError(t, db.RecordRun(ctx, run, task.Registry()))
		ids = append(ids, run.ID)
	}

	runs, err := db.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	require.NoError(t, db.DeleteRun(ctx, ids[1]))
	assert.ErrorIs(t, db.DeleteRun(ctx, ids[1]), ErrRunNotFound)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM run_sparse_bins WHERE run_id = ?`, ids[1]).Scan(&n))
	assert.Equal(t, 0, n, "bins cascade with the run")

	runs, err = db.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunNotFound(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	_, err := db.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = db.LoadRunRegistry(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = db.RunHistograms(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	runs, err := db.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestBinKeys(t *testing.T) {
	assert.Equal(t, "21,1,0,2,101", formatBins([]int{21, 1, 0, 2, 101}))
	bins, err := parseBins("21,1,0,2,101")
	require.NoError(t, err)
	assert.Equal(t, []int{21, 1, 0, 2, 101}, bins)
	_, err = parseBins("1,x")
	assert.Error(t, err)
}
