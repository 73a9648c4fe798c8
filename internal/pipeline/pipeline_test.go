package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackeff.report/internal/aod"
	"github.com/banshee-data/trackeff.report/internal/config"
	"github.com/banshee-data/trackeff.report/internal/k0seff"
	"github.com/banshee-data/trackeff.report/internal/monitoring"
	"github.com/banshee-data/trackeff.report/internal/source"
	"github.com/banshee-data/trackeff.report/internal/timeutil"
	"github.com/banshee-data/trackeff.report/internal/toymc"
)

func quiet(t *testing.T) *[]string {
	t.Helper()
	original := monitoring.Logf
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.Logf = original })
	return &lines
}

func event(id int64, broken bool) *aod.Event {
	tracks := []aod.Track{
		{GlobalIndex: id*10 + 1, Px: 0.51, Py: 0.2, HasTPC: true},
		{GlobalIndex: id*10 + 2, Px: 0.51, Py: -0.2, HasTPC: true},
	}
	if broken {
		tracks = tracks[:1]
	}
	return aod.NewEvent(
		aod.Collision{GlobalIndex: id, Sel8: true},
		[]aod.V0{{GlobalIndex: id, CollisionID: id, PosTrackID: id*10 + 1, NegTrackID: id*10 + 2,
			X: 2.05, PxPos: 0.51, PyPos: 0.2, PxNeg: 0.51, PyNeg: -0.2}},
		tracks,
	)
}

func TestRunProcessesAllEvents(t *testing.T) {
	lines := quiet(t)
	task := k0seff.NewTask(config.DefaultSelection())
	src := source.NewSlice(event(1, false), event(2, false), event(3, false))

	sum, err := Run(context.Background(), src, task, Options{ProgressEvery: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.EventsRead)
	assert.Equal(t, int64(0), sum.EventsSkipped)
	assert.Equal(t, k0seff.Stats{EventsSeen: 3, EventsSelected: 3, CandidatesEvaluated: 3, CandidatesAccepted: 3}, sum.Stats)
	assert.False(t, sum.Finished.Before(sum.Started))
	assert.Contains(t, *lines, "events: 2 processed")
}

func TestRunAbortsOnInvalidEvent(t *testing.T) {
	quiet(t)
	task := k0seff.NewTask(config.DefaultSelection())
	src := source.NewSlice(event(1, false), event(2, true), event(3, false))

	sum, err := Run(context.Background(), src, task, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, aod.ErrUnresolvedTrack)
	assert.Contains(t, err.Error(), "collision 2")
	assert.Equal(t, int64(2), sum.EventsRead)
	assert.Equal(t, int64(1), sum.Stats.EventsSeen)
}

func TestRunSkipsInvalidEvents(t *testing.T) {
	quiet(t)
	task := k0seff.NewTask(config.DefaultSelection())
	src := source.NewSlice(event(1, false), event(2, true), event(3, false))

	sum, err := Run(context.Background(), src, task, Options{SkipInvalid: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.EventsRead)
	assert.Equal(t, int64(1), sum.EventsSkipped)
	assert.Equal(t, int64(2), sum.Stats.EventsSeen)
	assert.Equal(t, 2.0, task.Registry().H1(k0seff.HEventCounter).BinContent(1))
}

func TestRunStopsOnCancel(t *testing.T) {
	quiet(t)
	task := k0seff.NewTask(config.DefaultSelection())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := Run(ctx, source.NewSlice(event(1, false)), task, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), sum.EventsRead)
}

type failingSource struct{ calls int }

func (f *failingSource) Next(context.Context) (*aod.Event, error) {
	f.calls++
	if f.calls > 1 {
		return nil, errors.New("disk on fire")
	}
	return event(1, false), nil
}

func (f *failingSource) Close() error { return nil }

func TestRunReportsSourceError(t *testing.T) {
	quiet(t)
	task := k0seff.NewTask(config.DefaultSelection())
	sum, err := Run(context.Background(), &failingSource{}, task, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read event 1")
	assert.Equal(t, int64(1), sum.Stats.EventsSeen)
}

func TestRunMaxEventsWithGenerator(t *testing.T) {
	quiet(t)
	cfg := toymc.DefaultConfig()
	cfg.Events = 100
	gen, err := toymc.New(cfg)
	require.NoError(t, err)

	task := k0seff.NewTask(config.DefaultSelection())
	sum, err := Run(context.Background(), gen, task, Options{MaxEvents: 40})
	require.NoError(t, err)
	assert.Equal(t, int64(40), sum.EventsRead)
	assert.Equal(t, 40, gen.Produced())
}

func TestRunUsesClock(t *testing.T) {
	quiet(t)
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewSteppingClock(start, 250*time.Millisecond)

	task := k0seff.NewTask(config.DefaultSelection())
	sum, err := Run(context.Background(), source.NewSlice(event(1, false)), task, Options{Clock: clock})
	require.NoError(t, err)
	assert.Equal(t, start, sum.Started)
	assert.Equal(t, start.Add(250*time.Millisecond), sum.Finished)
	assert.Equal(t, 250*time.Millisecond, sum.Duration)
}
