// Package pipeline drives a K0S efficiency task over an event source.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/trackeff.report/internal/k0seff"
	"github.com/banshee-data/trackeff.report/internal/monitoring"
	"github.com/banshee-data/trackeff.report/internal/source"
	"github.com/banshee-data/trackeff.report/internal/timeutil"
)

// Options controls the event loop.
type Options struct {
	// SkipInvalid drops events that fail validation instead of aborting.
	SkipInvalid bool
	// ProgressEvery logs a progress line every N processed events; 0 disables it.
	ProgressEvery int
	// MaxEvents stops after N events have been read; 0 reads everything.
	MaxEvents int64
	// Clock times the run; nil uses the wall clock.
	Clock timeutil.Clock
}

// Summary describes a finished (or interrupted) run.
type Summary struct {
	Stats         k0seff.Stats  `json:"stats"`
	EventsRead    int64         `json:"events_read"`
	EventsSkipped int64         `json:"events_skipped"`
	Started       time.Time     `json:"started"`
	Finished      time.Time     `json:"finished"`
	Duration      time.Duration `json:"duration_ns"`
}

// Run reads src to the end and feeds every valid event to task. On error
// or cancellation the summary covers the events handled so far.
func Run(ctx context.Context, src source.Source, task *k0seff.Task, opts Options) (Summary, error) {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	sum := Summary{Started: clock.Now()}
	progress := monitoring.NewProgress("events", opts.ProgressEvery)

	finish := func(err error) (Summary, error) {
		sum.Finished = clock.Now()
		sum.Duration = sum.Finished.Sub(sum.Started)
		sum.Stats = task.Stats()
		return sum, err
	}

	for opts.MaxEvents <= 0 || sum.EventsRead < opts.MaxEvents {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		ev, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return finish(fmt.Errorf("read event %d: %w", sum.EventsRead, err))
		}
		sum.EventsRead++

		if err := ev.Validate(); err != nil {
			if !opts.SkipInvalid {
				return finish(fmt.Errorf("collision %d: %w", ev.Collision.GlobalIndex, err))
			}
			sum.EventsSkipped++
			monitoring.Debugf("skipping collision %d: %v", ev.Collision.GlobalIndex, err)
			continue
		}
		task.Process(ev)
		progress.Tick()
	}

	sum, err := finish(nil)
	monitoring.Logf("processed %d events (%d selected, %d skipped): %d/%d candidates accepted in %s",
		sum.Stats.EventsSeen, sum.Stats.EventsSelected, sum.EventsSkipped,
		sum.Stats.CandidatesAccepted, sum.Stats.CandidatesEvaluated, sum.Duration.Round(time.Millisecond))
	return sum, err
}
