package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trackeff.report/internal/db"
	"github.com/banshee-data/trackeff.report/internal/efficiency"
	"github.com/banshee-data/trackeff.report/internal/fsutil"
	"github.com/banshee-data/trackeff.report/internal/k0seff"
	"github.com/banshee-data/trackeff.report/internal/monitoring"
	"github.com/banshee-data/trackeff.report/internal/pipeline"
	"github.com/banshee-data/trackeff.report/internal/report"
	"github.com/banshee-data/trackeff.report/internal/source"
)

func runCommand(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	input := fs.String("input", "", "Event file to analyse (.jsonl or .db)")
	configPath := fs.String("config", "", "Analysis config JSON (defaults built in)")
	dbPath := fs.String("db", "", "Record the run in this SQLite database")
	outDir := fs.String("out", "", "Write plots, charts, YODA and summary to this directory")
	noPlots := fs.Bool("no-plots", false, "Skip PNG rendering")
	maxEvents := fs.Int64("max-events", 0, "Stop after N events (0 = all)")
	skipInvalid := fs.Bool("skip-invalid", false, "Skip events with unresolved references (overrides config)")
	v0CosPA := fs.Float64("v0cospa", 0, "Minimum V0 cosine of pointing angle (overrides config)")
	rapidity := fs.Float64("rapidity", 0, "Maximum |y| of the K0S hypothesis (overrides config)")
	nSigTPC := fs.Float64("nsig-tpc", 0, "Maximum daughter TPC pion nsigma (overrides config)")
	eventSelection := fs.Bool("event-selection", true, "Require sel8 collisions (overrides config)")
	verbose := fs.Bool("v", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return errors.New("-input is required")
	}
	if *dbPath == "" && *outDir == "" {
		return errors.New("nothing to do: set -db and/or -out")
	}
	monitoring.SetVerbose(*verbose)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// only flags given on the command line replace file values
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v0cospa":
			cfg.V0CosPA = v0CosPA
		case "rapidity":
			cfg.Rapidity = rapidity
		case "nsig-tpc":
			cfg.NSigTPC = nSigTPC
		case "event-selection":
			cfg.EventSelection = eventSelection
		case "skip-invalid":
			cfg.SkipInvalidEvents = skipInvalid
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfgJSON, err := json.Marshal(cfg.Resolved())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	src, err := source.Open(*input)
	if err != nil {
		return err
	}
	defer src.Close()

	task := k0seff.NewTask(cfg.Selection())
	sum, err := pipeline.Run(ctx, src, task, pipeline.Options{
		SkipInvalid:   cfg.GetSkipInvalidEvents(),
		ProgressEvery: cfg.GetProgressEvery(),
		MaxEvents:     *maxEvents,
	})
	if err != nil {
		return err
	}

	run := &db.Run{
		ID:            uuid.NewString(),
		StartedAt:     sum.Started,
		FinishedAt:    sum.Finished,
		Registry:      task.Registry().Name(),
		Input:         *input,
		Config:        cfgJSON,
		Stats:         sum.Stats,
		EventsSkipped: sum.EventsSkipped,
	}

	if *dbPath != "" {
		database, err := db.NewDB(*dbPath)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		if err := database.RecordRun(ctx, run, task.Registry()); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}

	if *outDir != "" {
		_, err := report.Write(fsutil.OSFileSystem{}, *outDir, *run, task.Registry(), report.Options{
			Efficiency: efficiency.Options{
				MassMin:         cfg.GetEfficiencyMassMin(),
				MassMax:         cfg.GetEfficiencyMassMax(),
				ConfidenceLevel: cfg.GetConfidenceLevel(),
			},
			NoPlots: *noPlots,
		})
		if err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "run %s: %d events (%d selected, %d skipped), %d/%d V0 candidates accepted in %s\n",
		run.ID, sum.Stats.EventsSeen, sum.Stats.EventsSelected, sum.EventsSkipped,
		sum.Stats.CandidatesAccepted, sum.Stats.CandidatesEvaluated, sum.Duration.Round(time.Millisecond))
	return nil
}
