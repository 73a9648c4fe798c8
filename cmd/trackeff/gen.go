package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/banshee-data/trackeff.report/internal/monitoring"
	"github.com/banshee-data/trackeff.report/internal/source"
	"github.com/banshee-data/trackeff.report/internal/toymc"
)

func genCommand(ctx context.Context, args []string, out io.Writer) (err error) {
	def := toymc.DefaultConfig()
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	outPath := fs.String("out", "", "Output file (.jsonl or .db)")
	seed := fs.Int64("seed", def.Seed, "Random seed")
	events := fs.Int("events", def.Events, "Number of collisions")
	signal := fs.Int("signal", def.SignalPerEvent, "Mean K0S decays per collision")
	background := fs.Int("background", def.BackgroundPerEvent, "Mean fake V0 candidates per collision")
	sel8 := fs.Float64("sel8", def.Sel8Fraction, "Fraction of collisions passing sel8")
	itsEff := fs.Float64("its-layer-eff", def.ITSLayerEfficiency, "Per-layer ITS cluster efficiency")
	broken := fs.Float64("broken-refs", def.BrokenRefFraction, "Fraction of collisions with a dangling daughter reference")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outPath == "" {
		return errors.New("-out is required")
	}

	cfg := def
	cfg.Seed = *seed
	cfg.Events = *events
	cfg.SignalPerEvent = *signal
	cfg.BackgroundPerEvent = *background
	cfg.Sel8Fraction = *sel8
	cfg.ITSLayerEfficiency = *itsEff
	cfg.BrokenRefFraction = *broken

	gen, err := toymc.New(cfg)
	if err != nil {
		return err
	}
	defer gen.Close()

	sink, err := source.Create(ctx, *outPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); err == nil {
			err = cerr
		}
	}()

	progress := monitoring.NewProgress("generated", 10000)
	for {
		ev, err := gen.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := sink.Write(ev); err != nil {
			return fmt.Errorf("write collision %d: %w", ev.Collision.GlobalIndex, err)
		}
		progress.Tick()
	}
	fmt.Fprintf(out, "wrote %d collisions to %s\n", progress.Count(), *outPath)
	return nil
}
