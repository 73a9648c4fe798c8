package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/trackeff.report/internal/api"
)

func runsCommand(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	server := fs.String("server", "http://localhost:8080", "Base URL of a trackeff server")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	runs, err := api.NewClient(*server, nil).ListRuns(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tEVENTS\tSELECTED\tACCEPTED\tINPUT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime),
			r.Stats.EventsSeen, r.Stats.EventsSelected, r.Stats.CandidatesAccepted, r.Input)
	}
	return tw.Flush()
}
