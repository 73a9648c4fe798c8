package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/trackeff.report/internal/config"
	"github.com/banshee-data/trackeff.report/internal/db"
	"github.com/banshee-data/trackeff.report/internal/version"
)

func main() {
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "run":
		err = runCommand(ctx, args, os.Stdout)
	case "gen":
		err = genCommand(ctx, args, os.Stdout)
	case "serve":
		err = serveCommand(ctx, args)
	case "runs":
		err = runsCommand(ctx, args, os.Stdout)
	case "migrate":
		err = migrateCommand(args, os.Stdout)
	case "version":
		fmt.Println(version.Current())
	case "help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `trackeff - K0S tracking-efficiency analysis

Usage: trackeff <command> [options]

Commands:
  run        Analyse an event file (.jsonl or .db) and record or report the result
  gen        Generate toy Monte Carlo events
  serve      Serve stored runs over HTTP
  runs       List the runs held by a running server
  migrate    Manage the database schema (up, down, status, version, force)
  version    Show build information
  help       Show this help message

Run 'trackeff <command> -h' for the options of a command.

Examples:
  trackeff gen -out events.jsonl -events 10000
  trackeff run -input events.jsonl -db trackeff.db -out report/
  trackeff serve -db trackeff.db -listen :8080
  trackeff migrate -db trackeff.db status`)
}

// loadConfig reads path, or returns the built-in defaults when path is empty.
func loadConfig(path string) (*config.AnalysisConfig, error) {
	if path == "" {
		return config.DefaultAnalysisConfig(), nil
	}
	return config.LoadAnalysisConfig(path)
}

func migrateCommand(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", "trackeff.db", "Path to the SQLite database")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: trackeff migrate [-db path] <action>")
		fs.PrintDefaults()
		db.PrintMigrateHelp(fs.Output())
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	return db.RunMigrateCommand(fs.Args(), *dbPath, out)
}
