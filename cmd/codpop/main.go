package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/cod-population/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "ingest":
		cmdIngest(os.Args[2:])
	case "assemble":
		cmdAssemble(os.Args[2:])
	case "report":
		cmdReport(os.Args[2:])
	case "outputs":
		cmdOutputs()
	case "serve":
		cmdServe(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: codpop <command> [flags]

Commands:
  run        Ingest every country dataset and write the output datasets
  ingest     Ingest only, saving the session snapshot
  assemble   Write the output datasets from a saved snapshot
  report     Print the report of the latest (or a given) run
  outputs    List the available output datasets
  serve      Start the inspection HTTP API
  mcp        Serve the inspection tools over MCP on stdin/stdout
`)
}

// commonFlags are shared by every command that reads the configuration.
type commonFlags struct {
	config  *string
	envFile *string
	verbose *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		config:  fs.String("config", "config.yaml", "path to config file"),
		envFile: fs.String("env", ".env", "path to an optional .env file"),
		verbose: fs.Bool("v", false, "debug logging"),
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// setup builds the logger and loads the configuration, exiting on failure.
func setup(cf commonFlags) (*config.Config, *slog.Logger) {
	logger := newLogger(*cf.verbose)
	if err := config.LoadEnvFile(*cf.envFile); err != nil {
		logger.Error("load env file", "error", err)
		os.Exit(1)
	}
	if _, err := os.Stat(*cf.config); os.IsNotExist(err) {
		logger.Info("no config file, using defaults", "path", *cf.config)
	}
	cfg, err := config.Load(*cf.config)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
