package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/hazyhaar/cod-population/pkg/assemble"
	"github.com/hazyhaar/cod-population/pkg/boundary"
	"github.com/hazyhaar/cod-population/pkg/catalog"
	"github.com/hazyhaar/cod-population/pkg/config"
	"github.com/hazyhaar/cod-population/pkg/country"
	"github.com/hazyhaar/cod-population/pkg/diag"
	"github.com/hazyhaar/cod-population/pkg/ingest"
	"github.com/hazyhaar/cod-population/pkg/ledger"
	"github.com/hazyhaar/cod-population/pkg/tabular"
)

// job is one recorded run of the ingest and/or assemble phases.
type job struct {
	cfg       *config.Config
	logger    *slog.Logger
	ledger    *ledger.Ledger
	runID     string
	countries *country.Table
	fetcher   *tabular.Client
	diags     *diag.Collector
}

func startJob(ctx context.Context, cfg *config.Config, logger *slog.Logger, command string) (*job, error) {
	countries, err := country.Default()
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return nil, err
	}
	runID, err := l.StartRun(ctx, command)
	if err != nil {
		l.Close()
		return nil, err
	}
	logger.Info("run started", "run_id", runID, "command", command)
	return &job{
		cfg:       cfg,
		logger:    logger.With("run_id", runID),
		ledger:    l,
		runID:     runID,
		countries: countries,
		fetcher:   tabular.NewClient(cfg.Catalog.UserAgent, cfg.Catalog.Attempts),
		diags:     diag.NewCollector(cfg.ErrToHDX),
	}, nil
}

// ingest runs the pipeline over iso3s, or over the configured countries,
// or over every known country.
func (j *job) ingest(ctx context.Context, iso3s []string) (*ingest.Session, error) {
	if len(iso3s) == 0 {
		iso3s = j.cfg.Countries
	}
	if len(iso3s) == 0 {
		iso3s = j.countries.ISO3s()
	}
	p := &ingest.Pipeline{
		Catalog:   catalog.NewClient(j.cfg.Catalog.Site, j.cfg.Catalog.UserAgent),
		Fetcher:   j.fetcher,
		Countries: j.countries,
		Sink:      j.diags,
		Logger:    j.logger,
		Config:    j.cfg.PipelineConfig(),
	}
	j.logger.Info("ingesting", "countries", len(iso3s), "workers", j.cfg.Workers)

	s := ingest.NewSession()
	err := p.Run(ctx, iso3s, s)
	if rerr := j.ledger.RecordResources(context.WithoutCancel(ctx), j.runID, s.Outcomes); rerr != nil {
		j.logger.Error("record resources", "error", rerr)
	}
	if err != nil {
		return s, err
	}
	for _, level := range s.Levels() {
		j.logger.Info("level ingested", "admin_level", level, "rows", len(s.Rows[level]))
	}
	return s, nil
}

// assemble writes the configured outputs. The boundary reference is only
// fetched when the hapi output is requested.
func (j *job) assemble(ctx context.Context, s *ingest.Session) error {
	var ref *boundary.Reference
	if slices.Contains(j.cfg.Outputs, "hapi") {
		ref = boundary.NewReference(j.countries)
		if err := ref.Fetch(ctx, j.fetcher, j.cfg.PCodesURL); err != nil {
			return fmt.Errorf("load p-codes: %w", err)
		}
		j.logger.Info("p-codes loaded", "adm1", ref.Count(1), "adm2", ref.Count(2))
	}
	a := &assemble.Assembler{
		Config:     j.cfg,
		Boundaries: ref,
		Sink:       j.diags,
		Logger:     j.logger,
	}
	manifests, err := a.Write(ctx, s, j.cfg.OutputDir, j.cfg.Outputs)
	for _, m := range manifests {
		for _, r := range m.Resources {
			j.logger.Info("resource written", "dataset", m.Name, "file", r.File, "rows", r.Rows)
		}
	}
	return err
}

// finish prints the diagnostics report and closes the run in the ledger.
// It still runs after cancellation.
func (j *job) finish(ctx context.Context, s *ingest.Session, okStatus string, runErr error) {
	ctx = context.WithoutCancel(ctx)
	defer j.ledger.Close()

	j.diags.Log(j.logger)
	if err := j.ledger.RecordDiagnostics(ctx, j.runID, j.diags.All()); err != nil {
		j.logger.Error("record diagnostics", "error", err)
	}

	sum := ledger.Summary{
		Errors:   j.diags.Count(diag.SeverityError),
		Warnings: j.diags.Count(diag.SeverityWarning),
	}
	if s != nil {
		sum.Countries = len(s.Metadata.Countries)
		sum.Rows = s.RowCount()
	}
	status := okStatus
	switch {
	case errors.Is(runErr, context.Canceled):
		status = ledger.StatusAborted
	case runErr != nil:
		status = ledger.StatusFailed
	}
	if err := j.ledger.FinishRun(ctx, j.runID, status, sum, runErr); err != nil {
		j.logger.Error("finish run", "error", err)
	}
	j.logger.Info("run finished", "status", status, "countries", sum.Countries, "rows", sum.Rows,
		"errors", sum.Errors, "warnings", sum.Warnings)
}

type runFlags struct {
	common    commonFlags
	countries *string
	workers   *int
	outputDir *string
	snapshot  *string
}

func addRunFlags(fs *flag.FlagSet) runFlags {
	return runFlags{
		common:    addCommonFlags(fs),
		countries: fs.String("countries", "", "comma-separated ISO3 codes (default: config, then every known country)"),
		workers:   fs.Int("workers", 0, "countries processed concurrently (default: config)"),
		outputDir: fs.String("output-dir", "", "output directory (default: config)"),
		snapshot:  fs.String("snapshot", "", "session snapshot path (default: config)"),
	}
}

func (rf runFlags) apply(cfg *config.Config) {
	if *rf.workers > 0 {
		cfg.Workers = *rf.workers
	}
	if *rf.outputDir != "" {
		cfg.OutputDir = *rf.outputDir
	}
	if *rf.snapshot != "" {
		cfg.SnapshotPath = *rf.snapshot
	}
}

func (rf runFlags) iso3s() []string {
	var out []string
	for _, v := range strings.Split(*rf.countries, ",") {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	rf := addRunFlags(fs)
	fs.Parse(args)

	cfg, logger := setup(rf.common)
	rf.apply(cfg)
	ctx, stop := signalContext()
	defer stop()

	j, err := startJob(ctx, cfg, logger, "run")
	if err != nil {
		fatal(logger, "start run", err)
	}
	s, err := j.ingest(ctx, rf.iso3s())
	if err == nil {
		err = j.assemble(ctx, s)
	}
	j.finish(ctx, s, ledger.StatusDone, err)
	if err != nil {
		fatal(logger, "run failed", err)
	}
}

func cmdIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	rf := addRunFlags(fs)
	fs.Parse(args)

	cfg, logger := setup(rf.common)
	rf.apply(cfg)
	ctx, stop := signalContext()
	defer stop()

	j, err := startJob(ctx, cfg, logger, "ingest")
	if err != nil {
		fatal(logger, "start run", err)
	}
	s, err := j.ingest(ctx, rf.iso3s())
	if err == nil {
		err = ingest.SaveSnapshot(s, cfg.SnapshotPath)
	}
	j.finish(ctx, s, ledger.StatusIngested, err)
	if err != nil {
		fatal(logger, "ingest failed", err)
	}
	logger.Info("snapshot saved", "path", cfg.SnapshotPath)
}

func cmdAssemble(args []string) {
	fs := flag.NewFlagSet("assemble", flag.ExitOnError)
	rf := addRunFlags(fs)
	fs.Parse(args)

	cfg, logger := setup(rf.common)
	rf.apply(cfg)
	ctx, stop := signalContext()
	defer stop()

	s, err := ingest.LoadSnapshot(cfg.SnapshotPath)
	if err != nil {
		fatal(logger, "load snapshot", err)
	}
	j, err := startJob(ctx, cfg, logger, "assemble")
	if err != nil {
		fatal(logger, "start run", err)
	}
	err = j.assemble(ctx, s)
	j.finish(ctx, s, ledger.StatusDone, err)
	if err != nil {
		fatal(logger, "assemble failed", err)
	}
}

func cmdOutputs() {
	fmt.Println("Available outputs:")
	fmt.Println()
	for _, o := range assemble.All() {
		fmt.Printf("  %-10s  %s\n", o.ID(), o.Description())
	}
	fmt.Println()
	fmt.Println("Select them with `outputs:` in config.yaml or CODPOP_OUTPUTS.")
}
