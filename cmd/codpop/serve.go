package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/cod-population/pkg/api"
	"github.com/hazyhaar/cod-population/pkg/config"
	"github.com/hazyhaar/cod-population/pkg/ledger"
)

const version = "0.3.0"

// openRuns opens the ledger for the inspection API. A ledger that cannot be
// opened disables the run endpoints instead of failing the server.
func openRuns(cfg *config.Config, logger *slog.Logger) (api.RunStore, func()) {
	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		logger.Warn("run ledger unavailable", "path", cfg.LedgerPath, "error", err)
		return nil, func() {}
	}
	return l, func() { l.Close() }
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cf := addCommonFlags(fs)
	addr := fs.String("addr", "", "listen address (default: config)")
	fs.Parse(args)

	cfg, logger := setup(cf)
	if *addr != "" {
		cfg.Addr = *addr
	}
	runs, closeRuns := openRuns(cfg, logger)
	defer closeRuns()

	eps := api.NewEndpoints(runs, cfg.Ingest.NonLatinAlphabets, logger)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(eps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signalContext()
	defer stop()

	go func() {
		logger.Info("codpop listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(logger, "server error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	cf := addCommonFlags(fs)
	fs.Parse(args)

	cfg, logger := setup(cf)
	runs, closeRuns := openRuns(cfg, logger)
	defer closeRuns()

	srv := server.NewMCPServer("codpop", version, server.WithToolCapabilities(true))
	api.RegisterMCPTools(srv, api.NewEndpoints(runs, cfg.Ingest.NonLatinAlphabets, logger))

	logger.Info("serving MCP on stdio")
	if err := server.ServeStdio(srv); err != nil {
		fatal(logger, "mcp server", err)
	}
}
