package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hazyhaar/cod-population/pkg/diag"
	"github.com/hazyhaar/cod-population/pkg/ledger"
)

func cmdReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	cf := addCommonFlags(fs)
	runID := fs.String("run", "", "run ID (default: latest run)")
	list := fs.Int("list", 0, "list the N most recent runs instead")
	asJSON := fs.Bool("json", false, "print JSON")
	fs.Parse(args)

	cfg, logger := setup(cf)
	l, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		fatal(logger, "open ledger", err)
	}
	defer l.Close()
	ctx := context.Background()

	if *list > 0 {
		runs, err := l.Runs(ctx, *list)
		if err != nil {
			fatal(logger, "list runs", err)
		}
		if *asJSON {
			printJSON(runs)
			return
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCOMMAND\tSTARTED\tSTATUS\tROWS\tERRORS\tWARNINGS")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n", r.ID, r.Command, formatTime(r.StartedAt),
				r.Status, r.Rows, r.Errors, r.Warnings)
		}
		tw.Flush()
		return
	}

	var rep *ledger.Report
	if *runID != "" {
		rep, err = l.Report(ctx, *runID)
	} else {
		rep, err = l.LatestReport(ctx)
	}
	if err != nil {
		fatal(logger, "load report", err)
	}
	if *asJSON {
		printJSON(rep)
		return
	}
	printReport(os.Stdout, rep)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func formatTime(nanos int64) string {
	return time.Unix(0, nanos).UTC().Format(time.RFC3339)
}

func printReport(w io.Writer, rep *ledger.Report) {
	r := rep.Run
	fmt.Fprintf(w, "Run %s (%s)\n", r.ID, r.Command)
	fmt.Fprintf(w, "  started   %s\n", formatTime(r.StartedAt))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "  finished  %s\n", formatTime(*r.FinishedAt))
	}
	fmt.Fprintf(w, "  status    %s\n", r.Status)
	fmt.Fprintf(w, "  countries %d, rows %d, errors %d, warnings %d\n", r.Countries, r.Rows, r.Errors, r.Warnings)
	if r.LastError != nil {
		fmt.Fprintf(w, "  error     %s\n", *r.LastError)
	}

	if len(rep.Resources) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ISO3\tLEVEL\tSTATUS\tROWS\tRESOURCE")
		for _, o := range rep.Resources {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%s\n", o.ISO3, o.AdminLevel, o.Status, o.Rows, o.Resource)
		}
		tw.Flush()
	}

	if len(rep.Diagnostics) > 0 {
		fmt.Fprintln(w)
		for _, d := range rep.Diagnostics {
			marker := "W"
			if d.Severity == diag.SeverityError {
				marker = "E"
			}
			fmt.Fprintf(w, "%s %s\n", marker, d)
		}
	}
}
