package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/cod-population/pkg/diag"
	"github.com/hazyhaar/cod-population/pkg/ingest"
)

func tempLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "codpop.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codpop.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}
	if _, err := l.LatestRun(context.Background()); !errors.Is(err, ErrNoRuns) {
		t.Errorf("LatestRun on empty ledger = %v, want ErrNoRuns", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	l := tempLedger(t)
	ctx := context.Background()

	id, err := l.StartRun(ctx, "run")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("run id %q is not a UUID", id)
	}

	outcomes := []ingest.ResourceOutcome{
		{ISO3: "CAF", Dataset: "cod-ps-caf", AdminLevel: 1, Resource: "caf_adm1_2015.csv", ResourceID: "r1",
			URL: "https://data.test/caf_adm1_2015.csv", Encoding: "utf-8", Rows: 4, Status: ingest.StatusIngested},
		{ISO3: "CAF", Dataset: "cod-ps-caf", AdminLevel: 2, Status: ingest.StatusAmbiguous},
	}
	if err := l.RecordResources(ctx, id, outcomes); err != nil {
		t.Fatalf("RecordResources: %v", err)
	}

	diags := []diag.Diagnostic{
		{Category: "Population", Key: "cod-ps-caf", AdminLevel: 2, Message: "more than one adm2 resource found", Severity: diag.SeverityError, Surface: true},
		{Category: "Population", Key: "cod-ps-cod", AdminLevel: diag.NoLevel, Message: "admin 1 pcode CD99 not found", Severity: diag.SeverityWarning},
	}
	if err := l.RecordDiagnostics(ctx, id, diags); err != nil {
		t.Fatalf("RecordDiagnostics: %v", err)
	}

	if err := l.FinishRun(ctx, id, StatusDone, Summary{Countries: 2, Rows: 12, Errors: 1, Warnings: 1}, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	rep, err := l.LatestReport(ctx)
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	if rep.Run.ID != id || rep.Run.Status != StatusDone || rep.Run.Rows != 12 || rep.Run.FinishedAt == nil || rep.Run.LastError != nil {
		t.Errorf("run = %+v", rep.Run)
	}
	if diff := cmp.Diff(outcomes, rep.Resources); diff != "" {
		t.Errorf("resources mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(diags, rep.Diagnostics); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestFinishRun_Failure(t *testing.T) {
	l := tempLedger(t)
	ctx := context.Background()
	id, _ := l.StartRun(ctx, "ingest")
	if err := l.FinishRun(ctx, id, StatusFailed, Summary{}, errors.New("catalog unreachable")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	r, err := l.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if r.LastError == nil || *r.LastError != "catalog unreachable" {
		t.Errorf("last error = %v", r.LastError)
	}

	if err := l.FinishRun(ctx, "missing", StatusDone, Summary{}, nil); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestRuns_NewestFirst(t *testing.T) {
	l := tempLedger(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		l.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		id, err := l.StartRun(ctx, "run")
		if err != nil {
			t.Fatalf("StartRun: %v", err)
		}
		ids = append(ids, id)
	}

	runs, err := l.Runs(ctx, 2)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("runs = %+v", runs)
	}
	if _, err := l.Report(ctx, "nope"); err == nil {
		t.Error("expected error for unknown report")
	}
}
