// Package ledger persists what each consolidation run did: the resources it
// selected per country and admin level, and the diagnostics it raised.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/cod-population/pkg/diag"
	"github.com/hazyhaar/cod-population/pkg/ingest"
)

// ErrNoRuns is returned when the ledger holds no run yet.
var ErrNoRuns = errors.New("no runs recorded")

// Run statuses.
const (
	StatusRunning  = "running"
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusAborted  = "aborted"
	StatusIngested = "ingested"
)

// Run is a row of the runs table.
type Run struct {
	ID         string  `json:"id"`
	Command    string  `json:"command"`
	StartedAt  int64   `json:"started_at"`
	FinishedAt *int64  `json:"finished_at,omitempty"`
	Status     string  `json:"status"`
	Countries  int     `json:"countries"`
	Rows       int     `json:"rows"`
	Errors     int     `json:"errors"`
	Warnings   int     `json:"warnings"`
	LastError  *string `json:"last_error,omitempty"`
}

// Summary is what a finished run reports.
type Summary struct {
	Countries int
	Rows      int
	Errors    int
	Warnings  int
}

// Report is a run with everything recorded against it.
type Report struct {
	Run         Run                      `json:"run"`
	Resources   []ingest.ResourceOutcome `json:"resources"`
	Diagnostics []diag.Diagnostic        `json:"diagnostics"`
}

// Ledger wraps the SQLite database.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	status      TEXT NOT NULL,
	countries   INTEGER NOT NULL DEFAULT 0,
	row_count   INTEGER NOT NULL DEFAULT 0,
	errors      INTEGER NOT NULL DEFAULT 0,
	warnings    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT
);
CREATE TABLE IF NOT EXISTS resources (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	iso3        TEXT NOT NULL,
	dataset     TEXT NOT NULL,
	admin_level INTEGER NOT NULL,
	resource    TEXT NOT NULL DEFAULT '',
	resource_id TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	encoding    TEXT NOT NULL DEFAULT '',
	row_count   INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS resources_run ON resources(run_id);
CREATE TABLE IF NOT EXISTS diagnostics (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	category    TEXT NOT NULL,
	dataset_key TEXT NOT NULL,
	admin_level INTEGER NOT NULL,
	resource    TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL,
	severity    TEXT NOT NULL,
	surface     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS diagnostics_run ON diagnostics(run_id);
`

// Open opens (or creates) the ledger at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger tables: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun records a new running run and returns its ID.
func (l *Ledger) StartRun(ctx context.Context, command string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, started_at, status) VALUES (?, ?, ?, ?)`,
		id, command, l.now().UnixNano(), StatusRunning)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// RecordResources stores the per-level resource outcomes of a run.
func (l *Ledger) RecordResources(ctx context.Context, runID string, outcomes []ingest.ResourceOutcome) error {
	return l.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO resources
			(run_id, iso3, dataset, admin_level, resource, resource_id, url, encoding, row_count, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, o := range outcomes {
			if _, err := stmt.ExecContext(ctx, runID, o.ISO3, o.Dataset, o.AdminLevel, o.Resource,
				o.ResourceID, o.URL, o.Encoding, o.Rows, o.Status); err != nil {
				return fmt.Errorf("insert resource %s adm%d: %w", o.ISO3, o.AdminLevel, err)
			}
		}
		return nil
	})
}

// RecordDiagnostics stores the diagnostics of a run.
func (l *Ledger) RecordDiagnostics(ctx context.Context, runID string, diags []diag.Diagnostic) error {
	return l.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO diagnostics
			(run_id, category, dataset_key, admin_level, resource, message, severity, surface)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, d := range diags {
			if _, err := stmt.ExecContext(ctx, runID, d.Category, d.Key, d.AdminLevel, d.Resource,
				d.Message, string(d.Severity), d.Surface); err != nil {
				return fmt.Errorf("insert diagnostic: %w", err)
			}
		}
		return nil
	})
}

// FinishRun closes a run with its final status and counters. runErr, when
// not nil, is kept as the run's last error.
func (l *Ledger) FinishRun(ctx context.Context, runID, status string, s Summary, runErr error) error {
	var lastErr *string
	if runErr != nil {
		msg := runErr.Error()
		lastErr = &msg
	}
	res, err := l.db.ExecContext(ctx, `UPDATE runs SET finished_at = ?, status = ?, countries = ?,
		row_count = ?, errors = ?, warnings = ?, last_error = ? WHERE id = ?`,
		l.now().UnixNano(), status, s.Countries, s.Rows, s.Errors, s.Warnings, lastErr, runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

const runColumns = `id, command, started_at, finished_at, status, countries, row_count, errors, warnings, last_error`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	if err := row.Scan(&r.ID, &r.Command, &r.StartedAt, &r.FinishedAt, &r.Status,
		&r.Countries, &r.Rows, &r.Errors, &r.Warnings, &r.LastError); err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestRun returns the most recently started run.
func (l *Ledger) LatestRun(ctx context.Context) (*Run, error) {
	r, err := scanRun(l.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return r, nil
}

// Runs returns up to limit runs, newest first.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Report loads a run with its resources and diagnostics.
func (l *Ledger) Report(ctx context.Context, runID string) (*Report, error) {
	r, err := scanRun(l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	rep := &Report{Run: *r}

	rows, err := l.db.QueryContext(ctx, `SELECT iso3, dataset, admin_level, resource, resource_id,
		url, encoding, row_count, status FROM resources WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("load resources: %w", err)
	}
	for rows.Next() {
		var o ingest.ResourceOutcome
		if err := rows.Scan(&o.ISO3, &o.Dataset, &o.AdminLevel, &o.Resource, &o.ResourceID,
			&o.URL, &o.Encoding, &o.Rows, &o.Status); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		rep.Resources = append(rep.Resources, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = l.db.QueryContext(ctx, `SELECT category, dataset_key, admin_level, resource, message,
		severity, surface FROM diagnostics WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("load diagnostics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d diag.Diagnostic
		var severity string
		if err := rows.Scan(&d.Category, &d.Key, &d.AdminLevel, &d.Resource, &d.Message,
			&severity, &d.Surface); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Severity = diag.Severity(severity)
		rep.Diagnostics = append(rep.Diagnostics, d)
	}
	return rep, rows.Err()
}

// LatestReport returns the report of the most recent run.
func (l *Ledger) LatestReport(ctx context.Context) (*Report, error) {
	r, err := l.LatestRun(ctx)
	if err != nil {
		return nil, err
	}
	return l.Report(ctx, r.ID)
}

func (l *Ledger) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
