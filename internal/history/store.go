// Package history keeps a SQLite record of past runs so trends and flaky
// cases can be inspected without re-reading every JSON report.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/yes1688/arkprobe/internal/envprobe"
	"github.com/yes1688/arkprobe/internal/report"
)

// ErrNilReport is returned when Record is called without a report.
var ErrNilReport = errors.New("history: nil run report")

const dirPerms = 0o700

const (
	sqlInsertRun = `INSERT INTO runs
		(run_id, suite, target, mode, started_at, duration_ms, total, passed,
		 failed, skipped, adapted, pass_rate, gate_pass, report_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlInsertCase = `INSERT INTO case_results
		(run_id, position, name, priority, status, observed_status, attempts,
		 elapsed_ms, error_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecentRuns = `SELECT run_id, suite, target, mode, started_at, duration_ms,
		total, passed, failed, skipped, adapted, pass_rate, gate_pass, report_path
		FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`

	sqlCaseHistory = `SELECT c.run_id, r.started_at, c.status, c.observed_status,
		c.attempts, c.elapsed_ms, c.error_kind
		FROM case_results c JOIN runs r ON r.run_id = c.run_id
		WHERE c.name = ? ORDER BY r.started_at DESC LIMIT ?`

	sqlPrune = `DELETE FROM runs WHERE started_at < ?`
)

// Run is one recorded run.
type Run struct {
	RunID      string
	Suite      string
	Target     string
	Mode       envprobe.Mode
	StartedAt  time.Time
	Duration   time.Duration
	Total      int
	Passed     int
	Failed     int
	Skipped    int
	Adapted    int
	PassRate   float64
	GatePass   bool
	ReportPath string
}

// CaseRun is one case's outcome in a recorded run.
type CaseRun struct {
	RunID          string
	StartedAt      time.Time
	Status         report.Status
	ObservedStatus int
	Attempts       int
	Elapsed        time.Duration
	ErrorKind      report.ErrorKind
}

// Store is the run-history database. It is safe for use by one process.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the history database at path and runs
// pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, dirPerms); err != nil {
			return nil, fmt.Errorf("history: creating directory %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("history store opened", slog.String("db_path", path))

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a run, its gate verdict and the path of its JSON report
// in one transaction.
func (s *Store) Record(ctx context.Context, rr *report.RunReport, v report.Verdict, reportPath string) error {
	if rr == nil {
		return ErrNilReport
	}

	mode := envprobe.ModeUnknown
	if rr.Environment != nil {
		mode = rr.Environment.Mode
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sum := rr.Summary

	_, err = tx.ExecContext(ctx, sqlInsertRun,
		rr.RunID, rr.Suite, rr.Target, string(mode),
		sum.StartedAt.UnixNano(), sum.Duration.Milliseconds(),
		sum.Total, sum.Passed, sum.Failed, sum.Skipped, sum.Adapted, sum.PassRate,
		v.Pass, nullString(reportPath),
	)
	if err != nil {
		return fmt.Errorf("history: inserting run %s: %w", rr.RunID, err)
	}

	for i, o := range rr.Results {
		_, err = tx.ExecContext(ctx, sqlInsertCase,
			rr.RunID, i, o.Name, string(o.Priority), string(o.Status),
			nullInt(o.ObservedStatus), o.Attempts, o.Elapsed.Milliseconds(), nullString(string(o.ErrorKind)),
		)
		if err != nil {
			return fmt.Errorf("history: inserting case %q: %w", o.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}

	s.logger.Debug("run recorded", slog.String("run_id", rr.RunID), slog.Int("cases", len(rr.Results)))

	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var (
			r          Run
			mode       string
			startedAt  int64
			durationMS int64
			reportPath sql.NullString
		)

		if err := rows.Scan(&r.RunID, &r.Suite, &r.Target, &mode, &startedAt, &durationMS,
			&r.Total, &r.Passed, &r.Failed, &r.Skipped, &r.Adapted, &r.PassRate, &r.GatePass, &reportPath); err != nil {
			return nil, fmt.Errorf("history: scanning run: %w", err)
		}

		r.Mode = envprobe.Mode(mode)
		r.StartedAt = time.Unix(0, startedAt)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.ReportPath = reportPath.String
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating runs: %w", err)
	}

	return runs, nil
}

// CaseHistory returns up to limit recorded outcomes of the named case,
// newest first.
func (s *Store) CaseHistory(ctx context.Context, name string, limit int) ([]CaseRun, error) {
	rows, err := s.db.QueryContext(ctx, sqlCaseHistory, name, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying case %q: %w", name, err)
	}
	defer rows.Close()

	var out []CaseRun

	for rows.Next() {
		var (
			c         CaseRun
			startedAt int64
			status    string
			observed  sql.NullInt64
			elapsedMS int64
			errorKind sql.NullString
		)

		if err := rows.Scan(&c.RunID, &startedAt, &status, &observed, &c.Attempts, &elapsedMS, &errorKind); err != nil {
			return nil, fmt.Errorf("history: scanning case: %w", err)
		}

		c.StartedAt = time.Unix(0, startedAt)
		c.Status = report.Status(status)
		c.ObservedStatus = int(observed.Int64)
		c.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		c.ErrorKind = report.ErrorKind(errorKind.String)
		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating case rows: %w", err)
	}

	return out, nil
}

// Prune deletes runs that started before cutoff and returns how many were
// removed. Case rows go with them.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlPrune, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("history: pruning: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("history: pruning: %w", err)
	}

	return n, nil
}

// FlakeRate is the share of executed runs of a case that failed, given its
// history. Skipped runs do not count.
func FlakeRate(runs []CaseRun) float64 {
	var executed, failed int

	for _, r := range runs {
		switch r.Status {
		case report.StatusFailed:
			executed++
			failed++
		case report.StatusPassed:
			executed++
		case report.StatusSkipped:
		}
	}

	if executed == 0 {
		return 0
	}

	return float64(failed) / float64(executed)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}
