package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/yes1688/arkprobe/internal/config"
	"github.com/yes1688/arkprobe/internal/envprobe"
	"github.com/yes1688/arkprobe/internal/executor"
	"github.com/yes1688/arkprobe/internal/history"
	"github.com/yes1688/arkprobe/internal/metrics"
	"github.com/yes1688/arkprobe/internal/report"
	"github.com/yes1688/arkprobe/internal/resolve"
	"github.com/yes1688/arkprobe/internal/suite"
)

// errThresholdNotMet makes main exit 1 without printing an extra error;
// the run summary already says which gate failed.
var errThresholdNotMet = errors.New("pass-rate threshold not met")

// Report format names accepted in report.formats.
const (
	formatHTML     = "html"
	formatMarkdown = "markdown"
)

// runOptions are the per-invocation knobs of a suite run that do not live
// in the config file.
type runOptions struct {
	MetricsFile string
	NoHistory   bool
}

// runResult is everything a finished run produced.
type runResult struct {
	Report   *report.RunReport
	Verdict  report.Verdict
	JSONPath string
	Derived  []string
}

// loadSuite returns the configured suite file, or the built-in suite when
// none is configured.
func loadSuite(path string) (*suite.Suite, error) {
	if path == "" {
		return suite.Default()
	}

	return suite.LoadFile(path)
}

// discoverEnvironment runs one discovery pass with the configured probes.
// A missing config source is not an error: the mode is then unknown.
func discoverEnvironment(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (*envprobe.Snapshot, error) {
	prober := envprobe.NewProber(defaultHTTPClient(), envprobe.Options{
		HealthPaths:    cfg.HealthPaths,
		Categories:     cfg.Categories,
		AuthStatusPath: cfg.AuthStatusPath,
		RealtimePath:   cfg.RealtimePath,
		IdentityHeader: cfg.IdentityHeader,
		AdminEmail:     cfg.AdminEmail,
		Timeout:        cfg.ProbeTimeout,
		Exhaustive:     cfg.Exhaustive,
	}, logger)

	var src io.Reader

	if cfg.ConfigSource != "" {
		f, err := os.Open(cfg.ConfigSource)

		switch {
		case err == nil:
			defer f.Close()
			src = f
		case errors.Is(err, os.ErrNotExist):
			logger.Info("config source not found, deployment mode will be unknown",
				slog.String("path", cfg.ConfigSource))
		default:
			return nil, fmt.Errorf("opening config source: %w", err)
		}
	}

	return prober.Discover(ctx, cfg.Candidates, src)
}

// resolverPolicy is the default per-mode policy with the configured
// defaults layered on.
func resolverPolicy(cfg *config.Resolved) resolve.Policy {
	p := resolve.DefaultPolicy()
	p.DefaultBaseURL = cfg.BaseURL
	p.DefaultTimeout = cfg.Timeout
	p.DefaultRetries = cfg.Retries
	p.IdentityHeader = cfg.IdentityHeader

	return p
}

// targetOf names the base URL a run was aimed at: the first reachable
// candidate, or the configured base when nothing answered.
func targetOf(cfg *config.Resolved, snap *envprobe.Snapshot) string {
	if bases := snap.Bases(); len(bases) > 0 {
		return bases[0]
	}

	return cfg.BaseURL
}

// runSuite is the whole pipeline: discover, resolve, execute, persist.
// It returns a nil error even when the gate fails; callers inspect
// Verdict.
func runSuite(ctx context.Context, cc *CLIContext, opts runOptions) (*runResult, error) {
	cfg := cc.Cfg
	logger := cc.Logger

	st, err := loadSuite(cfg.Suite)
	if err != nil {
		return nil, err
	}

	snap, err := discoverEnvironment(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if !snap.Reachable() {
		cc.Statusf("warning: no candidate answered a health check (%d tried)\n", len(cfg.Candidates))
	} else {
		cc.Statusf("Environment: mode %s, target %s\n", snap.Mode, targetOf(cfg, snap))
	}

	cases, err := resolve.New(resolverPolicy(cfg)).ResolveAll(st.Cases, snap)
	if err != nil {
		return nil, err
	}

	var rec *metrics.Recorder

	if opts.MetricsFile != "" {
		if rec, err = metrics.New(); err != nil {
			return nil, err
		}
	}

	exec := executor.New(&http.Client{}, executor.Options{
		Workers:     cfg.Workers,
		Backoff:     cfg.Backoff,
		Deadline:    cfg.Deadline,
		Suite:       st.Name,
		Target:      targetOf(cfg, snap),
		Environment: snap,
		Observer:    progressObserver(cc),
		Recorder:    recorderOrNil(rec),
	}, logger)

	rr, err := exec.Execute(ctx, cases)
	if err != nil {
		return nil, err
	}

	res := &runResult{
		Report: rr,
		Verdict: report.Evaluate(rr, report.Threshold{
			Critical: float64(cfg.Report.CriticalThreshold),
			Other:    float64(cfg.Report.OtherThreshold),
		}),
	}

	if res.JSONPath, err = report.WriteJSON(cfg.Report.Dir, rr); err != nil {
		return nil, err
	}

	if res.Derived, err = renderDerived(res.JSONPath, rr, cfg.Report.Formats); err != nil {
		return nil, err
	}

	// An interrupted run still lands in history with its partial report.
	if cfg.History.Enabled && !opts.NoHistory {
		recordHistory(context.WithoutCancel(ctx), cfg, logger, res)
	}

	if rec != nil {
		rec.ObserveRun(rr.Summary)

		if err := rec.WriteTextfile(opts.MetricsFile); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// recorderOrNil avoids handing the executor a typed-nil interface.
func recorderOrNil(rec *metrics.Recorder) executor.Recorder {
	if rec == nil {
		return nil
	}

	return rec
}

// renderDerived writes the configured derived documents next to the JSON
// report and returns their paths.
func renderDerived(jsonPath string, rr *report.RunReport, formats []string) ([]string, error) {
	var paths []string

	for _, f := range formats {
		var (
			path string
			data []byte
		)

		switch f {
		case formatHTML:
			path = report.SiblingPath(jsonPath, ".html")

			var err error
			if data, err = report.RenderHTML(rr); err != nil {
				return nil, err
			}
		case formatMarkdown:
			path = report.SiblingPath(jsonPath, ".md")
			data = report.RenderMarkdown(rr)
		default:
			return nil, fmt.Errorf("unknown report format %q", f)
		}

		if err := report.WriteFile(path, data); err != nil {
			return nil, err
		}

		paths = append(paths, path)
	}

	return paths, nil
}

// recordHistory stores the run. History is auxiliary: a failure is logged
// and never fails the run.
func recordHistory(ctx context.Context, cfg *config.Resolved, logger *slog.Logger, res *runResult) {
	path := cfg.HistoryPath()
	if path == "" {
		logger.Warn("history disabled: no data directory")
		return
	}

	store, err := history.Open(ctx, path, logger)
	if err != nil {
		logger.Warn("opening history store", slog.String("error", err.Error()))
		return
	}
	defer store.Close()

	if err := store.Record(ctx, res.Report, res.Verdict, res.JSONPath); err != nil {
		logger.Warn("recording run history", slog.String("error", err.Error()))
	}
}

// progressObserver prints one line per finished case to stderr.
func progressObserver(cc *CLIContext) executor.Observer {
	if cc.Flags.Quiet || cc.Flags.JSON {
		return nil
	}

	return func(p executor.Progress) {
		cc.Statusf("%s\n", progressLine(p, stderrIsTerminal))
	}
}

// progressLine renders one finished case plus the running totals.
func progressLine(p executor.Progress, color bool) string {
	line := fmt.Sprintf("[%d/%d] %-7s %s", p.Done, p.Total, colorStatus(p.Last.Status, color), p.Last.Name)

	switch {
	case p.Last.Error != "":
		line += ": " + p.Last.Error
	case p.Last.SkipReason != "":
		line += ": " + p.Last.SkipReason
	}

	return fmt.Sprintf("%s (passed %d, failed %d, skipped %d)", line, p.Passed, p.Failed, p.Skipped)
}
