package config

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command, giving
// users visibility into the effective values after all four override layers
// have been applied.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", displayPath(r.ConfigPath))

	renderTargetSection(ew, r)
	renderProbeSection(ew, r)
	renderExecutionSection(ew, r)
	renderReportSection(ew, r)
	renderLoadSection(ew, r)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("  log_format = %q\n", r.Logging.LogFormat)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func displayPath(p string) string {
	if p == "" {
		return "(none)"
	}

	return p
}

func renderTargetSection(ew *errWriter, r *Resolved) {
	ew.printf("[target]\n")
	ew.printf("  base_url        = %q\n", r.BaseURL)
	ew.printf("  candidates      = [%s]\n", quoteList(r.Candidates))
	ew.printf("  identity_header = %q\n", r.IdentityHeader)
	ew.printf("  config_source   = %q\n", r.ConfigSource)

	if r.AdminEmail != "" {
		ew.printf("  admin_email     = %q\n", r.AdminEmail)
	}

	ew.printf("\n")
}

func renderProbeSection(ew *errWriter, r *Resolved) {
	ew.printf("[probe]\n")
	ew.printf("  health_paths     = [%s]\n", quoteList(r.HealthPaths))
	ew.printf("  auth_status_path = %q\n", r.AuthStatusPath)
	ew.printf("  realtime_path    = %q\n", r.RealtimePath)
	ew.printf("  timeout          = %q\n", r.ProbeTimeout)
	ew.printf("  exhaustive       = %t\n", r.Exhaustive)

	names := make([]string, 0, len(r.Categories))
	for name := range r.Categories {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		ew.printf("  categories.%-6s = %q\n", name, r.Categories[name])
	}

	ew.printf("\n")
}

func renderExecutionSection(ew *errWriter, r *Resolved) {
	ew.printf("[execution]\n")

	suite := r.Suite
	if suite == "" {
		suite = "(built-in)"
	}

	ew.printf("  suite    = %q\n", suite)
	ew.printf("  timeout  = %q\n", r.Timeout)
	ew.printf("  retries  = %d\n", r.Retries)
	ew.printf("  backoff  = %q\n", r.Backoff)
	ew.printf("  workers  = %d\n", r.Workers)
	ew.printf("  deadline = %q\n\n", r.Deadline)
}

func renderReportSection(ew *errWriter, r *Resolved) {
	ew.printf("[report]\n")
	ew.printf("  dir                = %q\n", r.Report.Dir)
	ew.printf("  formats            = [%s]\n", quoteList(r.Report.Formats))
	ew.printf("  critical_threshold = %d\n", r.Report.CriticalThreshold)
	ew.printf("  other_threshold    = %d\n\n", r.Report.OtherThreshold)

	ew.printf("[history]\n")
	ew.printf("  enabled = %t\n", r.History.Enabled)
	ew.printf("  path    = %q\n\n", r.HistoryPath())
}

func renderLoadSection(ew *errWriter, r *Resolved) {
	ew.printf("[load]\n")
	ew.printf("  workers          = %d\n", r.LoadWorkers)
	ew.printf("  requests         = %d\n", r.LoadRequests)
	ew.printf("  path             = %q\n", r.LoadPath)
	ew.printf("  timeout          = %q\n", r.LoadTimeout)
	ew.printf("  min_success_rate = %d\n\n", r.LoadMinSuccessRate)
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return strings.Join(quoted, ", ")
}
