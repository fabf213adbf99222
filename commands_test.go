package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yes1688/arkprobe/internal/executor"
	"github.com/yes1688/arkprobe/internal/history"
	"github.com/yes1688/arkprobe/internal/report"
	"github.com/yes1688/arkprobe/internal/resolve"
	"github.com/yes1688/arkprobe/internal/suite"
	"github.com/yes1688/arkprobe/testutil/fakeark"
)

const cliSuite = `name: cli
cases:
  - name: Health Check
    path: /api/health
    expect: [200]
    priority: critical
  - name: File List
    path: /api/files
    category: files
    auth: true
    expect: [200]
    priority: critical
    assert:
      success: true
      require_data: [files]
`

// cliEnv is an isolated config, suite and report directory pointed at a
// fake target.
type cliEnv struct {
	dir       string
	cfgPath   string
	suitePath string
	reportDir string
	dbPath    string
}

func newCLIEnv(t *testing.T, baseURL string) *cliEnv {
	t.Helper()
	clearArkEnv(t)

	dir := t.TempDir()
	e := &cliEnv{
		dir:       dir,
		cfgPath:   filepath.Join(dir, "config.toml"),
		suitePath: filepath.Join(dir, "suite.yaml"),
		reportDir: filepath.Join(dir, "results"),
		dbPath:    filepath.Join(dir, "history.db"),
	}

	cfg := fmt.Sprintf(`[target]
base_url = %q
candidates = []
admin_email = "admin@example.com"
config_source = ""

[execution]
backoff = "1ms"

[report]
dir = %q

[history]
path = %q
`, baseURL, e.reportDir, e.dbPath)

	require.NoError(t, os.WriteFile(e.cfgPath, []byte(cfg), 0o600))
	require.NoError(t, os.WriteFile(e.suitePath, []byte(cliSuite), 0o600))

	return e
}

// execute runs the CLI with the env's config and quiet output.
func (e *cliEnv) execute(t *testing.T, args ...string) error {
	t.Helper()

	return e.executeContext(context.Background(), t, args...)
}

func (e *cliEnv) executeContext(ctx context.Context, t *testing.T, args ...string) error {
	t.Helper()

	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", e.cfgPath, "--quiet"}, args...))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	return cmd.ExecuteContext(ctx)
}

func (e *cliEnv) reports(t *testing.T) []string {
	t.Helper()

	paths, err := filepath.Glob(filepath.Join(e.reportDir, "run-*.json"))
	require.NoError(t, err)

	return paths
}

func TestRunCmd_PassesAgainstFakeTarget(t *testing.T) {
	srv := fakeark.New(t, fakeark.Options{})
	env := newCLIEnv(t, srv.URL)

	require.NoError(t, env.execute(t, "run", "--suite", env.suitePath))

	paths := env.reports(t)
	require.Len(t, paths, 1)

	rr, err := report.Load(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "cli", rr.Suite)
	assert.Equal(t, srv.URL, rr.Target)
	assert.Equal(t, 2, rr.Summary.Passed)
	assert.Equal(t, 0, rr.Summary.Failed)

	assert.FileExists(t, report.SiblingPath(paths[0], ".html"))
	assert.FileExists(t, report.SiblingPath(paths[0], ".md"))

	store, err := history.Open(context.Background(), env.dbPath, nil)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rr.RunID, runs[0].RunID)
	assert.True(t, runs[0].GatePass)
}

func TestRunCmd_UnreachableTargetFailsGate(t *testing.T) {
	srv := fakeark.New(t, fakeark.Options{})
	srv.SetStatus("/api/health", http.StatusServiceUnavailable)

	env := newCLIEnv(t, srv.URL)

	err := env.execute(t, "run", "--suite", env.suitePath, "--no-history")
	require.ErrorIs(t, err, errThresholdNotMet)

	paths := env.reports(t)
	require.Len(t, paths, 1, "a failed gate still writes its report")

	rr, err := report.Load(paths[0])
	require.NoError(t, err)
	assert.Equal(t, 2, rr.Summary.Skipped)
	assert.NoFileExists(t, env.dbPath)
}

func TestRunCmd_InterruptedRunStillRecordsHistory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ark := fakeark.New(t, fakeark.Options{})
	inner := ark.Router()

	// The second case cancels the run mid-request, as a first Ctrl-C would.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/stall" {
			cancel()
			<-r.Context().Done()

			return
		}

		inner.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	env := newCLIEnv(t, srv.URL)
	require.NoError(t, os.WriteFile(env.suitePath, []byte(`name: interrupted
cases:
  - name: Health Check
    path: /api/health
    expect: [200]
    priority: critical
  - name: Stall
    path: /api/stall
    expect: [200]
    priority: optional
`), 0o600))

	err := env.executeContext(ctx, t, "run", "--suite", env.suitePath)
	if err != nil {
		require.ErrorIs(t, err, errThresholdNotMet)
	}

	paths := env.reports(t)
	require.Len(t, paths, 1)

	rr, err := report.Load(paths[0])
	require.NoError(t, err)
	require.Len(t, rr.Results, 2)
	assert.Equal(t, report.StatusPassed, rr.Results[0].Status)
	assert.Equal(t, report.StatusSkipped, rr.Results[1].Status)
	assert.Equal(t, report.KindDeadline, rr.Results[1].ErrorKind)

	store, err := history.Open(context.Background(), env.dbPath, nil)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1, "the canceled run is still recorded")
	assert.Equal(t, rr.RunID, runs[0].RunID)
}

func TestProgressLine_ShowsRunningTotals(t *testing.T) {
	tests := []struct {
		name string
		p    executor.Progress
		want string
	}{
		{
			name: "failure",
			p: executor.Progress{Done: 2, Total: 5, Passed: 1, Failed: 1, Last: report.Outcome{
				Name: "File List", Status: report.StatusFailed, Error: "unexpected status 500 (expected 200)",
			}},
			want: "[2/5] FAILED  File List: unexpected status 500 (expected 200) (passed 1, failed 1, skipped 0)",
		},
		{
			name: "skip",
			p: executor.Progress{Done: 3, Total: 5, Passed: 1, Failed: 1, Skipped: 1, Last: report.Outcome{
				Name: "Realtime Handshake", Status: report.StatusSkipped, SkipReason: "skip_when matched: !realtime",
			}},
			want: "[3/5] SKIPPED Realtime Handshake: skip_when matched: !realtime (passed 1, failed 1, skipped 1)",
		},
		{
			name: "pass",
			p: executor.Progress{Done: 1, Total: 1, Passed: 1, Last: report.Outcome{
				Name: "Health Check", Status: report.StatusPassed,
			}},
			want: "[1/1] PASSED  Health Check (passed 1, failed 0, skipped 0)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, progressLine(tt.p, false))
		})
	}
}

func TestRunCmd_WritesMetricsFile(t *testing.T) {
	srv := fakeark.New(t, fakeark.Options{})
	env := newCLIEnv(t, srv.URL)
	metricsPath := filepath.Join(env.dir, "arkprobe.prom")

	require.NoError(t, env.execute(t, "run", "--suite", env.suitePath, "--no-history", "--metrics-file", metricsPath))

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `arkprobe_run_cases_total{priority="critical",status="passed"} 2`)
	assert.Contains(t, string(data), "arkprobe_run_pass_rate 1")
}

func TestRunCmd_BadSuiteIsAnError(t *testing.T) {
	srv := fakeark.New(t, fakeark.Options{})
	env := newCLIEnv(t, srv.URL)

	bad := filepath.Join(env.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: bad\ncases:\n  - name: x\n    path: nope\n"), 0o600))

	err := env.execute(t, "run", "--suite", bad)
	require.Error(t, err)
	assert.NotErrorIs(t, err, errThresholdNotMet)
	assert.Empty(t, env.reports(t))
	assert.Zero(t, srv.TotalHits())
}

func TestReportRenderCmd_RegeneratesDocuments(t *testing.T) {
	srv := fakeark.New(t, fakeark.Options{})
	env := newCLIEnv(t, srv.URL)

	require.NoError(t, env.execute(t, "run", "--suite", env.suitePath, "--no-history"))

	paths := env.reports(t)
	require.Len(t, paths, 1)

	html := report.SiblingPath(paths[0], ".html")
	require.NoError(t, os.Remove(html))

	require.NoError(t, env.execute(t, "report", "render", "--format", "html", paths[0]))
	assert.FileExists(t, html)
}

func TestReportRenderCmd_UnknownFormat(t *testing.T) {
	srv := fakeark.New(t, fakeark.Options{})
	env := newCLIEnv(t, srv.URL)

	require.NoError(t, env.execute(t, "run", "--suite", env.suitePath, "--no-history"))

	err := env.execute(t, "report", "render", "--format", "pdf", env.reports(t)[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown report format "pdf"`)
}

func TestHistoryCmd_PruneRemovesOldRuns(t *testing.T) {
	srv := fakeark.New(t, fakeark.Options{})
	env := newCLIEnv(t, srv.URL)

	require.NoError(t, env.execute(t, "run", "--suite", env.suitePath))
	require.NoError(t, env.execute(t, "history", "--case", "Health Check"))
	require.NoError(t, env.execute(t, "history", "prune", "--older-than", "0s"))

	store, err := history.Open(context.Background(), env.dbPath, nil)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLoadCmd_GatesOnSuccessRate(t *testing.T) {
	srv := fakeark.New(t, fakeark.Options{})
	env := newCLIEnv(t, srv.URL)

	require.NoError(t, env.execute(t, "load", "--requests", "6", "--workers", "3"))
	assert.Equal(t, 6, srv.Hits("/api/health"))

	srv.SetStatus("/api/health", http.StatusServiceUnavailable)

	err := env.execute(t, "load", "--requests", "4")
	require.ErrorIs(t, err, errThresholdNotMet)
}

func TestMigrateCmd_CreatesFolders(t *testing.T) {
	srv := fakeark.New(t, fakeark.Options{})
	env := newCLIEnv(t, srv.URL)

	root := filepath.Join(env.dir, "tree")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "guides"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	require.NoError(t, env.execute(t, "migrate", "--dry-run", root))
	assert.Empty(t, srv.Files())

	require.NoError(t, env.execute(t, "migrate", root))

	names := make([]string, 0)
	for _, f := range srv.Files() {
		names = append(names, f.Name)
	}

	assert.ElementsMatch(t, []string{"docs", "guides"}, names)

	// A second pass reuses the existing folders.
	require.NoError(t, env.execute(t, "migrate", root))
	assert.Len(t, srv.Files(), 2)
}

func TestSuiteValidateCmd(t *testing.T) {
	env := newCLIEnv(t, "http://localhost:7001")

	require.NoError(t, env.execute(t, "suite", "validate", env.suitePath))

	bad := filepath.Join(env.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: bad\ncases:\n  - name: x\n    path: /x\n    expect: [99]\n"), 0o600))

	assert.Error(t, env.execute(t, "suite", "validate", bad))
}

func TestSuiteSchemaCmd_PrintsSchema(t *testing.T) {
	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetArgs([]string{"suite", "schema"})
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"expect"`)
}

func TestBuildPlan_EstimatesWorstCase(t *testing.T) {
	cases := []*resolve.Case{
		{Name: "a", Priority: suite.PriorityCritical, Timeout: 2 * time.Second, RetryBudget: 2},
		{Name: "b", Priority: suite.PriorityOptional, Timeout: 5 * time.Second, RetryBudget: 0, Adapted: true},
		{Name: "c", Priority: suite.PriorityCritical, Timeout: time.Minute, Skipped: true, SkipReason: "no admin"},
	}

	p := buildPlan("s", "production", cases)

	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 2, p.Runnable)
	assert.Equal(t, 1, p.Skipped)
	assert.Equal(t, 1, p.Adapted)
	assert.Equal(t, 2, p.ByPriority[suite.PriorityCritical])
	assert.Equal(t, 11*time.Second, p.Estimate)

	var buf bytes.Buffer
	printPlan(&buf, p)
	assert.Contains(t, buf.String(), "critical 2, important 0, optional 1")
	assert.Contains(t, buf.String(), "skip: no admin")
}

func TestPrintRunSummary_ListsGateReasons(t *testing.T) {
	var buf bytes.Buffer

	printRunSummary(&buf, &runResult{
		Report:   &report.RunReport{RunID: "r1", Suite: "s", Target: "http://t"},
		Verdict:  report.Verdict{Pass: false, Reasons: []string{"no cases executed"}},
		JSONPath: "results/run-1.json",
	})

	out := buf.String()
	assert.Contains(t, out, "Gate: FAIL")
	assert.Contains(t, out, "  - no cases executed")
	assert.Contains(t, out, "results/run-1.json")
}

func TestLoadURL(t *testing.T) {
	assert.Equal(t, "http://t/api/health", loadURL("http://t", "/api/health"))
	assert.Equal(t, "https://other/ping", loadURL("http://t", "https://other/ping"))
}
