package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yes1688/arkprobe/internal/report"
	"github.com/yes1688/arkprobe/internal/suite"
)

func TestRecorder_WriteTextfile(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.ObserveOutcome(report.Outcome{Status: report.StatusPassed, Priority: suite.PriorityCritical, Attempts: 1, Elapsed: 20 * time.Millisecond})
	m.ObserveOutcome(report.Outcome{Status: report.StatusFailed, Priority: suite.PriorityImportant, Attempts: 3, Elapsed: time.Second})
	m.ObserveOutcome(report.Outcome{Status: report.StatusSkipped, Priority: suite.PriorityOptional})
	m.ObserveRun(report.Summary{PassRate: 0.5, FinishedAt: time.Unix(1700000000, 0)})
	m.ObserveLoadRequest(true, 10*time.Millisecond)
	m.ObserveLoadRequest(false, 30*time.Millisecond)

	path := filepath.Join(t.TempDir(), "arkprobe.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(data)
	assert.Contains(t, text, `arkprobe_run_cases_total{priority="critical",status="passed"} 1`)
	assert.Contains(t, text, `arkprobe_run_cases_total{priority="important",status="failed"} 1`)
	assert.Contains(t, text, "arkprobe_run_attempts_total 4")
	assert.Contains(t, text, "arkprobe_run_pass_rate 0.5")
	assert.Contains(t, text, `arkprobe_load_requests_total{result="failure"} 1`)
	assert.Contains(t, text, `arkprobe_run_case_duration_seconds_count{priority="critical"} 1`)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var m *Recorder

	m.ObserveOutcome(report.Outcome{Status: report.StatusPassed})
	m.ObserveRun(report.Summary{})
	m.ObserveLoadRequest(true, time.Millisecond)
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	assert.Nil(t, m.Registry())
}
