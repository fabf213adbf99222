package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yes1688/arkprobe/internal/envprobe"
	"github.com/yes1688/arkprobe/internal/report"
	"github.com/yes1688/arkprobe/internal/suite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "sub", "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func runAt(id string, started time.Time, statuses ...report.Status) *report.RunReport {
	results := make([]report.Outcome, len(statuses))
	for i, st := range statuses {
		results[i] = report.Outcome{
			Name: "case-" + string(rune('a'+i)), Priority: suite.PriorityImportant,
			Status: st, Attempts: 1, Elapsed: 15 * time.Millisecond,
		}
		if st != report.StatusSkipped {
			results[i].ObservedStatus = 200
		}
	}

	return &report.RunReport{
		RunID:       id,
		Suite:       "default",
		Target:      "http://localhost:7001",
		Environment: &envprobe.Snapshot{Mode: envprobe.ModeDevelopment},
		Summary:     report.Summarize(results, started, started.Add(2*time.Second)),
		Results:     results,
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, runAt("r1", t0, report.StatusPassed), report.Verdict{Pass: true}, "/tmp/r1.json"))
	require.NoError(t, s.Record(ctx, runAt("r2", t0.Add(time.Hour), report.StatusFailed, report.StatusSkipped), report.Verdict{}, ""))

	runs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "r2", runs[0].RunID)
	assert.False(t, runs[0].GatePass)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, 1, runs[0].Skipped)
	assert.Empty(t, runs[0].ReportPath)
	assert.Equal(t, envprobe.ModeDevelopment, runs[0].Mode)

	assert.Equal(t, "r1", runs[1].RunID)
	assert.True(t, runs[1].GatePass)
	assert.Equal(t, "/tmp/r1.json", runs[1].ReportPath)
	assert.Equal(t, 2*time.Second, runs[1].Duration)
	assert.True(t, runs[1].StartedAt.Equal(t0))
	assert.InDelta(t, 1.0, runs[1].PassRate, 1e-9)

	limited, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestRecord_DuplicateRunIDFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rr := runAt("dup", time.Now(), report.StatusPassed)

	require.NoError(t, s.Record(ctx, rr, report.Verdict{Pass: true}, ""))
	assert.Error(t, s.Record(ctx, rr, report.Verdict{Pass: true}, ""))
}

func TestRecord_Nil(t *testing.T) {
	s := openTestStore(t)
	assert.ErrorIs(t, s.Record(context.Background(), nil, report.Verdict{}, ""), ErrNilReport)
}

func TestCaseHistoryAndFlakeRate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, runAt("r1", t0, report.StatusPassed), report.Verdict{}, ""))
	require.NoError(t, s.Record(ctx, runAt("r2", t0.Add(time.Minute), report.StatusFailed), report.Verdict{}, ""))
	require.NoError(t, s.Record(ctx, runAt("r3", t0.Add(2*time.Minute), report.StatusSkipped), report.Verdict{}, ""))

	runs, err := s.CaseHistory(ctx, "case-a", 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "r3", runs[0].RunID)
	assert.Equal(t, report.StatusSkipped, runs[0].Status)
	assert.Zero(t, runs[0].ObservedStatus)
	assert.Equal(t, 200, runs[1].ObservedStatus)

	assert.InDelta(t, 0.5, FlakeRate(runs), 1e-9)
	assert.Zero(t, FlakeRate(nil))
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, runAt("old", t0, report.StatusPassed), report.Verdict{}, ""))
	require.NoError(t, s.Record(ctx, runAt("new", t0.Add(48*time.Hour), report.StatusPassed), report.Verdict{}, ""))

	n, err := s.Prune(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	cases, err := s.CaseHistory(ctx, "case-a", 10)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, "new", cases[0].RunID)
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, runAt("r1", time.Now(), report.StatusPassed), report.Verdict{}, ""))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
