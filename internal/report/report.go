// Package report aggregates test outcomes into a RunReport, decides the
// exit-code gate, and persists and renders reports. The JSON file is the
// only persisted artifact; HTML and Markdown are derived from it.
package report

import (
	"time"

	"github.com/yes1688/arkprobe/internal/envprobe"
	"github.com/yes1688/arkprobe/internal/suite"
)

// Status is the final classification of one case.
type Status string

// Outcome statuses.
const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ErrorKind distinguishes why a case failed or was skipped. A deliberate
// skip (skip_when, missing identity) has none.
type ErrorKind string

// Error kinds.
const (
	KindTransport  ErrorKind = "transport"
	KindStatus     ErrorKind = "status"
	KindContract   ErrorKind = "contract"
	KindDeadline   ErrorKind = "deadline"
	KindResolution ErrorKind = "resolution"
)

// DeadlineReason is the skip reason for cases curtailed by the run deadline.
const DeadlineReason = "run deadline exceeded"

// Outcome is the result of executing one resolved case.
type Outcome struct {
	Name           string         `json:"name"`
	Priority       suite.Priority `json:"priority"`
	Method         string         `json:"method"`
	URL            string         `json:"url"`
	FinalURL       string         `json:"final_url,omitempty"`
	Status         Status         `json:"status"`
	ObservedStatus int            `json:"observed_status,omitempty"`
	Expected       []int          `json:"expected"`
	Elapsed        time.Duration  `json:"elapsed"`
	Attempts       int            `json:"attempts"`
	Adapted        bool           `json:"adapted"`
	Adaptations    []string       `json:"adaptations,omitempty"`
	Error          string         `json:"error,omitempty"`
	ErrorKind      ErrorKind      `json:"error_kind,omitempty"`
	SkipReason     string         `json:"skip_reason,omitempty"`
}

// PriorityStats are the counts for one priority.
type PriorityStats struct {
	Total    int     `json:"total"`
	Passed   int     `json:"passed"`
	Failed   int     `json:"failed"`
	Skipped  int     `json:"skipped"`
	PassRate float64 `json:"pass_rate"`
}

// Summary aggregates a run. PassRate is passed / (total - skipped), a
// fraction in [0, 1], and 0 when nothing executed.
type Summary struct {
	Total      int                              `json:"total"`
	Passed     int                              `json:"passed"`
	Failed     int                              `json:"failed"`
	Skipped    int                              `json:"skipped"`
	Adapted    int                              `json:"adapted"`
	PassRate   float64                          `json:"pass_rate"`
	StartedAt  time.Time                        `json:"started_at"`
	FinishedAt time.Time                        `json:"finished_at"`
	Duration   time.Duration                    `json:"duration"`
	ByPriority map[suite.Priority]PriorityStats `json:"by_priority"`
}

// RunReport is one run: the environment it saw, the summary, and every
// outcome in submission order.
type RunReport struct {
	RunID       string             `json:"run_id"`
	Suite       string             `json:"suite"`
	Target      string             `json:"target"`
	Environment *envprobe.Snapshot `json:"environment,omitempty"`
	Summary     Summary            `json:"summary"`
	Results     []Outcome          `json:"results"`
}

// PassRate returns passed / (total - skipped), or 0 when the denominator
// is 0.
func PassRate(passed, total, skipped int) float64 {
	executed := total - skipped
	if executed <= 0 {
		return 0
	}

	return float64(passed) / float64(executed)
}

// Summarize counts outcomes overall and per priority.
func Summarize(results []Outcome, started, finished time.Time) Summary {
	s := Summary{
		Total:      len(results),
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
		ByPriority: make(map[suite.Priority]PriorityStats),
	}

	for i := range results {
		o := &results[i]
		ps := s.ByPriority[o.Priority]
		ps.Total++

		switch o.Status {
		case StatusPassed:
			s.Passed++
			ps.Passed++
		case StatusFailed:
			s.Failed++
			ps.Failed++
		case StatusSkipped:
			s.Skipped++
			ps.Skipped++
		}

		if o.Adapted {
			s.Adapted++
		}

		s.ByPriority[o.Priority] = ps
	}

	for p, ps := range s.ByPriority {
		ps.PassRate = PassRate(ps.Passed, ps.Total, ps.Skipped)
		s.ByPriority[p] = ps
	}

	s.PassRate = PassRate(s.Passed, s.Total, s.Skipped)

	return s
}

// Executed returns the number of outcomes that were not skipped.
func (s Summary) Executed() int {
	return s.Total - s.Skipped
}
