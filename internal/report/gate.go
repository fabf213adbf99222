package report

import (
	"fmt"

	"github.com/yes1688/arkprobe/internal/suite"
)

// Threshold holds the minimum pass percentages (0-100) for the exit-code
// gate: one for critical cases, one for everything else.
type Threshold struct {
	Critical float64
	Other    float64
}

// DefaultThreshold requires every critical case and 80% of the rest.
var DefaultThreshold = Threshold{Critical: 100, Other: 80}

// Verdict is the gate decision and the reasons it failed, if it did.
type Verdict struct {
	Pass         bool
	CriticalRate float64
	OtherRate    float64
	Reasons      []string
}

// Evaluate applies the threshold to rr. Each gate passes vacuously when no
// case in it executed, but a run in which nothing executed at all fails:
// an unreachable target must not look green.
func Evaluate(rr *RunReport, th Threshold) Verdict {
	var crit, other PriorityStats

	for _, o := range rr.Results {
		ps := &other
		if o.Priority == suite.PriorityCritical {
			ps = &crit
		}

		ps.Total++

		switch o.Status {
		case StatusPassed:
			ps.Passed++
		case StatusSkipped:
			ps.Skipped++
		case StatusFailed:
			ps.Failed++
		}
	}

	v := Verdict{
		Pass:         true,
		CriticalRate: percent(crit),
		OtherRate:    percent(other),
	}

	if crit.Total-crit.Skipped+other.Total-other.Skipped == 0 {
		v.Pass = false
		v.Reasons = append(v.Reasons, "no cases executed")

		return v
	}

	if crit.Total-crit.Skipped > 0 && v.CriticalRate < th.Critical {
		v.Pass = false
		v.Reasons = append(v.Reasons, fmt.Sprintf("critical pass rate %.1f%% below %.1f%%", v.CriticalRate, th.Critical))
	}

	if other.Total-other.Skipped > 0 && v.OtherRate < th.Other {
		v.Pass = false
		v.Reasons = append(v.Reasons, fmt.Sprintf("non-critical pass rate %.1f%% below %.1f%%", v.OtherRate, th.Other))
	}

	return v
}

// percent is PassRate scaled to [0, 100].
func percent(ps PriorityStats) float64 {
	executed := ps.Total - ps.Skipped
	if executed <= 0 {
		return 0
	}

	return float64(ps.Passed*100) / float64(executed)
}
