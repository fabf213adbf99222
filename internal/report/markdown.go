package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yes1688/arkprobe/internal/suite"
)

// RenderMarkdown renders rr as a Markdown document: environment, summary,
// per-priority table, failures, adaptations and the full result table.
func RenderMarkdown(rr *RunReport) []byte {
	var b bytes.Buffer

	fmt.Fprintf(&b, "# Test report: %s\n\n", orDash(rr.Suite))
	fmt.Fprintf(&b, "- Run: `%s`\n", rr.RunID)
	fmt.Fprintf(&b, "- Target: %s\n", orDash(rr.Target))
	fmt.Fprintf(&b, "- Started: %s\n", rr.Summary.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n\n", rr.Summary.Duration.Round(time.Millisecond))

	if env := rr.Environment; env != nil {
		b.WriteString("## Environment\n\n")
		fmt.Fprintf(&b, "| mode | auth | realtime | admin identity |\n|---|---|---|---|\n")
		fmt.Fprintf(&b, "| %s | %s | %t | %s |\n\n", env.Mode, env.Auth, env.Realtime, orDash(env.AdminIdentity))

		if len(env.Endpoints) > 0 {
			b.WriteString("| endpoint | category | status | latency |\n|---|---|---|---|\n")

			for _, ep := range env.Endpoints {
				fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", ep.URL, ep.Category, ep.StatusCode, ep.Latency.Round(time.Millisecond))
			}

			b.WriteString("\n")
		}
	}

	s := rr.Summary
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "| total | passed | failed | skipped | adapted | pass rate |\n|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %.1f%% |\n\n", s.Total, s.Passed, s.Failed, s.Skipped, s.Adapted, s.PassRate*100)

	b.WriteString("| priority | total | passed | failed | skipped | pass rate |\n|---|---|---|---|---|---|\n")

	for _, p := range suite.Priorities {
		ps, ok := s.ByPriority[p]
		if !ok {
			continue
		}

		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %.1f%% |\n", p, ps.Total, ps.Passed, ps.Failed, ps.Skipped, ps.PassRate*100)
	}

	b.WriteString("\n")

	writeFailures(&b, rr.Results)
	writeAdaptations(&b, rr.Results)

	b.WriteString("## Results\n\n| case | priority | status | observed | expected | attempts | elapsed |\n|---|---|---|---|---|---|---|\n")

	for _, o := range rr.Results {
		observed := "-"
		if o.ObservedStatus != 0 {
			observed = fmt.Sprint(o.ObservedStatus)
		}

		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %d | %s |\n",
			escapeCell(o.Name), o.Priority, statusIcon(o.Status), observed, joinInts(o.Expected), o.Attempts,
			o.Elapsed.Round(time.Millisecond))
	}

	return b.Bytes()
}

func writeFailures(b *bytes.Buffer, results []Outcome) {
	var failed, skipped []Outcome

	for _, o := range results {
		switch o.Status {
		case StatusFailed:
			failed = append(failed, o)
		case StatusSkipped:
			skipped = append(skipped, o)
		case StatusPassed:
		}
	}

	if len(failed) > 0 {
		b.WriteString("## Failures\n\n")

		for _, o := range failed {
			fmt.Fprintf(b, "- **%s** (%s, %s): %s\n", o.Name, o.Priority, o.ErrorKind, o.Error)
		}

		b.WriteString("\n")
	}

	if len(skipped) > 0 {
		b.WriteString("## Skipped\n\n")

		for _, o := range skipped {
			fmt.Fprintf(b, "- **%s**: %s\n", o.Name, o.SkipReason)
		}

		b.WriteString("\n")
	}
}

func writeAdaptations(b *bytes.Buffer, results []Outcome) {
	header := false

	for _, o := range results {
		if !o.Adapted {
			continue
		}

		if !header {
			b.WriteString("## Adaptations\n\n")

			header = true
		}

		fmt.Fprintf(b, "- **%s**: %s\n", o.Name, strings.Join(o.Adaptations, "; "))
	}

	if header {
		b.WriteString("\n")
	}
}

func statusIcon(s Status) string {
	switch s {
	case StatusPassed:
		return "✅ passed"
	case StatusFailed:
		return "❌ failed"
	case StatusSkipped:
		return "⏭️ skipped"
	default:
		return string(s)
	}
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}

	return strings.Join(parts, ", ")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
