package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yes1688/arkprobe/internal/resolve"
	"github.com/yes1688/arkprobe/internal/suite"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Resolve the suite against a fresh snapshot and print the plan",
		Long: `Discover the environment and resolve every case without executing any.
The estimate assumes every attempt runs to its timeout.`,
		Args: cobra.NoArgs,
		RunE: runPlan,
	}

	cmd.Flags().String("suite", "", "suite file (default: built-in suite)")

	return cmd
}

// testPlan is the resolved suite without outcomes.
type testPlan struct {
	Suite      string                 `json:"suite"`
	Mode       string                 `json:"mode"`
	Total      int                    `json:"total"`
	Runnable   int                    `json:"runnable"`
	Skipped    int                    `json:"skipped"`
	Adapted    int                    `json:"adapted"`
	ByPriority map[suite.Priority]int `json:"by_priority"`
	Estimate   time.Duration          `json:"estimated_duration"`
	Cases      []*resolve.Case        `json:"cases"`
}

func buildPlan(name, mode string, cases []*resolve.Case) *testPlan {
	p := &testPlan{
		Suite:      name,
		Mode:       mode,
		Total:      len(cases),
		ByPriority: make(map[suite.Priority]int, len(suite.Priorities)),
		Cases:      cases,
	}

	for _, c := range cases {
		p.ByPriority[c.Priority]++

		if c.Adapted {
			p.Adapted++
		}

		if c.Skipped {
			p.Skipped++
			continue
		}

		p.Runnable++
		p.Estimate += c.Timeout * time.Duration(c.RetryBudget+1)
	}

	return p
}

func runPlan(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	st, err := loadSuite(cc.Cfg.Suite)
	if err != nil {
		return err
	}

	snap, err := discoverEnvironment(cmd.Context(), cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	cases, err := resolve.New(resolverPolicy(cc.Cfg)).ResolveAll(st.Cases, snap)
	if err != nil {
		return err
	}

	p := buildPlan(st.Name, string(snap.Mode), cases)

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(p)
	}

	printPlan(os.Stdout, p)

	return nil
}

func printPlan(w io.Writer, p *testPlan) {
	fmt.Fprintf(w, "Suite %s in %s mode: %d cases, %d runnable, %d skipped, %d adapted\n",
		p.Suite, p.Mode, p.Total, p.Runnable, p.Skipped, p.Adapted)

	counts := make([]string, 0, len(suite.Priorities))
	for _, pr := range suite.Priorities {
		counts = append(counts, fmt.Sprintf("%s %d", pr, p.ByPriority[pr]))
	}

	fmt.Fprintf(w, "Priorities: %s\n", strings.Join(counts, ", "))
	fmt.Fprintf(w, "Estimated worst-case duration: %s\n\n", formatDuration(p.Estimate))

	rows := make([][]string, 0, len(p.Cases))

	for _, c := range p.Cases {
		note := strings.Join(c.Adaptations, "; ")
		if c.Skipped {
			note = "skip: " + c.SkipReason
		}

		if note == "" {
			note = "-"
		}

		rows = append(rows, []string{
			c.Name,
			string(c.Priority),
			c.Method,
			orDash(c.URL),
			joinStatuses(c.Expect),
			formatDuration(c.Timeout),
			strconv.Itoa(c.RetryBudget),
			note,
		})
	}

	printTable(w, []string{"CASE", "PRIORITY", "METHOD", "URL", "EXPECT", "TIMEOUT", "RETRIES", "NOTES"}, rows)
}

func joinStatuses(codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}

	return strings.Join(parts, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
