package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover the environment, run the suite and report",
		Long: `Discover how the target is deployed, adapt every case to it, execute the
suite and write a JSON report (plus HTML/Markdown per report.formats).

Exits 1 when the pass-rate gate is not met.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	addRunFlags(cmd)
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics in text format to this file")
	cmd.Flags().Bool("no-history", false, "do not record this run in the history database")

	return cmd
}

// addRunFlags registers the flags that override [execution] config. They
// are read by loadConfig only when explicitly set.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("suite", "", "suite file (default: built-in suite)")
	cmd.Flags().Int("workers", 1, "cases run concurrently")
	cmd.Flags().String("deadline", "", "bound on the whole run, e.g. 5m (0 disables)")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	metricsFile, _ := cmd.Flags().GetString("metrics-file")
	noHistory, _ := cmd.Flags().GetBool("no-history")

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	res, err := runSuite(ctx, cc, runOptions{MetricsFile: metricsFile, NoHistory: noHistory})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		if err := printRunJSON(os.Stdout, res); err != nil {
			return err
		}
	} else {
		printRunSummary(os.Stdout, res)
	}

	if !res.Verdict.Pass {
		return errThresholdNotMet
	}

	return nil
}

type runJSONOutput struct {
	RunID      string   `json:"run_id"`
	Report     string   `json:"report"`
	Derived    []string `json:"derived,omitempty"`
	Total      int      `json:"total"`
	Passed     int      `json:"passed"`
	Failed     int      `json:"failed"`
	Skipped    int      `json:"skipped"`
	Adapted    int      `json:"adapted"`
	PassRate   float64  `json:"pass_rate"`
	GatePassed bool     `json:"gate_passed"`
	Reasons    []string `json:"reasons,omitempty"`
}

func printRunJSON(w io.Writer, res *runResult) error {
	s := res.Report.Summary

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(runJSONOutput{
		RunID:      res.Report.RunID,
		Report:     res.JSONPath,
		Derived:    res.Derived,
		Total:      s.Total,
		Passed:     s.Passed,
		Failed:     s.Failed,
		Skipped:    s.Skipped,
		Adapted:    s.Adapted,
		PassRate:   s.PassRate,
		GatePassed: res.Verdict.Pass,
		Reasons:    res.Verdict.Reasons,
	})
}

func printRunSummary(w io.Writer, res *runResult) {
	s := res.Report.Summary

	fmt.Fprintf(w, "Run %s (%s) against %s\n", res.Report.RunID, res.Report.Suite, res.Report.Target)
	fmt.Fprintf(w, "  %d passed, %d failed, %d skipped, %d adapted in %s\n",
		s.Passed, s.Failed, s.Skipped, s.Adapted, formatDuration(s.Duration))
	fmt.Fprintf(w, "  pass rate %.1f%% (critical %.1f%%, other %.1f%%)\n",
		s.PassRate*100, res.Verdict.CriticalRate, res.Verdict.OtherRate)
	fmt.Fprintf(w, "  report: %s\n", res.JSONPath)

	for _, p := range res.Derived {
		fmt.Fprintf(w, "  report: %s\n", p)
	}

	if res.Verdict.Pass {
		fmt.Fprintln(w, "Gate: PASS")
		return
	}

	fmt.Fprintln(w, "Gate: FAIL")

	for _, r := range res.Verdict.Reasons {
		fmt.Fprintf(w, "  - %s\n", r)
	}
}
