package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/yes1688/arkprobe/internal/history"
)

const defaultHistoryLimit = 20

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the history database",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().Int("limit", defaultHistoryLimit, "number of runs to list")
	cmd.Flags().String("case", "", "show one case across runs, with its flake rate")

	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE:  runHistoryPrune,
	}

	cmd.Flags().Duration("older-than", 30*24*time.Hour, "delete runs started before now minus this")

	return cmd
}

func openHistory(cmd *cobra.Command, cc *CLIContext) (*history.Store, error) {
	path := cc.Cfg.HistoryPath()
	if path == "" {
		return nil, fmt.Errorf("cannot determine history database path")
	}

	return history.Open(cmd.Context(), path, cc.Logger)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	limit, _ := cmd.Flags().GetInt("limit")
	caseName, _ := cmd.Flags().GetString("case")

	store, err := openHistory(cmd, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	if caseName != "" {
		runs, err := store.CaseHistory(cmd.Context(), caseName, limit)
		if err != nil {
			return err
		}

		if cc.Flags.JSON {
			return encodeJSON(os.Stdout, map[string]any{
				"case":       caseName,
				"flake_rate": history.FlakeRate(runs),
				"runs":       runs,
			})
		}

		printCaseHistory(os.Stdout, caseName, runs)

		return nil
	}

	runs, err := store.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return encodeJSON(os.Stdout, runs)
	}

	printRuns(os.Stdout, runs)

	return nil
}

func runHistoryPrune(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	olderThan, _ := cmd.Flags().GetDuration("older-than")

	store, err := openHistory(cmd, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
	if err != nil {
		return err
	}

	cc.Statusf("Pruned %d runs\n", n)

	return nil
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	rows := make([][]string, 0, len(runs))

	for _, r := range runs {
		gate := "FAIL"
		if r.GatePass {
			gate = "PASS"
		}

		rows = append(rows, []string{
			formatTime(r.StartedAt),
			r.Suite,
			string(r.Mode),
			strconv.Itoa(r.Passed),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Skipped),
			fmt.Sprintf("%.1f%%", r.PassRate*100),
			gate,
			r.RunID,
		})
	}

	printTable(w, []string{"STARTED", "SUITE", "MODE", "PASSED", "FAILED", "SKIPPED", "RATE", "GATE", "RUN"}, rows)
}

func printCaseHistory(w io.Writer, name string, runs []history.CaseRun) {
	if len(runs) == 0 {
		fmt.Fprintf(w, "No history for case %q.\n", name)
		return
	}

	fmt.Fprintf(w, "Case %q: flake rate %.1f%% over %d runs\n\n", name, history.FlakeRate(runs)*100, len(runs))

	rows := make([][]string, 0, len(runs))

	for _, r := range runs {
		observed := "-"
		if r.ObservedStatus != 0 {
			observed = strconv.Itoa(r.ObservedStatus)
		}

		rows = append(rows, []string{
			formatTime(r.StartedAt),
			string(r.Status),
			observed,
			strconv.Itoa(r.Attempts),
			formatDuration(r.Elapsed),
			orDash(string(r.ErrorKind)),
		})
	}

	printTable(w, []string{"STARTED", "STATUS", "HTTP", "ATTEMPTS", "ELAPSED", "ERROR"}, rows)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
