package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yes1688/arkprobe/internal/envprobe"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Probe the candidates and print the environment snapshot",
		Args:  cobra.NoArgs,
		RunE:  runDiscover,
	}
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	snap, err := discoverEnvironment(cmd.Context(), cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(snap)
	}

	printSnapshot(os.Stdout, snap)

	return nil
}

func printSnapshot(w io.Writer, snap *envprobe.Snapshot) {
	identity := snap.AdminIdentity
	if identity == "" {
		identity = "(none)"
	}

	fmt.Fprintf(w, "Mode:      %s\n", snap.Mode)
	fmt.Fprintf(w, "Auth:      %s\n", snap.Auth)
	fmt.Fprintf(w, "Identity:  %s\n", identity)
	fmt.Fprintf(w, "Realtime:  %t\n", snap.Realtime)
	fmt.Fprintf(w, "Captured:  %s\n\n", formatTime(snap.CapturedAt))

	if len(snap.Endpoints) == 0 {
		fmt.Fprintln(w, "No reachable endpoints.")
		return
	}

	rows := make([][]string, 0, len(snap.Endpoints)+len(snap.Redirects))

	for _, ep := range snap.Endpoints {
		rows = append(rows, endpointRow(ep))
	}

	for _, ep := range snap.Redirects {
		rows = append(rows, endpointRow(ep))
	}

	printTable(w, []string{"CATEGORY", "URL", "STATUS", "LATENCY", "REDIRECT"}, rows)
}

func endpointRow(ep envprobe.Endpoint) []string {
	redirect := ep.Redirect
	if redirect == "" {
		redirect = "-"
	}

	return []string{
		ep.Category,
		ep.URL,
		strconv.Itoa(ep.StatusCode),
		formatDuration(ep.Latency),
		redirect,
	}
}
