package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yes1688/arkprobe/internal/metrics"
	"github.com/yes1688/arkprobe/internal/smoke"
)

func newLoadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Send a burst of concurrent requests and gate on the success rate",
		Long: `Send load.requests GET requests to load.path through load.workers
concurrent workers. Exits 1 when fewer than load.min_success_rate percent
get a 2xx response.`,
		Args: cobra.NoArgs,
		RunE: runLoad,
	}

	cmd.Flags().Int("requests", 0, "number of requests (default from config)")
	cmd.Flags().Int("workers", 0, "concurrent workers (default from config)")
	cmd.Flags().String("path", "", "path or absolute URL to request (default from config)")
	cmd.Flags().Int("min-success-rate", -1, "minimum success percentage (default from config)")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics in text format to this file")

	return cmd
}

func runLoad(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg

	opts := smoke.Options{
		Requests: cfg.LoadRequests,
		Workers:  cfg.LoadWorkers,
		Timeout:  cfg.LoadTimeout,
	}

	if n, _ := cmd.Flags().GetInt("requests"); n > 0 {
		opts.Requests = n
	}

	if n, _ := cmd.Flags().GetInt("workers"); n > 0 {
		opts.Workers = n
	}

	path := cfg.LoadPath
	if p, _ := cmd.Flags().GetString("path"); p != "" {
		path = p
	}

	minRate := cfg.LoadMinSuccessRate
	if r, _ := cmd.Flags().GetInt("min-success-rate"); r >= 0 {
		minRate = r
	}

	metricsFile, _ := cmd.Flags().GetString("metrics-file")

	var rec *metrics.Recorder

	if metricsFile != "" {
		var err error
		if rec, err = metrics.New(); err != nil {
			return err
		}

		opts.Recorder = rec
	}

	url := loadURL(cfg.BaseURL, path)
	cc.Statusf("Sending %d requests to %s (%d workers)\n", opts.Requests, url, opts.Workers)

	res, err := smoke.Run(shutdownContext(cmd.Context(), cc.Logger), defaultHTTPClient(), url, opts, cc.Logger)
	if err != nil {
		return err
	}

	if rec != nil {
		if err := rec.WriteTextfile(metricsFile); err != nil {
			return err
		}
	}

	if cc.Flags.JSON {
		if err := encodeJSON(os.Stdout, res); err != nil {
			return err
		}
	} else {
		printLoadResult(os.Stdout, res, minRate)
	}

	if !res.Passed(minRate) {
		return errThresholdNotMet
	}

	return nil
}

// loadURL joins a base URL and a path; an absolute path wins.
func loadURL(base, path string) string {
	if len(path) > 0 && path[0] != '/' {
		return path
	}

	return base + path
}

func printLoadResult(w io.Writer, res *smoke.Result, minRate int) {
	fmt.Fprintf(w, "%s: %d/%d succeeded (%.1f%%, minimum %d%%) in %s\n",
		res.URL, res.Succeeded, res.Requests, res.SuccessRate, minRate, formatDuration(res.Elapsed))
	fmt.Fprintf(w, "  latency p50 %s, p95 %s, max %s\n",
		formatDuration(res.P50), formatDuration(res.P95), formatDuration(res.Max))

	causes := make([]string, 0, len(res.Failures))
	for c := range res.Failures {
		causes = append(causes, c)
	}

	sort.Strings(causes)

	for _, c := range causes {
		fmt.Fprintf(w, "  %d x %s\n", res.Failures[c], c)
	}
}
