// Package smoke fires a burst of concurrent requests at one endpoint and
// reports how many succeeded. It is a smoke test for connection handling,
// not a benchmark.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	gosync "sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrBadOptions is returned for non-positive request or worker counts.
var ErrBadOptions = errors.New("smoke: requests and workers must be positive")

// defaultRequestTimeout bounds each request when Options.Timeout is unset.
const defaultRequestTimeout = 30 * time.Second

// Recorder receives every request's result (metrics).
type Recorder interface {
	ObserveLoadRequest(ok bool, elapsed time.Duration)
}

// Options configures a burst.
type Options struct {
	Requests int
	Workers  int
	Timeout  time.Duration
	Headers  map[string]string
	Recorder Recorder
}

// Result summarizes a burst. A request succeeds when it gets a 2xx.
type Result struct {
	URL         string
	Requests    int
	Succeeded   int
	Failed      int
	SuccessRate float64 // percentage, 0-100
	Elapsed     time.Duration
	P50         time.Duration
	P95         time.Duration
	Max         time.Duration
	// Failures counts failures by cause: "status 503", or the transport
	// error text.
	Failures map[string]int
}

// Passed reports whether the success rate meets minRate (percent).
func (r *Result) Passed(minRate int) bool {
	return r.SuccessRate >= float64(minRate)
}

// Run sends opts.Requests GET requests to url through opts.Workers
// concurrent workers.
func Run(ctx context.Context, client *http.Client, url string, opts Options, logger *slog.Logger) (*Result, error) {
	if opts.Requests < 1 || opts.Workers < 1 {
		return nil, ErrBadOptions
	}

	if logger == nil {
		logger = slog.Default()
	}

	if client == nil {
		client = http.DefaultClient
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}

	var (
		succeeded atomic.Int64
		failed    atomic.Int64
		mu        gosync.Mutex
		latencies = make([]time.Duration, 0, opts.Requests)
		failures  = make(map[string]int)
	)

	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for range opts.Requests {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			elapsed, cause := doOne(gctx, client, url, opts)

			if opts.Recorder != nil {
				opts.Recorder.ObserveLoadRequest(cause == "", elapsed)
			}

			mu.Lock()
			latencies = append(latencies, elapsed)
			if cause != "" {
				failures[cause]++
			}
			mu.Unlock()

			if cause == "" {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}

			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("smoke: %w", err)
	}

	res := &Result{
		URL:       url,
		Requests:  opts.Requests,
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Elapsed:   time.Since(start),
		Failures:  failures,
	}

	res.SuccessRate = float64(res.Succeeded*100) / float64(opts.Requests)
	res.P50, res.P95, res.Max = percentiles(latencies)

	logger.Info("load smoke finished",
		slog.String("url", url),
		slog.Int("requests", res.Requests),
		slog.Int("succeeded", res.Succeeded),
		slog.Duration("p95", res.P95),
	)

	return res, nil
}

// doOne performs one request and returns its latency and, on failure, a
// short cause.
func doOne(ctx context.Context, client *http.Client, url string, opts Options) (time.Duration, string) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err.Error()
	}

	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()

	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), err.Error()
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	elapsed := time.Since(start)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return elapsed, fmt.Sprintf("status %d", resp.StatusCode)
	}

	return elapsed, ""
}

// percentiles returns the nearest-rank p50, p95 and max.
func percentiles(d []time.Duration) (p50, p95, maxD time.Duration) {
	if len(d) == 0 {
		return 0, 0, 0
	}

	sorted := slices.Clone(d)
	slices.Sort(sorted)

	rank := func(p int) time.Duration {
		i := (p*len(sorted)+99)/100 - 1
		return sorted[max(i, 0)]
	}

	return rank(50), rank(95), sorted[len(sorted)-1]
}
