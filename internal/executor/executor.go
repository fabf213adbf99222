// Package executor runs resolved cases against the target and classifies
// each one as passed, failed or skipped. Transport failures are retried
// with a fixed backoff; status mismatches and contract violations are not.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yes1688/arkprobe/internal/envprobe"
	"github.com/yes1688/arkprobe/internal/report"
	"github.com/yes1688/arkprobe/internal/resolve"
	"github.com/yes1688/arkprobe/internal/suite"
)

// Sentinel errors for programmer errors. They are returned before any
// request is made and never appear as outcomes.
var (
	ErrNoCases          = errors.New("executor: no cases to execute")
	ErrEmptyExpectation = errors.New("executor: case has no expected statuses")
	ErrInvalidCase      = errors.New("executor: invalid case")
)

const (
	defaultBackoff = 500 * time.Millisecond
	maxBodyBytes   = 4 << 20
	userAgent      = "arkprobe/0.1"

	// defaultCaseTimeout bounds a case that arrives without a timeout.
	defaultCaseTimeout = 10 * time.Second

	canceledReason = "run canceled"
)

// Progress is a running count handed to the Observer after every case.
type Progress struct {
	Done    int
	Total   int
	Passed  int
	Failed  int
	Skipped int
	Last    report.Outcome
}

// Observer receives progress after every finished case. Calls are
// serialized.
type Observer func(Progress)

// Recorder receives every finished outcome (metrics). Defined here so the
// executor does not depend on a metrics backend.
type Recorder interface {
	ObserveOutcome(o report.Outcome)
}

// Options configures an Executor.
type Options struct {
	// Workers > 1 runs cases through a bounded pool. Report order always
	// matches input order.
	Workers int
	// Backoff is the fixed wait between transport retries (default 500ms).
	Backoff time.Duration
	// Deadline bounds the whole run; 0 disables it.
	Deadline time.Duration

	Suite       string
	Target      string
	Environment *envprobe.Snapshot

	Observer Observer
	Recorder Recorder
}

// Executor runs resolved cases. One Executor, and one http.Client, serve
// a whole run.
type Executor struct {
	httpClient *http.Client
	opts       Options
	logger     *slog.Logger

	// sleepFunc waits between retries. Tests override it to avoid real
	// delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
	nowFunc   func() time.Time
	newRunID  func() string

	// fallbackTimeout bounds a case that carries no timeout of its own.
	fallbackTimeout time.Duration
}

// New creates an Executor. A nil httpClient uses a client that follows
// redirects (the net/http default).
func New(httpClient *http.Client, opts Options, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = &http.Client{}
	}

	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}

	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Executor{
		httpClient: httpClient,
		opts:       opts,
		logger:     logger,
		sleepFunc:  timeSleep,
		nowFunc:    time.Now,
		newRunID:   uuid.NewString,

		fallbackTimeout: defaultCaseTimeout,
	}
}

// Execute runs cases and returns a report with exactly one outcome per
// case, in input order. When the run deadline expires, remaining and
// in-flight cases are reported as skipped and the partial report is
// still returned with a nil error.
func (e *Executor) Execute(ctx context.Context, cases []*resolve.Case) (*report.RunReport, error) {
	if err := validateCases(cases); err != nil {
		return nil, err
	}

	runCtx := ctx
	if e.opts.Deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.opts.Deadline)
		defer cancel()
	}

	started := e.nowFunc()
	results := make([]report.Outcome, len(cases))

	var (
		mu       gosync.Mutex
		progress = Progress{Total: len(cases)}
	)

	finish := func(i int, o report.Outcome) {
		mu.Lock()
		defer mu.Unlock()

		results[i] = o

		progress.Done++
		progress.Last = o

		switch o.Status {
		case report.StatusPassed:
			progress.Passed++
		case report.StatusFailed:
			progress.Failed++
		case report.StatusSkipped:
			progress.Skipped++
		}

		if e.opts.Recorder != nil {
			e.opts.Recorder.ObserveOutcome(o)
		}

		if e.opts.Observer != nil {
			e.opts.Observer(progress)
		}
	}

	workers := e.opts.Workers
	if workers > 1 && hasDependencies(cases) {
		e.logger.Info("cases share captured values, running sequentially",
			slog.Int("workers", workers),
		)

		workers = 1
	}

	e.logger.Info("executing cases",
		slog.Int("cases", len(cases)),
		slog.Int("workers", workers),
		slog.Duration("deadline", e.opts.Deadline),
	)

	if workers == 1 {
		vars := make(map[string]string)

		for i, c := range cases {
			finish(i, e.runCase(ctx, runCtx, c, vars))
		}
	} else {
		// Workers never return errors: every failure is an outcome.
		var g errgroup.Group
		g.SetLimit(workers)

		for i, c := range cases {
			g.Go(func() error {
				finish(i, e.runCase(ctx, runCtx, c, nil))
				return nil
			})
		}

		_ = g.Wait()
	}

	finished := e.nowFunc()

	rr := &report.RunReport{
		RunID:       e.newRunID(),
		Suite:       e.opts.Suite,
		Target:      e.opts.Target,
		Environment: e.opts.Environment,
		Summary:     report.Summarize(results, started, finished),
		Results:     results,
	}

	e.logger.Info("run finished",
		slog.String("run_id", rr.RunID),
		slog.Int("passed", rr.Summary.Passed),
		slog.Int("failed", rr.Summary.Failed),
		slog.Int("skipped", rr.Summary.Skipped),
		slog.Duration("duration", rr.Summary.Duration),
	)

	return rr, nil
}

// hasDependencies reports whether any case captures or consumes a value.
func hasDependencies(cases []*resolve.Case) bool {
	for _, c := range cases {
		if len(c.Capture) > 0 || len(c.Needs) > 0 {
			return true
		}
	}

	return false
}

// validateCases rejects programmer errors before any request is made.
func validateCases(cases []*resolve.Case) error {
	if len(cases) == 0 {
		return ErrNoCases
	}

	for i, c := range cases {
		if c == nil {
			return fmt.Errorf("%w: cases[%d] is nil", ErrInvalidCase, i)
		}

		if c.Skipped {
			continue
		}

		if len(c.Expect) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyExpectation, c.Name)
		}

		if c.RetryBudget < 0 {
			return fmt.Errorf("%w: %s: negative retry budget", ErrInvalidCase, c.Name)
		}

		if _, err := encodeBody(c.Body); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidCase, c.Name, err)
		}
	}

	return nil
}

// attemptResult is what one HTTP round trip produced.
type attemptResult struct {
	status   int
	body     []byte
	finalURL string
}

// runCase executes one case with retries. parent is the caller's context;
// runCtx additionally carries the run deadline. vars holds the values
// captured so far; it is nil in pool mode, where no case depends on another.
func (e *Executor) runCase(parent, runCtx context.Context, c *resolve.Case, vars map[string]string) report.Outcome {
	o := report.Outcome{
		Name:        c.Name,
		Priority:    c.Priority,
		Method:      c.Method,
		URL:         c.URL,
		Expected:    slices.Clone(c.Expect),
		Adapted:     c.Adapted,
		Adaptations: slices.Clone(c.Adaptations),
	}

	if c.Skipped {
		o.Status = report.StatusSkipped
		o.SkipReason = c.SkipReason
		o.ErrorKind = c.SkipKind

		return o
	}

	if len(c.Needs) > 0 {
		expanded, missing := suite.ExpandPath(c.URL, vars)
		if len(missing) > 0 {
			o.Status = report.StatusSkipped
			o.ErrorKind = report.KindResolution
			o.SkipReason = fmt.Sprintf("captured value %q unavailable (producing case did not pass)", missing[0])

			return o
		}

		bound := *c
		bound.URL = expanded
		c = &bound
		o.URL = expanded
	}

	if runCtx.Err() != nil {
		return curtailed(parent, o)
	}

	start := e.nowFunc()

	var (
		res     attemptResult
		lastErr error
	)

	for attempt := 0; attempt <= c.RetryBudget; attempt++ {
		o.Attempts = attempt + 1

		res, lastErr = e.attempt(runCtx, c)
		if lastErr == nil {
			break
		}

		if runCtx.Err() != nil {
			o.Elapsed = e.nowFunc().Sub(start)
			return curtailed(parent, o)
		}

		if attempt == c.RetryBudget {
			break
		}

		e.logger.Debug("retrying after transport error",
			slog.String("case", c.Name),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", e.opts.Backoff),
			slog.String("error", lastErr.Error()),
		)

		if err := e.sleepFunc(runCtx, e.opts.Backoff); err != nil {
			o.Elapsed = e.nowFunc().Sub(start)
			return curtailed(parent, o)
		}
	}

	o.Elapsed = e.nowFunc().Sub(start)

	if lastErr != nil {
		o.Status = report.StatusFailed
		o.ErrorKind = report.KindTransport
		o.Error = lastErr.Error()

		e.logger.Warn("case failed",
			slog.String("case", c.Name),
			slog.Int("attempts", o.Attempts),
			slog.String("error", o.Error),
		)

		return o
	}

	o.ObservedStatus = res.status

	if res.finalURL != "" && res.finalURL != c.URL {
		o.FinalURL = res.finalURL
		o.Adapted = true
		o.Adaptations = append(o.Adaptations, fmt.Sprintf("redirect followed: %s -> %s", c.URL, res.finalURL))
	}

	classify(&o, c, res.body)

	if o.Status == report.StatusPassed && len(c.Capture) > 0 {
		capture(&o, c, res.body, vars)
	}

	e.logger.Debug("case finished",
		slog.String("case", c.Name),
		slog.String("status", string(o.Status)),
		slog.Int("observed", o.ObservedStatus),
		slog.Duration("elapsed", o.Elapsed),
	)

	return o
}

// classify decides pass/fail from the observed status and body.
func classify(o *report.Outcome, c *resolve.Case, body []byte) {
	if !slices.Contains(c.Expect, o.ObservedStatus) {
		o.Status = report.StatusFailed
		o.ErrorKind = report.KindStatus
		o.Error = fmt.Sprintf("unexpected status %d (expected %s)", o.ObservedStatus, formatStatuses(c.Expect))

		return
	}

	if err := c.Assert.Check(body); err != nil {
		o.Status = report.StatusFailed
		o.ErrorKind = report.KindContract
		o.Error = err.Error()

		return
	}

	o.Status = report.StatusPassed
}

// capture stores the case's captured values for later cases. A passing
// response that lacks a captured field is a contract failure.
func capture(o *report.Outcome, c *resolve.Case, body []byte, vars map[string]string) {
	values, err := suite.CaptureValues(body, c.Capture)
	if err != nil {
		o.Status = report.StatusFailed
		o.ErrorKind = report.KindContract
		o.Error = err.Error()

		return
	}

	if vars == nil {
		return
	}

	for name, v := range values {
		vars[name] = v
	}
}

// curtailed marks a case that the run deadline (or the caller) cut short.
func curtailed(parent context.Context, o report.Outcome) report.Outcome {
	o.Status = report.StatusSkipped
	o.ErrorKind = report.KindDeadline
	o.SkipReason = report.DeadlineReason

	if parent.Err() != nil {
		o.SkipReason = canceledReason
	}

	return o
}

// attempt performs one request bounded by the case timeout and reads the
// response body.
func (e *Executor) attempt(ctx context.Context, c *resolve.Case) (attemptResult, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = e.fallbackTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := buildRequest(ctx, c)
	if err != nil {
		return attemptResult{}, err
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return attemptResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return attemptResult{}, fmt.Errorf("reading response body: %w", err)
	}

	res := attemptResult{status: resp.StatusCode, body: body}
	if resp.Request != nil && resp.Request.URL != nil {
		res.finalURL = resp.Request.URL.String()
	}

	return res, nil
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
