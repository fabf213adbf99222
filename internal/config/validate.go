package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minWorkers     = 1
	maxWorkers     = 64
	maxRetries     = 10
	minPercentage  = 0
	maxPercentage  = 100
	minLoadWorkers = 1
	maxLoadWorkers = 256
	minProbeWait   = 100 * time.Millisecond
)

// validFormats are the report renderings besides the mandatory JSON file.
var validFormats = map[string]bool{"html": true, "markdown": true}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"text": true, "json": true}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateTarget(&cfg.Target)...)
	errs = append(errs, validateProbe(&cfg.Probe)...)
	errs = append(errs, validateExecution(&cfg.Execution)...)
	errs = append(errs, validateReport(&cfg.Report)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateLoad(&cfg.Load)...)

	return errors.Join(errs...)
}

func validateTarget(t *TargetConfig) []error {
	var errs []error

	if err := validateBaseURL("base_url", t.BaseURL); err != nil {
		errs = append(errs, err)
	}

	for _, c := range t.Candidates {
		if err := validateBaseURL("candidates", c); err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(t.IdentityHeader) == "" {
		errs = append(errs, errors.New("identity_header: must not be empty"))
	}

	return errs
}

// validateBaseURL requires an absolute http(s) URL with a host.
func validateBaseURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid URL %q: %w", field, raw, err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s: must be an absolute http(s) URL, got %q", field, raw)
	}

	return nil
}

func validateProbe(p *ProbeConfig) []error {
	var errs []error

	if len(p.HealthPaths) == 0 {
		errs = append(errs, errors.New("health_paths: must list at least one path"))
	}

	for _, hp := range p.HealthPaths {
		if !strings.HasPrefix(hp, "/") {
			errs = append(errs, fmt.Errorf("health_paths: path %q must start with /", hp))
		}
	}

	for name, cp := range p.Categories {
		if cp != "" && !strings.HasPrefix(cp, "/") {
			errs = append(errs, fmt.Errorf("categories.%s: path %q must start with /", name, cp))
		}
	}

	if d, err := parseDuration("probe.timeout", p.Timeout); err != nil {
		errs = append(errs, err)
	} else if d < minProbeWait {
		errs = append(errs, fmt.Errorf("probe.timeout: must be at least %s, got %s", minProbeWait, p.Timeout))
	}

	return errs
}

func validateExecution(e *ExecutionConfig) []error {
	var errs []error

	if err := requirePositive("execution.timeout", e.Timeout); err != nil {
		errs = append(errs, err)
	}

	if _, err := parseDuration("execution.backoff", e.Backoff); err != nil {
		errs = append(errs, err)
	}

	if _, err := parseDuration("execution.deadline", e.Deadline); err != nil {
		errs = append(errs, err)
	}

	if e.Retries < 0 || e.Retries > maxRetries {
		errs = append(errs, fmt.Errorf("retries: must be between 0 and %d, got %d", maxRetries, e.Retries))
	}

	if e.Workers < minWorkers || e.Workers > maxWorkers {
		errs = append(errs, fmt.Errorf("workers: must be between %d and %d, got %d",
			minWorkers, maxWorkers, e.Workers))
	}

	return errs
}

func validateReport(r *ReportConfig) []error {
	var errs []error

	if strings.TrimSpace(r.Dir) == "" {
		errs = append(errs, errors.New("report.dir: must not be empty"))
	}

	for _, f := range r.Formats {
		if !validFormats[f] {
			errs = append(errs, fmt.Errorf("report.formats: unknown format %q (want html or markdown)", f))
		}
	}

	errs = append(errs, validatePercentage("critical_threshold", r.CriticalThreshold)...)
	errs = append(errs, validatePercentage("other_threshold", r.OtherThreshold)...)

	return errs
}

func validatePercentage(field string, v int) []error {
	if v < minPercentage || v > maxPercentage {
		return []error{fmt.Errorf("%s: must be between %d and %d, got %d", field, minPercentage, maxPercentage, v)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be text or json; got %q", l.LogFormat))
	}

	return errs
}

func validateLoad(l *LoadConfig) []error {
	var errs []error

	if l.Workers < minLoadWorkers || l.Workers > maxLoadWorkers {
		errs = append(errs, fmt.Errorf("load.workers: must be between %d and %d, got %d",
			minLoadWorkers, maxLoadWorkers, l.Workers))
	}

	if l.Requests < 1 {
		errs = append(errs, fmt.Errorf("load.requests: must be positive, got %d", l.Requests))
	}

	if !strings.HasPrefix(l.Path, "/") {
		errs = append(errs, fmt.Errorf("load.path: path %q must start with /", l.Path))
	}

	if err := requirePositive("load.timeout", l.Timeout); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, validatePercentage("load.min_success_rate", l.MinSuccessRate)...)

	return errs
}

// requirePositive rejects durations that would leave a request unbounded.
func requirePositive(field, s string) error {
	d, err := parseDuration(field, s)
	if err != nil {
		return err
	}

	if d <= 0 {
		return fmt.Errorf("%s: must be greater than zero, got %q", field, s)
	}

	return nil
}

// parseDuration parses a Go duration string. "0" is accepted as zero
// (disabled); negative durations are rejected.
func parseDuration(field, s string) (time.Duration, error) {
	if s == "0" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, s, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %q", field, s)
	}

	return d, nil
}
