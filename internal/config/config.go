// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for arkprobe. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// Every section has defaults, so an absent file or an empty section is valid.
type Config struct {
	Target    TargetConfig    `toml:"target"`
	Probe     ProbeConfig     `toml:"probe"`
	Execution ExecutionConfig `toml:"execution"`
	Report    ReportConfig    `toml:"report"`
	History   HistoryConfig   `toml:"history"`
	Logging   LoggingConfig   `toml:"logging"`
	Load      LoadConfig      `toml:"load"`
	Migrate   MigrateConfig   `toml:"migrate"`
}

// TargetConfig describes the application under test: where it might be
// listening and how requests are tagged with an identity.
type TargetConfig struct {
	BaseURL        string   `toml:"base_url"`
	Candidates     []string `toml:"candidates"`
	AdminEmail     string   `toml:"admin_email"`
	IdentityHeader string   `toml:"identity_header"`
	ConfigSource   string   `toml:"config_source"`
}

// ProbeConfig controls environment discovery. Categories maps a category
// name (e.g. "files") to the path probed to decide whether a candidate
// serves it.
type ProbeConfig struct {
	HealthPaths    []string          `toml:"health_paths"`
	AuthStatusPath string            `toml:"auth_status_path"`
	RealtimePath   string            `toml:"realtime_path"`
	Timeout        string            `toml:"timeout"`
	Exhaustive     bool              `toml:"exhaustive"`
	Categories     map[string]string `toml:"categories"`
}

// ExecutionConfig controls how resolved cases are run.
type ExecutionConfig struct {
	Suite    string `toml:"suite"`
	Timeout  string `toml:"timeout"`
	Retries  int    `toml:"retries"`
	Backoff  string `toml:"backoff"`
	Workers  int    `toml:"workers"`
	Deadline string `toml:"deadline"`
}

// ReportConfig controls where reports go and the exit-code gate.
// Thresholds are percentages in [0, 100].
type ReportConfig struct {
	Dir               string   `toml:"dir"`
	Formats           []string `toml:"formats"`
	CriticalThreshold int      `toml:"critical_threshold"`
	OtherThreshold    int      `toml:"other_threshold"`
}

// HistoryConfig controls the run-history database.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// LoadConfig controls the concurrent-requests smoke test.
type LoadConfig struct {
	Workers        int    `toml:"workers"`
	Requests       int    `toml:"requests"`
	Path           string `toml:"path"`
	Timeout        string `toml:"timeout"`
	MinSuccessRate int    `toml:"min_success_rate"`
}

// MigrateConfig controls the folder migration command.
type MigrateConfig struct {
	SkipSuffixes []string `toml:"skip_suffixes"`
	SkipHidden   bool     `toml:"skip_hidden"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	BaseURL    string  // --base-url flag
	Suite      string  // --suite flag
	Workers    *int    // --workers flag
	Deadline   *string // --deadline flag
}

// Resolved is the effective configuration after all four layers have been
// applied, with duration strings parsed. Commands consume this, never the
// raw Config.
type Resolved struct {
	ConfigPath string

	BaseURL        string
	Candidates     []string
	AdminEmail     string
	IdentityHeader string
	ConfigSource   string

	HealthPaths    []string
	AuthStatusPath string
	RealtimePath   string
	ProbeTimeout   time.Duration
	Exhaustive     bool
	Categories     map[string]string

	Suite    string
	Timeout  time.Duration
	Retries  int
	Backoff  time.Duration
	Workers  int
	Deadline time.Duration

	Report  ReportConfig
	History HistoryConfig
	Logging LoggingConfig

	LoadWorkers        int
	LoadRequests       int
	LoadPath           string
	LoadTimeout        time.Duration
	LoadMinSuccessRate int

	Migrate MigrateConfig
}
