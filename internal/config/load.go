package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	if env.BaseURL != "" {
		cfg.Target.BaseURL = env.BaseURL
	}

	if env.AdminEmail != "" {
		cfg.Target.AdminEmail = env.AdminEmail
	}

	if env.Suite != "" {
		cfg.Execution.Suite = env.Suite
	}

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	if cli.BaseURL != "" {
		cfg.Target.BaseURL = cli.BaseURL
	}

	if cli.Suite != "" {
		cfg.Execution.Suite = cli.Suite
	}

	if cli.Workers != nil {
		cfg.Execution.Workers = *cli.Workers
	}

	if cli.Deadline != nil {
		cfg.Execution.Deadline = *cli.Deadline
	}

	// 5. Re-validate: env and CLI values have not been checked yet.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	resolved := resolveConfig(cfg)
	resolved.ConfigPath = cfgPath

	return resolved, nil
}

// resolveConfig flattens a validated Config into a Resolved. Duration
// strings have already passed Validate, so parse errors cannot occur here.
func resolveConfig(cfg *Config) *Resolved {
	baseURL := strings.TrimRight(cfg.Target.BaseURL, "/")

	categories := make(map[string]string, len(cfg.Probe.Categories))
	for name, path := range cfg.Probe.Categories {
		// An empty path disables a default category.
		if path != "" {
			categories[name] = path
		}
	}

	return &Resolved{
		BaseURL:        baseURL,
		Candidates:     candidateList(baseURL, cfg.Target.Candidates),
		AdminEmail:     cfg.Target.AdminEmail,
		IdentityHeader: cfg.Target.IdentityHeader,
		ConfigSource:   cfg.Target.ConfigSource,

		HealthPaths:    append([]string(nil), cfg.Probe.HealthPaths...),
		AuthStatusPath: cfg.Probe.AuthStatusPath,
		RealtimePath:   cfg.Probe.RealtimePath,
		ProbeTimeout:   mustDuration(cfg.Probe.Timeout),
		Exhaustive:     cfg.Probe.Exhaustive,
		Categories:     maps.Clone(categories),

		Suite:    cfg.Execution.Suite,
		Timeout:  mustDuration(cfg.Execution.Timeout),
		Retries:  cfg.Execution.Retries,
		Backoff:  mustDuration(cfg.Execution.Backoff),
		Workers:  cfg.Execution.Workers,
		Deadline: mustDuration(cfg.Execution.Deadline),

		Report:  cfg.Report,
		History: cfg.History,
		Logging: cfg.Logging,

		LoadWorkers:        cfg.Load.Workers,
		LoadRequests:       cfg.Load.Requests,
		LoadPath:           cfg.Load.Path,
		LoadTimeout:        mustDuration(cfg.Load.Timeout),
		LoadMinSuccessRate: cfg.Load.MinSuccessRate,

		Migrate: cfg.Migrate,
	}
}

// candidateList puts the preferred base URL first and removes duplicates
// while keeping the configured order of the rest.
func candidateList(baseURL string, candidates []string) []string {
	seen := make(map[string]bool, len(candidates)+1)
	out := make([]string, 0, len(candidates)+1)

	for _, c := range append([]string{baseURL}, candidates...) {
		c = strings.TrimRight(strings.TrimSpace(c), "/")
		if c == "" || seen[c] {
			continue
		}

		seen[c] = true
		out = append(out, c)
	}

	return out
}

// mustDuration parses a duration string that Validate already accepted.
// "0" and "" mean zero (disabled).
func mustDuration(s string) time.Duration {
	if s == "" || s == "0" {
		return 0
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
