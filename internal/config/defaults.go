package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultBaseURL           = "http://localhost:7001"
	defaultIdentityHeader    = "CF-Access-Authenticated-User-Email"
	defaultConfigSource      = "docker-compose.yml"
	defaultAuthStatusPath    = "/api/auth/status"
	defaultRealtimePath      = "/api/ws"
	defaultProbeTimeout      = "3s"
	defaultTimeout           = "10s"
	defaultRetries           = 2
	defaultBackoff           = "500ms"
	defaultWorkers           = 1
	defaultDeadline          = "5m"
	defaultReportDir         = "test-results"
	defaultCriticalThreshold = 100
	defaultOtherThreshold    = 80
	defaultLogLevel          = "warn"
	defaultLogFormat         = "text"
	defaultLoadWorkers       = 10
	defaultLoadRequests      = 10
	defaultLoadPath          = "/api/health"
	defaultLoadTimeout       = "30s"
	defaultLoadMinSuccess    = 80
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Target:    defaultTargetConfig(),
		Probe:     defaultProbeConfig(),
		Execution: defaultExecutionConfig(),
		Report:    defaultReportConfig(),
		History:   HistoryConfig{Enabled: true},
		Logging:   defaultLoggingConfig(),
		Load:      defaultLoadConfig(),
		Migrate:   defaultMigrateConfig(),
	}
}

func defaultTargetConfig() TargetConfig {
	return TargetConfig{
		BaseURL: defaultBaseURL,
		Candidates: []string{
			"http://localhost:7001",
			"http://localhost:8081",
			"http://localhost:8080",
			"http://127.0.0.1:7001",
		},
		IdentityHeader: defaultIdentityHeader,
		ConfigSource:   defaultConfigSource,
	}
}

func defaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		HealthPaths:    []string{"/api/health", "/health"},
		AuthStatusPath: defaultAuthStatusPath,
		RealtimePath:   defaultRealtimePath,
		Timeout:        defaultProbeTimeout,
		Categories: map[string]string{
			"files": "/api/files",
			"admin": "/api/admin/users",
		},
	}
}

func defaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		Timeout:  defaultTimeout,
		Retries:  defaultRetries,
		Backoff:  defaultBackoff,
		Workers:  defaultWorkers,
		Deadline: defaultDeadline,
	}
}

func defaultReportConfig() ReportConfig {
	return ReportConfig{
		Dir:               defaultReportDir,
		Formats:           []string{"html", "markdown"},
		CriticalThreshold: defaultCriticalThreshold,
		OtherThreshold:    defaultOtherThreshold,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultLoadConfig() LoadConfig {
	return LoadConfig{
		Workers:        defaultLoadWorkers,
		Requests:       defaultLoadRequests,
		Path:           defaultLoadPath,
		Timeout:        defaultLoadTimeout,
		MinSuccessRate: defaultLoadMinSuccess,
	}
}

func defaultMigrateConfig() MigrateConfig {
	return MigrateConfig{
		SkipSuffixes: []string{".md", ".png", ".jpg", ".jpeg"},
		SkipHidden:   true,
	}
}
