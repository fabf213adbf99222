package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yes1688/arkprobe/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests must either:
//   - Set globals AFTER newRootCmd() returns (direct function tests), or
//   - Use cmd.SetArgs() + cmd.Execute() to let Cobra parse flags (integration tests).

// --- logger tests ---

func TestBootstrapLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		flags    CLIFlags
		enabled  slog.Level
		disabled slog.Level
	}{
		{"default warn", CLIFlags{}, slog.LevelWarn, slog.LevelInfo},
		{"verbose info", CLIFlags{Verbose: true}, slog.LevelInfo, slog.LevelDebug},
		{"debug", CLIFlags{Debug: true}, slog.LevelDebug, slog.LevelDebug - 4},
		{"quiet error", CLIFlags{Quiet: true}, slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := bootstrapLogger(tt.flags)

			assert.True(t, logger.Handler().Enabled(context.Background(), tt.enabled))
			assert.False(t, logger.Handler().Enabled(context.Background(), tt.disabled))
		})
	}
}

func TestBuildLogger_ConfigIsBaseline(t *testing.T) {
	cfg := &config.Resolved{Logging: config.LoggingConfig{LogLevel: "info", LogFormat: "text"}}

	logger := buildLogger(&bytes.Buffer{}, cfg, CLIFlags{})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_NilConfigIsWarn(t *testing.T) {
	logger := buildLogger(&bytes.Buffer{}, nil, CLIFlags{})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestBuildLogger_FlagsOverrideConfig(t *testing.T) {
	cfg := &config.Resolved{Logging: config.LoggingConfig{LogLevel: "error", LogFormat: "text"}}

	verbose := buildLogger(&bytes.Buffer{}, cfg, CLIFlags{Verbose: true})
	assert.True(t, verbose.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, verbose.Handler().Enabled(context.Background(), slog.LevelDebug))

	debug := buildLogger(&bytes.Buffer{}, cfg, CLIFlags{Debug: true})
	assert.True(t, debug.Handler().Enabled(context.Background(), slog.LevelDebug))

	cfg.Logging.LogLevel = "debug"
	quiet := buildLogger(&bytes.Buffer{}, cfg, CLIFlags{Quiet: true})
	assert.True(t, quiet.Handler().Enabled(context.Background(), slog.LevelError))
	assert.False(t, quiet.Handler().Enabled(context.Background(), slog.LevelWarn))
}

func TestBuildLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer

	cfg := &config.Resolved{Logging: config.LoggingConfig{LogLevel: "warn", LogFormat: "json"}}
	buildLogger(&buf, cfg, CLIFlags{}).Warn("probe failed", slog.String("url", "http://x"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "probe failed", line["msg"])
	assert.Equal(t, "http://x", line["url"])
}

// --- Cobra structure tests ---

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	expected := []string{"run", "discover", "plan", "report", "history", "load", "migrate", "suite", "watch", "config"}
	for _, name := range expected {
		found := false

		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true

				break
			}
		}

		assert.True(t, found, "expected subcommand %q not found", name)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "base-url", "json", "verbose", "debug", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "expected persistent flag %q not found", name)
	}
}

func TestNewRootCmd_MutualExclusivity(t *testing.T) {
	// Uses "suite schema" because it skips config loading, so a missing
	// config on CI cannot mask the mutual exclusivity error.
	pairs := [][]string{
		{"--verbose", "--debug"},
		{"--verbose", "--quiet"},
		{"--debug", "--quiet"},
	}

	for _, flags := range pairs {
		t.Run(flags[0]+"_"+flags[1], func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(append(flags, "suite", "schema"))
			cmd.SetOut(&bytes.Buffer{})

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "none of the others can be")
		})
	}
}

func TestNewRootCmd_SkipConfigCommands(t *testing.T) {
	// A config path that cannot parse proves the config was never loaded.
	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("not toml ["), 0o600))

	tests := [][]string{
		{"suite", "schema"},
		{"suite", "validate"},
		{"suite", "default"},
		{"report", "render"},
		{"report", "show"},
	}

	for _, args := range tests {
		t.Run(args[0]+"_"+args[1], func(t *testing.T) {
			cmd := newRootCmd()
			flagConfigPath = bad

			t.Cleanup(func() { flagConfigPath = "" })

			sub, _, err := cmd.Find(args)
			require.NoError(t, err)

			require.NoError(t, cmd.PersistentPreRunE(sub, nil))

			cc := cliContextFrom(sub.Context())
			require.NotNil(t, cc)
			assert.Nil(t, cc.Cfg)
			assert.NotNil(t, cc.Logger)
		})
	}
}

func TestNewRootCmd_ConfigCommandsFailOnBadConfig(t *testing.T) {
	clearArkEnv(t)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[target]\nbase_url = \"ftp://nope\"\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", bad, "config", "show"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
	assert.Contains(t, err.Error(), "base_url")
}

func TestMustCLIContext_PanicsWithoutContext(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

func TestDefaultHTTPClient_HasTimeout(t *testing.T) {
	assert.Equal(t, httpClientTimeout, defaultHTTPClient().Timeout)
}

// --- loadConfig tests ---

func clearArkEnv(t *testing.T) {
	t.Helper()

	for _, k := range []string{config.EnvConfig, config.EnvBaseURL, config.EnvAdminEmail, config.EnvSuite} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_ValidTOML(t *testing.T) {
	clearArkEnv(t)

	cfgFile := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`[target]
base_url = "http://ark.internal:7001"

[execution]
workers = 4
`), 0o600))

	cmd := newRootCmd()
	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	cfg, err := loadConfig(run, CLIFlags{ConfigPath: cfgFile})
	require.NoError(t, err)

	assert.Equal(t, "http://ark.internal:7001", cfg.BaseURL)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, cfgFile, cfg.ConfigPath)
}

func TestLoadConfig_ExplicitFlagsWin(t *testing.T) {
	clearArkEnv(t)

	cfgFile := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("[execution]\nworkers = 4\ndeadline = \"1m\"\n"), 0o600))

	cmd := newRootCmd()
	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	require.NoError(t, run.Flags().Set("workers", "8"))
	require.NoError(t, run.Flags().Set("suite", "custom.yaml"))

	cfg, err := loadConfig(run, CLIFlags{ConfigPath: cfgFile, BaseURL: "http://flag:9000"})
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "custom.yaml", cfg.Suite)
	assert.Equal(t, "http://flag:9000", cfg.BaseURL)
	// --deadline was not set, so the file value stands.
	assert.Equal(t, "1m0s", cfg.Deadline.String())
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearArkEnv(t)

	cmd := newRootCmd()
	sub, _, err := cmd.Find([]string{"discover"})
	require.NoError(t, err)

	cfg, err := loadConfig(sub, CLIFlags{ConfigPath: filepath.Join(t.TempDir(), "absent.toml")})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:7001", cfg.BaseURL)
	assert.Equal(t, 1, cfg.Workers)
}
