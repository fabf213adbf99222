package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yes1688/arkprobe/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagBaseURL    string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that must work without a valid
// config file (schema dumps, validating an arbitrary suite, rendering a
// report that already exists).
const skipConfigAnnotation = "arkprobe/skip-config"

// httpClientTimeout bounds any single request made outside the executor,
// which applies per-case timeouts of its own.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// CLIFlags is a snapshot of the global flags taken in PersistentPreRunE.
type CLIFlags struct {
	ConfigPath string
	BaseURL    string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext carries what every command needs. Cfg is nil for commands
// annotated with skipConfigAnnotation.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// cliContextFrom returns the CLIContext stored by PersistentPreRunE.
func cliContextFrom(ctx context.Context) *CLIContext {
	if ctx == nil {
		return nil
	}

	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)

	return cc
}

// mustCLIContext is for RunE bodies, which only run after PersistentPreRunE
// has stored the context. A missing context is a wiring bug.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context; PersistentPreRunE did not run")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "arkprobe",
		Short: "Environment-adaptive API test harness",
		Long: "arkprobe discovers how a deployment of the target API is configured,\n" +
			"adapts its test suite to that environment, runs it and reports the outcome.",
		Version: version,
		// Silence Cobra's default error/usage printing, main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			flags := currentFlags()

			cc := &CLIContext{Flags: flags}

			if cmd.Annotations[skipConfigAnnotation] == "true" {
				cc.Logger = bootstrapLogger(flags)
			} else {
				cfg, err := loadConfig(cmd, flags)
				if err != nil {
					return err
				}

				cc.Cfg = cfg
				cc.Logger = buildLogger(os.Stderr, cfg, flags)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cmd.SetContext(withCLIContext(ctx, cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagConfigPath, "config", "", "config file path")
	pf.StringVar(&flagBaseURL, "base-url", "", "preferred base URL of the target")
	pf.BoolVar(&flagJSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log progress at info level")
	pf.BoolVar(&flagDebug, "debug", false, "log at debug level")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "only log errors and suppress status output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newLoadCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSuiteCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func currentFlags() CLIFlags {
	return CLIFlags{
		ConfigPath: flagConfigPath,
		BaseURL:    flagBaseURL,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Debug:      flagDebug,
		Quiet:      flagQuiet,
	}
}

// loadConfig resolves the effective configuration from the four-layer
// override chain. Command-local flags only override the file when the user
// set them explicitly.
func loadConfig(cmd *cobra.Command, flags CLIFlags) (*config.Resolved, error) {
	cli := config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		BaseURL:    flags.BaseURL,
	}

	fs := cmd.Flags()

	if fs.Lookup("suite") != nil && fs.Changed("suite") {
		cli.Suite, _ = fs.GetString("suite")
	}

	if fs.Lookup("workers") != nil && fs.Changed("workers") {
		n, _ := fs.GetInt("workers")
		cli.Workers = &n
	}

	if fs.Lookup("deadline") != nil && fs.Changed("deadline") {
		d, _ := fs.GetString("deadline")
		cli.Deadline = &d
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// bootstrapLogger is used before (or without) a config: warn by default,
// CLI flags only.
func bootstrapLogger(flags CLIFlags) *slog.Logger {
	return newLogger(os.Stderr, flagLevel(slog.LevelWarn, flags), "text")
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. The config log level is the baseline; -v, --debug and -q
// override it because CLI flags always win.
func buildLogger(w io.Writer, cfg *config.Resolved, flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn
	format := "text"

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}

		format = cfg.Logging.LogFormat
	}

	return newLogger(w, flagLevel(level, flags), format)
}

func flagLevel(base slog.Level, flags CLIFlags) slog.Level {
	switch {
	case flags.Debug:
		return slog.LevelDebug
	case flags.Verbose:
		return slog.LevelInfo
	case flags.Quiet:
		return slog.LevelError
	default:
		return base
	}
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// exitOnError prints an error message to stderr and exits with code 1.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
