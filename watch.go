package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/yes1688/arkprobe/internal/config"
)

const (
	watchPIDFileName = "arkprobe-watch.pid"
	defaultDebounce  = 500 * time.Millisecond
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the suite whenever the suite or config file changes",
		Long: `Run the suite once, then again every time the suite file or the config
file is written. SIGHUP (or 'arkprobe watch --trigger') forces a re-run
with freshly loaded configuration. Only one watcher may run per report
directory.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	addRunFlags(cmd)
	cmd.Flags().Duration("debounce", defaultDebounce, "quiet period after a change before re-running")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics in text format after every run")
	cmd.Flags().Bool("no-history", false, "do not record runs in the history database")
	cmd.Flags().Bool("trigger", false, "signal the running watcher to re-run, then exit")

	return cmd
}

// watchPIDPath is the PID file guarding a report directory.
func watchPIDPath(cfg *config.Resolved) string {
	return filepath.Join(cfg.Report.Dir, watchPIDFileName)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	pidPath := watchPIDPath(cc.Cfg)

	if trigger, _ := cmd.Flags().GetBool("trigger"); trigger {
		if err := sendSIGHUP(pidPath); err != nil {
			return err
		}

		cc.Statusf("Triggered re-run of the watcher in %s\n", cc.Cfg.Report.Dir)

		return nil
	}

	cleanup, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanup()

	debounce, _ := cmd.Flags().GetDuration("debounce")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")
	noHistory, _ := cmd.Flags().GetBool("no-history")

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)

	w := &suiteWatcher{
		holder:   config.NewHolder(cc.Cfg),
		flags:    cc.Flags,
		logger:   cc.Logger,
		debounce: debounce,
		sighup:   sighup,
		reload: func() (*config.Resolved, error) {
			return loadConfig(cmd, cc.Flags)
		},
	}

	w.run = func(ctx context.Context, cfg *config.Resolved) {
		runCC := &CLIContext{Flags: w.flags, Cfg: cfg, Logger: w.logger}

		res, err := runSuite(ctx, runCC, runOptions{MetricsFile: metricsFile, NoHistory: noHistory})
		if err != nil {
			w.logger.Error("watch run failed", slog.String("error", err.Error()))
			return
		}

		if !w.flags.Quiet {
			printRunSummary(os.Stderr, res)
		}
	}

	return w.loop(ctx)
}

// suiteWatcher re-runs the suite on file changes and SIGHUP. Config lives
// in a Holder so a reload is visible to the next run only.
type suiteWatcher struct {
	holder   *config.Holder
	flags    CLIFlags
	logger   *slog.Logger
	debounce time.Duration
	sighup   <-chan os.Signal

	reload func() (*config.Resolved, error)
	run    func(ctx context.Context, cfg *config.Resolved)
}

// watchedFiles returns the files whose changes trigger a run.
func (w *suiteWatcher) watchedFiles() []string {
	cfg := w.holder.Config()

	var files []string

	if cfg.Suite != "" {
		files = append(files, filepath.Clean(cfg.Suite))
	}

	if cfg.ConfigPath != "" {
		files = append(files, filepath.Clean(cfg.ConfigPath))
	}

	return files
}

// addWatches watches the parent directory of every file, since editors
// often replace a file by renaming a temp file over it.
func (w *suiteWatcher) addWatches(fw *fsnotify.Watcher) {
	for _, f := range w.watchedFiles() {
		dir := filepath.Dir(f)

		if err := fw.Add(dir); err != nil {
			w.logger.Warn("cannot watch directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (w *suiteWatcher) isWatched(name string) bool {
	name = filepath.Clean(name)

	for _, f := range w.watchedFiles() {
		if f == name {
			return true
		}
	}

	return false
}

func (w *suiteWatcher) reloadConfig() {
	cfg, err := w.reload()
	if err != nil {
		w.logger.Warn("config reload failed, keeping current config",
			slog.String("error", err.Error()),
		)

		return
	}

	w.holder.Update(cfg)
}

// loop runs once immediately, then on every debounced change or SIGHUP,
// until ctx is canceled.
func (w *suiteWatcher) loop(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close()

	w.addWatches(fw)

	sighup := w.sighup
	if sighup == nil {
		sighup = make(<-chan os.Signal)
	}

	w.run(ctx, w.holder.Config())

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if !w.isWatched(ev.Name) || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
				continue
			}

			w.logger.Debug("watched file changed",
				slog.String("path", ev.Name),
				slog.String("op", ev.Op.String()),
			)

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}

			timerCh = timer.C

		case <-timerCh:
			timerCh = nil

			w.reloadConfig()
			w.addWatches(fw)
			w.run(ctx, w.holder.Config())

		case <-sighup:
			w.logger.Info("SIGHUP received, reloading config and re-running")

			w.reloadConfig()
			w.addWatches(fw)
			w.run(ctx, w.holder.Config())

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("file watcher error", slog.String("error", err.Error()))

		case <-ctx.Done():
			return nil
		}
	}
}
