package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// interruptedExitCode is the shell convention for death by SIGINT.
const interruptedExitCode = 130

// forceExit ends the process on a second interrupt. Tests replace it.
var forceExit = func() { os.Exit(interruptedExitCode) }

// shutdownContext returns a context that cancels on the first SIGINT or
// SIGTERM. The executor then curtails the remaining cases and the partial
// report is still written. A second signal exits at once.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	return notifyShutdown(parent, logger, syscall.SIGINT, syscall.SIGTERM)
}

func notifyShutdown(parent context.Context, logger *slog.Logger, sigs ...os.Signal) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, sigs...)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Warn("interrupted, finishing with a partial report (repeat to quit now)",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("second interrupt, exiting", slog.String("signal", sig.String()))
			forceExit()
		case <-parent.Done():
		}
	}()

	return ctx
}
