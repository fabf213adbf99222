package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// The tests below use SIGUSR1/SIGUSR2 so that they cannot interfere with
// each other or with the test runner's own SIGINT handling.

func TestNotifyShutdown_FirstSignalCancels(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx := notifyShutdown(parent, quietLogger(), syscall.SIGUSR1)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of the signal")
	}
}

func TestNotifyShutdown_SecondSignalForcesExit(t *testing.T) {
	exited := make(chan struct{})

	old := forceExit
	forceExit = func() { close(exited) }

	t.Cleanup(func() { forceExit = old })

	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctx := notifyShutdown(parent, quietLogger(), syscall.SIGUSR2)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))
	<-ctx.Done()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("second signal did not force an exit")
	}
}

func TestShutdownContext_ParentCancelPropagates(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx := shutdownContext(parent, quietLogger())

	cancel()

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("context not canceled within 2 seconds of parent cancel")
	}
}
