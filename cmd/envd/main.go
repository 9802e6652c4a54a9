// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command envd is the per-user daemon that keeps a directory of
// mounted toolbox environments in sync with podman's view of running
// containers. It watches podman's socket directory for activity,
// reconciles envroot's directory tree against `podman ps` on every
// trigger, and answers start/stop/status requests over a local Unix
// control socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/owtaylor/fedora-toolbox/lib/clock"
	"github.com/owtaylor/fedora-toolbox/lib/container"
	"github.com/owtaylor/fedora-toolbox/lib/discover"
	"github.com/owtaylor/fedora-toolbox/lib/ipc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// userDataDir mirrors glib's g_get_user_data_dir(): $XDG_DATA_HOME, or
// ~/.local/share when unset.
func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/"
	}
	return filepath.Join(home, ".local", "share")
}

func run() error {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join("/run/user", fmt.Sprint(os.Getuid()))
	}

	var (
		envroot      string
		ipcSocket    string
		triggerDir   string
		pollInterval time.Duration
	)

	flag.StringVar(&envroot, "envroot", filepath.Join(userDataDir(), "toolbox", "env"), "directory in which to project mounted toolbox environments")
	flag.StringVar(&ipcSocket, "ipc-socket", filepath.Join(runtimeDir, "toolbox", "envd.sock"), "path of the control socket")
	flag.StringVar(&triggerDir, "trigger-dir", filepath.Join(runtimeDir, "libpod", "tmp"), "directory to watch for podman socket activity")
	flag.DurationVar(&pollInterval, "poll-interval", 10*time.Second, "backstop reconciliation interval, independent of trigger-dir activity")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	discoverer, err := discover.New(os.Args[0])
	if err != nil {
		return fmt.Errorf("locating helper binaries: %w", err)
	}

	clk := clock.Real()
	supervisor := container.New(envroot, &container.Runtime{}, discoverer, clk, logger)
	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}
	defer supervisor.Stop()

	server, err := ipc.Listen(ipcSocket, supervisor, logger)
	if err != nil {
		return fmt.Errorf("starting control socket: %w", err)
	}
	defer server.Close()

	go func() {
		if err := server.Serve(ctx); err != nil {
			logger.Error("control socket server exited", "error", err)
		}
	}()

	go func() {
		if err := supervisor.Watch(ctx, triggerDir); err != nil {
			logger.Error("podman socket watch exited", "error", err)
		}
	}()

	ticker := clk.NewTicker(pollInterval)
	defer ticker.Stop()

	logger.Info("envd ready", "envroot", envroot, "ipc_socket", ipcSocket)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			supervisor.Refresh(ctx)
		}
	}
}
