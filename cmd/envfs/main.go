// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command envfs is a thin FUSE server binary spawned by envd, one
// instance per running toolbox container. It projects a container's
// root filesystem read-only at MOUNT_PATH, rewriting executable
// regular files under an "exe" view to run through TOOLBOX_RUN_PATH.
//
// Usage: envfs CONTAINER_PID MOUNT_PATH TOOLBOX_RUN_PATH
//
// envfs is not meant to be run by hand; envd manages its lifecycle
// and passes CONTAINER_PID as observed from podman.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/owtaylor/fedora-toolbox/lib/envfs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 4 {
		return fmt.Errorf("usage: %s CONTAINER_PID MOUNT_PATH TOOLBOX_RUN_PATH", os.Args[0])
	}

	pid, err := strconv.Atoi(os.Args[1])
	if err != nil {
		return fmt.Errorf("invalid CONTAINER_PID %q: %w", os.Args[1], err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return envfs.Run(ctx, envfs.Options{
		ContainerPID:      pid,
		MountPath:         os.Args[2],
		RunTrampolinePath: os.Args[3],
		AllowOther:        true,
		Logger:            logger,
	})
}
