// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package envfs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// Options configures a single ENVFS mount for one container.
type Options struct {
	// ContainerPID is the PID, as seen from the host's PID namespace,
	// of a process inside the target container.
	ContainerPID int

	// MountPath is the host directory the filesystem is mounted onto.
	MountPath string

	// RunTrampolinePath is the absolute host path of the trampoline
	// binary that executable regular files resolve to under the "exe"
	// view. Being absolute, it is resolved in this process's own mount
	// namespace rather than under the container root.
	RunTrampolinePath string

	// AllowOther permits users other than the one running this
	// process to access the mount, needed since envd runs as the
	// invoking user but toolbox client processes may run as other
	// users sharing the same container.
	AllowOther bool

	Logger *slog.Logger
}

// Run mounts the filesystem described by opts and serves FUSE
// requests until ctx is canceled or the kernel tears the mount down.
//
// The container's root is opened, as an O_PATH descriptor, before
// this process enters the container's user namespace: entering the
// namespace first would leave the path /proc/<pid>/root unresolvable
// from inside it, since a container's user namespace generally
// cannot see the host's /proc without additional bind mounts. Once
// the descriptor is open, every subsequent lookup is fd-relative, so
// entering the namespace afterwards only affects the uid/gid the
// kernel reports for file ownership, not path resolution.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rootPath := fmt.Sprintf("/proc/%d/root", opts.ContainerPID)
	src, err := openSource(rootPath, opts.RunTrampolinePath)
	if err != nil {
		return err
	}

	fsys := New(src, logger)

	mountOpts := &fuse.MountOptions{
		AllowOther: opts.AllowOther,
		Name:       "envfs",
		FsName:     "envfs",
		Options:    []string{"ro"},
	}

	server, err := fuse.NewServer(fsys, opts.MountPath, mountOpts)
	if err != nil {
		src.Close()
		return fmt.Errorf("mounting envfs at %s: %w", opts.MountPath, err)
	}

	nsPath := fmt.Sprintf("/proc/%d/ns/user", opts.ContainerPID)
	if err := enterUserNamespace(nsPath); err != nil {
		server.Unmount()
		src.Close()
		return err
	}

	logger.Info("envfs mounted", "mount_path", opts.MountPath, "container_pid", opts.ContainerPID)

	go func() {
		<-ctx.Done()
		server.Unmount()
	}()

	server.Wait()
	return src.Close()
}

// enterUserNamespace joins the user namespace at nsPath (typically
// /proc/<pid>/ns/user), so that the uid/gid this process reports to
// the kernel via getattr match the container's idea of file
// ownership.
func enterUserNamespace(nsPath string) error {
	fd, err := unix.Open(nsPath, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", nsPath, err)
	}
	defer unix.Close(fd)

	if err := unix.Setns(fd, 0); err != nil {
		return fmt.Errorf("setns %s: %w", nsPath, err)
	}
	return nil
}
