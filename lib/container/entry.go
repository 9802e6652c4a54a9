// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/owtaylor/fedora-toolbox/lib/mountutil"
)

// Entry tracks one toolbox container: its current identity, whether
// ENVFS is mounted for it, and any start/stop podman invocation
// currently in flight. Identity and mount state are changed by the
// supervisor's reconciliation pass; Start and Stop may be called
// concurrently (each IPC request arrives on its own goroutine) and
// coalesce their callers under mu.
type Entry struct {
	Name string
	ID   string
	PID  int

	envroot   string
	mountPath string

	runtime podmanRuntime
	log     *slog.Logger

	mu           sync.Mutex
	startWaiters []chan error
	stopWaiters  []chan error
	fuseCmd      *exec.Cmd
}

// podmanRuntime is the subset of Runtime an Entry depends on, factored
// out so tests can substitute a fake without shelling out to podman.
type podmanRuntime interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
}

// newEntry constructs an Entry for a freshly discovered container.
func newEntry(envroot string, info Info, runtime podmanRuntime, log *slog.Logger) *Entry {
	return &Entry{
		Name:      info.Name,
		ID:        info.ID,
		PID:       info.PID,
		envroot:   envroot,
		mountPath: filepath.Join(envroot, info.Name),
		runtime:   runtime,
		log:       log,
	}
}

// Start starts the container's podman process, coalescing concurrent
// callers onto a single `podman start` invocation the way the
// reference daemon's GTask queue does. Returns immediately (with a
// nil error) if the container is already running.
func (e *Entry) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.PID != 0 {
		e.mu.Unlock()
		return nil
	}

	waiter := make(chan error, 1)
	e.startWaiters = append(e.startWaiters, waiter)
	alreadyRunning := len(e.startWaiters) > 1
	e.mu.Unlock()

	if !alreadyRunning {
		go e.runStart(ctx)
	}

	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Entry) runStart(ctx context.Context) {
	err := e.runtime.Start(ctx, e.Name)
	if err != nil {
		e.log.Error("podman start failed", "name", e.Name, "error", err)
	} else {
		e.log.Info("container started", "name", e.Name)
	}

	e.mu.Lock()
	waiters := e.startWaiters
	e.startWaiters = nil
	e.mu.Unlock()

	for _, w := range waiters {
		w <- err
	}
}

// Stop stops the container's podman process, with the same
// coalescing discipline as Start. Returns immediately if the
// container is already stopped.
func (e *Entry) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.PID == 0 {
		e.mu.Unlock()
		return nil
	}

	waiter := make(chan error, 1)
	e.stopWaiters = append(e.stopWaiters, waiter)
	alreadyStopping := len(e.stopWaiters) > 1
	e.mu.Unlock()

	if !alreadyStopping {
		go e.runStop(ctx)
	}

	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Entry) runStop(ctx context.Context) {
	err := e.runtime.Stop(ctx, e.Name)
	if err != nil {
		e.log.Error("podman stop failed", "name", e.Name, "error", err)
	} else {
		e.log.Info("container stopped", "name", e.Name)
	}

	e.mu.Lock()
	waiters := e.stopWaiters
	e.stopWaiters = nil
	e.mu.Unlock()

	for _, w := range waiters {
		w <- err
	}
}

// Mount spawns cmd/envfs pointed at this container's current PID.
// The caller (the supervisor) must hold e.PID != 0 and must not call
// Mount again until Unmount completes.
func (e *Entry) Mount(envfsPath, runTrampolinePath string) error {
	e.mu.Lock()
	if e.fuseCmd != nil {
		e.mu.Unlock()
		return fmt.Errorf("envfs already mounted for %s", e.Name)
	}
	e.mu.Unlock()

	if e.PID == 0 {
		return fmt.Errorf("cannot mount %s: no running PID", e.Name)
	}

	cmd := exec.Command(envfsPath, fmt.Sprint(e.PID), e.mountPath, runTrampolinePath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("mounting envfs for %s: %w", e.Name, err)
	}

	e.mu.Lock()
	e.fuseCmd = cmd
	e.mu.Unlock()
	e.log.Info("envfs mounted", "name", e.Name, "mount_path", e.mountPath, "pid", e.PID)
	return nil
}

// Unmount tears down a mount started by Mount: it unmounts the mount
// point and waits for the envfs child to exit.
func (e *Entry) Unmount() error {
	e.mu.Lock()
	cmd := e.fuseCmd
	e.mu.Unlock()
	if cmd == nil {
		return nil
	}

	if err := unmountFunc(e.mountPath); err != nil {
		return fmt.Errorf("unmounting %s: %w", e.Name, err)
	}

	if err := cmd.Wait(); err != nil {
		e.log.Warn("envfs process exited with error", "name", e.Name, "error", err)
	}

	e.mu.Lock()
	e.fuseCmd = nil
	e.mu.Unlock()
	e.log.Info("envfs unmounted", "name", e.Name)
	return nil
}

// unmountFunc is a package-level indirection over mountutil.Unmount so
// tests can substitute a fake without invoking fusermount.
var unmountFunc = mountutil.Unmount

// Mounted reports whether envfs is currently mounted for this entry.
func (e *Entry) Mounted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fuseCmd != nil
}

// Update applies a freshly observed Info to an existing entry,
// remounting ENVFS if the container's PID changed. A PID change with
// both old and new nonzero means the previous container instance is
// gone and a new one has replaced it under the same name.
func (e *Entry) Update(info Info, envfsPath, runTrampolinePath string) {
	if info.ID != e.ID {
		e.log.Info("container id changed", "name", e.Name, "old_id", e.ID, "new_id", info.ID)
		e.ID = info.ID
	}

	if info.PID == e.PID {
		return
	}

	e.log.Info("container pid changed", "name", e.Name, "old_pid", e.PID, "new_pid", info.PID)
	if e.PID != 0 {
		if err := e.Unmount(); err != nil {
			e.log.Error("unmount during update failed", "name", e.Name, "error", err)
		}
	}
	e.PID = info.PID
	if e.PID != 0 {
		if err := e.Mount(envfsPath, runTrampolinePath); err != nil {
			e.log.Error("mount during update failed", "name", e.Name, "error", err)
		}
	}
}
