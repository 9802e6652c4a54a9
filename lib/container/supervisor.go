// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/owtaylor/fedora-toolbox/lib/clock"
	"github.com/owtaylor/fedora-toolbox/lib/discover"
	"github.com/owtaylor/fedora-toolbox/lib/ipc"
	"github.com/owtaylor/fedora-toolbox/lib/mountutil"
)

// defaultLinkName is the symlink envroot/_default points at the
// alphabetically-last "fedora-toolbox*" container, so that tooling
// with no opinion about which toolbox to use has one anyway.
const defaultLinkName = "_default"

// reconcileDebounce coalesces a burst of podman socket activity (a
// single `toolbox create` touches the socket several times) into one
// reconciliation pass instead of one per event.
const reconcileDebounce = 250 * time.Millisecond

// ErrUnknownContainer is returned by StartByName/StopByName for a
// name the supervisor has never seen from podman ps.
var ErrUnknownContainer = fmt.Errorf("no such toolbox")

// Supervisor reconciles envroot's directory tree against podman's
// view of running toolbox containers, mounting and unmounting
// lib/envfs for each one and keeping envroot/_default pointed at a
// reasonable default.
type Supervisor struct {
	envroot    string
	runtime    *Runtime
	discoverer *discover.Discoverer
	clock      clock.Clock
	log        *slog.Logger

	mu            sync.Mutex
	entries       map[string]*Entry
	checkInFlight bool
	dirty         bool
	debounceTimer *clock.Timer
}

// New builds a Supervisor. discoverer resolves the envfs and
// trampoline binary paths passed to each mount.
func New(envroot string, runtime *Runtime, discoverer *discover.Discoverer, clk clock.Clock, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{
		envroot:    envroot,
		runtime:    runtime,
		discoverer: discoverer,
		clock:      clk,
		log:        log,
		entries:    make(map[string]*Entry),
	}
}

// Start prepares envroot, clears any mounts left behind by a previous
// unclean shutdown, and performs an initial reconciliation pass. The
// caller is expected to also call Watch to react to podman socket
// activity going forward.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.envroot, 0o755); err != nil {
		return fmt.Errorf("creating envroot %s: %w", s.envroot, err)
	}

	for _, err := range mountutil.SweepStale(s.envroot) {
		s.log.Warn("cleaning up stale mount", "error", err)
	}

	s.checkRunning(ctx)
	return nil
}

// Stop unmounts every currently-mounted container. Called during
// daemon shutdown.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	entries := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		if e.PID == 0 {
			continue
		}
		if err := e.Unmount(); err != nil {
			s.log.Error("unmount during shutdown failed", "name", e.Name, "error", err)
		}
	}
}

// Watch runs a podman-socket-directory watch that triggers
// reconciliation whenever the socket appears, disappears, or is
// otherwise touched — podman doesn't offer a push notification for
// container state changes, so this is the closest approximation of
// one. Runs until ctx is canceled.
func (s *Supervisor) Watch(ctx context.Context, socketDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating socket watcher: %w", err)
	}
	defer watcher.Close()

	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", socketDir, err)
	}
	if err := watcher.Add(socketDir); err != nil {
		return fmt.Errorf("watching %s: %w", socketDir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.scheduleCheck(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("socket watcher error", "error", err)
		}
	}
}

// scheduleCheck debounces a burst of triggers into a single
// checkRunning call, fired reconcileDebounce after the last one.
func (s *Supervisor) scheduleCheck(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = s.clock.AfterFunc(reconcileDebounce, func() {
		s.checkRunning(ctx)
	})
}

// checkRunning ensures exactly one `podman ps` + reconcile pass is in
// flight at a time. A trigger that arrives mid-pass sets dirty and is
// honored by an immediate follow-up pass, rather than being dropped:
// podman's state may have changed again since the in-flight pass
// started reading it.
func (s *Supervisor) checkRunning(ctx context.Context) {
	s.mu.Lock()
	if s.checkInFlight {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	s.checkInFlight = true
	s.mu.Unlock()

	go s.runCheck(ctx)
}

func (s *Supervisor) runCheck(ctx context.Context) {
	for {
		infos, err := s.runtime.List(ctx)
		if err != nil {
			s.log.Error("podman ps failed", "error", err)
		} else {
			s.reconcile(infos)
		}

		s.mu.Lock()
		if !s.dirty {
			s.checkInFlight = false
			s.mu.Unlock()
			return
		}
		s.dirty = false
		s.mu.Unlock()
	}
}

// Refresh triggers a reconciliation pass. Exported for envd's poll
// loop, which calls this on a fixed interval as a backstop against
// podman state changes that don't touch the socket directory Watch
// observes.
func (s *Supervisor) Refresh(ctx context.Context) {
	s.checkRunning(ctx)
}

// StartByName starts the named container, triggering a follow-up
// reconciliation pass once it's up so ENVFS gets mounted.
func (s *Supervisor) StartByName(ctx context.Context, name string) error {
	entry := s.lookup(name)
	if entry == nil {
		return ErrUnknownContainer
	}
	if err := entry.Start(ctx); err != nil {
		return err
	}
	s.checkRunning(ctx)
	return nil
}

// StopByName stops the named container, triggering a follow-up
// reconciliation pass once it's down so ENVFS gets unmounted.
func (s *Supervisor) StopByName(ctx context.Context, name string) error {
	entry := s.lookup(name)
	if entry == nil {
		return ErrUnknownContainer
	}
	if err := entry.Stop(ctx); err != nil {
		return err
	}
	s.checkRunning(ctx)
	return nil
}

func (s *Supervisor) lookup(name string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[name]
}

// Status reports every container the supervisor currently tracks.
func (s *Supervisor) Status() []ipc.ContainerStatus {
	s.mu.Lock()
	entries := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	statuses := make([]ipc.ContainerStatus, len(entries))
	for i, e := range entries {
		statuses[i] = ipc.ContainerStatus{
			Name:    e.Name,
			ID:      e.ID,
			PID:     e.PID,
			Mounted: e.Mounted(),
		}
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// Handle answers one IPC request, implementing ipc.Handler.
func (s *Supervisor) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Verb {
	case "start":
		if err := s.StartByName(ctx, req.Name); err != nil {
			return ipc.Response{OK: false, Error: err.Error()}
		}
		return ipc.Response{OK: true}

	case "stop":
		if err := s.StopByName(ctx, req.Name); err != nil {
			return ipc.Response{OK: false, Error: err.Error()}
		}
		return ipc.Response{OK: true}

	case "status":
		return ipc.Response{OK: true, Containers: s.Status()}

	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown verb %q", req.Verb)}
	}
}

// reconcile brings envroot's directory tree and the daemon's Entry
// table into agreement with infos, podman's current view of the
// world. This is a direct port of the reference daemon's
// refresh_containers: entries and directories absent from infos are
// removed, entries present but missing a directory get one created,
// and envroot/_default is repointed only when the computed default
// actually changes.
func (s *Supervisor) reconcile(infos []Info) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldDirs, oldExtra, oldDefaultLink, err := scanEnvroot(s.envroot)
	if err != nil {
		s.log.Error("failed to list envroot", "error", err)
	}

	for name := range oldExtra {
		path := filepath.Join(s.envroot, name)
		if err := os.RemoveAll(path); err != nil {
			s.log.Error("failed to remove stray envroot entry", "path", path, "error", err)
		}
	}

	seen := make(map[string]bool, len(infos))
	newDefaultLink := ""

	override, err := loadDefaultLinkOverride(s.envroot)
	if err != nil {
		s.log.Warn("failed to read default link override", "error", err)
	}

	envfsPath, envfsErr := s.discoverer.Resolve("toolbox-envfs")
	runPath, runErr := s.discoverer.Resolve("toolbox-run")

	for _, info := range infos {
		seen[info.Name] = true

		entry, exists := s.entries[info.Name]
		if !exists {
			entry = newEntry(s.envroot, info, s.runtime, s.log)
			s.entries[info.Name] = entry
			s.log.Info("container discovered", "name", info.Name, "id", info.ID, "pid", info.PID)
			if entry.PID != 0 && envfsErr == nil && runErr == nil {
				if err := entry.Mount(envfsPath, runPath); err != nil {
					s.log.Error("initial mount failed", "name", entry.Name, "error", err)
				}
			}
		} else if envfsErr == nil && runErr == nil {
			entry.Update(info, envfsPath, runPath)
		}

		if !oldDirs[info.Name] {
			path := filepath.Join(s.envroot, info.Name)
			if err := os.Mkdir(path, 0o755); err != nil && !os.IsExist(err) {
				s.log.Error("failed to create envroot entry", "path", path, "error", err)
			}
		}

		if strings.HasPrefix(info.Name, "fedora-toolbox") && (newDefaultLink == "" || info.Name > newDefaultLink) {
			newDefaultLink = info.Name
		}
	}

	if override != "" && seen[override] {
		newDefaultLink = override
	}

	for name, entry := range s.entries {
		if seen[name] {
			continue
		}
		if entry.PID != 0 {
			if err := entry.Unmount(); err != nil {
				s.log.Error("failed to unmount removed container", "name", name, "error", err)
			}
		}
		delete(s.entries, name)
		s.log.Info("container gone", "name", name)
	}

	for name := range oldDirs {
		if seen[name] {
			continue
		}
		path := filepath.Join(s.envroot, name)
		if err := os.RemoveAll(path); err != nil {
			s.log.Error("failed to remove stale envroot directory", "path", path, "error", err)
		}
	}

	if newDefaultLink != oldDefaultLink {
		linkPath := filepath.Join(s.envroot, defaultLinkName)
		if oldDefaultLink != "" {
			if err := os.Remove(linkPath); err != nil && !os.IsNotExist(err) {
				s.log.Error("failed to remove default symlink", "error", err)
			}
		}
		if newDefaultLink != "" {
			if err := os.Symlink(newDefaultLink, linkPath); err != nil {
				s.log.Error("failed to create default symlink", "error", err)
			}
		}
	}
}

// scanEnvroot enumerates envroot's current contents, splitting them
// into real toolbox directories, the "_default" symlink's target (if
// any), and anything else (stray files or symlinks) that doesn't
// belong and should be swept away before reconciliation proceeds.
func scanEnvroot(envroot string) (dirs map[string]bool, extra map[string]bool, defaultLink string, err error) {
	dirs = make(map[string]bool)
	extra = make(map[string]bool)

	entries, err := os.ReadDir(envroot)
	if err != nil {
		return dirs, extra, "", err
	}

	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			extra[e.Name()] = true
			continue
		}

		switch {
		case info.IsDir():
			dirs[e.Name()] = true
		case info.Mode()&os.ModeSymlink != 0 && e.Name() == defaultLinkName:
			target, err := os.Readlink(filepath.Join(envroot, e.Name()))
			if err == nil {
				defaultLink = target
			}
		case e.Name() == defaultLinkOverrideFile:
			// operator-managed, not reconciliation's to remove.
		default:
			extra[e.Name()] = true
		}
	}

	return dirs, extra, defaultLink, nil
}
