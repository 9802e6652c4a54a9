// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/owtaylor/fedora-toolbox/lib/clock"
	"github.com/owtaylor/fedora-toolbox/lib/discover"
	"github.com/owtaylor/fedora-toolbox/lib/ipc"
)

var fakeEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestSupervisor(t *testing.T) (*Supervisor, string) {
	t.Helper()
	envroot := t.TempDir()

	binDir := t.TempDir()
	for _, name := range []string{"toolbox-envfs", "toolbox-run"} {
		if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	d, err := discover.New(filepath.Join(binDir, "envd"))
	if err != nil {
		t.Fatal(err)
	}

	s := New(envroot, &Runtime{}, d, clock.Fake(fakeEpoch), discardLogger())
	return s, envroot
}

func TestReconcileCreatesDirectories(t *testing.T) {
	s, envroot := newTestSupervisor(t)

	s.reconcile([]Info{{Name: "fedora-toolbox-40", ID: "abc", PID: 0}})

	if _, err := os.Stat(filepath.Join(envroot, "fedora-toolbox-40")); err != nil {
		t.Fatalf("expected directory for discovered container: %v", err)
	}
}

func TestReconcileRemovesStaleDirectories(t *testing.T) {
	s, envroot := newTestSupervisor(t)

	if err := os.Mkdir(filepath.Join(envroot, "leftover"), 0o755); err != nil {
		t.Fatal(err)
	}

	s.reconcile(nil)

	if _, err := os.Stat(filepath.Join(envroot, "leftover")); !os.IsNotExist(err) {
		t.Fatalf("expected leftover directory to be removed, stat err = %v", err)
	}
}

func TestReconcileRemovesStrayFiles(t *testing.T) {
	s, envroot := newTestSupervisor(t)

	if err := os.WriteFile(filepath.Join(envroot, "stray"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	s.reconcile(nil)

	if _, err := os.Stat(filepath.Join(envroot, "stray")); !os.IsNotExist(err) {
		t.Fatalf("expected stray file to be removed, stat err = %v", err)
	}
}

func TestReconcileDefaultLinkTracksAlphabeticallyLast(t *testing.T) {
	s, envroot := newTestSupervisor(t)

	s.reconcile([]Info{
		{Name: "fedora-toolbox-39", ID: "a", PID: 0},
		{Name: "fedora-toolbox-40", ID: "b", PID: 0},
	})

	target, err := os.Readlink(filepath.Join(envroot, defaultLinkName))
	if err != nil {
		t.Fatal(err)
	}
	if target != "fedora-toolbox-40" {
		t.Fatalf("_default -> %q, want fedora-toolbox-40", target)
	}
}

func TestReconcileDefaultLinkIgnoresNonToolboxNames(t *testing.T) {
	s, envroot := newTestSupervisor(t)

	s.reconcile([]Info{
		{Name: "fedora-toolbox-39", ID: "a", PID: 0},
		{Name: "zzz-not-a-toolbox", ID: "b", PID: 0},
	})

	target, err := os.Readlink(filepath.Join(envroot, defaultLinkName))
	if err != nil {
		t.Fatal(err)
	}
	if target != "fedora-toolbox-39" {
		t.Fatalf("_default -> %q, want fedora-toolbox-39 (non-prefixed names must not win)", target)
	}
}

func TestReconcileDefaultLinkUnchangedWhenSameWinner(t *testing.T) {
	s, envroot := newTestSupervisor(t)

	s.reconcile([]Info{{Name: "fedora-toolbox-40", ID: "a", PID: 0}})
	linkPath := filepath.Join(envroot, defaultLinkName)
	before, err := os.Lstat(linkPath)
	if err != nil {
		t.Fatal(err)
	}

	s.reconcile([]Info{{Name: "fedora-toolbox-40", ID: "a", PID: 0}})
	after, err := os.Lstat(linkPath)
	if err != nil {
		t.Fatal(err)
	}

	if !before.ModTime().Equal(after.ModTime()) {
		t.Fatalf("default symlink was recreated even though the winner didn't change")
	}
}

func TestReconcileRemovesEntryForGoneContainer(t *testing.T) {
	s, _ := newTestSupervisor(t)

	s.reconcile([]Info{{Name: "fedora-toolbox-40", ID: "a", PID: 0}})
	if s.lookup("fedora-toolbox-40") == nil {
		t.Fatal("expected entry to be tracked after first reconcile")
	}

	s.reconcile(nil)
	if s.lookup("fedora-toolbox-40") != nil {
		t.Fatal("expected entry to be removed once podman no longer reports it")
	}
}

func TestReconcileHonorsDefaultLinkOverride(t *testing.T) {
	s, envroot := newTestSupervisor(t)

	overridePath := filepath.Join(envroot, defaultLinkOverrideFile)
	if err := os.WriteFile(overridePath, []byte("name: fedora-toolbox-39\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s.reconcile([]Info{
		{Name: "fedora-toolbox-39", ID: "a", PID: 0},
		{Name: "fedora-toolbox-40", ID: "b", PID: 0},
	})

	target, err := os.Readlink(filepath.Join(envroot, defaultLinkName))
	if err != nil {
		t.Fatal(err)
	}
	if target != "fedora-toolbox-39" {
		t.Fatalf("_default -> %q, want fedora-toolbox-39 (override should win over lexicographic order)", target)
	}

	if _, err := os.Stat(overridePath); err != nil {
		t.Fatalf("override file was swept away by reconcile: %v", err)
	}
}

func TestHandleStatusReportsTrackedContainers(t *testing.T) {
	s, _ := newTestSupervisor(t)
	s.reconcile([]Info{{Name: "fedora-toolbox-40", ID: "a", PID: 0}})

	resp := s.Handle(context.Background(), ipc.Request{Verb: "status"})
	if !resp.OK || len(resp.Containers) != 1 || resp.Containers[0].Name != "fedora-toolbox-40" {
		t.Fatalf("unexpected status response: %+v", resp)
	}
}

func TestHandleUnknownVerb(t *testing.T) {
	s, _ := newTestSupervisor(t)
	resp := s.Handle(context.Background(), ipc.Request{Verb: "bogus"})
	if resp.OK {
		t.Fatal("expected OK=false for unknown verb")
	}
}

func TestStartByNameUnknownContainer(t *testing.T) {
	s, _ := newTestSupervisor(t)
	if err := s.StartByName(context.Background(), "does-not-exist"); err != ErrUnknownContainer {
		t.Fatalf("StartByName on unknown container = %v, want ErrUnknownContainer", err)
	}
}
