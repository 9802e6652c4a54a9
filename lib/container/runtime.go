// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package container supervises the set of running toolbox containers,
// reconciling envroot's directory tree against podman's view of the
// world and mounting/unmounting lib/envfs for each one.
package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// toolboxComponentLabel is the podman container label this daemon
// uses to recognize a container as a toolbox, rather than some other
// unrelated container sharing the user's podman storage.
const toolboxComponentLabel = "fedora-toolbox"

// stateRunning is the documented container-state enum value for a
// running container (podman's --namespace JSON reports State as an
// integer, not the human-readable string podman's plain ps prints).
const stateRunning = 3

// Info describes one running or stopped container this daemon cares
// about, as reported by podman ps.
type Info struct {
	Name string
	ID   string

	// PID is the container's PID in the host PID namespace, or 0 if
	// the container isn't currently running. podman reports the PID a
	// stopped container used to have, so State must be consulted too.
	PID int
}

// psEntry mirrors the fields this daemon reads out of a single
// `podman ps --format=json` array element. Unrecognized fields are
// ignored by encoding/json without any extra bookkeeping.
type psEntry struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	State  int    `json:"State"`
	Pid    int    `json:"Pid"`
	Labels struct {
		Component string `json:"com.redhat.component"`
	} `json:"Labels"`
}

// Runtime wraps the podman CLI invocations this daemon needs.
type Runtime struct {
	// Binary is the podman executable to invoke. Defaults to "podman"
	// when empty.
	Binary string
}

func (r *Runtime) binary() string {
	if r.Binary != "" {
		return r.Binary
	}
	return "podman"
}

// List returns every container podman knows about that carries the
// toolbox component label, regardless of whether it's running.
func (r *Runtime) List(ctx context.Context) ([]Info, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary(), "ps", "-a", "--format=json", "--no-trunc", "--namespace")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("podman ps: %w (stderr: %s)", err, stderr.String())
	}

	var entries []psEntry
	if err := json.Unmarshal(stdout.Bytes(), &entries); err != nil {
		return nil, fmt.Errorf("parsing podman ps output: %w", err)
	}

	return filterToolboxes(entries), nil
}

// filterToolboxes keeps only the entries carrying the toolbox
// component label, normalizing PID to 0 for anything not currently
// running (podman reports the PID a stopped container used to have,
// which this daemon must not mistake for a live process).
func filterToolboxes(entries []psEntry) []Info {
	var infos []Info
	for _, e := range entries {
		if e.ID == "" || e.Names == "" {
			continue
		}
		if e.Labels.Component != toolboxComponentLabel {
			continue
		}

		pid := e.Pid
		if e.State != stateRunning {
			pid = 0
		}

		infos = append(infos, Info{Name: e.Names, ID: e.ID, PID: pid})
	}
	return infos
}

// Start starts the named container via `podman start`.
func (r *Runtime) Start(ctx context.Context, name string) error {
	return r.run(ctx, "start", name)
}

// Stop stops the named container via `podman stop`.
func (r *Runtime) Stop(ctx context.Context, name string) error {
	return r.run(ctx, "stop", name)
}

func (r *Runtime) run(ctx context.Context, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary(), args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("podman %v: %w (stderr: %s)", args, err, stderr.String())
	}
	return nil
}
