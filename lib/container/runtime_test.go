// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"encoding/json"
	"testing"
)

const samplePsOutput = `[
  {
    "ID": "abc123",
    "Names": "fedora-toolbox-40",
    "State": 3,
    "Pid": 4242,
    "Labels": {"com.redhat.component": "fedora-toolbox"}
  },
  {
    "ID": "def456",
    "Names": "fedora-toolbox-39",
    "State": 0,
    "Pid": 9999,
    "Labels": {"com.redhat.component": "fedora-toolbox"}
  },
  {
    "ID": "ghi789",
    "Names": "unrelated-container",
    "State": 3,
    "Pid": 1234,
    "Labels": {}
  }
]`

func parsePsEntries(t *testing.T, data string) []psEntry {
	t.Helper()
	var entries []psEntry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestListFiltersByComponentLabel(t *testing.T) {
	entries := parsePsEntries(t, samplePsOutput)
	infos := filterToolboxes(entries)

	if len(infos) != 2 {
		t.Fatalf("got %d toolbox containers, want 2: %+v", len(infos), infos)
	}
	if infos[0].PID != 4242 {
		t.Fatalf("running container PID = %d, want 4242", infos[0].PID)
	}
	if infos[1].PID != 0 {
		t.Fatalf("stopped container PID = %d, want 0 (podman reports its stale PID)", infos[1].PID)
	}
}
