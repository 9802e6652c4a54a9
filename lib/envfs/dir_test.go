// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package envfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRootEntriesOrder(t *testing.T) {
	entries := rootEntries()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	want := []string{".", "..", "exe", "raw"}
	if len(names) != len(want) {
		t.Fatalf("rootEntries() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("rootEntries()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestListSourceDirIncludesDotEntries(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	entries, err := listSourceDir(f)
	if err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.name] = true
	}
	for _, want := range []string{".", "..", "a", "b"} {
		if !seen[want] {
			t.Fatalf("listSourceDir missing %q: %v", want, entries)
		}
	}
}

func TestDirTableRegisterGetRemove(t *testing.T) {
	tbl := newDirTable()
	state := &dirState{typ: inodeOther}

	fh := tbl.register(state)
	if got := tbl.get(fh); got != state {
		t.Fatalf("get after register returned %v, want %v", got, state)
	}

	removed := tbl.remove(fh)
	if removed != state {
		t.Fatalf("remove returned %v, want %v", removed, state)
	}
	if tbl.get(fh) != nil {
		t.Fatal("get after remove should return nil")
	}
}
