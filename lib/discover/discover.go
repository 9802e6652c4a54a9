// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package discover locates the helper binaries envd spawns (envfs,
// and the in-container trampoline) relative to envd's own install
// location, falling back to a source-tree checkout layout during
// development.
package discover

import (
	"fmt"
	"os"
	"path/filepath"
)

// Discoverer resolves helper binary names to absolute paths.
type Discoverer struct {
	primaryDir string
	altDir     string
}

// New builds a Discoverer from argv0, the path envd was invoked with.
// primaryDir is argv0's directory, where a packaged install places
// every helper binary alongside envd itself. altDir is the nearest
// ancestor directory named "toolbox" that also contains a COPYING
// file, so that an envd binary built inside a source checkout finds
// helper binaries placed at the checkout root without an install
// step. Only the checkout root itself is searched, not its
// subdirectories.
func New(argv0 string) (*Discoverer, error) {
	abs, err := filepath.Abs(argv0)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", argv0, err)
	}

	d := &Discoverer{primaryDir: filepath.Dir(abs)}
	d.altDir = findCheckoutRoot(d.primaryDir)
	return d, nil
}

// findCheckoutRoot walks up from dir looking for an ancestor named
// "toolbox" containing a COPYING file. Returns "" if none is found.
func findCheckoutRoot(dir string) string {
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent

		if filepath.Base(dir) != "toolbox" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, "COPYING")); err == nil {
			return dir
		}
	}
}

// Resolve returns the absolute path to the named helper binary.
// It checks the primary directory first, then the checkout root (if
// one was found), and requires the candidate to have at least one
// executable bit set.
func (d *Discoverer) Resolve(name string) (string, error) {
	if path, ok := executableIn(d.primaryDir, name); ok {
		return path, nil
	}
	if d.altDir != "" {
		if path, ok := executableIn(d.altDir, name); ok {
			return path, nil
		}
	}
	return "", fmt.Errorf("discover: failed to find %s", name)
}

func executableIn(dir, name string) (string, bool) {
	if dir == "" {
		return "", false
	}
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	if info.Mode()&0111 == 0 {
		return "", false
	}
	return path, true
}
