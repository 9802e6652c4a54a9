// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package mountutil invokes the kernel, via the fusermount helper, to
// tear down FUSE mounts and to recover mounts left behind by an abrupt
// daemon restart.
//
// ENVFS child processes (cmd/envfs) are mounted and unmounted by the
// supervisor (lib/container), but an unclean shutdown — a crash, a
// SIGKILL — can leave a mount behind with no supervisor left to clean
// it up. SweepStale is the idempotent recovery step run once at
// supervisor startup, before the supervisor has mounted anything: it
// treats every mount directly under ENVROOT as garbage.
package mountutil

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// fusermountBinary resolves "fusermount" or, on systems that only ship
// fuse3, "fusermount3". Mirrors sandbox/overlay.go's NewOverlayManager
// fallback lookup for the same pair of binary names.
func fusermountBinary() (string, error) {
	if path, err := exec.LookPath("fusermount"); err == nil {
		return path, nil
	}
	if path, err := exec.LookPath("fusermount3"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("fusermount/fusermount3 not found on PATH")
}

// Unmount lazily and quietly unmounts path. "Lazy" (-z) detaches the
// mount immediately even if it is still busy, so a slow or wedged
// ENVFS child does not block reconciliation; "quiet" (-q) suppresses
// fusermount's own diagnostics, since the caller logs the outcome.
func Unmount(path string) error {
	bin, err := fusermountBinary()
	if err != nil {
		return err
	}

	var stderr strings.Builder
	cmd := exec.Command(bin, "-u", "-q", "-z", path)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("unmounting %s: %w (stderr: %s)", path, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// SweepStale enumerates every mount currently visible in the host mount
// table and unmounts the ones whose parent directory shares envroot's
// (device, inode) pair — i.e. every mount directly under envroot,
// regardless of whether this process's in-memory state knows about it.
// Individual unmount failures are collected and returned rather than
// aborting the sweep; the caller is expected to log and continue.
func SweepStale(envroot string) []error {
	var rootStat syscall.Stat_t
	if err := syscall.Stat(envroot, &rootStat); err != nil {
		return []error{fmt.Errorf("stat envroot %s: %w", envroot, err)}
	}

	mountPaths, err := mountPointsUnder(envroot, &rootStat)
	if err != nil {
		return []error{err}
	}

	var errs []error
	for _, path := range mountPaths {
		if err := Unmount(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// mountPointsUnder reads /proc/self/mountinfo and returns the mount
// points whose parent directory matches rootStat's (device, inode).
func mountPointsUnder(envroot string, rootStat *syscall.Stat_t) ([]string, error) {
	file, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}
	defer file.Close()

	var matches []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		mountPoint := parseMountinfoMountPoint(scanner.Text())
		if mountPoint == "" {
			continue
		}

		parent := filepath.Dir(mountPoint)
		var parentStat syscall.Stat_t
		if err := syscall.Stat(parent, &parentStat); err != nil {
			continue
		}

		if parentStat.Dev == rootStat.Dev && parentStat.Ino == rootStat.Ino {
			matches = append(matches, mountPoint)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}
	return matches, nil
}

// parseMountinfoMountPoint extracts field 5 (the mount point) from a
// single /proc/self/mountinfo line. Returns "" if the line is
// malformed. See proc(5) for the mountinfo format; fields are
// whitespace-separated with a literal "-" separating the first
// (fixed-count) block from the filesystem-specific tail, but the mount
// point is always the 5th whitespace-separated field regardless.
func parseMountinfoMountPoint(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return ""
	}
	return unescapeOctal(fields[4])
}

// unescapeOctal reverses the \NNN octal escaping mountinfo applies to
// spaces, tabs, newlines, and backslashes in paths.
func unescapeOctal(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			var v int
			if n, err := fmt.Sscanf(s[i+1:i+4], "%3o", &v); err == nil && n == 1 {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
