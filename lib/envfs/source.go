// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package envfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// source wraps an O_PATH file descriptor opened on a container's root
// directory (typically /proc/<pid>/root), along with the path to the
// in-container trampoline binary that executable lookups under the
// exe view resolve to. Every other method resolves a path relative to
// this descriptor via the *at(2) family, so the lookup never crosses
// back through a symlink-able mount point once the descriptor is
// open — opening the descriptor once, up front, and resolving
// everything beneath it with fd-relative syscalls is what lets the
// daemon enter the container's user namespace afterwards without
// losing the ability to reach the container's files.
type source struct {
	fd                int
	runTrampolinePath string
}

// openSource opens path (normally /proc/<pid>/root) as an O_PATH
// descriptor, suitable for fd-relative lookups without requiring
// execute or read permission on the target itself.
func openSource(path string, runTrampolinePath string) (*source, error) {
	fd, err := unix.Open(path, unix.O_PATH, 0)
	if err != nil {
		return nil, fmt.Errorf("opening source root %s: %w", path, err)
	}
	return &source{fd: fd, runTrampolinePath: runTrampolinePath}, nil
}

// Close releases the underlying descriptor.
func (s *source) Close() error {
	return unix.Close(s.fd)
}

// procSelfFd returns the /proc/self/fd path that reopens an O_PATH
// descriptor with real read semantics. Needed for getxattr, listxattr
// and access, none of which operate on an O_PATH descriptor directly.
func procSelfFd(fd int) string {
	return fmt.Sprintf("/proc/self/fd/%d", fd)
}

// stat stats relPath relative to the source root. The empty string
// stats the source root itself (its "raw"/"exe" top-level view).
func (s *source) stat(relPath string) (unix.Stat_t, error) {
	var st unix.Stat_t
	if relPath == "" {
		err := unix.Fstat(s.fd, &st)
		return st, err
	}
	err := unix.Fstatat(s.fd, relPath, &st, unix.AT_SYMLINK_NOFOLLOW)
	return st, err
}

// openPath opens relPath as an O_PATH descriptor, for use by
// getxattr/listxattr/access. Closing the fd is the caller's
// responsibility.
func (s *source) openPath(relPath string) (int, error) {
	if relPath == "" {
		// Duplicate rather than hand back s.fd itself, so the caller can
		// always close what it receives.
		return unix.Dup(s.fd)
	}
	return unix.Openat(s.fd, relPath, unix.O_PATH|unix.O_NOFOLLOW, 0)
}

// open opens relPath for reading with the given flags. An empty
// relPath reopens the source root itself via /proc/self/fd, since an
// O_PATH descriptor cannot be read from directly.
func (s *source) open(relPath string, flags int) (int, error) {
	if relPath == "" {
		return unix.Open(procSelfFd(s.fd), flags, 0)
	}
	return unix.Openat(s.fd, relPath, flags, 0)
}

// openDir opens relPath as a directory for reading entries.
func (s *source) openDir(relPath string) (*os.File, error) {
	name := relPath
	if name == "" {
		name = "."
	}
	fd, err := unix.Openat(s.fd, name, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), name), nil
}

// maxPathLen bounds the buffer used to read a symlink target, matching
// Linux's PATH_MAX.
const maxPathLen = 4096

// readlink reads the symlink target at relPath.
func (s *source) readlink(relPath string) (string, error) {
	buf := make([]byte, maxPathLen)
	n, err := unix.Readlinkat(s.fd, relPath, buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// getxattr returns the named extended attribute for relPath, reopening
// it through /proc/self/fd since O_PATH descriptors don't support
// getxattr directly.
func (s *source) getxattr(relPath, name string, dest []byte) (int, error) {
	fd, err := s.openPath(relPath)
	if err != nil {
		return 0, err
	}
	defer unix.Close(fd)
	return unix.Getxattr(procSelfFd(fd), name, dest)
}

// listxattr returns the extended attribute names set on relPath.
func (s *source) listxattr(relPath string, dest []byte) (int, error) {
	fd, err := s.openPath(relPath)
	if err != nil {
		return 0, err
	}
	defer unix.Close(fd)
	return unix.Listxattr(procSelfFd(fd), dest)
}

// access checks relPath against mask (the access(2) permission bits).
func (s *source) access(relPath string, mask uint32) error {
	fd, err := s.openPath(relPath)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	return unix.Access(procSelfFd(fd), mask)
}
