// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package envfs

import "path"

// childPath joins a parent's source-relative path with a child name.
// An empty parent path denotes the source root itself, matching the
// "raw"/"exe" top-level directories before any lookup below them.
func childPath(parentPath, name string) string {
	if parentPath == "" {
		return name
	}
	return path.Join(parentPath, name)
}

// needsTrampolineRewrite reports whether a stat result for a path
// looked up under the exe view should be replaced with a stat of the
// trampoline binary: only regular files with at least one executable
// bit set are rewritten, and only outside the raw view.
func needsTrampolineRewrite(isRaw bool, isRegular bool, mode uint32) bool {
	const executableBits = 0111
	return !isRaw && isRegular && mode&executableBits != 0
}

// maskWriteBits clears the write permission bits the kernel reports
// for a file, since every view this filesystem exposes is read-only
// regardless of what the source container's file mode says.
func maskWriteBits(mode uint32) uint32 {
	const writeBits = 0222
	return mode &^ writeBits
}
