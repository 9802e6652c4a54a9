// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package envfs

import (
	"os"
	"sync"

	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

// dirEntry is one name returned by a directory listing. Ino and Mode
// are advisory hints for the kernel's getdents buffer; the kernel
// always re-resolves the real inode and attributes via Lookup/GetAttr
// before trusting either, so an approximate Ino (the entry's position
// in the listing, rather than its real source-tree inode number) is
// sufficient here.
type dirEntry struct {
	name string
	ino  uint64
	mode uint32
}

// dirState is the open-directory handle returned by OpenDir. The
// entire listing is materialized up front, at open time, and served
// back page by page as ReadDir is called at increasing offsets; this
// trades the reference implementation's incremental seekdir(3) calls
// for a simpler, equally correct approach given that container
// directories are never large enough for this to matter.
type dirState struct {
	typ     inodeType
	entries []dirEntry
	file    *os.File
}

// dirTable assigns and tracks open directory handles. FUSE's Fh field
// is an opaque uint64 the kernel hands back unchanged on every
// subsequent call for the same open directory.
type dirTable struct {
	mu   sync.Mutex
	next uint64
	byFh map[uint64]*dirState
}

func newDirTable() *dirTable {
	return &dirTable{byFh: make(map[uint64]*dirState), next: 1}
}

func (t *dirTable) register(s *dirState) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	fh := t.next
	t.next++
	t.byFh[fh] = s
	return fh
}

func (t *dirTable) get(fh uint64) *dirState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byFh[fh]
}

func (t *dirTable) remove(fh uint64) *dirState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.byFh[fh]
	delete(t.byFh, fh)
	return s
}

// rootEntries is the synthesized listing of the mount's top level:
// ".", "..", "exe", "raw", in that fixed order, matching the
// reference implementation's readdir_root.
func rootEntries() []dirEntry {
	const dirMode = uint32(unix.S_IFDIR)
	return []dirEntry{
		{name: ".", ino: rootIno, mode: dirMode},
		{name: "..", ino: rootIno, mode: dirMode},
		{name: "exe", ino: rootIno, mode: dirMode},
		{name: "raw", ino: rootIno, mode: dirMode},
	}
}

// listSourceDir materializes a real directory's entries, prefixing
// "." and ".." as POSIX readdir(3) itself would.
func listSourceDir(file *os.File) ([]dirEntry, error) {
	names, err := file.Readdirnames(-1)
	if err != nil {
		return nil, err
	}

	entries := make([]dirEntry, 0, len(names)+2)
	entries = append(entries,
		dirEntry{name: ".", ino: 0, mode: uint32(unix.S_IFDIR)},
		dirEntry{name: "..", ino: 0, mode: uint32(unix.S_IFDIR)},
	)
	for i, name := range names {
		entries = append(entries, dirEntry{name: name, ino: uint64(i + 1)})
	}
	return entries, nil
}

// fillDirEntries appends as many of entries[offset:] as fit into out,
// returning fuse.OK once the kernel has been given everything it
// asked room for (the kernel will call back with a larger offset for
// the rest).
func fillDirEntries(out *fuse.DirEntryList, entries []dirEntry, offset uint64) fuse.Status {
	for i := offset; i < uint64(len(entries)); i++ {
		e := entries[i]
		if !out.AddDirEntry(fuse.DirEntry{Name: e.name, Ino: e.ino, Mode: e.mode}) {
			break
		}
	}
	return fuse.OK
}
