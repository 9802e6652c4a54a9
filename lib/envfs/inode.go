// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package envfs

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// inodeType distinguishes the mount's root directory, whose
// attributes are synthesized, from every other entry, whose
// attributes come from a stat of the corresponding path in the source
// tree. The top-level "raw" and "exe" directories are inodeOther with
// an empty path, so they report the source root's own attributes.
type inodeType int

const (
	inodeRoot inodeType = iota
	inodeOther
)

// rootIno is the FUSE protocol's reserved inode number for the mount
// point itself.
const rootIno uint64 = 1

// inode is a single entry in the filesystem's view. path is relative
// to the source root; the empty string denotes the source root itself
// (the "raw" and "exe" directories, before any lookup below them).
// isRaw selects which of the two top-level views this inode belongs
// to: raw inodes pass the source tree through unchanged, exe inodes
// rewrite executable regular files to the trampoline.
//
// Two inodes are the same identity iff (path, isRaw) match, mirroring
// the kernel's expectation that repeated lookups of the same name
// return the same inode number. refcount is the kernel's lookup count
// (each successful Lookup adds one reference; Forget subtracts).
type inode struct {
	ino      uint64
	refcount atomic.Uint64
	typ      inodeType
	path     string
	isRaw    bool
}

// key returns the (path, isRaw) identity used to intern inodes,
// mirroring the original implementation's combined hash of is_raw and
// the path string.
type inodeKey struct {
	path  string
	isRaw bool
}

func (n *inode) key() inodeKey { return inodeKey{path: n.path, isRaw: n.isRaw} }

// table interns inodes by (path, isRaw) and tracks their kernel
// lookup-count references. A FUSE filesystem must hand out the same
// inode number for repeated lookups of the same logical entry and
// must not free that inode until the kernel's Forget calls bring its
// reference count to zero — the kernel may be holding dentries that
// still refer to the raw ino number, with no other way to reach the
// Go struct behind it.
type table struct {
	mu    sync.Mutex
	byKey map[inodeKey]*inode
	byIno map[uint64]*inode
	root  *inode

	nextIno uint64
}

// newTable creates an inode table with the root inode preallocated at
// the FUSE-mandated ino 1.
func newTable() *table {
	root := &inode{ino: rootIno, typ: inodeRoot}
	root.refcount.Store(1)

	t := &table{
		byKey:   make(map[inodeKey]*inode),
		byIno:   make(map[uint64]*inode),
		root:    root,
		nextIno: 2,
	}
	t.byIno[rootIno] = root
	return t
}

// get resolves a raw FUSE ino to its inode, or nil if unknown.
func (t *table) get(ino uint64) *inode {
	if ino == rootIno {
		return t.root
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byIno[ino]
}

// intern returns the existing inode for (path, isRaw), incrementing
// its reference count, or creates and registers a new one with a
// reference count of one. This is the sole entry point that may
// allocate a new ino number, and it is the direct analogue of the
// original lookup_inode: one reference is added per call, matching
// one FUSE lookup reply.
func (t *table) intern(path string, isRaw bool) *inode {
	key := inodeKey{path: path, isRaw: isRaw}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.byKey[key]; ok {
		existing.refcount.Add(1)
		return existing
	}

	n := &inode{ino: t.nextIno, typ: inodeOther, path: path, isRaw: isRaw}
	n.refcount.Store(1)
	t.nextIno++

	t.byKey[key] = n
	t.byIno[n.ino] = n
	return n
}

// forget subtracts nlookup from ino's reference count, evicting it
// from the table if the count reaches zero. The root inode is never
// evicted. Eviction re-checks the count after acquiring the lock:
// intern() could otherwise hand out a fresh reference to an inode
// that is concurrently being retired, resurrecting an entry the
// kernel believes is dead.
func (t *table) forget(ino uint64, nlookup uint64) {
	if ino == rootIno {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.byIno[ino]
	if !ok {
		return
	}

	after := n.refcount.Add(-nlookup)
	if after != 0 {
		return
	}

	delete(t.byIno, ino)
	delete(t.byKey, n.key())
}

// forgetMulti applies forget for a batch of (ino, nlookup) pairs, as
// delivered by the kernel's FORGET_MULTI request.
func (t *table) forgetMulti(pairs []forgetOne) {
	for _, p := range pairs {
		t.forget(p.ino, p.nlookup)
	}
}

type forgetOne struct {
	ino     uint64
	nlookup uint64
}

// hash64 returns a stable hash of an inode's (path, isRaw) identity.
// Unused by table (Go maps don't need an exported hash function) but
// kept as the documented analogue of the original implementation's
// combined hash, and exercised directly by tests asserting that raw
// and exe views of the same path never collide.
func hash64(path string, isRaw bool) uint64 {
	h := fnv.New64a()
	if isRaw {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	h.Write([]byte(path))
	return h.Sum64()
}
