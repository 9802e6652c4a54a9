// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package envfs

import "testing"

func TestInternReusesInode(t *testing.T) {
	tbl := newTable()

	a := tbl.intern("bin/vim", false)
	b := tbl.intern("bin/vim", false)

	if a != b {
		t.Fatalf("intern returned distinct inodes for the same (path, isRaw)")
	}
	if got := a.refcount.Load(); got != 2 {
		t.Fatalf("refcount = %d, want 2", got)
	}
}

func TestInternDistinguishesRawFromExe(t *testing.T) {
	tbl := newTable()

	raw := tbl.intern("bin/vim", true)
	exe := tbl.intern("bin/vim", false)

	if raw.ino == exe.ino {
		t.Fatalf("raw and exe views of the same path collided on ino %d", raw.ino)
	}
	if hash64(raw.path, raw.isRaw) == hash64(exe.path, exe.isRaw) {
		t.Fatalf("hash64 collided for distinct (path, isRaw) identities")
	}
}

func TestForgetEvictsAtZero(t *testing.T) {
	tbl := newTable()
	n := tbl.intern("bin/vim", false)
	ino := n.ino

	tbl.intern("bin/vim", false) // refcount now 2

	tbl.forget(ino, 1)
	if tbl.get(ino) == nil {
		t.Fatalf("inode evicted before refcount reached zero")
	}

	tbl.forget(ino, 1)
	if tbl.get(ino) != nil {
		t.Fatalf("inode not evicted once refcount reached zero")
	}
}

func TestForgetReinternAfterEviction(t *testing.T) {
	tbl := newTable()
	first := tbl.intern("bin/vim", false)
	tbl.forget(first.ino, 1)

	second := tbl.intern("bin/vim", false)
	if second == first {
		t.Fatalf("intern reused an evicted inode struct")
	}
	if second.refcount.Load() != 1 {
		t.Fatalf("refcount = %d, want 1 for freshly interned inode", second.refcount.Load())
	}
}

func TestForgetIgnoresRoot(t *testing.T) {
	tbl := newTable()
	tbl.forget(rootIno, 1)
	if tbl.get(rootIno) == nil {
		t.Fatalf("forget must never evict the root inode")
	}
}

func TestForgetMultiBatch(t *testing.T) {
	tbl := newTable()
	a := tbl.intern("a", false)
	b := tbl.intern("b", true)

	tbl.forgetMulti([]forgetOne{
		{ino: a.ino, nlookup: 1},
		{ino: b.ino, nlookup: 1},
	})

	if tbl.get(a.ino) != nil || tbl.get(b.ino) != nil {
		t.Fatalf("forgetMulti did not evict all entries")
	}
}

func TestGetUnknownIno(t *testing.T) {
	tbl := newTable()
	if tbl.get(999) != nil {
		t.Fatalf("get on unknown ino should return nil")
	}
}
