// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package envfs implements the FUSE filesystem projected into a
// container's namespace: a read-only tree with two top-level views,
// "raw" (the container's root, unchanged) and "exe" (the same tree,
// with executable regular files replaced by the host trampoline
// binary so the host can run them in the container's namespaces).
//
// This package speaks go-fuse's low-level fuse.RawFileSystem
// interface rather than its higher-level node API: the inode
// identity this filesystem hands out is a (path, view) pair held in
// a hand-rolled, reference-counted table (inode.go), matching the
// resource profile of the reference C implementation this package
// replaces — one struct per distinct (path, view) the kernel has ever
// looked up, not one open file descriptor per cached dentry.
package envfs

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"
)

const (
	entryTimeout    = time.Second
	attrTimeout     = time.Second
	negativeTimeout = 100 * time.Millisecond
)

// FileSystem implements fuse.RawFileSystem over a single container's
// source tree. The mutating half of the interface (Mkdir, Unlink,
// Rename, Write, ...) is inherited, unmodified, from
// fuse.NewDefaultRawFileSystem, which reports ENOSYS for all of it:
// every view this filesystem exposes is read-only.
type FileSystem struct {
	fuse.RawFileSystem

	source *source
	inodes *table
	dirs   *dirTable
	log    *slog.Logger
}

// New builds a FileSystem rooted at src, logging through logger (or
// slog.Default if nil).
func New(src *source, logger *slog.Logger) *FileSystem {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSystem{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		source:        src,
		inodes:        newTable(),
		dirs:          newDirTable(),
		log:           logger,
	}
}

func (fs *FileSystem) String() string { return "envfs" }

func (fs *FileSystem) get(ino uint64) *inode {
	return fs.inodes.get(ino)
}

// Lookup resolves name under parent. The root inode's two children,
// "raw" and "exe", are synthesized; every other lookup is a
// stat-and-possibly-rewrite of a path in the source tree.
func (fs *FileSystem) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	parent := fs.get(header.NodeId)
	if parent == nil {
		return fuse.ENOENT
	}

	if parent.typ == inodeRoot {
		return fs.lookupRoot(name, out)
	}
	return fs.lookupOther(parent, name, out)
}

func (fs *FileSystem) lookupRoot(name string, out *fuse.EntryOut) fuse.Status {
	var isRaw bool
	switch name {
	case "raw":
		isRaw = true
	case "exe":
		isRaw = false
	default:
		return fuse.ENOENT
	}

	st, err := fs.source.stat("")
	if err != nil {
		return fuse.ToStatus(err)
	}

	n := fs.inodes.intern("", isRaw)
	fillAttrFromStat(&out.Attr, &st)
	out.Attr.Mode = maskWriteBits(out.Attr.Mode)
	out.NodeId = n.ino
	out.Generation = 1
	out.SetEntryTimeout(entryTimeout)
	out.SetAttrTimeout(attrTimeout)
	return fuse.OK
}

func (fs *FileSystem) lookupOther(parent *inode, name string, out *fuse.EntryOut) fuse.Status {
	path := childPath(parent.path, name)

	st, err := fs.source.stat(path)
	if err != nil {
		return fuse.ToStatus(err)
	}

	if needsTrampolineRewrite(parent.isRaw, st.Mode&unix.S_IFMT == unix.S_IFREG, uint32(st.Mode&0o7777)) {
		path = fs.source.runTrampolinePath
		st, err = fs.source.stat(path)
		if err != nil {
			return fuse.ToStatus(err)
		}
	}

	n := fs.inodes.intern(path, parent.isRaw)
	fillAttrFromStat(&out.Attr, &st)
	out.Attr.Mode = maskWriteBits(out.Attr.Mode)
	out.NodeId = n.ino
	out.SetEntryTimeout(entryTimeout)
	out.SetAttrTimeout(attrTimeout)
	return fuse.OK
}

// Forget drops nlookup references from ino, as described in inode.go.
func (fs *FileSystem) Forget(nodeid, nlookup uint64) {
	fs.inodes.forget(nodeid, nlookup)
}

// GetAttr reports attributes for ino, applying the same
// stat-and-possibly-rewrite rule as Lookup.
func (fs *FileSystem) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	n := fs.get(input.NodeId)
	if n == nil {
		return fuse.ENOENT
	}

	st, status := fs.statInode(n)
	if status != fuse.OK {
		return status
	}
	fillAttrFromStat(&out.Attr, &st)
	out.Attr.Mode = maskWriteBits(out.Attr.Mode)
	out.SetTimeout(attrTimeout)
	return fuse.OK
}

// statInode applies the root-synthesis / trampoline-rewrite rule used
// by both Lookup and GetAttr to an already-resolved inode.
func (fs *FileSystem) statInode(n *inode) (unix.Stat_t, fuse.Status) {
	if n.typ == inodeRoot {
		return synthesizeRootStat(), fuse.OK
	}

	st, err := fs.source.stat(n.path)
	if err != nil {
		return st, fuse.ToStatus(err)
	}

	if needsTrampolineRewrite(n.isRaw, st.Mode&unix.S_IFMT == unix.S_IFREG, uint32(st.Mode&0o7777)) {
		st, err = fs.source.stat(fs.source.runTrampolinePath)
		if err != nil {
			return st, fuse.ToStatus(err)
		}
	}
	return st, fuse.OK
}

// Readlink reads the symlink target of ino.
func (fs *FileSystem) Readlink(cancel <-chan struct{}, header *fuse.InHeader) ([]byte, fuse.Status) {
	n := fs.get(header.NodeId)
	if n == nil {
		return nil, fuse.ENOENT
	}
	if n.typ == inodeRoot {
		return nil, fuse.Status(unix.EINVAL)
	}

	target, err := fs.source.readlink(n.path)
	if err != nil {
		return nil, fuse.ToStatus(err)
	}
	return []byte(target), fuse.OK
}

// Open opens ino for reading. Write access is always refused; opening
// the mount root is refused with EISDIR. Every other inode is opened
// on the source tree with the caller's flags.
func (fs *FileSystem) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	n := fs.get(input.NodeId)
	if n == nil {
		return fuse.ENOENT
	}
	if input.Flags&(unix.O_WRONLY|unix.O_RDWR) != 0 {
		return fuse.EACCES
	}
	if n.typ != inodeOther {
		return fuse.Status(unix.EISDIR)
	}

	fd, err := fs.source.open(n.path, int(input.Flags))
	if err != nil {
		return fuse.ToStatus(err)
	}
	out.Fh = uint64(fd)
	return fuse.OK
}

// Read splices data directly from the opened file descriptor, mirroring
// the zero-copy FUSE_BUF_IS_FD path the reference implementation uses;
// go-fuse performs the splice itself when the returned ReadResult wraps
// a file descriptor.
func (fs *FileSystem) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	return fuse.ReadResultFd(uintptr(input.Fh), int64(input.Offset), int(input.Size)), fuse.OK
}

// Release closes the descriptor opened by Open.
func (fs *FileSystem) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	unix.Close(int(input.Fh))
}

// OpenDir opens ino for directory iteration. The root's entries are
// synthesized ("exe", "raw"); every other directory is a real
// directory in the source tree, listed in full up front.
func (fs *FileSystem) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	n := fs.get(input.NodeId)
	if n == nil {
		return fuse.ENOENT
	}

	state := &dirState{typ: n.typ}
	if n.typ == inodeRoot {
		state.entries = rootEntries()
	} else {
		f, err := fs.source.openDir(n.path)
		if err != nil {
			return fuse.ToStatus(err)
		}
		entries, err := listSourceDir(f)
		if err != nil {
			f.Close()
			return fuse.ToStatus(err)
		}
		state.file = f
		state.entries = entries
	}

	out.Fh = fs.dirs.register(state)
	return fuse.OK
}

// ReadDir lists ino's entries starting at input.Offset.
func (fs *FileSystem) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	state := fs.dirs.get(input.Fh)
	if state == nil {
		return fuse.Status(unix.EBADF)
	}
	return fillDirEntries(out, state.entries, input.Offset)
}

// ReleaseDir closes the directory descriptor opened by OpenDir.
func (fs *FileSystem) ReleaseDir(input *fuse.ReleaseIn) {
	state := fs.dirs.remove(input.Fh)
	if state != nil && state.file != nil {
		state.file.Close()
	}
}

// GetXAttr returns the named extended attribute. The root has none.
func (fs *FileSystem) GetXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string, dest []byte) (uint32, fuse.Status) {
	n := fs.get(header.NodeId)
	if n == nil {
		return 0, fuse.ENOENT
	}
	if n.typ == inodeRoot {
		return 0, fuse.Status(unix.ENODATA)
	}
	size, err := fs.source.getxattr(n.path, attr, dest)
	if err != nil {
		return 0, fuse.ToStatus(err)
	}
	return uint32(size), fuse.OK
}

// ListXAttr lists the extended attribute names set on ino.
func (fs *FileSystem) ListXAttr(cancel <-chan struct{}, header *fuse.InHeader, dest []byte) (uint32, fuse.Status) {
	n := fs.get(header.NodeId)
	if n == nil {
		return 0, fuse.ENOENT
	}
	if n.typ == inodeRoot {
		return 0, fuse.OK
	}
	size, err := fs.source.listxattr(n.path, dest)
	if err != nil {
		return 0, fuse.ToStatus(err)
	}
	return uint32(size), fuse.OK
}

// Access checks ino against mask. Write access is never granted.
func (fs *FileSystem) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	if input.Mask&unix.W_OK != 0 {
		return fuse.EACCES
	}

	n := fs.get(input.NodeId)
	if n == nil {
		return fuse.ENOENT
	}
	if n.typ == inodeRoot {
		return fuse.OK
	}

	if err := fs.source.access(n.path, input.Mask); err != nil {
		return fuse.ToStatus(err)
	}
	return fuse.OK
}

// Init is called once the FUSE session is established.
func (fs *FileSystem) Init(server *fuse.Server) {}

var _ io.Closer = (*FileSystem)(nil)

// Close releases the source root descriptor.
func (fs *FileSystem) Close() error {
	return fs.source.Close()
}

// synthesizeRootStat builds the fixed attributes for the mount's own
// root inode (ino 1): a directory owned by the caller, with the two
// synthesized top-level entries "raw" and "exe" as its only children,
// rather than the real attributes of the container root fs.source
// wraps.
func synthesizeRootStat() unix.Stat_t {
	var st unix.Stat_t
	st.Ino = rootIno
	st.Mode = unix.S_IFDIR | 0o755
	st.Nlink = 4 // ".", "..", "raw", "exe"
	st.Uid = uint32(os.Getuid())
	st.Gid = uint32(os.Getgid())
	return st
}

func fillAttrFromStat(attr *fuse.Attr, st *unix.Stat_t) {
	attr.Ino = uint64(st.Ino)
	attr.Size = uint64(st.Size)
	attr.Blocks = uint64(st.Blocks)
	attr.Atime = uint64(st.Atim.Sec)
	attr.Atimensec = uint32(st.Atim.Nsec)
	attr.Mtime = uint64(st.Mtim.Sec)
	attr.Mtimensec = uint32(st.Mtim.Nsec)
	attr.Ctime = uint64(st.Ctim.Sec)
	attr.Ctimensec = uint32(st.Ctim.Nsec)
	attr.Mode = st.Mode
	attr.Nlink = uint32(st.Nlink)
	attr.Owner.Uid = st.Uid
	attr.Owner.Gid = st.Gid
	attr.Rdev = uint32(st.Rdev)
	attr.Blksize = uint32(st.Blksize)
}
