// Package disk holds the per-disk catalog of tracked entries together with
// the extent index placing their blocks in parity space.
package disk

import (
	"iter"
	"slices"
	"strings"

	"github.com/bamsammich/snapcore/internal/elem"
	"github.com/bamsammich/snapcore/internal/extent"
)

// Disk is one data volume protected by the parity. Like the extent index it
// owns, a Disk is meant to be driven by a single goroutine.
type Disk struct {
	Name   string
	Dir    string // mount point, ends with "/" unless empty
	Device uint64

	TotalBlocks    uint32
	FreeBlocks     uint32
	FirstFreeBlock uint32 // hint for the next allocation search
	MappingIdx     int    // slot in the parity layout, -1 if unmapped

	HasVolatileInodes     bool
	HasUnreliablePhysical bool

	files   []*elem.File
	deleted []*elem.File
	byInode map[uint64]*elem.File
	byPath  map[string]*elem.File

	links      []*elem.Link
	linkByPath map[string]*elem.Link

	dirs      []*elem.Dir
	dirByPath map[string]*elem.Dir

	index *extent.Index
}

// New creates an empty disk mounted at dir.
func New(name, dir string, device uint64) *Disk {
	dir = strings.ReplaceAll(dir, "\\", "/")
	if dir != "" && !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return &Disk{
		Name:       name,
		Dir:        dir,
		Device:     device,
		MappingIdx: -1,
		byInode:    make(map[uint64]*elem.File),
		byPath:     make(map[string]*elem.File),
		linkByPath: make(map[string]*elem.Link),
		dirByPath:  make(map[string]*elem.Dir),
		index:      extent.New(name),
	}
}

// AddFile starts tracking f. Its blocks have no parity position until
// Allocate is called for each of them.
func (d *Disk) AddFile(f *elem.File) {
	d.files = append(d.files, f)
	d.byInode[f.Inode] = f
	d.byPath[f.Sub] = f
}

// RemoveFile stops tracking f as a live file and keeps it in the deleted
// list until its blocks are released.
func (d *Disk) RemoveFile(f *elem.File) {
	i := slices.Index(d.files, f)
	if i < 0 {
		return
	}
	d.files = slices.Delete(d.files, i, i+1)
	if d.byInode[f.Inode] == f {
		delete(d.byInode, f.Inode)
	}
	if d.byPath[f.Sub] == f {
		delete(d.byPath, f.Sub)
	}
	d.deleted = append(d.deleted, f)
}

// Forget drops a deleted file once none of its blocks is allocated anymore.
func (d *Disk) Forget(f *elem.File) {
	if i := slices.Index(d.deleted, f); i >= 0 {
		d.deleted = slices.Delete(d.deleted, i, i+1)
	}
}

// FileByPath looks up a live file.
func (d *Disk) FileByPath(sub string) (*elem.File, bool) {
	f, ok := d.byPath[sub]
	return f, ok
}

// FileByInode looks up a live file.
func (d *Disk) FileByInode(inode uint64) (*elem.File, bool) {
	f, ok := d.byInode[inode]
	return f, ok
}

// Files yields the live files in insertion order.
func (d *Disk) Files() iter.Seq[*elem.File] {
	return slices.Values(d.files)
}

// Deleted yields removed files still holding parity blocks.
func (d *Disk) Deleted() iter.Seq[*elem.File] {
	return slices.Values(d.deleted)
}

// FileCount returns the number of live files.
func (d *Disk) FileCount() int {
	return len(d.files)
}

// AddLink starts tracking l.
func (d *Disk) AddLink(l *elem.Link) {
	d.links = append(d.links, l)
	d.linkByPath[l.Sub] = l
}

// LinkByPath looks up a link.
func (d *Disk) LinkByPath(sub string) (*elem.Link, bool) {
	l, ok := d.linkByPath[sub]
	return l, ok
}

// Links yields the tracked links.
func (d *Disk) Links() iter.Seq[*elem.Link] {
	return slices.Values(d.links)
}

// AddDir starts tracking an empty directory.
func (d *Disk) AddDir(dir *elem.Dir) {
	d.dirs = append(d.dirs, dir)
	d.dirByPath[dir.Sub] = dir
}

// DirByPath looks up a directory.
func (d *Disk) DirByPath(sub string) (*elem.Dir, bool) {
	dir, ok := d.dirByPath[sub]
	return dir, ok
}

// Dirs yields the tracked empty directories.
func (d *Disk) Dirs() iter.Seq[*elem.Dir] {
	return slices.Values(d.dirs)
}

// Allocate places block filePos of f at parityPos.
func (d *Disk) Allocate(parityPos uint32, f *elem.File, filePos uint32) error {
	return d.index.Allocate(parityPos, f, filePos)
}

// Deallocate releases parityPos.
func (d *Disk) Deallocate(parityPos uint32) error {
	return d.index.Deallocate(parityPos)
}

// ParityToFile resolves a parity position; ok is false on a hole.
func (d *Disk) ParityToFile(parityPos uint32) (*elem.File, uint32, bool) {
	return d.index.ParityToFile(parityPos)
}

// FileToParity resolves a file block.
func (d *Disk) FileToParity(f *elem.File, filePos uint32) (uint32, error) {
	return d.index.FileToParity(f, filePos)
}

// BlockAt returns the block metadata stored at parityPos, or false on a hole.
func (d *Disk) BlockAt(parityPos uint32) (*elem.Block, bool) {
	f, pos, ok := d.index.ParityToFile(parityPos)
	if !ok {
		return nil, false
	}
	return &f.Blocks[pos], true
}

// Extents exposes the index for diagnostics.
func (d *Disk) Extents() *extent.Index {
	return d.index
}

// IsEmpty reports whether the disk tracks nothing: no files, links or
// directories, and no block allocated below maxParityPos.
func (d *Disk) IsEmpty(maxParityPos uint32) bool {
	if len(d.files) != 0 || len(d.links) != 0 || len(d.dirs) != 0 {
		return false
	}
	return !d.index.HasBelow(maxParityPos)
}

// Size returns the number of parity blocks used by the disk.
func (d *Disk) Size() uint32 {
	return d.index.Size()
}
