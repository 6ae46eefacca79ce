package elem

import (
	"cmp"
	"strings"
	"sync/atomic"
)

// FileFlag is a bitset of coarse per-file markers.
type FileFlag uint32

const (
	// FileIsCopy marks a file whose hashes were copied from another file
	// with the same stamp, so its parity still needs to be computed.
	FileIsCopy FileFlag = 1 << iota
	// FileIsExcluded marks a file left out by the current filter set.
	FileIsExcluded
)

var nextFileID atomic.Uint64

// File is a regular file tracked on one disk.
type File struct {
	Sub       string // path relative to the disk root, slash separated
	Size      int64
	MtimeSec  int64
	MtimeNsec int32
	Inode     uint64
	Physical  uint64 // physical ordering hint; zero if unknown
	BlockMax  uint32
	Blocks    []Block
	Flag      FileFlag

	id uint64
}

// NewFile creates a file record with BlockMax blocks, all marked changed
// and without a hash.
func NewFile(blockSize uint32, sub string, size int64, mtimeSec int64, mtimeNsec int32, inode, physical uint64) *File {
	blockMax := uint32((size + int64(blockSize) - 1) / int64(blockSize))

	f := &File{
		Sub:       sub,
		Size:      size,
		MtimeSec:  mtimeSec,
		MtimeNsec: mtimeNsec,
		Inode:     inode,
		Physical:  physical,
		BlockMax:  blockMax,
		Blocks:    make([]Block, blockMax),
		id:        nextFileID.Add(1),
	}
	for i := range f.Blocks {
		f.Blocks[i] = Block{State: BlockStateChg, Hash: HashInvalid}
	}
	return f
}

// Dup returns a deep copy of f with its own identity.
func (f *File) Dup() *File {
	d := *f
	d.Blocks = make([]Block, len(f.Blocks))
	copy(d.Blocks, f.Blocks)
	d.id = nextFileID.Add(1)
	return &d
}

// ID is a process-unique identity used to order files inside the extent index.
func (f *File) ID() uint64 {
	return f.id
}

// Rename changes the path of the file.
func (f *File) Rename(sub string) {
	f.Sub = sub
}

// HasFlag reports whether all bits of flag are set.
func (f *File) HasFlag(flag FileFlag) bool {
	return f.Flag&flag == flag
}

// SetFlag sets the bits of flag.
func (f *File) SetFlag(flag FileFlag) {
	f.Flag |= flag
}

// ClearFlag clears the bits of flag.
func (f *File) ClearFlag(flag FileFlag) {
	f.Flag &^= flag
}

// Name returns the last component of the file path.
func (f *File) Name() string {
	if i := strings.LastIndexByte(f.Sub, '/'); i >= 0 {
		return f.Sub[i+1:]
	}
	return f.Sub
}

// BlockBytes returns the number of file bytes stored in block pos.
// Only the last block can be shorter than blockSize.
func (f *File) BlockBytes(pos uint32, blockSize uint32) uint32 {
	if pos+1 == f.BlockMax {
		if f.Size == 0 {
			return 0
		}
		rem := uint32(f.Size % int64(blockSize))
		if rem == 0 {
			rem = blockSize
		}
		return rem
	}
	return blockSize
}

// IsLastBlock reports whether pos is the last block of the file. Position 0
// of an empty file counts as last.
func (f *File) IsLastBlock(pos uint32) (bool, error) {
	if pos == 0 && f.BlockMax == 0 {
		return true, nil
	}
	if pos >= f.BlockMax {
		return false, Inconsistent("", "file block position", "block %d beyond %d blocks of '%s'", pos, f.BlockMax, f.Sub)
	}
	return pos == f.BlockMax-1, nil
}

// CopyFile transfers the hashes of src into dst. Both must carry the same
// stamp; the copied blocks are marked as needing parity.
func CopyFile(src, dst *File) error {
	switch {
	case src.Size != dst.Size:
		return Inconsistent("", "copy file", "different size")
	case src.MtimeSec != dst.MtimeSec:
		return Inconsistent("", "copy file", "different mtime_sec")
	case src.MtimeNsec != dst.MtimeNsec:
		return Inconsistent("", "copy file", "different mtime_nsec")
	}

	for i := range dst.Blocks {
		dst.Blocks[i].State = BlockStateRep
		dst.Blocks[i].Hash = src.Blocks[i].Hash
	}
	dst.SetFlag(FileIsCopy)
	return nil
}

// CompareInode orders files by inode.
func CompareInode(a, b *File) int {
	return cmp.Compare(a.Inode, b.Inode)
}

// ComparePath orders files by path.
func ComparePath(a, b *File) int {
	return strings.Compare(a.Sub, b.Sub)
}

// ComparePhysical orders files by physical offset hint.
func ComparePhysical(a, b *File) int {
	return cmp.Compare(a.Physical, b.Physical)
}

// CompareName orders files by their last path component.
func CompareName(a, b *File) int {
	return strings.Compare(a.Name(), b.Name())
}

// CompareStamp orders files by size, then modification time.
func CompareStamp(a, b *File) int {
	if c := cmp.Compare(a.Size, b.Size); c != 0 {
		return c
	}
	if c := cmp.Compare(a.MtimeSec, b.MtimeSec); c != 0 {
		return c
	}
	return cmp.Compare(a.MtimeNsec, b.MtimeNsec)
}

// CompareNameStamp orders by name and breaks ties by stamp.
func CompareNameStamp(a, b *File) int {
	if c := CompareName(a, b); c != 0 {
		return c
	}
	return CompareStamp(a, b)
}

// ComparePathStamp orders by path and breaks ties by stamp.
func ComparePathStamp(a, b *File) int {
	if c := ComparePath(a, b); c != 0 {
		return c
	}
	return CompareStamp(a, b)
}
