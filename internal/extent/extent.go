// Package extent maps file blocks to positions of the parity address space
// of one disk and back.
//
// Chunks are kept in two B-trees, one ordered by parity position and one by
// (file, file position). Both trees hold the same *Chunk and every change is
// applied to the shared value, so the orderings never diverge. A single-slot
// cache of the last chunk touched makes sequential walks constant time.
//
// An Index is not safe for concurrent use. Lookups update the cache, so even
// read-only queries must be serialized with Allocate and Deallocate.
package extent

import (
	"iter"
	"math"

	"github.com/google/btree"

	"github.com/bamsammich/snapcore/internal/elem"
)

const treeDegree = 32

// Chunk is a run of blocks contiguous both in parity space and in the file
// space of a single file.
type Chunk struct {
	ParityPos uint32
	File      *elem.File
	FilePos   uint32
	Count     uint32
}

func (c *Chunk) parityEnd() uint32 {
	return c.ParityPos + c.Count
}

func (c *Chunk) fileEnd() uint32 {
	return c.FilePos + c.Count
}

func (c *Chunk) coversParity(pos uint32) bool {
	return pos >= c.ParityPos && pos < c.parityEnd()
}

func (c *Chunk) coversFile(file *elem.File, pos uint32) bool {
	return c.File == file && pos >= c.FilePos && pos < c.fileEnd()
}

func lessParity(a, b *Chunk) bool {
	return a.ParityPos < b.ParityPos
}

func lessFile(a, b *Chunk) bool {
	if a.File.ID() != b.File.ID() {
		return a.File.ID() < b.File.ID()
	}
	return a.FilePos < b.FilePos
}

// Index is the extent index of one disk.
type Index struct {
	disk     string
	byParity *btree.BTreeG[*Chunk]
	byFile   *btree.BTreeG[*Chunk]
	last     *Chunk
}

// New creates an empty index. The disk name is only used in error reports.
func New(disk string) *Index {
	return &Index{
		disk:     disk,
		byParity: btree.NewG(treeDegree, lessParity),
		byFile:   btree.NewG(treeDegree, lessFile),
	}
}

// Len returns the number of chunks.
func (ix *Index) Len() int {
	return ix.byParity.Len()
}

// searchParity finds the chunk containing pos without touching the cache.
func (ix *Index) searchParity(pos uint32) *Chunk {
	var found *Chunk
	ix.byParity.DescendLessOrEqual(&Chunk{ParityPos: pos}, func(c *Chunk) bool {
		if pos < c.parityEnd() {
			found = c
		}
		return false
	})
	return found
}

// searchFile finds the chunk containing (file, pos) without touching the cache.
func (ix *Index) searchFile(file *elem.File, pos uint32) *Chunk {
	var found *Chunk
	ix.byFile.DescendLessOrEqual(&Chunk{File: file, FilePos: pos}, func(c *Chunk) bool {
		if c.coversFile(file, pos) {
			found = c
		}
		return false
	})
	return found
}

func (ix *Index) parityChunk(pos uint32) *Chunk {
	if ix.last != nil && ix.last.coversParity(pos) {
		return ix.last
	}
	c := ix.searchParity(pos)
	if c != nil {
		ix.last = c
	}
	return c
}

func (ix *Index) fileChunk(file *elem.File, pos uint32) *Chunk {
	if ix.last != nil && ix.last.coversFile(file, pos) {
		return ix.last
	}
	c := ix.searchFile(file, pos)
	if c != nil {
		ix.last = c
	}
	return c
}

// Allocate records that block filePos of file is stored at parityPos.
// Allocating the block right after the end of an existing chunk, at the
// parity position right after it, grows that chunk instead of creating a
// new one.
//
// The last position of the address space is never allocated so that every
// chunk end fits in a uint32.
func (ix *Index) Allocate(parityPos uint32, file *elem.File, filePos uint32) error {
	if parityPos == math.MaxUint32 {
		return elem.Inconsistent(ix.disk, "allocate", "parity block %d out of range", parityPos)
	}
	if c := ix.parityChunk(parityPos); c != nil {
		return elem.Inconsistent(ix.disk, "allocate", "parity block %d already used by '%s'", parityPos, c.File.Sub)
	}

	if filePos > 0 {
		c := ix.fileChunk(file, filePos-1)
		if c != nil && parityPos == c.parityEnd() {
			if filePos != c.fileEnd() {
				return elem.Inconsistent(ix.disk, "allocate", "extending a chunk of '%s' at file block %d", file.Sub, filePos)
			}
			if next := ix.searchFile(file, filePos); next != nil {
				return elem.Inconsistent(ix.disk, "allocate", "file block %d of '%s' already allocated", filePos, file.Sub)
			}
			c.Count++
			return nil
		}
	}

	if c := ix.searchFile(file, filePos); c != nil {
		return elem.Inconsistent(ix.disk, "allocate", "file block %d of '%s' already allocated", filePos, file.Sub)
	}

	c := &Chunk{ParityPos: parityPos, File: file, FilePos: filePos, Count: 1}
	ix.byParity.ReplaceOrInsert(c)
	ix.byFile.ReplaceOrInsert(c)
	ix.last = c
	return nil
}

// Deallocate releases parityPos. Only the first or the last block of a
// chunk can be released.
func (ix *Index) Deallocate(parityPos uint32) error {
	c := ix.parityChunk(parityPos)
	if c == nil {
		return elem.Inconsistent(ix.disk, "deallocate", "clearing a not existing block %d", parityPos)
	}

	switch {
	case c.Count == 1:
		ix.byParity.Delete(c)
		ix.byFile.Delete(c)
		ix.last = nil
	case parityPos == c.ParityPos:
		c.ParityPos++
		c.FilePos++
		c.Count--
	case parityPos == c.parityEnd()-1:
		c.Count--
	default:
		return elem.Inconsistent(ix.disk, "deallocate", "clearing block %d in the middle of a chunk", parityPos)
	}
	return nil
}

// ParityToFile resolves a parity position. ok is false for a position with
// no file block on it.
func (ix *Index) ParityToFile(parityPos uint32) (file *elem.File, filePos uint32, ok bool) {
	c := ix.parityChunk(parityPos)
	if c == nil {
		return nil, 0, false
	}
	return c.File, c.FilePos + (parityPos - c.ParityPos), true
}

// FileToParity resolves a file block. Every block of a tracked file must
// have a parity position, so a miss is an inconsistency.
func (ix *Index) FileToParity(file *elem.File, filePos uint32) (uint32, error) {
	c := ix.fileChunk(file, filePos)
	if c == nil {
		return 0, elem.Inconsistent(ix.disk, "file to parity", "block %d of '%s' without parity", filePos, file.Sub)
	}
	return c.ParityPos + (filePos - c.FilePos), nil
}

// Size returns the number of parity blocks spanned: the end of the highest
// chunk, or 0 when there are none.
func (ix *Index) Size() uint32 {
	c, ok := ix.byParity.Max()
	if !ok {
		return 0
	}
	return c.parityEnd()
}

// HasBelow reports whether any chunk starts before max.
func (ix *Index) HasBelow(max uint32) bool {
	c, ok := ix.byParity.Min()
	return ok && c.ParityPos < max
}

// Chunks yields copies of all chunks in parity order.
func (ix *Index) Chunks() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		ix.byParity.Ascend(func(c *Chunk) bool {
			return yield(*c)
		})
	}
}

// FileChunks yields copies of the chunks of file in file order.
func (ix *Index) FileChunks(file *elem.File) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		ix.byFile.AscendGreaterOrEqual(&Chunk{File: file}, func(c *Chunk) bool {
			if c.File != file {
				return false
			}
			return yield(*c)
		})
	}
}
