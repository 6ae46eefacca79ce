package extent

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/snapcore/internal/elem"
)

const testBlockSize = 1024

func newFile(t *testing.T, sub string, blocks int) *elem.File {
	t.Helper()
	return elem.NewFile(testBlockSize, sub, int64(blocks)*testBlockSize, 1, 0, uint64(len(sub)), 0)
}

func collect(ix *Index) []Chunk {
	var out []Chunk
	for c := range ix.Chunks() {
		out = append(out, c)
	}
	return out
}

func TestSequentialAllocationMergesIntoOneChunk(t *testing.T) {
	ix := New("d1")
	f := newFile(t, "a.bin", 8)

	for i := range uint32(8) {
		require.NoError(t, ix.Allocate(100+i, f, i))
	}

	chunks := collect(ix)
	require.Len(t, chunks, 1)
	assert.Equal(t, uint32(100), chunks[0].ParityPos)
	assert.Equal(t, uint32(0), chunks[0].FilePos)
	assert.Equal(t, uint32(8), chunks[0].Count)
	assert.Equal(t, uint32(108), ix.Size())
}

func TestRoundTrip(t *testing.T) {
	ix := New("d1")
	a := newFile(t, "a", 5)
	b := newFile(t, "bb", 3)

	// Interleave two files so neither can merge across the other.
	want := map[uint32]struct {
		f   *elem.File
		pos uint32
	}{}
	parity := uint32(0)
	var ai, bi uint32
	for ai < a.BlockMax || bi < b.BlockMax {
		if ai < a.BlockMax {
			require.NoError(t, ix.Allocate(parity, a, ai))
			want[parity] = struct {
				f   *elem.File
				pos uint32
			}{a, ai}
			parity++
			ai++
		}
		if bi < b.BlockMax {
			require.NoError(t, ix.Allocate(parity, b, bi))
			want[parity] = struct {
				f   *elem.File
				pos uint32
			}{b, bi}
			parity++
			bi++
		}
	}

	for p, w := range want {
		f, pos, ok := ix.ParityToFile(p)
		require.True(t, ok)
		assert.Same(t, w.f, f)
		assert.Equal(t, w.pos, pos)

		got, err := ix.FileToParity(w.f, w.pos)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	assert.Equal(t, 7, ix.Len())
}

func TestHoleIsUnallocated(t *testing.T) {
	ix := New("d1")
	f := newFile(t, "a", 4)

	require.NoError(t, ix.Allocate(0, f, 0))
	require.NoError(t, ix.Allocate(1, f, 1))
	require.NoError(t, ix.Allocate(5, f, 2))
	require.NoError(t, ix.Allocate(6, f, 3))

	assert.Equal(t, 2, ix.Len())
	for p := uint32(2); p < 5; p++ {
		_, _, ok := ix.ParityToFile(p)
		assert.False(t, ok, "parity %d", p)
	}
	assert.Equal(t, uint32(7), ix.Size())
}

func TestDeallocateSingleton(t *testing.T) {
	ix := New("d1")
	f := newFile(t, "a", 1)

	require.NoError(t, ix.Allocate(42, f, 0))
	assert.True(t, ix.HasBelow(43))

	require.NoError(t, ix.Deallocate(42))

	_, _, ok := ix.ParityToFile(42)
	assert.False(t, ok)
	assert.Equal(t, 0, ix.Len())
	assert.Equal(t, uint32(0), ix.Size())
	assert.False(t, ix.HasBelow(1000))

	_, err := ix.FileToParity(f, 0)
	require.ErrorIs(t, err, elem.ErrInconsistency)
}

func TestDeallocateShrinksFromBothEnds(t *testing.T) {
	ix := New("d1")
	f := newFile(t, "a", 5)
	for i := range uint32(5) {
		require.NoError(t, ix.Allocate(10+i, f, i))
	}

	// Warm the cache on the chunk, then shrink it from the front.
	_, _, ok := ix.ParityToFile(12)
	require.True(t, ok)
	require.NoError(t, ix.Deallocate(10))

	chunks := collect(ix)
	require.Len(t, chunks, 1)
	assert.Equal(t, Chunk{ParityPos: 11, File: f, FilePos: 1, Count: 4}, chunks[0])

	require.NoError(t, ix.Deallocate(14))
	chunks = collect(ix)
	require.Len(t, chunks, 1)
	assert.Equal(t, uint32(3), chunks[0].Count)

	_, _, ok = ix.ParityToFile(10)
	assert.False(t, ok)
	_, _, ok = ix.ParityToFile(14)
	assert.False(t, ok)

	_, pos, ok := ix.ParityToFile(13)
	require.True(t, ok)
	assert.Equal(t, uint32(3), pos)
}

func TestDeallocateInteriorIsFatal(t *testing.T) {
	ix := New("d1")
	f := newFile(t, "a", 3)
	for i := range uint32(3) {
		require.NoError(t, ix.Allocate(i, f, i))
	}

	err := ix.Deallocate(1)
	require.ErrorIs(t, err, elem.ErrInconsistency)
	assert.True(t, elem.IsFatal(err))
	assert.Contains(t, err.Error(), "middle")
}

func TestDeallocateUnallocatedIsFatal(t *testing.T) {
	ix := New("d1")
	err := ix.Deallocate(7)
	require.ErrorIs(t, err, elem.ErrInconsistency)

	var ie *elem.InconsistencyError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "d1", ie.Disk)
	assert.Equal(t, "deallocate", ie.Op)
}

func TestAllocateTwiceIsFatal(t *testing.T) {
	ix := New("d1")
	a := newFile(t, "a", 2)
	b := newFile(t, "b", 2)

	require.NoError(t, ix.Allocate(3, a, 0))
	require.ErrorIs(t, ix.Allocate(3, b, 0), elem.ErrInconsistency)
	require.ErrorIs(t, ix.Allocate(9, a, 0), elem.ErrInconsistency)
}

func TestAllocateTopOfRangeIsFatal(t *testing.T) {
	ix := New("d1")
	a := newFile(t, "a", 2)
	b := newFile(t, "b", 2)

	require.ErrorIs(t, ix.Allocate(math.MaxUint32, a, 0), elem.ErrInconsistency)
	require.ErrorIs(t, ix.Allocate(math.MaxUint32, b, 0), elem.ErrInconsistency)
	assert.Zero(t, ix.Len())
	assert.Zero(t, ix.byFile.Len())

	// The position just below is the last usable one, and it cannot be
	// extended past the end of the range.
	require.NoError(t, ix.Allocate(math.MaxUint32-1, a, 0))
	require.ErrorIs(t, ix.Allocate(math.MaxUint32, a, 1), elem.ErrInconsistency)
	assert.Equal(t, uint32(math.MaxUint32), ix.Size())

	f, pos, ok := ix.ParityToFile(math.MaxUint32 - 1)
	require.True(t, ok)
	assert.Same(t, a, f)
	assert.Zero(t, pos)
	assert.Equal(t, ix.byParity.Len(), ix.byFile.Len())
}

func TestFileGapStartsNewChunk(t *testing.T) {
	ix := New("d1")
	f := newFile(t, "a", 4)
	require.NoError(t, ix.Allocate(0, f, 0))
	require.NoError(t, ix.Allocate(1, f, 1))

	// Parity 2 follows the chunk, file block 3 does not follow file block 1.
	require.NoError(t, ix.Allocate(5, f, 3))
	assert.Equal(t, 2, ix.Len())
}

func TestExtendAfterFrontShrink(t *testing.T) {
	ix := New("d1")
	f := newFile(t, "a", 4)
	require.NoError(t, ix.Allocate(0, f, 0))
	require.NoError(t, ix.Allocate(1, f, 1))
	require.NoError(t, ix.Deallocate(0))

	// The chunk now covers file block 1 at parity 1; file block 2 at parity 2
	// extends it normally.
	require.NoError(t, ix.Allocate(2, f, 2))
	chunks := collect(ix)
	require.Len(t, chunks, 1)
	assert.Equal(t, Chunk{ParityPos: 1, File: f, FilePos: 1, Count: 2}, chunks[0])
}

func TestNonMonotonicExtensionIsFatal(t *testing.T) {
	ix := New("d1")
	f := newFile(t, "a", 6)
	for i := range uint32(4) {
		require.NoError(t, ix.Allocate(i, f, i))
	}

	// File block 1 lives in a chunk ending at parity 4, but file block 2 is
	// not the block after the chunk end.
	err := ix.Allocate(4, f, 2)
	require.ErrorIs(t, err, elem.ErrInconsistency)
	assert.Contains(t, err.Error(), "extending")
}

func TestFileChunks(t *testing.T) {
	ix := New("d1")
	a := newFile(t, "a", 4)
	b := newFile(t, "b", 2)
	require.NoError(t, ix.Allocate(0, a, 0))
	require.NoError(t, ix.Allocate(1, a, 1))
	require.NoError(t, ix.Allocate(2, b, 0))
	require.NoError(t, ix.Allocate(3, b, 1))
	require.NoError(t, ix.Allocate(8, a, 2))
	require.NoError(t, ix.Allocate(9, a, 3))

	var got []Chunk
	for c := range ix.FileChunks(a) {
		got = append(got, c)
	}
	require.Len(t, got, 2)
	assert.Equal(t, uint32(0), got[0].FilePos)
	assert.Equal(t, uint32(2), got[1].FilePos)
	assert.Equal(t, uint32(8), got[1].ParityPos)
}

// TestRandomLayoutInvariants allocates many files into a shuffled parity
// layout and checks round trips and that no two chunks overlap.
func TestRandomLayoutInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ix := New("d1")

	const total = 2000
	slots := rng.Perm(total)

	var files []*elem.File
	next := 0
	for next < total {
		n := 1 + rng.Intn(40)
		if next+n > total {
			n = total - next
		}
		f := newFile(t, "f", n)
		files = append(files, f)

		// Runs of consecutive parity positions mixed with random ones.
		base := slots[next]
		for i := range n {
			p := uint32(total + base*64 + i)
			if rng.Intn(4) == 0 {
				p = uint32(slots[next+i])
			}
			require.NoError(t, ix.Allocate(p, f, uint32(i)))
		}
		next += n
	}

	for _, f := range files {
		for i := range f.BlockMax {
			p, err := ix.FileToParity(f, i)
			require.NoError(t, err)
			gf, gi, ok := ix.ParityToFile(p)
			require.True(t, ok)
			assert.Same(t, f, gf)
			assert.Equal(t, i, gi)
		}
	}

	chunks := collect(ix)
	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i-1].ParityPos+chunks[i-1].Count, chunks[i].ParityPos)
	}
	for _, f := range files {
		var prevEnd uint32
		first := true
		for c := range ix.FileChunks(f) {
			if !first {
				assert.LessOrEqual(t, prevEnd, c.FilePos)
			}
			prevEnd = c.FilePos + c.Count
			first = false
		}
	}
}
