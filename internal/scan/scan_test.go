package scan

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/snapcore/internal/disk"
	"github.com/bamsammich/snapcore/internal/elem"
	"github.com/bamsammich/snapcore/internal/filter"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// buildTree lays out:
//
//	a.txt        10 bytes, 3 blocks of 4
//	b.tmp        excluded by name
//	content      control file
//	content.tmp  control file
//	dlink        symlink to sub/
//	empty/       empty directory
//	hl           hardlink to a.txt
//	link         symlink to a.txt
//	skip/x       inside an excluded directory
//	sub/c        4 bytes, 1 block
func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "a.txt", "0123456789")
	writeFile(t, root, "b.tmp", "tmp")
	writeFile(t, root, "content", "c")
	writeFile(t, root, "content.tmp", "c")
	writeFile(t, root, "skip/x", "x")
	writeFile(t, root, "sub/c", "abcd")
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))
	require.NoError(t, os.Link(filepath.Join(root, "a.txt"), filepath.Join(root, "hl")))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(root, "link")))
	require.NoError(t, os.Symlink("sub", filepath.Join(root, "dlink")))
	return root
}

func testOptions(t *testing.T, root string, logBuf *bytes.Buffer) Options {
	t.Helper()
	chain := filter.NewChain()
	require.NoError(t, chain.SetCaseInsensitive(false))
	require.NoError(t, chain.AddExclude("*.tmp"))
	require.NoError(t, chain.AddExclude("/skip/"))

	logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return Options{
		BlockSize: 4,
		Chain:     chain,
		Contents:  []*elem.Content{elem.NewContent(filepath.ToSlash(root)+"/content", 0)},
		Logger:    logger,
	}
}

func TestDisk_PopulatesCatalog(t *testing.T) {
	root := buildTree(t)
	var logBuf bytes.Buffer
	d := disk.New("d1", filepath.ToSlash(root), 0)

	res, err := Disk(context.Background(), d, testOptions(t, root, &logBuf))
	require.NoError(t, err)

	assert.Equal(t, Result{Files: 2, Links: 3, Dirs: 1, Skipped: 4, Blocks: 4}, res)
	assert.Equal(t, uint32(4), d.FirstFreeBlock)
	assert.Equal(t, uint32(4), d.Size())

	a, ok := d.FileByPath("a.txt")
	require.True(t, ok)
	assert.Equal(t, uint32(3), a.BlockMax)
	assert.NotZero(t, a.MtimeSec)

	c, ok := d.FileByPath("sub/c")
	require.True(t, ok)

	for pos, want := range []struct {
		file    *elem.File
		filePos uint32
	}{{a, 0}, {a, 1}, {a, 2}, {c, 0}} {
		f, fp, ok := d.ParityToFile(uint32(pos))
		require.True(t, ok, "parity %d", pos)
		assert.Same(t, want.file, f)
		assert.Equal(t, want.filePos, fp)
	}

	_, ok = d.FileByPath("b.tmp")
	assert.False(t, ok)
	_, ok = d.FileByPath("skip/x")
	assert.False(t, ok)
	_, ok = d.FileByPath("content")
	assert.False(t, ok)

	l, ok := d.LinkByPath("link")
	require.True(t, ok)
	assert.Equal(t, "a.txt", l.Target)
	assert.Equal(t, elem.LinkIsSymlink, l.Flag)

	dl, ok := d.LinkByPath("dlink")
	require.True(t, ok)
	assert.Equal(t, "sub", dl.Target)
	assert.Equal(t, elem.LinkIsSymdir, dl.Flag)
	_, ok = d.FileByPath("dlink/c")
	assert.False(t, ok, "directory symlinks are not followed")

	hl, ok := d.LinkByPath("hl")
	require.True(t, ok)
	assert.Equal(t, "a.txt", hl.Target)
	assert.Equal(t, elem.LinkIsHardlink, hl.Flag)

	_, ok = d.DirByPath("empty")
	assert.True(t, ok)

	assert.Contains(t, logBuf.String(), `rule="exclude *.tmp"`)
	assert.Contains(t, logBuf.String(), `rule="exclude /skip/"`)
}

func TestDisk_ContinuesFromFirstFreeBlock(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f", "12345")
	d := disk.New("d1", root, 0)
	d.FirstFreeBlock = 10

	res, err := Disk(context.Background(), d, Options{BlockSize: 4})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), res.Blocks)
	assert.Equal(t, uint32(12), d.FirstFreeBlock)
	assert.False(t, d.Extents().HasBelow(10))

	f, pos, ok := d.ParityToFile(11)
	require.True(t, ok)
	assert.Equal(t, "f", f.Sub)
	assert.Equal(t, uint32(1), pos)
}

func TestDisk_Hash(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f", "0123456789")
	writeFile(t, root, "zero", "")
	d := disk.New("d1", root, 0)

	res, err := Disk(context.Background(), d, Options{BlockSize: 4, Hash: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, uint32(3), res.Blocks)

	f, ok := d.FileByPath("f")
	require.True(t, ok)
	want := []string{"0123", "4567", "89"}
	for i, data := range want {
		assert.Equal(t, elem.HashBlock([]byte(data)), f.Blocks[i].Hash, "block %d", i)
		assert.Equal(t, elem.BlockStateRep, f.Blocks[i].State)
	}

	zero, ok := d.FileByPath("zero")
	require.True(t, ok)
	assert.Zero(t, zero.BlockMax)
}

func TestDisk_WithoutHashLeavesBlocksChanged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f", "0123")
	d := disk.New("d1", root, 0)

	_, err := Disk(context.Background(), d, Options{BlockSize: 4})
	require.NoError(t, err)

	f, ok := d.FileByPath("f")
	require.True(t, ok)
	assert.Equal(t, elem.BlockStateChg, f.Blocks[0].State)
	assert.True(t, f.Blocks[0].Hash.IsInvalid())
}

func TestDisk_AllocationConflictIsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f", "0123")
	d := disk.New("d1", root, 0)

	other := elem.NewFile(4, "other", 4, 0, 0, 0, 0)
	d.AddFile(other)
	require.NoError(t, d.Allocate(0, other, 0))

	_, err := Disk(context.Background(), d, Options{BlockSize: 4})
	require.Error(t, err)
	assert.ErrorIs(t, err, elem.ErrInconsistency)
}

func TestDisk_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f", "0123")
	d := disk.New("d1", root, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Disk(ctx, d, Options{BlockSize: 4})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, d.FileCount())
}

func TestDisk_ZeroBlockSize(t *testing.T) {
	d := disk.New("d1", t.TempDir(), 0)
	_, err := Disk(context.Background(), d, Options{})
	assert.Error(t, err)
}
