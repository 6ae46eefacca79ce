// Package scan populates a disk from its mount point, placing every new file
// block at the next free parity position.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bamsammich/snapcore/internal/disk"
	"github.com/bamsammich/snapcore/internal/elem"
	"github.com/bamsammich/snapcore/internal/filter"
	"github.com/bamsammich/snapcore/internal/fsys"
)

// Options controls a scan.
type Options struct {
	BlockSize uint32
	Chain     *filter.Chain   // nil includes everything
	Contents  []*elem.Content // content files never tracked as data
	Hash      bool            // hash block contents while scanning
	Logger    *slog.Logger
}

// Result summarizes a scan.
type Result struct {
	Files   int
	Links   int
	Dirs    int
	Skipped int
	Errors  int    // entries that could not be read
	Blocks  uint32 // parity blocks allocated
}

type scanner struct {
	d    *disk.Disk
	opts Options
	root string
	next uint32
	res  Result
	log  *slog.Logger
	buf  []byte
}

// Disk walks d.Dir and adds every included entry to d. Allocation starts at
// d.FirstFreeBlock, which is left pointing past the last block allocated.
// Unreadable entries are logged and counted; fatal errors stop the scan.
func Disk(ctx context.Context, d *disk.Disk, opts Options) (Result, error) {
	if opts.BlockSize == 0 {
		return Result{}, errors.New("scan: zero block size")
	}
	if opts.Chain == nil {
		opts.Chain = filter.NewChain()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &scanner{
		d:    d,
		opts: opts,
		root: strings.TrimSuffix(d.Dir, "/"),
		next: d.FirstFreeBlock,
		log:  logger.With("disk", d.Name),
	}
	if opts.Hash {
		s.buf = make([]byte, opts.BlockSize)
	}

	err := s.scanDir(ctx, "")
	s.res.Blocks = s.next - d.FirstFreeBlock
	d.FirstFreeBlock = s.next
	return s.res, err
}

func (s *scanner) abs(sub string) string {
	if sub == "" {
		return s.root
	}
	return s.root + "/" + sub
}

func (s *scanner) scanDir(ctx context.Context, sub string) error {
	entries, err := os.ReadDir(filepath.FromSlash(s.abs(sub)))
	if err != nil {
		s.fail(sub, fmt.Errorf("readdir: %w", err))
		return nil
	}

	if len(entries) == 0 && sub != "" {
		s.d.AddDir(elem.NewDir(sub))
		s.res.Dirs++
		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		entrySub := path.Join(sub, entry.Name())
		if err := s.processEntry(ctx, entrySub, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *scanner) processEntry(ctx context.Context, sub string, entry os.DirEntry) error {
	abs := s.abs(sub)

	if entry.IsDir() {
		if ok, reason := s.opts.Chain.MatchDir(s.d.Name, sub); !ok {
			s.skip(sub, reason)
			return nil
		}
		return s.scanDir(ctx, sub)
	}

	if filter.IsControlPath(s.opts.Contents, abs) {
		s.log.Debug("skipping content file", "sub", sub)
		s.res.Skipped++
		return nil
	}
	if ok, reason := s.opts.Chain.MatchPath(s.d.Name, sub); !ok {
		s.skip(sub, reason)
		return nil
	}

	info, err := os.Lstat(filepath.FromSlash(abs))
	if err != nil {
		s.fail(sub, fmt.Errorf("lstat: %w", err))
		return nil
	}

	switch mode := info.Mode(); {
	case mode&os.ModeSymlink != 0:
		target, err := os.Readlink(filepath.FromSlash(abs))
		if err != nil {
			s.fail(sub, fmt.Errorf("readlink: %w", err))
			return nil
		}
		flag := elem.LinkIsSymlink
		if st, err := os.Stat(filepath.FromSlash(abs)); err == nil && st.IsDir() {
			flag = elem.LinkIsSymdir
		}
		s.d.AddLink(elem.NewLink(sub, filepath.ToSlash(target), flag))
		s.res.Links++
		return nil

	case mode.IsRegular():
		return s.addFile(sub, info)

	default:
		s.log.Debug("skipping special file", "sub", sub, "mode", mode.String())
		s.res.Skipped++
		return nil
	}
}

func (s *scanner) addFile(sub string, info os.FileInfo) error {
	id := fsys.IdentityOf(info)

	if id.Ino != 0 && !s.d.HasVolatileInodes {
		if first, ok := s.d.FileByInode(id.Ino); ok {
			s.d.AddLink(elem.NewLink(sub, first.Sub, elem.LinkIsHardlink))
			s.res.Links++
			return nil
		}
	}

	sec, nsec := fsys.MtimeOf(info)
	f := elem.NewFile(s.opts.BlockSize, sub, info.Size(), sec, nsec, id.Ino, 0)

	if s.opts.Hash {
		if err := s.hashFile(f); err != nil {
			s.fail(sub, err)
			return nil
		}
	}

	s.d.AddFile(f)
	for i := range f.BlockMax {
		if err := s.d.Allocate(s.next, f, i); err != nil {
			return err
		}
		s.next++
	}
	s.res.Files++
	return nil
}

func (s *scanner) hashFile(f *elem.File) error {
	fd, err := os.Open(filepath.FromSlash(s.abs(f.Sub)))
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer fd.Close()

	for i := range f.BlockMax {
		n := f.BlockBytes(i, s.opts.BlockSize)
		if _, err := io.ReadFull(fd, s.buf[:n]); err != nil {
			return fmt.Errorf("read block %d: %w", i, err)
		}
		f.Blocks[i].Hash = elem.HashBlock(s.buf[:n])
		f.Blocks[i].State = elem.BlockStateRep
	}
	return nil
}

func (s *scanner) skip(sub string, reason *filter.Rule) {
	s.res.Skipped++
	if reason != nil {
		s.log.Info("excluded", "sub", sub, "rule", reason.String())
	} else {
		s.log.Info("excluded", "sub", sub)
	}
}

func (s *scanner) fail(sub string, err error) {
	s.res.Errors++
	s.log.Warn("cannot scan entry", "sub", sub, "error", err)
}
