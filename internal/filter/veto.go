package filter

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/bamsammich/snapcore/internal/elem"
	"github.com/bamsammich/snapcore/internal/fsys"
)

// Existence vetoes files still present on the disk, so that an operation
// restricted to missing files leaves the others alone.
type Existence struct {
	fs fsys.StatFS
}

// NewExistence creates the veto over the given filesystem.
func NewExistence(statFS fsys.StatFS) *Existence {
	return &Existence{fs: statFS}
}

// Veto reports whether dir+sub exists. It never vetoes when disabled. Any
// failure other than "not found" is fatal: the state of the file is
// unknown.
func (e *Existence) Veto(enabled bool, dir, sub string) (bool, error) {
	if !enabled {
		return false, nil
	}

	path := dir + sub
	if _, err := e.fs.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &elem.StatError{Path: path, Err: err}
	}
	return true, nil
}

// BlockInfo is the view of the block quality index kept by the parity
// subsystem.
type BlockInfo interface {
	IsBad(parityPos uint32) bool
}

// ParityResolver maps file blocks to parity positions.
type ParityResolver interface {
	FileToParity(f *elem.File, filePos uint32) (uint32, error)
}

// Correctness vetoes a file none of whose blocks is marked bad, because it
// needs no repair.
func Correctness(enabled bool, info BlockInfo, disk ParityResolver, f *elem.File) (bool, error) {
	if !enabled {
		return false, nil
	}

	for i := range f.BlockMax {
		pos, err := disk.FileToParity(f, i)
		if err != nil {
			return false, err
		}
		if info.IsBad(pos) {
			return false, nil
		}
	}
	return true, nil
}

// controlSuffixes are the siblings written while saving a content file.
var controlSuffixes = [...]string{"", ".tmp", ".lock"}

// IsControlPath reports whether path is one of the content files, or the
// temporary and lock files used to write them.
func IsControlPath(contents []*elem.Content, path string) bool {
	for _, c := range contents {
		for _, suffix := range controlSuffixes {
			if samePath(c.Path+suffix, path) {
				return true
			}
		}
	}
	return false
}

func samePath(a, b string) bool {
	if CaseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}
