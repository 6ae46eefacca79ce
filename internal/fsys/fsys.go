// Package fsys is the narrow filesystem capability used by the filter
// engine and the scan driver.
package fsys

import (
	"io/fs"
	"os"
)

// StatFS reports the status of a path without following symlinks.
type StatFS interface {
	Lstat(path string) (fs.FileInfo, error)
}

// Identity is the device and inode of a filesystem entry.
type Identity struct {
	Dev uint64
	Ino uint64
}

// OS is the production StatFS backed by the host filesystem.
type OS struct{}

// NewOS returns the host filesystem.
func NewOS() OS {
	return OS{}
}

func (OS) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

// MtimeOf returns the modification time of info split in seconds and
// nanoseconds.
func MtimeOf(info fs.FileInfo) (int64, int32) {
	t := info.ModTime()
	return t.Unix(), int32(t.Nanosecond()) //nolint:gosec // G115: nanoseconds fit in int32
}
