package fsys

import (
	"io/fs"
	"path"
	"path/filepath"
	"time"
)

// MemoryFS is an in-memory StatFS for tests.
type MemoryFS struct {
	entries map[string]memInfo
	errs    map[string]error
}

// NewMemoryFS returns an empty in-memory filesystem.
func NewMemoryFS() *MemoryFS {
	return &MemoryFS{
		entries: make(map[string]memInfo),
		errs:    make(map[string]error),
	}
}

func clean(p string) string {
	if p == "" {
		return "."
	}
	return filepath.ToSlash(filepath.Clean(p))
}

// AddFile registers a regular file.
func (m *MemoryFS) AddFile(p string, size int64) {
	p = clean(p)
	m.entries[p] = memInfo{name: path.Base(p), size: size, mode: 0o644}
}

// AddDir registers a directory.
func (m *MemoryFS) AddDir(p string) {
	p = clean(p)
	m.entries[p] = memInfo{name: path.Base(p), mode: fs.ModeDir | 0o755}
}

// Remove forgets p.
func (m *MemoryFS) Remove(p string) {
	delete(m.entries, clean(p))
}

// FailWith makes every Lstat of p return err.
func (m *MemoryFS) FailWith(p string, err error) {
	m.errs[clean(p)] = err
}

func (m *MemoryFS) Lstat(p string) (fs.FileInfo, error) {
	p = clean(p)
	if err, ok := m.errs[p]; ok {
		return nil, &fs.PathError{Op: "lstat", Path: p, Err: err}
	}
	info, ok := m.entries[p]
	if !ok {
		return nil, &fs.PathError{Op: "lstat", Path: p, Err: fs.ErrNotExist}
	}
	return info, nil
}

type memInfo struct {
	name string
	size int64
	mode fs.FileMode
}

func (i memInfo) Name() string      { return i.name }
func (i memInfo) Size() int64       { return i.size }
func (i memInfo) Mode() fs.FileMode { return i.mode }
func (memInfo) ModTime() time.Time  { return time.Time{} }
func (i memInfo) IsDir() bool       { return i.mode.IsDir() }
func (memInfo) Sys() any            { return nil }
