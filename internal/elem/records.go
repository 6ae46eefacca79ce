package elem

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LinkFlag distinguishes the kinds of link records.
type LinkFlag uint32

const (
	LinkIsSymlink  LinkFlag = 1 << iota
	LinkIsHardlink          // target is another tracked file on the same disk
	LinkIsSymdir            // symlink pointing to a directory
	LinkIsExcluded
)

// Link is a symbolic or hard link. It has no blocks.
type Link struct {
	Sub    string
	Target string
	Flag   LinkFlag
}

// NewLink creates a link record.
func NewLink(sub, target string, flag LinkFlag) *Link {
	return &Link{Sub: sub, Target: target, Flag: flag}
}

// CompareLinkPath orders links by path.
func CompareLinkPath(a, b *Link) int {
	return strings.Compare(a.Sub, b.Sub)
}

// DirFlag marks directory records.
type DirFlag uint32

const DirIsExcluded DirFlag = 1

// Dir is an empty directory kept so that it can be restored.
type Dir struct {
	Sub  string
	Flag DirFlag
}

// NewDir creates a directory record.
func NewDir(sub string) *Dir {
	return &Dir{Sub: sub}
}

// CompareDirPath orders directories by path.
func CompareDirPath(a, b *Dir) int {
	return strings.Compare(a.Sub, b.Sub)
}

// Map assigns a disk name to a slot of the parity layout.
type Map struct {
	Name        string
	Position    uint32
	TotalBlocks uint32
	FreeBlocks  uint32
	UUID        string // empty if the filesystem exposes none
}

// NewMap creates a mapping record. A non-empty id must be a valid UUID.
func NewMap(name string, position, totalBlocks, freeBlocks uint32, id string) (*Map, error) {
	if id != "" {
		if _, err := uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("map %s: invalid uuid %q: %w", name, id, err)
		}
	}
	return &Map{
		Name:        name,
		Position:    position,
		TotalBlocks: totalBlocks,
		FreeBlocks:  freeBlocks,
		UUID:        id,
	}, nil
}

// Content is a location where the content file is saved.
type Content struct {
	Path   string
	Device uint64
}

// NewContent creates a content destination record.
func NewContent(path string, device uint64) *Content {
	return &Content{Path: path, Device: device}
}

// CompareTime orders timestamps.
func CompareTime(a, b time.Time) int {
	return a.Compare(b)
}
