// Package filter decides which disks, directories and files take part in an
// operation, from an ordered list of include and exclude rules.
package filter

import "strings"

// Chain holds an ordered list of filter rules.
type Chain struct {
	rules []*Rule
	fold  bool
}

// NewChain creates an empty chain using the platform case sensitivity.
func NewChain() *Chain {
	return &Chain{fold: CaseInsensitive}
}

// SetCaseInsensitive switches glob matching case sensitivity and recompiles
// the rules already added.
func (c *Chain) SetCaseInsensitive(fold bool) error {
	c.fold = fold
	for _, r := range c.rules {
		if err := r.compile(fold); err != nil {
			return err
		}
	}
	return nil
}

// AddExclude adds an exclude rule for a file, directory or path pattern.
func (c *Chain) AddExclude(pattern string) error {
	return c.addFile(Exclude, pattern)
}

// AddInclude adds an include rule for a file, directory or path pattern.
func (c *Chain) AddInclude(pattern string) error {
	return c.addFile(Include, pattern)
}

// AddDiskExclude adds an exclude rule matching disk names.
func (c *Chain) AddDiskExclude(pattern string) error {
	return c.addDisk(Exclude, pattern)
}

// AddDiskInclude adds an include rule matching disk names.
func (c *Chain) AddDiskInclude(pattern string) error {
	return c.addDisk(Include, pattern)
}

func (c *Chain) addFile(d Direction, pattern string) error {
	r, err := newFileRule(d, pattern, c.fold)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, r)
	return nil
}

func (c *Chain) addDisk(d Direction, pattern string) error {
	r, err := newDiskRule(d, pattern, c.fold)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, r)
	return nil
}

// Rules returns the rules in evaluation order.
func (c *Chain) Rules() []*Rule {
	return c.rules
}

// Empty reports whether the chain has no rules.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0
}

// MatchPath reports whether the file sub of disk is included. When it is
// not, reason is the rule responsible.
func (c *Chain) MatchPath(disk, sub string) (included bool, reason *Rule) {
	return c.element(disk, sub, false)
}

// MatchDir reports whether the directory sub of disk is included.
func (c *Chain) MatchDir(disk, sub string) (included bool, reason *Rule) {
	return c.element(disk, strings.TrimSuffix(sub, "/"), true)
}

// element walks the rules in order. The first rule matching, on the disk
// name or on any component of sub, decides. A rule that does not match sets
// the default to the opposite of its own direction, so a trailing include
// rule turns everything else into an exclusion. Directories are always
// included by default, otherwise rules could never reach the files inside.
func (c *Chain) element(disk, sub string, isDir bool) (bool, *Rule) {
	direction := Include
	var reason *Rule

	for _, r := range c.rules {
		var ret Direction
		if r.IsDisk {
			ret = r.matchDisk(disk)
		} else {
			ret = r.recurse(sub, isDir)
		}

		switch {
		case ret > 0:
			return true, nil
		case ret < 0:
			return false, r
		}

		direction = -r.Direction
		if direction < 0 {
			reason = r
		}
	}

	if isDir || direction > 0 {
		return true, nil
	}
	return false, reason
}

// MatchDisk reports whether disk takes part, looking only at disk rules.
func (c *Chain) MatchDisk(disk string) bool {
	direction := Include
	for _, r := range c.rules {
		if !r.IsDisk {
			continue
		}
		if ret := r.matchDisk(disk); ret != 0 {
			return ret > 0
		}
		direction = -r.Direction
	}
	return direction > 0
}
