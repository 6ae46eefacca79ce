package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPattern is returned for a rule that cannot be built. The rule is
// dropped; other rules remain usable.
var ErrInvalidPattern = errors.New("invalid filter pattern")

// Direction is the verdict of a matching rule.
type Direction int

const (
	Exclude Direction = -1
	Include Direction = 1
)

func (d Direction) String() string {
	if d < 0 {
		return "exclude"
	}
	return "include"
}

// Rule is a single include or exclude entry.
//
// A disk rule matches the disk name. Otherwise a rule without "/" matches
// a file name, "name/" matches a directory name, "/path" matches a file path
// from the disk root and "/path/" a directory path.
type Rule struct {
	Direction Direction
	Pattern   string // trailing "/" of directory rules removed
	IsDisk    bool
	IsPath    bool
	IsDir     bool

	re *regexp.Regexp
}

// NewFileRule builds a path, name or directory rule.
func NewFileRule(direction Direction, pattern string) (*Rule, error) {
	return newFileRule(direction, pattern, CaseInsensitive)
}

// NewDiskRule builds a rule matching disk names.
func NewDiskRule(direction Direction, pattern string) (*Rule, error) {
	return newDiskRule(direction, pattern, CaseInsensitive)
}

func newFileRule(direction Direction, pattern string, fold bool) (*Rule, error) {
	first, last, err := checkTokens(pattern)
	if err != nil {
		return nil, err
	}

	r := &Rule{Direction: direction, Pattern: pattern}
	switch {
	case first < 0:
		// Plain name.
	case first == last && last == len(pattern)-1:
		r.IsDir = true
		r.Pattern = pattern[:last]
	default:
		r.IsPath = true
		if last == len(pattern)-1 {
			r.IsDir = true
			r.Pattern = pattern[:last]
		}
		// PATH/FILE and PATH/DIR/ without the leading slash are not supported.
		if pattern[0] != '/' {
			return nil, fmt.Errorf("%w: %q must start with '/'", ErrInvalidPattern, pattern)
		}
	}

	if err := r.compile(fold); err != nil {
		return nil, err
	}
	return r, nil
}

// checkTokens validates the "/" separated components of a pattern and
// returns the index of the first and last slash, -1 if none. Empty, "." ,
// ".." and all-dot components are rejected, except an empty first
// component (leading slash) and an empty last one (trailing slash).
func checkTokens(pattern string) (first, last int, err error) {
	first, last = -1, -1
	valid, filled := false, false

	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '/':
			if !valid && (first >= 0 || filled) {
				return 0, 0, fmt.Errorf("%w: %q has an invalid component", ErrInvalidPattern, pattern)
			}
			valid, filled = false, false
			if first < 0 {
				first = i
			}
			last = i
		case '.':
			filled = true
		default:
			valid, filled = true, true
		}
	}

	if !valid && (first < 0 || filled) {
		return 0, 0, fmt.Errorf("%w: %q has an invalid component", ErrInvalidPattern, pattern)
	}
	if first == 0 && last == 0 && len(pattern) == 1 {
		return 0, 0, fmt.Errorf("%w: %q matches nothing", ErrInvalidPattern, pattern)
	}
	return first, last, nil
}

func newDiskRule(direction Direction, pattern string, fold bool) (*Rule, error) {
	if strings.Contains(pattern, "/") {
		return nil, fmt.Errorf("%w: disk pattern %q contains '/'", ErrInvalidPattern, pattern)
	}
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty disk pattern", ErrInvalidPattern)
	}
	r := &Rule{Direction: direction, Pattern: pattern, IsDisk: true}
	if err := r.compile(fold); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rule) compile(fold bool) error {
	src := r.Pattern
	if r.IsPath {
		// Candidate paths never carry the leading slash.
		src = strings.TrimPrefix(src, "/")
	}
	re, err := compileGlob(src, fold)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, r.Pattern, err)
	}
	r.re = re
	return nil
}

// String renders the rule the way it is written in a rule file.
func (r *Rule) String() string {
	switch {
	case r.IsDisk:
		return fmt.Sprintf("%s %s:", r.Direction, r.Pattern)
	case r.IsDir:
		return fmt.Sprintf("%s %s/", r.Direction, r.Pattern)
	default:
		return fmt.Sprintf("%s %s", r.Direction, r.Pattern)
	}
}

// apply tests one entry against the rule: path is the entry path from the
// disk root and name its last component. Directory rules only see
// directories and the other rules only files.
func (r *Rule) apply(path, name string, isDir bool) Direction {
	if r.IsDir != isDir {
		return 0
	}
	target := name
	if r.IsPath {
		target = path
	}
	if r.re.MatchString(target) {
		return r.Direction
	}
	return 0
}

// recurse applies the rule to every ancestor directory of sub, from the
// root down, and then to sub itself. The first match decides.
func (r *Rule) recurse(sub string, isDir bool) Direction {
	name := 0
	for i := 0; i < len(sub); i++ {
		if sub[i] != '/' {
			continue
		}
		if d := r.apply(sub[:i], sub[name:i], true); d != 0 {
			return d
		}
		name = i + 1
	}
	return r.apply(sub, sub[name:], isDir)
}

// matchDisk tests a disk rule against the disk name.
func (r *Rule) matchDisk(disk string) Direction {
	if r.re.MatchString(disk) {
		return r.Direction
	}
	return 0
}
