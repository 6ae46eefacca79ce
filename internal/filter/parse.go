package filter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadFile reads filter rules from a file and appends them to the chain.
// See Parse for the format.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	if err := c.Parse(f); err != nil {
		return fmt.Errorf("filter file %s: %w", path, err)
	}
	return nil
}

// Parse reads one rule per line:
//
//	exclude PATTERN  or  - PATTERN  → exclude
//	include PATTERN  or  + PATTERN  → include
//	PATTERN                         → exclude
//	# comment, blank line           → skipped
//
// A pattern ending with ':' is a disk rule, the same form Rule.String
// prints.
func (c *Chain) Parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		direction, pattern := parseLine(line)
		if err := c.AddRule(direction, pattern); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	return scanner.Err()
}

// AddRule adds a rule in rule file notation: a trailing ':' selects a disk
// rule.
func (c *Chain) AddRule(direction Direction, pattern string) error {
	if disk, ok := strings.CutSuffix(pattern, ":"); ok {
		return c.addDisk(direction, disk)
	}
	return c.addFile(direction, pattern)
}

func parseLine(line string) (Direction, string) {
	for _, p := range [...]struct {
		prefix    string
		direction Direction
	}{
		{"exclude ", Exclude},
		{"include ", Include},
		{"- ", Exclude},
		{"+ ", Include},
	} {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			return p.direction, strings.TrimSpace(rest)
		}
	}
	return Exclude, line
}
