package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/bamsammich/snapcore/internal/disk"
	"github.com/bamsammich/snapcore/internal/elem"
	"github.com/bamsammich/snapcore/internal/filter"
)

// DefaultBlockSize is used when block_size is not set.
const DefaultBlockSize = 256 * 1024

// Config represents the snapcore configuration file.
type Config struct {
	BlockSize       string       `toml:"block_size,omitempty"`
	Content         []string     `toml:"content,omitempty"`
	FilterFile      string       `toml:"filter_file,omitempty"`
	CaseInsensitive *bool        `toml:"case_insensitive,omitempty"`
	Disks           []DiskConfig `toml:"disk,omitempty"`
	Rules           []RuleConfig `toml:"rule,omitempty"`
}

// DiskConfig declares one data disk.
type DiskConfig struct {
	Name string `toml:"name"`
	Dir  string `toml:"dir"`
}

// RuleConfig is one filter rule. Exactly one of Pattern and Disk is set.
type RuleConfig struct {
	Action  string `toml:"action"`
	Pattern string `toml:"pattern,omitempty"`
	Disk    string `toml:"disk,omitempty"`
}

// DeviceResolver returns the device holding a path.
type DeviceResolver interface {
	Device(path string) (uint64, error)
}

// Path returns the resolved path to the default config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "snapcore", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config (no
// error) if the file does not exist.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	return cfg, err
}

// LoadFile reads and validates the config file at path.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return Config{}, fmt.Errorf("load config %s: unknown key %q", path, undec[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the disk declarations and the block size.
func (c Config) Validate() error {
	if _, err := c.BlockSizeBytes(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Disks))
	for _, d := range c.Disks {
		switch {
		case d.Name == "":
			return fmt.Errorf("disk with dir %q has no name", d.Dir)
		case strings.Contains(d.Name, "/"):
			return fmt.Errorf("disk name %q contains '/'", d.Name)
		case d.Dir == "":
			return fmt.Errorf("disk %q has no dir", d.Name)
		case seen[d.Name]:
			return fmt.Errorf("disk %q declared twice", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// BlockSizeBytes returns the configured block size.
func (c Config) BlockSizeBytes() (uint32, error) {
	if c.BlockSize == "" {
		return DefaultBlockSize, nil
	}
	n, err := filter.ParseSize(c.BlockSize)
	if err != nil {
		return 0, fmt.Errorf("block_size: %w", err)
	}
	if n <= 0 || n > 1<<30 {
		return 0, fmt.Errorf("block_size %q out of range", c.BlockSize)
	}
	return uint32(n), nil
}

// BuildChain builds the filter chain from the [[rule]] entries followed by
// the rules of filter_file. Invalid rules are skipped and reported together
// in the returned error; the chain holds every valid rule.
func (c Config) BuildChain() (*filter.Chain, error) {
	chain := filter.NewChain()
	if c.CaseInsensitive != nil {
		if err := chain.SetCaseInsensitive(*c.CaseInsensitive); err != nil {
			return nil, err
		}
	}

	var errs []error
	for i, r := range c.Rules {
		if err := addRule(chain, r); err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i+1, err))
		}
	}
	if c.FilterFile != "" {
		if err := chain.LoadFile(c.FilterFile); err != nil {
			errs = append(errs, err)
		}
	}
	return chain, errors.Join(errs...)
}

func addRule(chain *filter.Chain, r RuleConfig) error {
	var direction filter.Direction
	switch strings.ToLower(r.Action) {
	case "exclude":
		direction = filter.Exclude
	case "include":
		direction = filter.Include
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}

	switch {
	case r.Pattern != "" && r.Disk != "":
		return errors.New("both pattern and disk set")
	case r.Disk != "":
		if direction == filter.Include {
			return chain.AddDiskInclude(r.Disk)
		}
		return chain.AddDiskExclude(r.Disk)
	case direction == filter.Include:
		return chain.AddInclude(r.Pattern)
	default:
		return chain.AddExclude(r.Pattern)
	}
}

// Contents returns the content file destinations with their device.
func (c Config) Contents(dev DeviceResolver) ([]*elem.Content, error) {
	out := make([]*elem.Content, 0, len(c.Content))
	for _, p := range c.Content {
		id, err := dev.Device(filepath.Dir(p))
		if err != nil {
			return nil, fmt.Errorf("content %s: %w", p, err)
		}
		out = append(out, elem.NewContent(filepath.ToSlash(p), id))
	}
	return out, nil
}

// BuildDisks creates an empty disk for every declared disk.
func (c Config) BuildDisks(dev DeviceResolver) ([]*disk.Disk, error) {
	out := make([]*disk.Disk, 0, len(c.Disks))
	for _, d := range c.Disks {
		id, err := dev.Device(d.Dir)
		if err != nil {
			return nil, fmt.Errorf("disk %s: %w", d.Name, err)
		}
		out = append(out, disk.New(d.Name, d.Dir, id))
	}
	return out, nil
}

// Disk returns the declaration of the named disk.
func (c Config) Disk(name string) (DiskConfig, bool) {
	for _, d := range c.Disks {
		if d.Name == name {
			return d, true
		}
	}
	return DiskConfig{}, false
}
