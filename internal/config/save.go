package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Save writes cfg to path, creating the parent directory if needed. An
// existing file is left untouched unless overwrite is set.
func Save(path string, cfg Config, overwrite bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("write config: %w", err)
	}
	return f.Close()
}

// Example returns a starter configuration.
func Example() Config {
	return Config{
		BlockSize: "256K",
		Content:   []string{"/var/lib/snapcore/content"},
		Disks: []DiskConfig{
			{Name: "d1", Dir: "/mnt/disk1"},
		},
		Rules: []RuleConfig{
			{Action: "exclude", Pattern: "*.tmp"},
			{Action: "exclude", Pattern: "/lost+found/"},
		},
	}
}
