// Package config loads the storage core's options — buffer pool size and
// the disk manager's base directory — from a YAML file, as an additional
// entry point alongside plain struct-literal construction.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Options is the on-disk configuration shape, loaded once at startup.
type Options struct {
	PoolSizeInPages int    `yaml:"pool_size_in_pages"`
	BaseDir         string `yaml:"base_dir"`
}

// Load reads and validates an Options from a YAML file.
func Load(path string) (Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var opts Options
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return Options{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if opts.PoolSizeInPages <= 0 {
		return Options{}, fmt.Errorf("config: pool_size_in_pages must be > 0, got %d", opts.PoolSizeInPages)
	}
	if opts.BaseDir == "" {
		return Options{}, fmt.Errorf("config: base_dir must not be empty")
	}
	return opts, nil
}
