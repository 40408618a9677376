// Package cliconfig loads the optional ~/.config/pcp/config.toml file
// that supplies persistent flag defaults, so a user does not have to
// repeat --workers, --driver, or --bwlimit on every invocation. The
// file is entirely optional: a missing file is not an error.
package cliconfig

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk shape of config.toml.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. Pointer fields
// distinguish "absent from the file" from the zero value, so a loaded
// Config can be merged onto the parser's own flag defaults without
// clobbering an explicit CLI flag.
type DefaultsConfig struct {
	Workers        *int    `toml:"workers"`
	Driver         *string `toml:"driver"`
	Reflink        *string `toml:"reflink"`
	BlockSize      *string `toml:"block_size"`
	VerifyChecksum *bool   `toml:"verify_checksum"`
	Gitignore      *bool   `toml:"gitignore"`
	Fsync          *bool   `toml:"fsync"`
	Resume         *bool   `toml:"resume"`
	IOURing        *bool   `toml:"iouring"`
	BWLimit        *string `toml:"bwlimit"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "pcp", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
