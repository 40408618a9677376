// Package runconfig holds the fully-resolved configuration for one copy
// run, merged from CLI flags and the on-disk TOML defaults in
// internal/cliconfig.
package runconfig

import (
	"fmt"

	"github.com/parcp/parcp/internal/filter"
	"github.com/parcp/parcp/internal/walk"
)

// Driver selects which copy driver executes the walker's Operation stream.
type Driver string

const (
	DriverParFile  Driver = "parfile"
	DriverParBlock Driver = "parblock"
)

// ReflinkMode controls when the engine attempts a copy-on-write clone
// before falling back to a byte copy.
type ReflinkMode string

const (
	ReflinkAuto   ReflinkMode = "auto"
	ReflinkAlways ReflinkMode = "always"
	ReflinkNever  ReflinkMode = "never"
)

// Config is the complete, validated set of knobs for one run of the copy
// engine, covering both the walker (internal/walk.Config) and the
// drivers (internal/engine).
type Config struct {
	Sources []string
	Target  string

	Recursive         bool
	NoTargetDirectory bool
	Gitignore         bool
	Glob              bool
	NoClobber         bool
	Backup            walk.BackupPolicy
	Filter            *filter.Chain // --exclude/--include/--min-size/--max-size, nil if unset

	Driver    Driver
	Workers   int
	BlockSize int64

	Reflink ReflinkMode
	IOURing bool // par-block only; falls back to CopyRange per-block on error

	Fsync          bool
	NoPerms        bool
	NoTimestamps   bool
	VerifyChecksum bool
	NoProgress     bool

	BandwidthLimit int64 // bytes/sec, 0 = unlimited

	CheckpointPath string // non-empty enables resumable-copy bookkeeping
}

// DefaultBlockSize is the par-block driver's default split size, matching
// common RAID/SSD erase-block-friendly stripe sizes.
const DefaultBlockSize = 4 << 20 // 4 MiB

// Validate checks field combinations the flag parser alone cannot
// enforce (e.g. mutually exclusive flags, positive sizes).
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("no source operands given")
	}
	if c.Target == "" {
		return fmt.Errorf("no destination operand given")
	}
	if c.Driver != DriverParFile && c.Driver != DriverParBlock {
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("block-size must be positive, got %d", c.BlockSize)
	}
	switch c.Reflink {
	case ReflinkAuto, ReflinkAlways, ReflinkNever:
	default:
		return fmt.Errorf("unknown reflink mode %q", c.Reflink)
	}
	if c.NoTargetDirectory && len(c.Sources) > 1 {
		return fmt.Errorf("--no-target-directory requires exactly one source, got %d", len(c.Sources))
	}
	return nil
}

// WalkerConfig projects the subset of Config the tree walker needs.
func (c *Config) WalkerConfig() walk.Config {
	return walk.Config{
		Sources:           c.Sources,
		Target:            c.Target,
		Recursive:         c.Recursive,
		NoTargetDirectory: c.NoTargetDirectory,
		Gitignore:         c.Gitignore,
		GlobExpand:        c.Glob,
		NoClobber:         c.NoClobber,
		Backup:            c.Backup,
		ExtraFilter:       c.Filter,
		QueueCapacity:     2 * c.Workers,
	}
}
