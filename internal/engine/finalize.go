package engine

import (
	"log/slog"
	"os"

	"github.com/parcp/parcp/internal/fsprim"
	"github.com/parcp/parcp/internal/op"
)

// MetadataPolicy controls how a finaliser reacts to a failed metadata
// step.
type MetadataPolicy int

const (
	// PolicyRelaxed logs a failed step as a slog warning and continues
	// past it — ownership commonly fails without CAP_CHOWN, and that
	// alone should not fail the whole copy. No progress event is emitted
	// for such a step.
	PolicyRelaxed MetadataPolicy = iota
	// PolicyStrict surfaces the first failed step as a fatal error.
	PolicyStrict
)

// FinaliseOptions selects which metadata categories a finaliser applies.
type FinaliseOptions struct {
	Perms      bool
	Timestamps bool
	Owner      bool
	Xattrs     bool
	ACLs       bool
	Policy     MetadataPolicy
}

// finaliseFile applies every enabled metadata category to an open
// destination file descriptor, in owner, mode, timestamp, xattr, ACL
// order. Ownership runs first among the enabled categories because a
// permission-narrowing chmod applied before a chown can leave the
// process unable to chown on some OSes.
func finaliseFile(srcPath string, dstFd *os.File, info op.FileInfo, opts FinaliseOptions) error {
	steps := []struct {
		enabled bool
		fatal   bool
		run     func() error
	}{
		{opts.Owner, false, func() error { return fsprim.CopyOwner(dstFd, int(info.UID), int(info.GID)) }},
		// Mode bits are fatal for this entry under every policy: unlike
		// ownership or xattrs, a silently-wrong mode is a correctness
		// failure the caller can't detect after the fact.
		{opts.Perms, true, func() error { return fsprim.CopyPermissions(srcPath, dstFd) }},
		{opts.Timestamps, false, func() error { return fsprim.CopyTimes(srcPath, dstFd, info.ModTime, info.AccTime) }},
		{opts.Xattrs, false, func() error { return fsprim.CopyXattrs(srcPath, dstFd) }},
		{opts.ACLs, false, func() error { return fsprim.CopyACLs(srcPath, dstFd) }},
	}

	for _, step := range steps {
		if !step.enabled {
			continue
		}
		if err := step.run(); err != nil {
			if step.fatal || opts.Policy == PolicyStrict {
				return err
			}
			slog.Warn("metadata step failed", "path", dstFd.Name(), "error", err)
		}
	}
	return nil
}

// finaliseDir applies metadata to a directory by path, used for
// FinaliseMetadata operations where no descriptor from the creating step
// survives (directories are made early and revisited after all
// descendants finish).
func finaliseDir(srcPath, dstPath string, info op.FileInfo, opts FinaliseOptions) error {
	fd, err := os.Open(dstPath)
	if err != nil {
		return fsprim.Classify(dstPath, err)
	}
	defer fd.Close()
	return finaliseFile(srcPath, fd, info, opts)
}
