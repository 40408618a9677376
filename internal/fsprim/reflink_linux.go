//go:build linux

package fsprim

import (
	"os"

	"golang.org/x/sys/unix"
)

// TryReflink attempts a whole-file copy-on-write clone of srcPath onto
// dstPath and returns the tri-state result described in spec.md §4.1.
// On success the returned *os.File is the open, fully-cloned
// destination, ready for metadata finalisation. On ReflinkUnsupported
// the destination is guaranteed not to have been created, so the
// caller can fall through to the normal streaming CopyFile path.
//
// Linux clones via the FICLONE ioctl, which — unlike Darwin's
// clonefile(2) — operates on already-open descriptors rather than
// paths, so this implementation creates dst first and removes it again
// on failure.
func TryReflink(srcPath, dstPath string, perm os.FileMode) (ReflinkResult, *os.File, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return ReflinkError, nil, Classify(srcPath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, perm)
	if err != nil {
		return ReflinkError, nil, Classify(dstPath, err)
	}

	ferr := unix.IoctlFileClone(int(dst.Fd()), int(src.Fd()))
	if ferr == nil {
		return ReflinkDone, dst, nil
	}

	dst.Close()
	_ = os.Remove(dstPath)

	if IsFallbackErr(ferr) {
		return ReflinkUnsupported, nil, nil
	}
	return ReflinkError, nil, Classify(dstPath, ferr)
}
