//go:build darwin

package fsprim

import (
	"os"

	"golang.org/x/sys/unix"
)

// TryReflink attempts a clonefile(2) copy-on-write clone. clonefile(2)
// operates on paths and requires the destination not yet exist.
func TryReflink(srcPath, dstPath string, _ os.FileMode) (ReflinkResult, *os.File, error) {
	err := unix.Clonefile(srcPath, dstPath, 0)
	if err == nil {
		dst, oerr := os.OpenFile(dstPath, os.O_RDWR, 0)
		if oerr != nil {
			return ReflinkError, nil, Classify(dstPath, oerr)
		}
		return ReflinkDone, dst, nil
	}
	switch err {
	case unix.ENOTSUP, unix.EXDEV, unix.EEXIST:
		return ReflinkUnsupported, nil, nil
	}
	return ReflinkError, nil, Classify(dstPath, err)
}
