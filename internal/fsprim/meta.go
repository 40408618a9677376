//go:build unix

package fsprim

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/xattr"
	"golang.org/x/sys/unix"
)

// aclXattrs are the two well-known xattr keys POSIX ACLs are stored
// under on Linux. There is no dedicated Go ACL library in common use;
// copying these two xattrs is the practical way `cp --preserve=acl`-like
// tools propagate ACLs without linking libacl.
var aclXattrs = []string{"system.posix_acl_access", "system.posix_acl_default"}

// CopyPermissions copies the mode bits from src to dst's open fd.
func CopyPermissions(srcPath string, dstFd *os.File) error {
	info, err := os.Lstat(srcPath)
	if err != nil {
		return NewMetadataError(srcPath, "mode", err)
	}
	if err := dstFd.Chmod(info.Mode().Perm()); err != nil {
		return NewMetadataError(dstFd.Name(), "mode", err)
	}
	return nil
}

// CopyTimes copies mtime/atime from src to dst's open fd.
func CopyTimes(srcPath string, dstFd *os.File, modTime, accTime time.Time) error {
	rawFd := int(dstFd.Fd())
	times := []unix.Timespec{
		unix.NsecToTimespec(accTime.UnixNano()),
		unix.NsecToTimespec(modTime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(rawFd, "", times, unix.AT_EMPTY_PATH); err != nil {
		if err2 := unix.UtimesNanoAt(unix.AT_FDCWD, dstFd.Name(), times, 0); err2 != nil {
			return NewMetadataError(dstFd.Name(), "times", err)
		}
	}
	return nil
}

// CopyOwner copies uid/gid from src to dst. Ownership frequently fails
// without CAP_CHOWN; callers in relaxed mode should treat failures here
// as a non-fatal warning per spec.md §4.5/§7.
func CopyOwner(dstFd *os.File, uid, gid int) error {
	if err := unix.Fchown(int(dstFd.Fd()), uid, gid); err != nil {
		return NewMetadataError(dstFd.Name(), "owner", err)
	}
	return nil
}

// CopyXattrs propagates every extended attribute from src to dst. It is
// a no-op (not an error) if the source filesystem reports no xattr
// support.
func CopyXattrs(srcPath string, dstFd *os.File) error {
	names, err := xattr.List(srcPath)
	if err != nil {
		if unsupportedXattr(err) {
			return nil
		}
		return NewMetadataError(srcPath, "xattr", err)
	}
	for _, name := range names {
		val, err := xattr.Get(srcPath, name)
		if err != nil {
			continue
		}
		if err := xattr.FSet(dstFd, name, val); err != nil {
			return NewMetadataError(dstFd.Name(), "xattr", err)
		}
	}
	return nil
}

// CopyACLs propagates POSIX ACLs, which on Linux live in the
// system.posix_acl_access / system.posix_acl_default xattrs.
func CopyACLs(srcPath string, dstFd *os.File) error {
	for _, name := range aclXattrs {
		val, err := xattr.Get(srcPath, name)
		if err != nil {
			continue // no ACL of this kind set, or unsupported — not an error
		}
		if err := xattr.FSet(dstFd, name, val); err != nil {
			return NewMetadataError(dstFd.Name(), "acl", err)
		}
	}
	return nil
}

func unsupportedXattr(err error) bool {
	return strings.Contains(err.Error(), "not supported") || IsFallbackErr(err)
}

// MakeSymlink creates a symlink at dst pointing to target, replacing
// any existing entry.
func MakeSymlink(dst, target string) error {
	_ = os.Remove(dst)
	if err := os.Symlink(target, dst); err != nil {
		return Classify(dst, err)
	}
	return nil
}

// MakeHardlink creates a hard link at dst pointing at the same inode as
// target, replacing any existing entry.
func MakeHardlink(dst, target string) error {
	_ = os.Remove(dst)
	if err := os.Link(target, dst); err != nil {
		return Classify(dst, err)
	}
	return nil
}

// MakeSpecial recreates a FIFO, socket, or device node at dst.
func MakeSpecial(dst string, kind Kind, mode uint32, rdev uint64) error {
	_ = os.Remove(dst)
	if err := unix.Mknod(dst, mode, int(rdev)); err != nil {
		return Classify(dst, err)
	}
	return nil
}
