// Package platform wraps the io_uring acceleration path that the
// par-block driver can opt into through runconfig.Config.IOURing. The
// portable copy primitives (sparse-aware copy_file_range/sendfile/
// read-write, reflink, metadata) live in internal/fsprim; this package
// exists only for the kernel-specific ring setup that fsprim shells
// out to.
package platform

import "os"

// CopyMethod identifies which syscall/strategy performed a copy.
type CopyMethod int

const (
	ReadWrite CopyMethod = iota
	IOURing
)

func (m CopyMethod) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case IOURing:
		return "io_uring"
	default:
		return "unknown"
	}
}

// CopyResult reports the outcome of a copy operation.
type CopyResult struct {
	BytesWritten int64
	Method       CopyMethod
}

// CopyFileParams describes what to copy.
type CopyFileParams struct {
	DstFd     *os.File
	SrcPath   string
	SrcOffset int64
	SrcSize   int64
	Length    int64
}

func copyLength(p CopyFileParams) int64 {
	if p.Length > 0 {
		return p.Length
	}
	return p.SrcSize - p.SrcOffset
}
