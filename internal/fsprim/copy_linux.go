//go:build linux

package fsprim

import (
	"os"

	"golang.org/x/sys/unix"
)

// CopyRange copies len(p) bytes using the most efficient mechanism
// available on Linux, falling through on unsupported/cross-device
// errors: copy_file_range(2), then sendfile(2), then a buffered
// pread/pwrite loop.
func CopyRange(p CopyParams) (CopyResult, error) {
	result, err := copyFileRange(p)
	if err == nil {
		return result, nil
	}
	if !IsFallbackErr(err) {
		return result, err
	}

	result, err = copySendfile(p)
	if err == nil {
		return result, nil
	}
	if !IsFallbackErr(err) {
		return result, err
	}

	return copyReadWrite(p)
}

func copyFileRange(p CopyParams) (CopyResult, error) {
	srcFd := p.SrcFd
	if srcFd == nil {
		f, err := os.Open(p.SrcPath)
		if err != nil {
			return CopyResult{}, Classify(p.SrcPath, err)
		}
		defer f.Close()
		srcFd = f
	}

	remaining := copyLength(p)
	roff := p.SrcOffset
	woff := p.DstOffset
	if woff == 0 {
		woff = p.SrcOffset
	}

	var total int64
	for remaining > 0 {
		n, err := unix.CopyFileRange(int(srcFd.Fd()), &roff, int(p.DstFd.Fd()), &woff, int(remaining), 0)
		if err != nil {
			if total == 0 {
				return CopyResult{}, err
			}
			return CopyResult{BytesWritten: total, Method: CopyFileRange}, err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
		total += int64(n)
	}

	return CopyResult{BytesWritten: total, Method: CopyFileRange}, nil
}

func copySendfile(p CopyParams) (CopyResult, error) {
	srcFd := p.SrcFd
	if srcFd == nil {
		f, err := os.Open(p.SrcPath)
		if err != nil {
			return CopyResult{}, Classify(p.SrcPath, err)
		}
		defer f.Close()
		srcFd = f
	}

	remaining := copyLength(p)
	dstOff := p.DstOffset
	if dstOff == 0 {
		dstOff = p.SrcOffset
	}
	srcOff := p.SrcOffset

	var total int64
	for remaining > 0 {
		n, err := unix.Sendfile(int(p.DstFd.Fd()), int(srcFd.Fd()), &srcOff, int(remaining))
		if err != nil {
			if total == 0 {
				return CopyResult{}, err
			}
			return CopyResult{BytesWritten: total, Method: Sendfile}, err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
		total += int64(n)
		dstOff += int64(n)
	}

	return CopyResult{BytesWritten: total, Method: Sendfile}, nil
}

// preallocate attempts to pre-allocate disk space for size bytes
// starting at offset 0. Errors are ignored — fallocate is advisory and
// unsupported on some filesystems.
//
//nolint:errcheck
func preallocate(fd *os.File, size int64) {
	unix.Fallocate(int(fd.Fd()), 0, 0, size)
}
