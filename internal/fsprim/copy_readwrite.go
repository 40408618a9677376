package fsprim

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const bufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// copyReadWrite copies data using pread/pwrite with a pooled buffer.
// This is the universal fallback strategy when no in-kernel primitive
// is available or reports unsupported.
func copyReadWrite(p CopyParams) (CopyResult, error) {
	srcFd := p.SrcFd
	if srcFd == nil {
		f, err := os.Open(p.SrcPath)
		if err != nil {
			return CopyResult{}, Classify(p.SrcPath, err)
		}
		defer f.Close()
		srcFd = f
	}

	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	srcOff := p.SrcOffset
	dstOff := p.DstOffset
	if dstOff == 0 {
		dstOff = p.SrcOffset
	}
	remaining := copyLength(p)

	var total int64
	srcRawFd := int(srcFd.Fd())
	dstRawFd := int(p.DstFd.Fd())

	for remaining > 0 {
		toRead := int(remaining)
		if toRead > bufferSize {
			toRead = bufferSize
		}

		n, err := unix.Pread(srcRawFd, buf[:toRead], srcOff)
		if err != nil {
			return CopyResult{BytesWritten: total, Method: ReadWrite}, Classify(p.SrcPath, err)
		}
		if n == 0 {
			break
		}

		chunkDstOff := dstOff
		written := 0
		for written < n {
			w, err := unix.Pwrite(dstRawFd, buf[written:n], dstOff+int64(written))
			if err != nil {
				return CopyResult{BytesWritten: total + int64(written), Method: ReadWrite},
					Classify(p.DstFd.Name(), err)
			}
			written += w
		}
		if p.Hasher != nil {
			p.Hasher.WriteAt(buf[:n], chunkDstOff)
		}

		srcOff += int64(n)
		dstOff += int64(n)
		remaining -= int64(n)
		total += int64(n)
	}

	return CopyResult{BytesWritten: total, Method: ReadWrite}, nil
}

// CopyReadWrite exposes the buffered fallback strategy directly, for
// callers (such as the checksum verifier) that need every byte to pass
// through user space rather than risk an in-kernel clone.
func CopyReadWrite(p CopyParams) (CopyResult, error) {
	return copyReadWrite(p)
}
