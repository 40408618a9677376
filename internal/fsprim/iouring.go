package fsprim

import (
	"fmt"
	"sync"

	"github.com/parcp/parcp/internal/platform"
)

var (
	iouringOnce sync.Once
	iouringCop  *platform.IOURingCopier
	iouringErr  error
)

// ioURingCopier lazily initialises one process-wide io_uring instance,
// shared across every par-block worker that opts into it. A single ring
// is sized generously enough (queue depth 64) that concurrent block
// workers don't starve each other waiting for submission slots.
func ioURingCopier() (*platform.IOURingCopier, error) {
	iouringOnce.Do(func() {
		iouringCop, iouringErr = platform.NewIOURingCopier(64)
	})
	return iouringCop, iouringErr
}

// CopyIOURing copies p.Length bytes via io_uring pread/pwrite, for
// par-block workers run with Config.IOURing set. Callers must treat any
// error as a signal to fall back to CopyRange for the block; the
// par-block driver recopies the whole block that way — io_uring support
// varies by kernel version and isn't re-probed per call.
func CopyIOURing(p CopyParams) (CopyResult, error) {
	cop, err := ioURingCopier()
	if err != nil {
		return CopyResult{}, fmt.Errorf("io_uring unavailable: %w", err)
	}
	if cop == nil {
		return CopyResult{}, fmt.Errorf("io_uring unavailable: unsupported kernel")
	}

	res, err := cop.CopyFile(platform.CopyFileParams{
		DstFd:     p.DstFd,
		SrcPath:   p.SrcPath,
		SrcOffset: p.SrcOffset,
		SrcSize:   p.SrcSize,
		Length:    p.Length,
	})
	if err != nil {
		return CopyResult{BytesWritten: res.BytesWritten}, Classify(p.SrcPath, err)
	}
	return CopyResult{BytesWritten: res.BytesWritten, Method: IOURing}, nil
}
