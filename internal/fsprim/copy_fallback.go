//go:build !linux && !darwin

package fsprim

import "os"

// CopyRange falls back to read/write on platforms with no kernel-side
// range-copy primitive.
func CopyRange(p CopyParams) (CopyResult, error) {
	return copyReadWrite(p)
}

func preallocate(_ *os.File, _ int64) {}
