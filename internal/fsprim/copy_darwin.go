//go:build darwin

package fsprim

import "os"

// CopyRange on Darwin has no copy_file_range(2) equivalent for partial
// ranges, so it always uses the buffered pread/pwrite fallback;
// whole-file clones are handled separately by Reflink.
func CopyRange(p CopyParams) (CopyResult, error) {
	return copyReadWrite(p)
}

// preallocate is a no-op on Darwin: F_PREALLOCATE requires fcntl
// plumbing this engine doesn't need since clonefile(2) already avoids
// allocating fresh blocks for the common whole-file case.
func preallocate(_ *os.File, _ int64) {}
