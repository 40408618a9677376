package fsprim

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Extents returns the ordered, disjoint sequence of byte ranges within
// [0, fileSize) known to contain data, obtained via SEEK_DATA/SEEK_HOLE.
// An empty result means "no data" (fully sparse or empty file) — per
// spec.md §9, callers must treat an empty list on a *non-empty* file as
// "this filesystem doesn't report sparseness reliably, fall back to a
// plain streamed copy" rather than "this file has no data".
func Extents(fd *os.File, fileSize int64) ([]Extent, error) {
	if fileSize == 0 {
		return nil, nil
	}

	rawFd := int(fd.Fd())
	var extents []Extent
	offset := int64(0)

	for offset < fileSize {
		dataStart, err := unix.Seek(rawFd, offset, unix.SEEK_DATA)
		if err != nil {
			if err == syscall.ENXIO {
				break // rest of file is a hole
			}
			if err == syscall.EINVAL {
				return wholeFile(fileSize), nil
			}
			return nil, Classify(fd.Name(), err)
		}

		holeStart, err := unix.Seek(rawFd, dataStart, unix.SEEK_HOLE)
		if err != nil {
			switch err {
			case syscall.ENXIO:
				holeStart = fileSize
			case syscall.EINVAL:
				return wholeFile(fileSize), nil
			default:
				return nil, Classify(fd.Name(), err)
			}
		}
		if holeStart > fileSize {
			holeStart = fileSize
		}

		extents = append(extents, Extent{Offset: dataStart, Length: holeStart - dataStart})
		offset = holeStart
	}

	return extents, nil
}

func wholeFile(size int64) []Extent {
	return []Extent{{Offset: 0, Length: size}}
}

// AllocateSparse ensures dst has the given logical size with no data
// blocks allocated for it, materialising holes via ftruncate. It never
// allocates storage — that happens lazily as CopyRange writes extents.
func AllocateSparse(dst *os.File, size int64) error {
	if err := dst.Truncate(size); err != nil {
		return Classify(dst.Name(), err)
	}
	return nil
}
