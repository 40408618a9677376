package fsprim

import (
	"fmt"
	"os"
)

// ProbeKind stats path (without following a terminal symlink) and
// returns its Kind.
func ProbeKind(path string) (Kind, os.FileInfo, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return KindUnknown, nil, Classify(path, err)
	}
	return kindOf(info.Mode()), info, nil
}

func kindOf(mode os.FileMode) Kind {
	switch {
	case mode&os.ModeSymlink != 0:
		return KindSymlink
	case mode.IsDir():
		return KindDir
	case mode&os.ModeNamedPipe != 0:
		return KindFIFO
	case mode&os.ModeSocket != 0:
		return KindSocket
	case mode&os.ModeDevice != 0:
		if mode&os.ModeCharDevice != 0 {
			return KindCharDevice
		}
		return KindBlockDevice
	case mode.IsRegular():
		return KindRegular
	default:
		return KindUnknown
	}
}

// ErrUnsupportedStat is returned when a platform's os.FileInfo.Sys()
// does not carry the *syscall.Stat_t this package expects.
func errUnsupportedStat(path string) error {
	return &Error{Kind: Unsupported, Path: path, Err: fmt.Errorf("unsupported stat type")}
}
