//go:build !linux && !darwin

package fsprim

import "os"

// TryReflink is unsupported on platforms with no known clone primitive.
func TryReflink(_, _ string, _ os.FileMode) (ReflinkResult, *os.File, error) {
	return ReflinkUnsupported, nil, nil
}
