package engine

import (
	"os"
	"syscall"

	"github.com/parcp/parcp/internal/fsprim"
	"github.com/parcp/parcp/internal/runconfig"
)

// tryReflink attempts a copy-on-write clone per mode, consulting and
// updating the process-wide per-device capability cache, keyed by dev,
// so that once a device is known not to support cloning, every later
// file on that device skips straight to a byte copy instead of
// re-probing. The drivers pass the source file's device as dev.
func tryReflink(mode runconfig.ReflinkMode, srcPath, dstPath string, perm os.FileMode, dev uint64) (*os.File, bool, error) {
	if mode == runconfig.ReflinkNever {
		return nil, false, nil
	}

	if caps, ok := fsprim.CachedCapabilities(dev); ok && !caps.Reflink {
		if mode == runconfig.ReflinkAlways {
			return nil, false, &fsprim.Error{Kind: fsprim.Unsupported, Path: dstPath, Err: syscall.EOPNOTSUPP}
		}
		return nil, false, nil
	}

	result, fd, err := fsprim.TryReflink(srcPath, dstPath, perm)
	switch result {
	case fsprim.ReflinkDone:
		storeReflinkCapability(dev, true)
		return fd, true, nil
	case fsprim.ReflinkUnsupported:
		storeReflinkCapability(dev, false)
		if mode == runconfig.ReflinkAlways {
			return nil, false, &fsprim.Error{Kind: fsprim.Unsupported, Path: dstPath, Err: syscall.EOPNOTSUPP}
		}
		return nil, false, nil
	default:
		return nil, false, err
	}
}

func storeReflinkCapability(dev uint64, supported bool) {
	fsprim.StoreCapabilities(dev, fsprim.Capabilities{Reflink: supported})
}
