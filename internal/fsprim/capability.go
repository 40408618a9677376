package fsprim

import "sync"

// Capabilities records what a filesystem (identified by the device id
// the caller passes; the copy drivers pass the source file's device, not
// the destination's) is known to support, one bit per feature. Only
// reflink support is recorded. Cached for every subsequent file on that
// device — avoids re-attempting a doomed reflink ioctl on every single
// file of a filesystem that has already shown it doesn't support
// cloning.
type Capabilities struct {
	Reflink bool
}

var (
	capMu    sync.Mutex
	capCache = map[uint64]Capabilities{}
)

// CachedCapabilities returns the cached Capabilities for dev, and
// whether an entry was found.
func CachedCapabilities(dev uint64) (Capabilities, bool) {
	capMu.Lock()
	defer capMu.Unlock()
	c, ok := capCache[dev]
	return c, ok
}

// StoreCapabilities writes the probed Capabilities for dev. Capability
// support cannot change mid-run, so a later write simply overwrites an
// earlier one for the same device.
func StoreCapabilities(dev uint64, c Capabilities) {
	capMu.Lock()
	defer capMu.Unlock()
	capCache[dev] = c
}

// ResetCapabilityCache clears the process-wide cache. Exposed for tests
// that run multiple independent scenarios against tmpfs mounts with
// varying support in the same process.
func ResetCapabilityCache() {
	capMu.Lock()
	defer capMu.Unlock()
	capCache = map[uint64]Capabilities{}
}
