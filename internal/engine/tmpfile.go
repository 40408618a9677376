package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// createTempSibling opens a fresh, exclusively-created temp file next to
// dst, ready to be renamed into place once its contents and metadata are
// final. The name is unlikely enough to collide that O_EXCL is a
// belt-and-suspenders check rather than a contention point.
func createTempSibling(dst string, perm os.FileMode) (*os.File, string, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create parent dir %s: %w", dir, err)
	}

	tmpName := fmt.Sprintf(".%s.%s.pcp-tmp", filepath.Base(dst), uuid.New().String()[:8])
	tmpPath := filepath.Join(dir, tmpName)

	fd, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, "", fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}

	registerTmp(tmpPath)
	return fd, tmpPath, nil
}

// commitTempSibling closes fd and atomically renames tmpPath to dst.
// Callers must deregister via discardTempSibling on any earlier failure
// path instead.
func commitTempSibling(fd *os.File, tmpPath, dst string) error {
	defer deregisterTmp(tmpPath)
	if err := fd.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, dst, err)
	}
	return nil
}

// discardTempSibling closes fd (if non-nil) and removes tmpPath. Safe to
// call on a partially-constructed temp file after an error.
func discardTempSibling(fd *os.File, tmpPath string) {
	deregisterTmp(tmpPath)
	if fd != nil {
		_ = fd.Close()
	}
	_ = os.Remove(tmpPath)
}

// tmpRegistry tracks in-progress temporary files so that engine.Run can
// sweep up any left behind once the drivers finish, including on
// cancelled runs.
var globalTmpRegistry = &tmpRegistry{}

type tmpRegistry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func registerTmp(path string) {
	globalTmpRegistry.mu.Lock()
	defer globalTmpRegistry.mu.Unlock()
	if globalTmpRegistry.paths == nil {
		globalTmpRegistry.paths = make(map[string]struct{})
	}
	globalTmpRegistry.paths[path] = struct{}{}
}

func deregisterTmp(path string) {
	globalTmpRegistry.mu.Lock()
	defer globalTmpRegistry.mu.Unlock()
	delete(globalTmpRegistry.paths, path)
}

// CleanupTmpFiles removes every still-registered temp file. Called once
// on shutdown (normal or interrupted).
func CleanupTmpFiles() {
	globalTmpRegistry.mu.Lock()
	paths := make([]string, 0, len(globalTmpRegistry.paths))
	for p := range globalTmpRegistry.paths {
		paths = append(paths, p)
	}
	globalTmpRegistry.paths = nil
	globalTmpRegistry.mu.Unlock()

	for _, p := range paths {
		_ = os.Remove(p)
	}
}
