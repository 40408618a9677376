package engine

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parcp/parcp/internal/op"
	"github.com/parcp/parcp/internal/runconfig"
)

// statFileInfo builds an op.FileInfo the way the walker would, minus the
// platform-specific uid/gid/dev/ino fields the tests below never assert
// on — those come from syscall.Stat_t and aren't worth a build-tagged
// helper just for test fixtures.
func statFileInfo(t *testing.T, path string) op.FileInfo {
	t.Helper()
	info, err := os.Lstat(path)
	require.NoError(t, err)
	return op.FileInfo{
		Size:    info.Size(),
		UID:     uint32(os.Getuid()), //nolint:gosec // test fixture only
		GID:     uint32(os.Getgid()), //nolint:gosec // test fixture only
		Mode:    uint32(info.Mode()),
		ModTime: info.ModTime(),
		AccTime: info.ModTime(),
	}
}

// baseRunConfig returns a minimal, valid *runconfig.Config for driving
// copyFile/scheduleFile directly in tests, without a full engine.Run.
func baseRunConfig() *runconfig.Config {
	return &runconfig.Config{
		Driver:    runconfig.DriverParFile,
		Workers:   1,
		BlockSize: 1 << 20,
		Reflink:   runconfig.ReflinkNever,
	}
}

func newTestCtx(t *testing.T) context.Context {
	t.Helper()
	return context.Background()
}
