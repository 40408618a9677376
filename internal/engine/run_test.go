package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcp/parcp/internal/progress"
	"github.com/parcp/parcp/internal/runconfig"
)

func TestRun_ParFileCopiesTree(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("world"), 0o644))

	cfg := &runconfig.Config{
		Sources:   []string{src},
		Target:    dst,
		Recursive: true,
		Driver:    runconfig.DriverParFile,
		Workers:   2,
		BlockSize: 1 << 20,
		Reflink:   runconfig.ReflinkNever,
	}

	result := Run(context.Background(), cfg, nil, nil)
	require.NoError(t, result.Err)
	assert.EqualValues(t, 2, result.Stats.FilesCopied)
	assert.EqualValues(t, 10, result.Stats.BytesCopied)

	gotA, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(gotA))

	gotB, err := os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(gotB))
}

func TestRun_ParBlockCopiesTree(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "big.bin"), make([]byte, 5000), 0o644))

	cfg := &runconfig.Config{
		Sources:   []string{src},
		Target:    dst,
		Recursive: true,
		Driver:    runconfig.DriverParBlock,
		Workers:   2,
		BlockSize: 1024,
		Reflink:   runconfig.ReflinkNever,
	}

	result := Run(context.Background(), cfg, nil, nil)
	require.NoError(t, result.Err)
	assert.EqualValues(t, 1, result.Stats.FilesCopied)
	assert.EqualValues(t, 5000, result.Stats.BytesCopied)

	fi, err := os.Stat(filepath.Join(dst, "big.bin"))
	require.NoError(t, err)
	assert.EqualValues(t, 5000, fi.Size())
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := &runconfig.Config{}
	result := Run(context.Background(), cfg, nil, nil)
	assert.Error(t, result.Err)
}

func TestRun_NoClobberSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	srcFile := filepath.Join(dir, "a.txt")
	dstFile := filepath.Join(dir, "b.txt")

	require.NoError(t, os.WriteFile(srcFile, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dstFile, []byte("old"), 0o644))

	events := make(chan progress.Event, 16)
	cfg := &runconfig.Config{
		Sources:           []string{srcFile},
		Target:            dstFile,
		NoTargetDirectory: true,
		Driver:            runconfig.DriverParFile,
		Workers:           2,
		BlockSize:         1 << 20,
		Reflink:           runconfig.ReflinkNever,
		NoClobber:         true,
	}

	result := Run(context.Background(), cfg, progress.Sink(events), nil)
	close(events)
	require.NoError(t, result.Err)
	assert.EqualValues(t, 0, result.Stats.FilesCopied)

	got, err := os.ReadFile(dstFile)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}

// TestRun_NoProgressSuppressesEvents is spec.md §4.7's producer-side
// short-circuit: with NoProgress set, Run must not deliver anything on
// the caller's sink even though one was supplied, rather than relying
// on the caller to discard it downstream.
func TestRun_NoProgressSuppressesEvents(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0o644))

	events := make(chan progress.Event, 16)
	cfg := &runconfig.Config{
		Sources:    []string{src},
		Target:     dst,
		Recursive:  true,
		Driver:     runconfig.DriverParFile,
		Workers:    2,
		BlockSize:  1 << 20,
		Reflink:    runconfig.ReflinkNever,
		NoProgress: true,
	}

	result := Run(context.Background(), cfg, progress.Sink(events), nil)
	require.NoError(t, result.Err)
	close(events)

	count := 0
	for range events {
		count++
	}
	assert.Zero(t, count)
}
