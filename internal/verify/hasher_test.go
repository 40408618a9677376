package verify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	c := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(a, []byte("hello, world"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("hello, world"), 0o644))
	require.NoError(t, os.WriteFile(c, []byte("hello, world!"), 0o644))

	h1, err := HashFile(a)
	require.NoError(t, err)
	h2, err := HashFile(b)
	require.NoError(t, err)
	h3, err := HashFile(c)
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "identical content must hash identically")
	assert.NotEqual(t, h1, h3, "different content must hash differently")
	assert.True(t, strings.Count(h1, "") > 1)
}

func TestHashFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	h, err := HashFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, h)
}

func TestHashFileNotExist(t *testing.T) {
	_, err := HashFile("/nonexistent/path/to/nowhere")
	assert.Error(t, err)
}

func TestHashReaderMatchesHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	data := []byte("reader and file paths must agree")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fileHash, err := HashFile(path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	readerHash, err := HashReader(f)
	require.NoError(t, err)

	assert.Equal(t, fileHash, readerHash)
}
