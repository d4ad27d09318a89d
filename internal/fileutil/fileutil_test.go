package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic_Success(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteAtomic(path, []byte("payload"), 0o600))

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteAtomic_Overwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteAtomic(path, []byte("old"), 0o600))
	require.NoError(t, WriteAtomic(path, []byte("new"), 0o600))

	data, err := os.ReadFile(path) //nolint:gosec // test path
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestWriteAtomic_EmptyPath(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, WriteAtomic("", nil, 0o600), ErrEmptyPath)
}
