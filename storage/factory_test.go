package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileFactoryLazyOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data")
	ff := NewFileFactory(path, false)

	exists, err := ff.Exists()
	require.NoError(t, err)
	require.False(t, exists)

	handle, err := ff.Access()
	require.NoError(t, err)
	require.NotNil(t, handle)

	again, err := ff.Access()
	require.NoError(t, err)
	require.Same(t, handle, again)

	exists, err = ff.Exists()
	require.NoError(t, err)
	require.True(t, exists)
}

func TestFileFactoryCloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	ff := NewFileFactory(path, false)

	_, err := ff.Access()
	require.NoError(t, err)
	require.NoError(t, ff.Close())
	require.NoError(t, ff.Close())
}

func TestFileFactoryDeleteRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	ff := NewFileFactory(path, false)

	_, err := ff.Access()
	require.NoError(t, err)
	require.NoError(t, ff.Delete())

	exists, err := ff.Exists()
	require.NoError(t, err)
	require.False(t, exists)
}

func TestFileFactoryDeleteOnMissingFileIsNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-created")
	ff := NewFileFactory(path, false)
	require.NoError(t, ff.Delete())
}

func TestFileFactoryGetLengthWithoutOpenHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	ff := NewFileFactory(path, false)

	handle, err := ff.Access()
	require.NoError(t, err)
	require.NoError(t, handle.WriteAt(make([]byte, PageSize), 0))
	require.NoError(t, ff.Close())

	length, err := ff.GetLength()
	require.NoError(t, err)
	require.EqualValues(t, PageSize, length)
}
