package sys

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/INLOpen/stampdb/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateShadow_CopiesPrimary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("time,a\n1.0,1\n"), 0644))
	require.NoError(t, os.WriteFile(ShadowPath(path), []byte("stale contents that are longer"), 0644))

	require.NoError(t, CreateShadow(path))

	got, err := os.ReadFile(ShadowPath(path))
	require.NoError(t, err)
	assert.Equal(t, "time,a\n1.0,1\n", string(got))
}

func TestCreateShadow_MissingPrimary(t *testing.T) {
	err := CreateShadow(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrShadowCreate)
}

func TestPublishShadow_ReplacesPrimary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))
	require.NoError(t, os.WriteFile(ShadowPath(path), []byte("new"), 0644))

	require.NoError(t, PublishShadow(path, 0, 0))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	_, err = os.Stat(ShadowPath(path))
	assert.True(t, os.IsNotExist(err))
}

func TestPublishShadow_RetriesThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))
	require.NoError(t, os.WriteFile(ShadowPath(path), []byte("new"), 0644))

	calls := 0
	restore := SetRenameFunc(func(oldpath, newpath string) error {
		calls++
		if calls < 3 {
			return errors.New("sharing violation")
		}
		return os.Rename(oldpath, newpath)
	})
	defer restore()

	require.NoError(t, PublishShadow(path, 5, 0))
	assert.Equal(t, 3, calls)
}

func TestPublishShadow_ExhaustedLeavesPrimary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))
	require.NoError(t, os.WriteFile(ShadowPath(path), []byte("new"), 0644))

	calls := 0
	restore := SetRenameFunc(func(oldpath, newpath string) error {
		calls++
		return errors.New("sharing violation")
	})
	defer restore()

	err := PublishShadow(path, 2, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrShadowPublish)
	assert.Equal(t, 3, calls)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}

func TestRename_FallsBackToCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	restore := SetRenameFunc(func(oldpath, newpath string) error {
		return errors.New("cross-device link")
	})
	defer restore()

	require.NoError(t, Rename(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveShadow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, RemoveShadow(path))

	require.NoError(t, os.WriteFile(ShadowPath(path), []byte("x"), 0644))
	require.NoError(t, RemoveShadow(path))
	_, err := os.Stat(ShadowPath(path))
	assert.True(t, os.IsNotExist(err))
}

func TestFreeSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	free, err := FreeSpace(path)
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))

	require.NoError(t, EnsureFreeSpace(path, 1))
	err = EnsureFreeSpace(path, ^uint64(0))
	assert.ErrorIs(t, err, ErrInsufficientSpace)
}
