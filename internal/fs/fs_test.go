package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	assert.NotZero(t, f.Fd())

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	_, err = f.WriteAt([]byte("J"), 0)
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.NoError(t, f.Close())

	data, err := ReadFile(lfs, fpath)
	require.NoError(t, err)
	assert.Equal(t, "Jello", string(data))

	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	linked := filepath.Join(dir, "linked.txt")
	assert.NoError(t, lfs.Link(fpath, linked))
	err = lfs.Link(fpath, linked)
	assert.True(t, os.IsExist(err))

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))

	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, WriteFileSync(Default, path, []byte("abc"), 0o644))
	require.NoError(t, WriteFileSync(Default, path, []byte("x"), 0o644))

	data, err := ReadFile(Default, path)
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestFaultyFS_Writes(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("faulty", Fault{FailAfterBytes: 5})

	fpath := filepath.Join(tmp, "faulty.txt")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.Write([]byte("!"))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 0, n)

	_, err = f.WriteAt([]byte("!"), 0)
	assert.ErrorIs(t, err, ErrInjected)
}

func TestFaultyFS_SyncLinkRename(t *testing.T) {
	tmp := t.TempDir()
	boom := errors.New("boom")
	ffs := NewFaultyFS(nil)
	ffs.AddRule("target", Fault{FailAfterBytes: -1, FailOnSync: true, FailOnLink: true, FailOnRename: true, Err: boom})

	src := filepath.Join(tmp, "src")
	require.NoError(t, WriteFileSync(ffs, src, []byte("x"), 0o644))

	target := filepath.Join(tmp, "target")
	assert.ErrorIs(t, ffs.Link(src, target), boom)
	assert.ErrorIs(t, ffs.Rename(src, target), boom)
	assert.ErrorIs(t, WriteFileSync(ffs, target, []byte("x"), 0o644), boom)

	ffs.ClearRules()
	require.NoError(t, ffs.Remove(target))
	assert.NoError(t, ffs.Link(src, target))
}

func TestFaultyFS_FailOnClose(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("c", Fault{FailAfterBytes: -1, FailOnClose: true})

	f, err := ffs.OpenFile(filepath.Join(t.TempDir(), "c"), os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Close(), ErrInjected)
}
