package vfs_test

import (
	"io"
	"testing"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFile__MissingWithoutCreate(t *testing.T) {
	root, _, _ := newRoot(t, 4096)
	_, err := vfs.OpenFile(root, "missing", easyfs.O_RDONLY)
	assert.ErrorIs(t, err, easyfs.ErrNotFound)
}

func TestOpenFile__CreateWriteSeekRead(t *testing.T) {
	root, _, _ := newRoot(t, 4096)

	file, err := vfs.OpenFile(root, "hello.txt", easyfs.O_CREATE|easyfs.O_RDWR)
	require.NoError(t, err)
	assert.True(t, file.Readable())
	assert.True(t, file.Writable())

	n, err := file.Write([]byte("hello, "))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	_, err = file.Write([]byte("world"))
	require.NoError(t, err)

	position, err := file.Seek(0, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 0, position)

	content, err := file.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(content))

	position, err = file.Seek(-5, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 7, position)

	position, err = file.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	assert.EqualValues(t, 9, position)

	buffer := make([]byte, 10)
	n, err = file.Read(buffer)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "rld", string(buffer[:n]))

	require.NoError(t, file.Close())
}

func TestOpenFile__CreateEmptiesExisting(t *testing.T) {
	root, _, _ := newRoot(t, 4096)

	inode, err := root.Create("existing")
	require.NoError(t, err)
	_, err = inode.WriteAt([]byte("old data"), 0)
	require.NoError(t, err)

	file, err := vfs.OpenFile(root, "existing", easyfs.O_CREATE|easyfs.O_WRONLY)
	require.NoError(t, err)
	assert.Equal(t, inode.InodeID(), file.Inode().InodeID())

	size, err := inode.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}

func TestOpenFile__Truncate(t *testing.T) {
	root, _, _ := newRoot(t, 4096)

	inode, err := root.Create("t")
	require.NoError(t, err)
	_, err = inode.WriteAt([]byte("data"), 0)
	require.NoError(t, err)

	_, err = vfs.OpenFile(root, "t", easyfs.O_RDONLY)
	require.NoError(t, err)
	size, err := inode.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 4, size, "opening without O_TRUNC shouldn't truncate")

	_, err = vfs.OpenFile(root, "t", easyfs.O_RDWR|easyfs.O_TRUNC)
	require.NoError(t, err)
	size, err = inode.Size()
	require.NoError(t, err)
	assert.EqualValues(t, 0, size)
}

func TestFile__Permissions(t *testing.T) {
	root, _, _ := newRoot(t, 4096)
	_, err := root.Create("p")
	require.NoError(t, err)

	readOnly, err := vfs.OpenFile(root, "p", easyfs.O_RDONLY)
	require.NoError(t, err)
	assert.False(t, readOnly.Writable())
	_, err = readOnly.Write([]byte("x"))
	assert.ErrorIs(t, err, easyfs.ErrPermissionDenied)
	_, err = readOnly.WriteAt([]byte("x"), 0)
	assert.ErrorIs(t, err, easyfs.ErrPermissionDenied)

	writeOnly, err := vfs.OpenFile(root, "p", easyfs.O_WRONLY)
	require.NoError(t, err)
	assert.False(t, writeOnly.Readable())
	_, err = writeOnly.Read(make([]byte, 1))
	assert.ErrorIs(t, err, easyfs.ErrPermissionDenied)
}

func TestFile__Append(t *testing.T) {
	root, _, _ := newRoot(t, 4096)

	file, err := vfs.OpenFile(root, "log", easyfs.O_CREATE|easyfs.O_RDWR|easyfs.O_APPEND)
	require.NoError(t, err)

	_, err = file.Write([]byte("one "))
	require.NoError(t, err)
	_, err = file.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = file.Write([]byte("two"))
	require.NoError(t, err)

	_, err = file.WriteAt([]byte("x"), 0)
	assert.ErrorIs(t, err, easyfs.ErrPermissionDenied)

	buffer := make([]byte, 7)
	_, err = file.ReadAt(buffer, 0)
	require.NoError(t, err)
	assert.Equal(t, "one two", string(buffer))
}

func TestFile__SeekErrors(t *testing.T) {
	root, _, _ := newRoot(t, 4096)
	file, err := vfs.OpenFile(root, "s", easyfs.O_CREATE|easyfs.O_RDWR)
	require.NoError(t, err)

	_, err = file.Seek(-1, io.SeekStart)
	assert.ErrorIs(t, err, easyfs.ErrInvalidArgument)

	_, err = file.Seek(0, 42)
	assert.ErrorIs(t, err, easyfs.ErrInvalidArgument)

	// Seeking past the end and writing leaves a zeroed gap.
	_, err = file.Seek(600, io.SeekStart)
	require.NoError(t, err)
	_, err = file.Write([]byte{0xff})
	require.NoError(t, err)

	buffer := make([]byte, 601)
	n, err := file.ReadAt(buffer, 0)
	require.NoError(t, err)
	assert.Equal(t, 601, n)
	assert.Equal(t, make([]byte, 600), buffer[:600])
	assert.EqualValues(t, 0xff, buffer[600])
}

func TestFile__UseAfterClose(t *testing.T) {
	root, _, _ := newRoot(t, 4096)
	file, err := vfs.OpenFile(root, "closed", easyfs.O_CREATE|easyfs.O_RDWR)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	_, err = file.Read(make([]byte, 1))
	assert.ErrorIs(t, err, easyfs.ErrInvalidFileDescriptor)
	_, err = file.Write([]byte("x"))
	assert.ErrorIs(t, err, easyfs.ErrInvalidFileDescriptor)
	_, err = file.Seek(0, io.SeekStart)
	assert.ErrorIs(t, err, easyfs.ErrInvalidFileDescriptor)
	_, err = file.Stat()
	assert.ErrorIs(t, err, easyfs.ErrInvalidFileDescriptor)
	assert.ErrorIs(t, file.Close(), easyfs.ErrInvalidFileDescriptor)
}

func TestFile__Stat(t *testing.T) {
	root, _, _ := newRoot(t, 4096)
	file, err := vfs.OpenFile(root, "st", easyfs.O_CREATE|easyfs.O_RDWR)
	require.NoError(t, err)
	require.NoError(t, vfs.LinkAt(root, "st", "st2"))

	stat, err := file.Stat()
	require.NoError(t, err)
	assert.Equal(t, vfs.Stat{Dev: 0, Ino: 1, Mode: easyfs.S_IFREG, Nlink: 2}, stat)

	rootStat, err := vfs.StatInode(root)
	require.NoError(t, err)
	assert.EqualValues(t, easyfs.S_IFDIR, rootStat.Mode)
	assert.EqualValues(t, 0, rootStat.Ino)
}

func TestLinkAt__SameName(t *testing.T) {
	root, _, _ := newRoot(t, 4096)
	_, err := root.Create("same")
	require.NoError(t, err)

	err = vfs.LinkAt(root, "same", "same")
	assert.ErrorIs(t, err, easyfs.ErrInvalidArgument)

	err = vfs.LinkAt(root, "absent", "other")
	assert.ErrorIs(t, err, easyfs.ErrNotFound)
}

func TestUnlinkAt(t *testing.T) {
	root, _, _ := newRoot(t, 4096)
	_, err := root.Create("gone")
	require.NoError(t, err)

	require.NoError(t, vfs.UnlinkAt(root, "gone"))
	_, err = root.Find("gone")
	assert.ErrorIs(t, err, easyfs.ErrNotFound)

	assert.ErrorIs(t, vfs.UnlinkAt(root, "gone"), easyfs.ErrNotFound)
}
