package fdtable_test

import (
	"testing"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/errors"
	"github.com/dargueta/easyfs/fdtable"
	efstest "github.com/dargueta/easyfs/testing"
	"github.com/dargueta/easyfs/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T, maxFiles int) *fdtable.Table {
	fs, _ := efstest.FormatMemoryFS(t, 4096, 1)
	root, err := vfs.Root(fs)
	require.NoError(t, err)
	return fdtable.New(root, maxFiles)
}

func TestTable__OpenWriteReadClose(t *testing.T) {
	table := newTable(t, 8)

	fd := table.Open("file", easyfs.O_CREATE|easyfs.O_WRONLY)
	require.Equal(t, fdtable.FirstFD, fd, "first descriptor should be right after stdio")
	assert.Equal(t, 5, table.Write(fd, []byte("hello")))
	assert.Equal(t, 0, table.Close(fd))

	fd = table.Open("file", easyfs.O_RDONLY)
	require.Equal(t, fdtable.FirstFD, fd, "closed descriptor should be reused")

	buffer := make([]byte, 16)
	n := table.Read(fd, buffer)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buffer[:n]))
	assert.Equal(t, 0, table.Read(fd, buffer), "expected end of file")
	assert.Nil(t, table.Err())
}

func TestTable__LowestFreeDescriptor(t *testing.T) {
	table := newTable(t, 8)

	a := table.Open("a", easyfs.O_CREATE|easyfs.O_RDWR)
	b := table.Open("b", easyfs.O_CREATE|easyfs.O_RDWR)
	c := table.Open("c", easyfs.O_CREATE|easyfs.O_RDWR)
	assert.Equal(t, []int{3, 4, 5}, []int{a, b, c})

	assert.Equal(t, 0, table.Close(b))
	assert.Equal(t, b, table.Open("d", easyfs.O_CREATE|easyfs.O_RDWR))
}

func TestTable__TooManyFiles(t *testing.T) {
	table := newTable(t, 5)

	assert.Equal(t, 3, table.Open("a", easyfs.O_CREATE|easyfs.O_RDWR))
	assert.Equal(t, 4, table.Open("b", easyfs.O_CREATE|easyfs.O_RDWR))
	assert.Equal(t, -int(errors.EMFILE), table.Open("c", easyfs.O_CREATE|easyfs.O_RDWR))
	assert.ErrorIs(t, table.Err(), easyfs.ErrTooManyOpenFiles)
}

func TestTable__BadDescriptors(t *testing.T) {
	table := newTable(t, 8)
	ebadf := -int(errors.EBADF)

	for _, fd := range []int{-1, 0, 1, 2, 3, 100} {
		assert.Equalf(t, ebadf, table.Read(fd, make([]byte, 1)), "read fd %d", fd)
		assert.Equalf(t, ebadf, table.Write(fd, []byte("x")), "write fd %d", fd)
		assert.Equalf(t, ebadf, table.Close(fd), "close fd %d", fd)
		assert.Equalf(t, ebadf, table.Fstat(fd, &vfs.Stat{}), "fstat fd %d", fd)
	}
	assert.ErrorIs(t, table.Err(), easyfs.ErrInvalidFileDescriptor)
}

func TestTable__ErrorCodes(t *testing.T) {
	table := newTable(t, 8)

	assert.Equal(t, -int(errors.ENOENT), table.Open("missing", easyfs.O_RDONLY))

	fd := table.Open("ro", easyfs.O_CREATE|easyfs.O_RDONLY)
	require.GreaterOrEqual(t, fd, fdtable.FirstFD)
	assert.Equal(t, -int(errors.EACCES), table.Write(fd, []byte("x")))

	long := "this-name-is-much-too-long-for-a-directory-entry"
	assert.Equal(t, -int(errors.ENAMETOOLONG), table.Open(long, easyfs.O_CREATE|easyfs.O_RDWR))
}

func TestTable__FstatAndLinks(t *testing.T) {
	table := newTable(t, 8)

	fd := table.Open("orig", easyfs.O_CREATE|easyfs.O_RDWR)
	require.GreaterOrEqual(t, fd, fdtable.FirstFD)

	assert.Equal(t, 0, table.LinkAt("orig", "alias"))
	assert.Equal(t, -int(errors.EEXIST), table.LinkAt("orig", "alias"))
	assert.Equal(t, -int(errors.EINVAL), table.LinkAt("orig", "orig"))

	var stat vfs.Stat
	require.Equal(t, 0, table.Fstat(fd, &stat))
	assert.EqualValues(t, 2, stat.Nlink)
	assert.EqualValues(t, easyfs.S_IFREG, stat.Mode)
	assert.EqualValues(t, 1, stat.Ino)

	assert.Equal(t, 0, table.UnlinkAt("orig"))
	require.Equal(t, 0, table.Fstat(fd, &stat))
	assert.EqualValues(t, 1, stat.Nlink)

	assert.Equal(t, -int(errors.ENOENT), table.UnlinkAt("orig"))
}

func TestTable__CloseAll(t *testing.T) {
	table := newTable(t, 8)
	a := table.Open("a", easyfs.O_CREATE|easyfs.O_RDWR)
	b := table.Open("b", easyfs.O_CREATE|easyfs.O_RDWR)

	assert.Equal(t, 0, table.CloseAll())
	assert.Equal(t, -int(errors.EBADF), table.Close(a))
	assert.Equal(t, -int(errors.EBADF), table.Close(b))
}

func TestUnlink__WhileOpen(t *testing.T) {
	table := newTable(t, 8)

	fd := table.Open("a", easyfs.O_CREATE|easyfs.O_RDWR)
	require.GreaterOrEqual(t, fd, fdtable.FirstFD)
	assert.Equal(t, 0, table.UnlinkAt("a"))

	var stat vfs.Stat
	require.Equal(t, 0, table.Fstat(fd, &stat))
	assert.EqualValues(t, 0, stat.Nlink)

	other := table.Open("b", easyfs.O_CREATE|easyfs.O_RDWR)
	require.GreaterOrEqual(t, other, fdtable.FirstFD)
	assert.Equal(t, 8, table.Write(other, []byte("bbbbbbbb")))

	var otherStat vfs.Stat
	require.Equal(t, 0, table.Fstat(other, &otherStat))
	assert.NotEqual(t, stat.Ino, otherStat.Ino, "unlinked open file's inode was reused")

	assert.Equal(t, 4, table.Write(fd, []byte("AAAA")))
	assert.Equal(t, 0, table.Close(fd))
	assert.Equal(t, 0, table.Close(other))

	check := table.Open("b", easyfs.O_RDONLY)
	require.GreaterOrEqual(t, check, fdtable.FirstFD)
	buffer := make([]byte, 16)
	n := table.Read(check, buffer)
	assert.Equal(t, "bbbbbbbb", string(buffer[:n]))
	assert.Equal(t, -int(errors.ENOENT), table.Open("a", easyfs.O_RDONLY))
	assert.ErrorIs(t, table.Err(), easyfs.ErrNotFound)
}

func TestTable__TooManyFilesReleasesInode(t *testing.T) {
	table := newTable(t, 4)

	assert.Equal(t, 3, table.Open("kept", easyfs.O_CREATE|easyfs.O_RDWR))
	assert.Equal(t, -int(errors.EMFILE), table.Open("extra", easyfs.O_CREATE|easyfs.O_RDWR))

	// The failed open must not keep "extra" alive once it's unlinked.
	assert.Equal(t, 0, table.UnlinkAt("extra"))
	assert.Equal(t, 0, table.Close(3))
	assert.Equal(t, 3, table.Open("extra", easyfs.O_CREATE|easyfs.O_RDWR))

	var stat vfs.Stat
	require.Equal(t, 0, table.Fstat(3, &stat))
	assert.EqualValues(t, 2, stat.Ino, "freed inode slot wasn't reused")
}
