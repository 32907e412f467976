package blockdev_test

import (
	"bytes"
	"crypto/rand"
	goerrors "errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/blockdev"
	"github.com/dargueta/easyfs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory__WriteThenRead(t *testing.T) {
	device := blockdev.NewMemory(16)
	assert.EqualValues(t, 16, device.TotalBlocks())

	writeBuffer := make([]byte, easyfs.BlockSize)
	readBuffer := make([]byte, easyfs.BlockSize)

	for i := easyfs.BlockID(0); i < 16; i++ {
		rand.Read(writeBuffer)
		require.NoErrorf(t, device.WriteBlock(i, writeBuffer), "failed to write block %d", i)
		require.NoErrorf(t, device.ReadBlock(i, readBuffer), "failed to read block %d", i)
		assert.Equalf(
			t, writeBuffer, readBuffer, "wrote to block %d but read back different data", i)
	}
}

func TestMemory__FromBytes(t *testing.T) {
	data := make([]byte, 4*easyfs.BlockSize)
	rand.Read(data)
	original := append([]byte(nil), data...)

	device, err := blockdev.NewMemoryFromBytes(data)
	require.NoError(t, err)
	assert.EqualValues(t, 4, device.TotalBlocks())

	buffer := make([]byte, easyfs.BlockSize)
	require.NoError(t, device.ReadBlock(3, buffer))
	assert.Equal(t, original[3*easyfs.BlockSize:], buffer)
}

func TestMemory__FromBytesBadSize(t *testing.T) {
	_, err := blockdev.NewMemoryFromBytes(make([]byte, easyfs.BlockSize+1))
	assert.ErrorIs(t, err, easyfs.ErrInvalidArgument)
}

func TestStream__OutOfBounds(t *testing.T) {
	device := blockdev.NewMemory(8)
	buffer := make([]byte, easyfs.BlockSize)

	assert.NoError(t, device.ReadBlock(7, buffer), "last block should be readable")
	assert.ErrorIs(t, device.ReadBlock(8, buffer), easyfs.ErrInvalidArgument)
	assert.ErrorIs(t, device.WriteBlock(8, buffer), easyfs.ErrInvalidArgument)
}

func TestStream__WrongBufferSize(t *testing.T) {
	device := blockdev.NewMemory(8)

	err := device.ReadBlock(0, make([]byte, 100))
	assert.ErrorIs(t, err, easyfs.ErrInvalidArgument)

	err = device.WriteBlock(0, make([]byte, easyfs.BlockSize*2))
	assert.ErrorIs(t, err, easyfs.ErrInvalidArgument)
}

func TestStream__UseAfterClose(t *testing.T) {
	device := blockdev.NewMemory(8)
	require.NoError(t, device.Close())

	err := device.ReadBlock(0, make([]byte, easyfs.BlockSize))
	assert.ErrorIs(t, err, easyfs.ErrInvalidFileDescriptor)
	assert.NoError(t, device.Close(), "closing twice should be harmless")
}

func TestImage__CreateThenOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fs.img")

	device, err := blockdev.CreateImage(path, 32)
	require.NoError(t, err)

	block := bytes.Repeat([]byte{0xa5}, easyfs.BlockSize)
	require.NoError(t, device.WriteBlock(31, block))
	require.NoError(t, device.Sync())
	require.NoError(t, device.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 32*easyfs.BlockSize, info.Size())

	reopened, err := blockdev.OpenImage(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.EqualValues(t, 32, reopened.TotalBlocks())
	readBack := make([]byte, easyfs.BlockSize)
	require.NoError(t, reopened.ReadBlock(31, readBack))
	assert.Equal(t, block, readBack)
}

func TestImage__OpenMissing(t *testing.T) {
	_, err := blockdev.OpenImage(filepath.Join(t.TempDir(), "missing.img"))
	assert.ErrorIs(t, err, easyfs.ErrNotFound)
}

func TestImage__OpenBadSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odd.img")
	require.NoError(t, os.WriteFile(path, make([]byte, 700), 0o644))

	_, err := blockdev.OpenImage(path)
	assert.ErrorIs(t, err, easyfs.ErrInvalidFileSystem)
}

// brokenStream seeks fine but fails every read and write.
type brokenStream struct {
	readErr  error
	writeErr error
}

func (s *brokenStream) Read([]byte) (int, error)       { return 0, s.readErr }
func (s *brokenStream) Write([]byte) (int, error)      { return 0, s.writeErr }
func (s *brokenStream) Seek(int64, int) (int64, error) { return 0, nil }

var _ io.ReadWriteSeeker = (*brokenStream)(nil)

func TestStream__HostFailures(t *testing.T) {
	device := blockdev.NewStream(
		&brokenStream{
			readErr:  goerrors.New("cable unplugged"),
			writeErr: &os.PathError{Op: "write", Path: "image.bin", Err: syscall.ENOSPC},
		},
		4,
	)
	buffer := make([]byte, easyfs.BlockSize)

	err := device.ReadBlock(1, buffer)
	assert.ErrorIs(t, err, easyfs.ErrIOFailed)
	assert.Equal(t, errors.EIO, errors.ErrnoOf(err))
	var driverErr errors.DriverError
	require.True(t, goerrors.As(err, &driverErr), "host error wasn't converted")
	assert.Contains(t, err.Error(), "reading block 1: cable unplugged")

	err = device.WriteBlock(2, buffer)
	assert.ErrorIs(t, err, easyfs.ErrNoSpaceOnDevice)
	assert.ErrorIs(t, err, syscall.ENOSPC)
	assert.Equal(t, errors.ENOSPC, errors.ErrnoOf(err))
}
