package testing

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/blockdev"
	"github.com/dargueta/easyfs/efs"
	"github.com/dargueta/easyfs/imagefile"
	"github.com/stretchr/testify/require"
)

// CreateRandomImage creates an image with the given number of blocks, filled
// with random bytes. It is guaranteed to either return a valid slice or fail
// the test and abort.
func CreateRandomImage(totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, easyfs.BlockSize*totalBlocks)

	_, err := rand.Read(backingData)
	require.NoErrorf(
		t,
		err,
		"failed to initialize %d blocks with random bytes",
		totalBlocks,
	)
	return backingData
}

// FormatMemoryFS creates a zeroed in-memory device and formats it. The test
// aborts if formatting fails.
func FormatMemoryFS(
	t *testing.T,
	totalBlocks uint32,
	inodeBitmapBlocks uint32,
	options ...efs.Option,
) (*efs.FileSystem, *blockdev.Stream) {
	device := blockdev.NewMemory(totalBlocks)
	fs, err := efs.Create(device, totalBlocks, inodeBitmapBlocks, options...)
	require.NoError(t, err, "formatting %d-block filesystem failed", totalBlocks)
	return fs, device
}

// LoadDiskImage takes a compressed image made by [imagefile.Snapshot] and returns
// an in-memory device holding the uncompressed data.
//
//   - Writes to the device do not affect `compressedImageBytes`.
//   - The device's size is fixed to `totalBlocks` blocks.
func LoadDiskImage(
	t *testing.T, compressedImageBytes []byte, totalBlocks uint32,
) *blockdev.Stream {
	require.Greater(t, len(compressedImageBytes), 0, "compressed image is empty")

	imageBytes, err := imagefile.DecompressToBytes(bytes.NewReader(compressedImageBytes))
	require.NoError(t, err)
	require.Equal(
		t,
		int(totalBlocks)*easyfs.BlockSize,
		len(imageBytes),
		"uncompressed image is wrong size",
	)

	device, err := blockdev.NewMemoryFromBytes(imageBytes)
	require.NoError(t, err)
	return device
}

// -----------------------------------------------------------------------------

// CountingDevice wraps a block device and counts reads and writes to it.
type CountingDevice struct {
	Device easyfs.BlockDevice

	mutex  sync.Mutex
	reads  map[easyfs.BlockID]int
	writes map[easyfs.BlockID]int
}

func NewCountingDevice(device easyfs.BlockDevice) *CountingDevice {
	return &CountingDevice{
		Device: device,
		reads:  make(map[easyfs.BlockID]int),
		writes: make(map[easyfs.BlockID]int),
	}
}

func (dev *CountingDevice) ReadBlock(blockID easyfs.BlockID, buffer []byte) error {
	dev.mutex.Lock()
	dev.reads[blockID]++
	dev.mutex.Unlock()
	return dev.Device.ReadBlock(blockID, buffer)
}

func (dev *CountingDevice) WriteBlock(blockID easyfs.BlockID, buffer []byte) error {
	dev.mutex.Lock()
	dev.writes[blockID]++
	dev.mutex.Unlock()
	return dev.Device.WriteBlock(blockID, buffer)
}

// Reads returns the number of times `blockID` was read from the device.
func (dev *CountingDevice) Reads(blockID easyfs.BlockID) int {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()
	return dev.reads[blockID]
}

// Writes returns the number of times `blockID` was written to the device.
func (dev *CountingDevice) Writes(blockID easyfs.BlockID) int {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()
	return dev.writes[blockID]
}

// TotalWrites returns the number of writes to any block.
func (dev *CountingDevice) TotalWrites() int {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()

	total := 0
	for _, count := range dev.writes {
		total += count
	}
	return total
}

// -----------------------------------------------------------------------------

// FailingDevice wraps a block device and makes I/O on chosen blocks fail.
type FailingDevice struct {
	Device easyfs.BlockDevice

	mutex      sync.Mutex
	failReads  map[easyfs.BlockID]bool
	failWrites map[easyfs.BlockID]bool
}

func NewFailingDevice(device easyfs.BlockDevice) *FailingDevice {
	return &FailingDevice{
		Device:     device,
		failReads:  make(map[easyfs.BlockID]bool),
		failWrites: make(map[easyfs.BlockID]bool),
	}
}

// FailReads makes every later read of `blockID` fail.
func (dev *FailingDevice) FailReads(blockID easyfs.BlockID) {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()
	dev.failReads[blockID] = true
}

// FailWrites makes every later write of `blockID` fail.
func (dev *FailingDevice) FailWrites(blockID easyfs.BlockID) {
	dev.mutex.Lock()
	defer dev.mutex.Unlock()
	dev.failWrites[blockID] = true
}

func (dev *FailingDevice) ReadBlock(blockID easyfs.BlockID, buffer []byte) error {
	dev.mutex.Lock()
	fail := dev.failReads[blockID]
	dev.mutex.Unlock()

	if fail {
		return easyfs.ErrIOFailed.WithMessage(fmt.Sprintf("injected read failure on block %d", blockID))
	}
	return dev.Device.ReadBlock(blockID, buffer)
}

func (dev *FailingDevice) WriteBlock(blockID easyfs.BlockID, buffer []byte) error {
	dev.mutex.Lock()
	fail := dev.failWrites[blockID]
	dev.mutex.Unlock()

	if fail {
		return easyfs.ErrIOFailed.WithMessage(fmt.Sprintf("injected write failure on block %d", blockID))
	}
	return dev.Device.WriteBlock(blockID, buffer)
}
