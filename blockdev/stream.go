// Package blockdev provides block devices for the filesystem: a generic one
// sitting on top of any seekable stream, plus constructors for in-memory images
// and image files on the host.

package blockdev

import (
	goerrors "errors"
	"fmt"
	"io"
	"sync"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/errors"
)

// Stream is an abstraction layer around a stream to make it look like a block
// device, i.e. something that can only be read from or written to one block at
// a time.
//
// A single mutex serializes all I/O, since seeking and then reading or writing
// is not atomic for most streams.
type Stream struct {
	mutex       sync.Mutex
	stream      io.ReadWriteSeeker
	totalBlocks uint32
	closed      bool
}

// NewStream creates a block device of `totalBlocks` blocks on top of `stream`.
// The stream doesn't need to be that large already; reads past its end give
// zeroed blocks, and writes extend it (if the stream allows).
func NewStream(stream io.ReadWriteSeeker, totalBlocks uint32) *Stream {
	return &Stream{
		stream:      stream,
		totalBlocks: totalBlocks,
	}
}

// TotalBlocks gives the size of the device, in blocks.
func (device *Stream) TotalBlocks() uint32 {
	return device.totalBlocks
}

// checkIO verifies that a block can be accessed with the given buffer. If not,
// it returns an error describing the exact conditions.
func (device *Stream) checkIO(blockID easyfs.BlockID, buffer []byte) error {
	if device.closed {
		return easyfs.ErrInvalidFileDescriptor.WithMessage("device is closed")
	}
	if uint32(blockID) >= device.totalBlocks {
		return easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"invalid block ID %d: not in range [0, %d)",
				blockID,
				device.totalBlocks,
			),
		)
	}
	if len(buffer) != easyfs.BlockSize {
		return easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"buffer must be exactly %d bytes, got %d",
				easyfs.BlockSize,
				len(buffer),
			),
		)
	}
	return nil
}

// seekToBlock sets the stream pointer to the offset of a block.
func (device *Stream) seekToBlock(blockID easyfs.BlockID) error {
	blockOffset := int64(blockID) * easyfs.BlockSize
	_, err := device.stream.Seek(blockOffset, io.SeekStart)
	if err != nil {
		return errors.FromHostError(fmt.Errorf("seeking to block %d: %w", blockID, err))
	}
	return nil
}

// ReadBlock implements [easyfs.BlockDevice].
func (device *Stream) ReadBlock(blockID easyfs.BlockID, buffer []byte) error {
	device.mutex.Lock()
	defer device.mutex.Unlock()

	err := device.checkIO(blockID, buffer)
	if err != nil {
		return err
	}

	err = device.seekToBlock(blockID)
	if err != nil {
		return err
	}

	n, err := io.ReadFull(device.stream, buffer)
	if err != nil {
		// A short stream is treated as if the missing part were all nulls, the
		// same way a sparse file reads on the host.
		if goerrors.Is(err, io.EOF) || goerrors.Is(err, io.ErrUnexpectedEOF) {
			for i := n; i < len(buffer); i++ {
				buffer[i] = 0
			}
			return nil
		}
		return errors.FromHostError(fmt.Errorf("reading block %d: %w", blockID, err))
	}
	return nil
}

// WriteBlock implements [easyfs.BlockDevice].
func (device *Stream) WriteBlock(blockID easyfs.BlockID, buffer []byte) error {
	device.mutex.Lock()
	defer device.mutex.Unlock()

	err := device.checkIO(blockID, buffer)
	if err != nil {
		return err
	}

	err = device.seekToBlock(blockID)
	if err != nil {
		return err
	}

	n, err := device.stream.Write(buffer)
	if err != nil {
		return errors.FromHostError(fmt.Errorf("writing block %d: %w", blockID, err))
	}
	if n != len(buffer) {
		return easyfs.ErrIOFailed.WithMessage(
			fmt.Sprintf("short write to block %d: %d of %d bytes", blockID, n, len(buffer)),
		)
	}
	return nil
}

// Sync pushes buffered writes to stable storage if the underlying stream
// supports it. Otherwise it's a no-op.
func (device *Stream) Sync() error {
	device.mutex.Lock()
	defer device.mutex.Unlock()

	syncer, ok := device.stream.(easyfs.Syncer)
	if !ok {
		return nil
	}

	err := syncer.Sync()
	if err != nil {
		return errors.FromHostError(err)
	}
	return nil
}

// Close closes the underlying stream if it's an [io.Closer]. The device must not
// be used after calling this.
func (device *Stream) Close() error {
	device.mutex.Lock()
	defer device.mutex.Unlock()

	if device.closed {
		return nil
	}
	device.closed = true

	closer, ok := device.stream.(io.Closer)
	if !ok {
		return nil
	}
	return closer.Close()
}
