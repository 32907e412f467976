package imagefile

import (
	"fmt"
	"io"

	"github.com/dargueta/easyfs"
)

// blockReader presents blocks [0, totalBlocks) of a device as one byte stream.
type blockReader struct {
	device      easyfs.BlockDevice
	totalBlocks uint32
	next        uint32
	buffer      [easyfs.BlockSize]byte
	pending     []byte
}

func (reader *blockReader) Read(p []byte) (int, error) {
	if len(reader.pending) == 0 {
		if reader.next >= reader.totalBlocks {
			return 0, io.EOF
		}

		err := reader.device.ReadBlock(easyfs.BlockID(reader.next), reader.buffer[:])
		if err != nil {
			return 0, easyfs.ErrIOFailed.Wrap(err)
		}
		reader.next++
		reader.pending = reader.buffer[:]
	}

	n := copy(p, reader.pending)
	reader.pending = reader.pending[n:]
	return n, nil
}

// blockWriter writes a byte stream to consecutive blocks of a device, refusing
// anything past the last block.
type blockWriter struct {
	device      easyfs.BlockDevice
	totalBlocks uint32
	next        uint32
	buffer      [easyfs.BlockSize]byte
	filled      int
}

func (writer *blockWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if writer.next >= writer.totalBlocks {
			return written, easyfs.ErrNoSpaceOnDevice.WithMessage(
				fmt.Sprintf("image is larger than %d blocks", writer.totalBlocks),
			)
		}

		n := copy(writer.buffer[writer.filled:], p)
		writer.filled += n
		written += n
		p = p[n:]

		if writer.filled == easyfs.BlockSize {
			err := writer.device.WriteBlock(easyfs.BlockID(writer.next), writer.buffer[:])
			if err != nil {
				return written, easyfs.ErrIOFailed.Wrap(err)
			}
			writer.next++
			writer.filled = 0
		}
	}
	return written, nil
}

// Snapshot writes the first `totalBlocks` blocks of `device` to `output` as a
// compressed image. It bypasses any block cache, so a mounted filesystem must be
// synced first.
func Snapshot(device easyfs.BlockDevice, totalBlocks uint32, output io.Writer) error {
	_, err := Compress(&blockReader{device: device, totalBlocks: totalBlocks}, output)
	return err
}

// Restore decompresses an image made by [Snapshot] onto `device`. The image
// must be exactly `totalBlocks` blocks long.
func Restore(input io.Reader, device easyfs.BlockDevice, totalBlocks uint32) error {
	writer := blockWriter{device: device, totalBlocks: totalBlocks}
	size, err := Decompress(input, &writer)
	if err != nil {
		return err
	}

	expected := int64(totalBlocks) * easyfs.BlockSize
	if size != expected {
		return easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("image is %d bytes, expected %d (%d blocks)", size, expected, totalBlocks),
		)
	}
	return nil
}
