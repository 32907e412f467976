package blockdev

import (
	"fmt"

	"github.com/dargueta/easyfs"
	"github.com/xaionaro-go/bytesextra"
)

// NewMemory creates a zeroed in-memory device of `totalBlocks` blocks.
func NewMemory(totalBlocks uint32) *Stream {
	device, _ := NewMemoryFromBytes(make([]byte, int(totalBlocks)*easyfs.BlockSize))
	return device
}

// NewMemoryFromBytes creates an in-memory device whose storage is `data`. The
// length of `data` must be a multiple of [easyfs.BlockSize], and its size is
// fixed; the device can't grow.
func NewMemoryFromBytes(data []byte) (*Stream, error) {
	if len(data)%easyfs.BlockSize != 0 {
		return nil, easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"image size must be a multiple of %d bytes, got %d (remainder %d)",
				easyfs.BlockSize,
				len(data),
				len(data)%easyfs.BlockSize,
			),
		)
	}

	return NewStream(
		bytesextra.NewReadWriteSeeker(data),
		uint32(len(data)/easyfs.BlockSize),
	), nil
}
