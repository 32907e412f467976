package blockdev

import (
	"fmt"
	"os"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/errors"
)

// CreateImage creates (or overwrites) an image file on the host, sized to hold
// exactly `totalBlocks` blocks.
func CreateImage(path string, totalBlocks uint32) (*Stream, error) {
	if totalBlocks == 0 {
		return nil, easyfs.ErrInvalidArgument.WithMessage("image must have at least one block")
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.FromHostError(err)
	}

	err = file.Truncate(int64(totalBlocks) * easyfs.BlockSize)
	if err != nil {
		file.Close()
		return nil, errors.FromHostError(err)
	}
	return NewStream(file, totalBlocks), nil
}

// OpenImage opens an existing image file. The number of blocks is derived from
// the size of the file, which must be a multiple of [easyfs.BlockSize].
//
// Errors from the host keep their errno code, so a missing file gives an error
// matching [easyfs.ErrNotFound].
func OpenImage(path string) (*Stream, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.FromHostError(err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.FromHostError(err)
	}

	size := info.Size()
	if size == 0 || size%easyfs.BlockSize != 0 {
		file.Close()
		return nil, easyfs.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf(
				"%s: size %d is not a non-zero multiple of %d",
				path,
				size,
				easyfs.BlockSize,
			),
		)
	}
	return NewStream(file, uint32(size/easyfs.BlockSize)), nil
}
