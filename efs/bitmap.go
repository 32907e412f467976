package efs

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/layout"
)

// Bitmap is an allocation bitmap stored on disk in a run of consecutive blocks.
// A set bit means the unit is in use. Bits are numbered from the least
// significant bit of the first byte of the first block.
//
// All access goes through the block cache, so the caller needs to hold the
// filesystem lock.
type Bitmap struct {
	startBlock easyfs.BlockID
	blocks     uint32
	// limit is the number of usable bits. The last block of the bitmap can
	// have more bits than there are units to track.
	limit uint32
}

// NewBitmap creates a bitmap over `blocks` blocks starting at `startBlock`,
// tracking `limit` units.
func NewBitmap(startBlock easyfs.BlockID, blocks uint32, limit uint32) Bitmap {
	if limit > blocks*layout.BitsPerBitmapBlock {
		panic(
			fmt.Sprintf(
				"%d blocks of bitmap can't track %d units", blocks, limit,
			),
		)
	}
	return Bitmap{startBlock: startBlock, blocks: blocks, limit: limit}
}

// Maximum returns the number of units the bitmap tracks.
func (bm Bitmap) Maximum() uint32 {
	return bm.limit
}

// locate converts a unit number to the block holding its bit and the bit's
// position within that block.
func (bm Bitmap) locate(unit uint32) (easyfs.BlockID, int) {
	return bm.startBlock + easyfs.BlockID(unit/layout.BitsPerBitmapBlock),
		int(unit % layout.BitsPerBitmapBlock)
}

// Alloc finds the first free unit, marks it used, and returns it. If there are
// none left, it fails with [easyfs.ErrNoSpaceOnDevice].
func (bm Bitmap) Alloc(store layout.Storage) (uint32, error) {
	for blockIndex := uint32(0); blockIndex < bm.blocks; blockIndex++ {
		blockID := bm.startBlock + easyfs.BlockID(blockIndex)
		firstUnit := blockIndex * layout.BitsPerBitmapBlock
		found := -1

		err := store.Read(blockID, 0, func(data []byte) error {
			for byteIndex, value := range data {
				// Skip whole bytes that are full.
				if value == 0xff {
					continue
				}
				for bit := byteIndex * 8; bit < (byteIndex+1)*8; bit++ {
					if firstUnit+uint32(bit) >= bm.limit {
						return nil
					}
					if !bitmap.Get(data, bit) {
						found = bit
						return nil
					}
				}
			}
			return nil
		})
		if err != nil {
			return 0, err
		}

		if found >= 0 {
			err = store.Modify(blockID, 0, func(data []byte) error {
				bitmap.Set(data, found, true)
				return nil
			})
			return firstUnit + uint32(found), err
		}
	}

	return 0, easyfs.ErrNoSpaceOnDevice.WithMessage(
		fmt.Sprintf("all %d units in bitmap at block %d are in use", bm.limit, bm.startBlock),
	)
}

// Dealloc marks a unit as free. Freeing a unit that's already free is not
// detected.
func (bm Bitmap) Dealloc(store layout.Storage, unit uint32) error {
	if unit >= bm.limit {
		return easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unit %d not in range [0, %d)", unit, bm.limit),
		)
	}

	blockID, bit := bm.locate(unit)
	return store.Modify(blockID, 0, func(data []byte) error {
		bitmap.Set(data, bit, false)
		return nil
	})
}

// IsSet returns true if the unit is in use.
func (bm Bitmap) IsSet(store layout.Storage, unit uint32) (bool, error) {
	if unit >= bm.limit {
		return false, easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("unit %d not in range [0, %d)", unit, bm.limit),
		)
	}

	blockID, bit := bm.locate(unit)
	isSet := false
	err := store.Read(blockID, 0, func(data []byte) error {
		isSet = bitmap.Get(data, bit)
		return nil
	})
	return isSet, err
}

// CountSet returns the number of units in use.
func (bm Bitmap) CountSet(store layout.Storage) (uint32, error) {
	total := uint32(0)
	for blockIndex := uint32(0); blockIndex < bm.blocks; blockIndex++ {
		firstUnit := blockIndex * layout.BitsPerBitmapBlock
		err := store.Read(bm.startBlock+easyfs.BlockID(blockIndex), 0, func(data []byte) error {
			for bit := 0; bit < layout.BitsPerBitmapBlock; bit++ {
				if firstUnit+uint32(bit) >= bm.limit {
					break
				}
				if bitmap.Get(data, bit) {
					total++
				}
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
