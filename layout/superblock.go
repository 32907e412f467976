package layout

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dargueta/easyfs"
	"github.com/noxer/bytewriter"
)

// Magic identifies a formatted image. It's the first four bytes of block 0.
const Magic uint32 = 0x3b800001

// SuperBlockSize is the number of bytes the superblock occupies at the start of
// block 0. The rest of the block is unused.
const SuperBlockSize = 24

// BitsPerBitmapBlock is the number of allocation bits one bitmap block holds.
const BitsPerBitmapBlock = easyfs.BlockSize * 8

// SuperBlock describes the geometry of the filesystem. The image is laid out as
// the superblock, the inode bitmap, the inode area, the data bitmap, and then
// the data area, in that order with no gaps.
type SuperBlock struct {
	Magic             uint32
	TotalBlocks       uint32
	InodeBitmapBlocks uint32
	InodeAreaBlocks   uint32
	DataBitmapBlocks  uint32
	DataAreaBlocks    uint32
}

// NewGeometry computes the layout of a filesystem of `totalBlocks` blocks with
// `inodeBitmapBlocks` blocks of inode bitmap. Every bit in the inode bitmap gets
// an inode slot, and the data bitmap is sized to cover what's left.
func NewGeometry(totalBlocks, inodeBitmapBlocks uint32) (SuperBlock, error) {
	if inodeBitmapBlocks == 0 {
		return SuperBlock{}, easyfs.ErrInvalidArgument.WithMessage(
			"inode bitmap must be at least one block",
		)
	}

	inodeCount := uint64(inodeBitmapBlocks) * BitsPerBitmapBlock
	// Inode IDs are 32 bits wide.
	if inodeCount > math.MaxUint32 {
		return SuperBlock{}, easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"%d inode bitmap blocks would give %d inodes, more than the maximum of %d",
				inodeBitmapBlocks,
				inodeCount,
				uint64(math.MaxUint32),
			),
		)
	}
	inodeAreaBlocks := (inodeCount*DiskInodeSize + easyfs.BlockSize - 1) / easyfs.BlockSize
	reservedBlocks := 1 + uint64(inodeBitmapBlocks) + inodeAreaBlocks

	// We need at least one block for the data bitmap plus one for data, or the
	// root directory can never hold an entry.
	if uint64(totalBlocks) < reservedBlocks+2 {
		return SuperBlock{}, easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"%d blocks is too small: %d inode bitmap blocks need at least %d",
				totalBlocks,
				inodeBitmapBlocks,
				reservedBlocks+2,
			),
		)
	}

	dataTotalBlocks := uint32(uint64(totalBlocks) - reservedBlocks)
	dataBitmapBlocks := (dataTotalBlocks + BitsPerBitmapBlock) / (BitsPerBitmapBlock + 1)

	return SuperBlock{
		Magic:             Magic,
		TotalBlocks:       totalBlocks,
		InodeBitmapBlocks: inodeBitmapBlocks,
		InodeAreaBlocks:   uint32(inodeAreaBlocks),
		DataBitmapBlocks:  dataBitmapBlocks,
		DataAreaBlocks:    dataTotalBlocks - dataBitmapBlocks,
	}, nil
}

// IsValid returns true if the magic number is correct.
func (sb *SuperBlock) IsValid() bool {
	return sb.Magic == Magic
}

// Validate checks that the superblock is for this filesystem and that its
// regions add up. It doesn't check it against the size of any device.
func (sb *SuperBlock) Validate() error {
	if !sb.IsValid() {
		return easyfs.ErrInvalidFileSystem.WithMessage(
			fmt.Sprintf("bad magic number: expected %#08x, got %#08x", Magic, sb.Magic),
		)
	}

	regionTotal := uint64(1) +
		uint64(sb.InodeBitmapBlocks) +
		uint64(sb.InodeAreaBlocks) +
		uint64(sb.DataBitmapBlocks) +
		uint64(sb.DataAreaBlocks)
	if regionTotal != uint64(sb.TotalBlocks) {
		return easyfs.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"regions add up to %d blocks but the superblock says %d",
				regionTotal,
				sb.TotalBlocks,
			),
		)
	}
	if sb.InodeBitmapBlocks == 0 || sb.DataBitmapBlocks == 0 {
		return easyfs.ErrFileSystemCorrupted.WithMessage("bitmaps can't be empty")
	}
	return nil
}

// InodeCount gives the number of inode slots.
func (sb *SuperBlock) InodeCount() uint32 {
	return sb.InodeBitmapBlocks * BitsPerBitmapBlock
}

func (sb *SuperBlock) InodeBitmapStart() easyfs.BlockID {
	return 1
}

func (sb *SuperBlock) InodeAreaStart() easyfs.BlockID {
	return easyfs.BlockID(1 + sb.InodeBitmapBlocks)
}

func (sb *SuperBlock) DataBitmapStart() easyfs.BlockID {
	return sb.InodeAreaStart() + easyfs.BlockID(sb.InodeAreaBlocks)
}

func (sb *SuperBlock) DataAreaStart() easyfs.BlockID {
	return sb.DataBitmapStart() + easyfs.BlockID(sb.DataBitmapBlocks)
}

// Encode writes the superblock to the beginning of `buffer`.
func (sb *SuperBlock) Encode(buffer []byte) error {
	writer := bytewriter.New(buffer)
	return binary.Write(writer, binary.LittleEndian, sb)
}

// DecodeSuperBlock reads a superblock from the beginning of `buffer`. It doesn't
// validate it.
func DecodeSuperBlock(buffer []byte) (SuperBlock, error) {
	var sb SuperBlock
	err := binary.Read(bytes.NewReader(buffer), binary.LittleEndian, &sb)
	if err != nil {
		return sb, easyfs.ErrFileSystemCorrupted.Wrap(err)
	}
	return sb, nil
}
