package layout

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dargueta/easyfs"
	"github.com/noxer/bytewriter"
)

const (
	// DiskInodeSize is the size of one encoded [DiskInode], in bytes.
	DiskInodeSize = 128
	// InodesPerBlock is the number of disk inodes that fit in one block.
	InodesPerBlock = easyfs.BlockSize / DiskInodeSize

	// DirectCount is the number of block pointers stored in the inode itself.
	DirectCount = 27
	// IndirectCount is the number of block pointers in one index block.
	IndirectCount = easyfs.BlockSize / 4

	// Indirect1Bound is the first logical block index that isn't reachable
	// through the direct pointers or the singly indirect block.
	Indirect1Bound = DirectCount + IndirectCount
	// Indirect2Bound is one past the last logical block index a file can have.
	Indirect2Bound = Indirect1Bound + IndirectCount*IndirectCount

	// MaxFileSize is the largest size a file or directory can grow to, in bytes.
	MaxFileSize = Indirect2Bound * easyfs.BlockSize
)

// InodeType tells whether an inode is a regular file or a directory.
type InodeType uint32

const (
	TypeFile      InodeType = 0
	TypeDirectory InodeType = 1
)

func (t InodeType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	default:
		return fmt.Sprintf("InodeType(%d)", uint32(t))
	}
}

// DiskInode is the on-disk record describing one file or directory.
//
// Logical block i of the content lives in Direct[i] for i < [DirectCount], in
// entry i - DirectCount of the Indirect1 block up to [Indirect1Bound], and past
// that in a second-level block found through the Indirect2 block.
type DiskInode struct {
	Size      uint32
	Direct    [DirectCount]uint32
	Indirect1 uint32
	Indirect2 uint32
	Type      InodeType
	Nlinks    uint32
}

// Initialize resets the inode to an empty one of the given type with one link.
func (inode *DiskInode) Initialize(inodeType InodeType) {
	*inode = DiskInode{Type: inodeType, Nlinks: 1}
}

func (inode *DiskInode) IsDir() bool {
	return inode.Type == TypeDirectory
}

func (inode *DiskInode) IsFile() bool {
	return inode.Type == TypeFile
}

// Encode writes the inode to the beginning of `buffer`, which must be at least
// [DiskInodeSize] bytes.
func (inode *DiskInode) Encode(buffer []byte) error {
	writer := bytewriter.New(buffer)
	return binary.Write(writer, binary.LittleEndian, inode)
}

// DecodeDiskInode reads a disk inode from the beginning of `buffer`.
func DecodeDiskInode(buffer []byte) (DiskInode, error) {
	var inode DiskInode
	err := binary.Read(bytes.NewReader(buffer), binary.LittleEndian, &inode)
	if err != nil {
		return inode, easyfs.ErrFileSystemCorrupted.Wrap(err)
	}
	return inode, nil
}

// ReadDiskInode decodes the inode at (blockID, offset) and passes it to
// `callback`. The block stays locked while the callback runs. Changes the
// callback makes to the inode are discarded.
func ReadDiskInode(
	store Storage,
	blockID easyfs.BlockID,
	offset int,
	callback func(inode *DiskInode) error,
) error {
	return store.Read(blockID, offset, func(data []byte) error {
		inode, err := DecodeDiskInode(data)
		if err != nil {
			return err
		}
		return callback(&inode)
	})
}

// ModifyDiskInode is like [ReadDiskInode] but writes the inode back afterwards,
// even if the callback fails. A failing callback may have already changed index
// blocks the inode points to, so the record has to stay in step with them.
func ModifyDiskInode(
	store Storage,
	blockID easyfs.BlockID,
	offset int,
	callback func(inode *DiskInode) error,
) error {
	return store.Modify(blockID, offset, func(data []byte) error {
		inode, err := DecodeDiskInode(data)
		if err != nil {
			return err
		}

		callbackErr := callback(&inode)
		encodeErr := inode.Encode(data)
		if callbackErr != nil {
			return callbackErr
		}
		return encodeErr
	})
}

// -----------------------------------------------------------------------------
// Sizing

// DataBlocks gives the number of data blocks needed to hold `size` bytes.
func DataBlocks(size uint32) uint32 {
	return uint32((uint64(size) + easyfs.BlockSize - 1) / easyfs.BlockSize)
}

// TotalBlocks gives the number of blocks a file of `size` bytes occupies,
// including index blocks.
func TotalBlocks(size uint32) uint32 {
	dataBlocks := DataBlocks(size)
	total := dataBlocks

	if dataBlocks > DirectCount {
		total++
	}
	if dataBlocks > Indirect1Bound {
		// The doubly indirect block itself, plus one second-level block per
		// IndirectCount data blocks past the bound.
		total += 1 + (dataBlocks-Indirect1Bound+IndirectCount-1)/IndirectCount
	}
	return total
}

// DataBlocks gives the number of data blocks the inode currently uses.
func (inode *DiskInode) DataBlocks() uint32 {
	return DataBlocks(inode.Size)
}

// BlocksNumNeeded gives the number of blocks that must be allocated to grow the
// inode to `newSize` bytes. `newSize` must not be smaller than the current size.
func (inode *DiskInode) BlocksNumNeeded(newSize uint32) uint32 {
	if newSize < inode.Size {
		panic(fmt.Sprintf("can't grow inode from %d bytes to %d", inode.Size, newSize))
	}
	return TotalBlocks(newSize) - TotalBlocks(inode.Size)
}

// BlockID maps a logical block index to the physical block holding it.
func (inode *DiskInode) BlockID(innerID uint32, store Storage) (easyfs.BlockID, error) {
	if innerID < DirectCount {
		return easyfs.BlockID(inode.Direct[innerID]), nil
	}
	if innerID < Indirect1Bound {
		blockID, err := readIndex(store, inode.Indirect1, innerID-DirectCount)
		return easyfs.BlockID(blockID), err
	}
	if innerID >= Indirect2Bound {
		panic(fmt.Sprintf("logical block %d is past the maximum of %d", innerID, Indirect2Bound))
	}

	last := innerID - Indirect1Bound
	secondLevel, err := readIndex(store, inode.Indirect2, last/IndirectCount)
	if err != nil {
		return 0, err
	}
	blockID, err := readIndex(store, secondLevel, last%IndirectCount)
	return easyfs.BlockID(blockID), err
}

// IncreaseSize grows the inode to `newSize` bytes, wiring in `newBlocks` as data
// and index blocks as needed. `newBlocks` must contain exactly
// BlocksNumNeeded(newSize) blocks, in the order they're to be used.
//
// The new blocks are expected to be zeroed; nothing here clears them.
func (inode *DiskInode) IncreaseSize(
	newSize uint32,
	newBlocks []easyfs.BlockID,
	store Storage,
) error {
	needed := inode.BlocksNumNeeded(newSize)
	if uint32(len(newBlocks)) != needed {
		panic(
			fmt.Sprintf(
				"growing inode from %d to %d bytes needs %d blocks, got %d",
				inode.Size,
				newSize,
				needed,
				len(newBlocks),
			),
		)
	}

	nextIndex := 0
	takeBlock := func() uint32 {
		blockID := newBlocks[nextIndex]
		nextIndex++
		return uint32(blockID)
	}

	currentBlocks := inode.DataBlocks()
	inode.Size = newSize
	totalBlocks := inode.DataBlocks()

	// Fill the direct pointers.
	for currentBlocks < totalBlocks && currentBlocks < DirectCount {
		inode.Direct[currentBlocks] = takeBlock()
		currentBlocks++
	}
	if totalBlocks <= DirectCount {
		return nil
	}

	// Singly indirect. If we're just now crossing into it, the first block goes
	// to the index block itself.
	if currentBlocks == DirectCount {
		inode.Indirect1 = takeBlock()
	}
	currentBlocks -= DirectCount
	totalBlocks -= DirectCount

	for currentBlocks < totalBlocks && currentBlocks < IndirectCount {
		err := writeIndex(store, inode.Indirect1, currentBlocks, takeBlock())
		if err != nil {
			return err
		}
		currentBlocks++
	}
	if totalBlocks <= IndirectCount {
		return nil
	}

	// Doubly indirect.
	if currentBlocks == IndirectCount {
		inode.Indirect2 = takeBlock()
	}
	currentBlocks -= IndirectCount
	totalBlocks -= IndirectCount

	for ; currentBlocks < totalBlocks; currentBlocks++ {
		outer := currentBlocks / IndirectCount
		inner := currentBlocks % IndirectCount

		// First entry of a second-level block: allocate the block itself.
		if inner == 0 {
			err := writeIndex(store, inode.Indirect2, outer, takeBlock())
			if err != nil {
				return err
			}
		}

		secondLevel, err := readIndex(store, inode.Indirect2, outer)
		if err != nil {
			return err
		}
		err = writeIndex(store, secondLevel, inner, takeBlock())
		if err != nil {
			return err
		}
	}
	return nil
}

// DecreaseSize shrinks the inode to `newSize` bytes, detaching every data and
// index block no longer needed. The detached blocks are returned so the caller
// can free them; there are exactly TotalBlocks(old) - TotalBlocks(newSize) of
// them. Detached pointers are zeroed.
//
// Growing is not allowed here. If `newSize` is at least the current size,
// nothing happens.
func (inode *DiskInode) DecreaseSize(newSize uint32, store Storage) ([]easyfs.BlockID, error) {
	if newSize >= inode.Size {
		return nil, nil
	}

	currentBlocks := inode.DataBlocks()
	targetBlocks := DataBlocks(newSize)
	freed := make(
		[]easyfs.BlockID, 0, TotalBlocks(inode.Size)-TotalBlocks(newSize),
	)

	// Direct pointers.
	for i := targetBlocks; i < currentBlocks && i < DirectCount; i++ {
		freed = append(freed, easyfs.BlockID(inode.Direct[i]))
		inode.Direct[i] = 0
	}

	// Singly indirect.
	if currentBlocks > DirectCount {
		start := saturatingSub(targetBlocks, DirectCount)
		end := minUint32(currentBlocks, Indirect1Bound) - DirectCount

		if start < end {
			err := store.Modify(easyfs.BlockID(inode.Indirect1), 0, func(data []byte) error {
				for i := start; i < end; i++ {
					freed = append(freed, easyfs.BlockID(binary.LittleEndian.Uint32(data[i*4:])))
					binary.LittleEndian.PutUint32(data[i*4:], 0)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}

		if targetBlocks <= DirectCount {
			freed = append(freed, easyfs.BlockID(inode.Indirect1))
			inode.Indirect1 = 0
		}
	}

	// Doubly indirect.
	if currentBlocks > Indirect1Bound {
		current := currentBlocks - Indirect1Bound
		target := saturatingSub(targetBlocks, Indirect1Bound)
		firstOuter := target / IndirectCount
		lastOuter := (current - 1) / IndirectCount

		for outer := firstOuter; outer <= lastOuter; outer++ {
			start := uint32(0)
			if outer == firstOuter {
				start = target % IndirectCount
			}
			end := uint32(IndirectCount)
			if outer == lastOuter {
				end = (current-1)%IndirectCount + 1
			}

			secondLevel, err := readIndex(store, inode.Indirect2, outer)
			if err != nil {
				return nil, err
			}

			err = store.Modify(easyfs.BlockID(secondLevel), 0, func(data []byte) error {
				for i := start; i < end; i++ {
					freed = append(freed, easyfs.BlockID(binary.LittleEndian.Uint32(data[i*4:])))
					binary.LittleEndian.PutUint32(data[i*4:], 0)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}

			// Nothing left in this second-level block, so it goes too.
			if start == 0 {
				freed = append(freed, easyfs.BlockID(secondLevel))
				err = writeIndex(store, inode.Indirect2, outer, 0)
				if err != nil {
					return nil, err
				}
			}
		}

		if target == 0 {
			freed = append(freed, easyfs.BlockID(inode.Indirect2))
			inode.Indirect2 = 0
		}
	}

	inode.Size = newSize
	return freed, nil
}

// ClearSize shrinks the inode to zero bytes and returns every block it used.
func (inode *DiskInode) ClearSize(store Storage) ([]easyfs.BlockID, error) {
	return inode.DecreaseSize(0, store)
}

// -----------------------------------------------------------------------------
// Content I/O

// ReadAt copies the inode's content starting at byte `offset` into `buffer`,
// stopping at the end of the file. It returns the number of bytes copied, which
// is 0 if `offset` is at or past the end.
func (inode *DiskInode) ReadAt(offset int, buffer []byte, store Storage) (int, error) {
	return inode.transfer(offset, buffer, store, false)
}

// WriteAt copies `buffer` into the inode's content starting at byte `offset`.
// It never grows the inode; the caller must make room first with
// [DiskInode.IncreaseSize]. Bytes that would land past the end are dropped.
func (inode *DiskInode) WriteAt(offset int, buffer []byte, store Storage) (int, error) {
	if offset > int(inode.Size) {
		panic(fmt.Sprintf("write at offset %d starts past end of inode (%d bytes)", offset, inode.Size))
	}
	return inode.transfer(offset, buffer, store, true)
}

// transfer implements ReadAt and WriteAt, which differ only by the direction of
// the copy.
func (inode *DiskInode) transfer(offset int, buffer []byte, store Storage, write bool) (int, error) {
	start := offset
	end := offset + len(buffer)
	if end > int(inode.Size) {
		end = int(inode.Size)
	}
	if start >= end {
		return 0, nil
	}

	blockIndex := uint32(start / easyfs.BlockSize)
	transferred := 0

	for {
		endOfCurrentBlock := (start/easyfs.BlockSize + 1) * easyfs.BlockSize
		if endOfCurrentBlock > end {
			endOfCurrentBlock = end
		}
		chunkSize := endOfCurrentBlock - start
		blockOffset := start % easyfs.BlockSize
		chunk := buffer[transferred : transferred+chunkSize]

		blockID, err := inode.BlockID(blockIndex, store)
		if err != nil {
			return transferred, err
		}

		if write {
			err = store.Modify(blockID, 0, func(data []byte) error {
				copy(data[blockOffset:blockOffset+chunkSize], chunk)
				return nil
			})
		} else {
			err = store.Read(blockID, 0, func(data []byte) error {
				copy(chunk, data[blockOffset:blockOffset+chunkSize])
				return nil
			})
		}
		if err != nil {
			return transferred, err
		}

		transferred += chunkSize
		if endOfCurrentBlock == end {
			return transferred, nil
		}
		blockIndex++
		start = endOfCurrentBlock
	}
}

func saturatingSub(a, b uint32) uint32 {
	if a < b {
		return 0
	}
	return a - b
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
