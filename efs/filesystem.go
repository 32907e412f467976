// Package efs implements the filesystem allocator: formatting and mounting an
// image, and handing out inode slots and data blocks from the on-disk bitmaps.
//
// All allocator state sits behind a single lock, taken with
// [FileSystem.WithLock]. Anything that changes the layout of the filesystem
// must happen inside that callback.

package efs

import (
	"fmt"
	"io"
	"sync"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/layout"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// FileSystem is one mounted filesystem. It's safe for concurrent use.
type FileSystem struct {
	mutex     sync.Mutex
	allocator Allocator
}

// Allocator is the allocator state of a filesystem. It can only be reached
// through [FileSystem.WithLock], so holding one means holding the lock.
type Allocator struct {
	store       layout.Storage
	superBlock  layout.SuperBlock
	inodeBitmap Bitmap
	dataBitmap  Bitmap
	logger      logrus.FieldLogger
	// openRefs counts the open files on each inode. Inodes with no open files
	// aren't in the map.
	openRefs map[easyfs.InodeID]int
}

// Stat gives usage information about a filesystem.
type Stat struct {
	BlockSize      int
	TotalBlocks    uint32
	TotalInodes    uint32
	FreeInodes     uint32
	DataBlocks     uint32
	FreeDataBlocks uint32
}

// Create formats `device` as a new filesystem of `totalBlocks` blocks and
// mounts it. Every block is zeroed, and the root directory is created as inode
// 0 with no entries.
func Create(
	device easyfs.BlockDevice,
	totalBlocks uint32,
	inodeBitmapBlocks uint32,
	options ...Option,
) (*FileSystem, error) {
	if sized, ok := device.(easyfs.SizedBlockDevice); ok && sized.TotalBlocks() < totalBlocks {
		return nil, easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"can't make a %d-block filesystem on a %d-block device",
				totalBlocks,
				sized.TotalBlocks(),
			),
		)
	}

	sb, err := layout.NewGeometry(totalBlocks, inodeBitmapBlocks)
	if err != nil {
		return nil, err
	}

	opts, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	fs := newFileSystem(device, sb, opts)
	alloc := &fs.allocator

	for blockID := easyfs.BlockID(0); blockID < easyfs.BlockID(totalBlocks); blockID++ {
		err = alloc.store.ZeroBlock(blockID)
		if err != nil {
			return nil, fmt.Errorf("zeroing block %d: %w", blockID, err)
		}
	}

	err = alloc.store.Modify(0, 0, sb.Encode)
	if err != nil {
		return nil, fmt.Errorf("writing superblock: %w", err)
	}

	rootID, err := alloc.AllocInode()
	if err != nil {
		return nil, err
	}
	if rootID != easyfs.RootInodeID {
		return nil, easyfs.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("root directory got inode %d on a fresh filesystem", rootID),
		)
	}

	rootBlock, rootOffset := alloc.DiskInodePos(rootID)
	err = layout.ModifyDiskInode(
		alloc.store,
		rootBlock,
		rootOffset,
		func(inode *layout.DiskInode) error {
			inode.Initialize(layout.TypeDirectory)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	err = alloc.SyncAll()
	if err != nil {
		return nil, err
	}

	alloc.logger.WithFields(logrus.Fields{
		"inodes":          sb.InodeCount(),
		"inodeAreaBlocks": sb.InodeAreaBlocks,
		"dataBlocks":      sb.DataAreaBlocks,
		"dataAreaStart":   sb.DataAreaStart(),
	}).Infof("formatted %d blocks", sb.TotalBlocks)
	return fs, nil
}

// Open mounts an existing filesystem. It fails with [easyfs.ErrInvalidFileSystem]
// if the device doesn't hold one.
func Open(device easyfs.BlockDevice, options ...Option) (*FileSystem, error) {
	opts, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	var sb layout.SuperBlock
	err = opts.cache.Read(0, device, 0, func(data []byte) error {
		var decodeErr error
		sb, decodeErr = layout.DecodeSuperBlock(data)
		return decodeErr
	})
	if err != nil {
		return nil, err
	}

	err = sb.Validate()
	if err != nil {
		return nil, err
	}

	if sized, ok := device.(easyfs.SizedBlockDevice); ok && sized.TotalBlocks() < sb.TotalBlocks {
		return nil, easyfs.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"filesystem claims %d blocks but the device only has %d",
				sb.TotalBlocks,
				sized.TotalBlocks(),
			),
		)
	}

	fs := newFileSystem(device, sb, opts)
	fs.allocator.logger.WithFields(logrus.Fields{
		"inodes":     sb.InodeCount(),
		"dataBlocks": sb.DataAreaBlocks,
	}).Infof("mounted %d blocks", sb.TotalBlocks)
	return fs, nil
}

func newFileSystem(device easyfs.BlockDevice, sb layout.SuperBlock, opts settings) *FileSystem {
	return &FileSystem{
		allocator: Allocator{
			store:      layout.Storage{Cache: opts.cache, Device: device},
			superBlock: sb,
			inodeBitmap: NewBitmap(
				sb.InodeBitmapStart(), sb.InodeBitmapBlocks, sb.InodeCount(),
			),
			dataBitmap: NewBitmap(
				sb.DataBitmapStart(), sb.DataBitmapBlocks, sb.DataAreaBlocks,
			),
			logger:   opts.logger,
			openRefs: make(map[easyfs.InodeID]int),
		},
	}
}

// WithLock runs `callback` while holding the filesystem lock, and returns
// whatever it returns. The allocator must not be retained past the callback.
//
// The lock isn't reentrant; calling WithLock again from inside the callback
// deadlocks.
func (fs *FileSystem) WithLock(callback func(alloc *Allocator) error) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	return callback(&fs.allocator)
}

// SuperBlock returns a copy of the filesystem's superblock. It never changes
// after formatting, so this doesn't need the lock.
func (fs *FileSystem) SuperBlock() layout.SuperBlock {
	return fs.allocator.superBlock
}

// Stat counts free inodes and data blocks.
func (fs *FileSystem) Stat() (Stat, error) {
	var stat Stat
	err := fs.WithLock(func(alloc *Allocator) error {
		usedInodes, err := alloc.inodeBitmap.CountSet(alloc.store)
		if err != nil {
			return err
		}
		usedData, err := alloc.dataBitmap.CountSet(alloc.store)
		if err != nil {
			return err
		}

		stat = Stat{
			BlockSize:      easyfs.BlockSize,
			TotalBlocks:    alloc.superBlock.TotalBlocks,
			TotalInodes:    alloc.inodeBitmap.Maximum(),
			FreeInodes:     alloc.inodeBitmap.Maximum() - usedInodes,
			DataBlocks:     alloc.dataBitmap.Maximum(),
			FreeDataBlocks: alloc.dataBitmap.Maximum() - usedData,
		}
		return nil
	})
	return stat, err
}

// Sync writes every dirty cached block to the device, then asks the device to
// flush its own buffers if it has any.
func (fs *FileSystem) Sync() error {
	return fs.WithLock(func(alloc *Allocator) error {
		err := alloc.SyncAll()
		if err != nil {
			return err
		}
		if syncer, ok := alloc.store.Device.(easyfs.Syncer); ok {
			return syncer.Sync()
		}
		return nil
	})
}

// Close syncs the filesystem and closes the device if it can be closed. The
// filesystem must not be used afterwards.
func (fs *FileSystem) Close() error {
	var result *multierror.Error

	err := fs.Sync()
	if err != nil {
		result = multierror.Append(result, err)
	}

	if closer, ok := fs.allocator.store.Device.(io.Closer); ok {
		err = closer.Close()
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// -----------------------------------------------------------------------------

// Storage returns the cache and device the filesystem lives on.
func (alloc *Allocator) Storage() layout.Storage {
	return alloc.store
}

func (alloc *Allocator) Logger() logrus.FieldLogger {
	return alloc.logger
}

func (alloc *Allocator) SuperBlock() layout.SuperBlock {
	return alloc.superBlock
}

// SyncAll writes every dirty cached block to the device.
func (alloc *Allocator) SyncAll() error {
	return alloc.store.Cache.SyncAll()
}

// AllocInode reserves a free inode slot. The slot's contents are left as they
// are; the caller must initialize it.
func (alloc *Allocator) AllocInode() (easyfs.InodeID, error) {
	unit, err := alloc.inodeBitmap.Alloc(alloc.store)
	if err != nil {
		alloc.logger.WithError(err).Warn("out of inodes")
		return 0, err
	}
	return easyfs.InodeID(unit), nil
}

// DeallocInode zeroes an inode's record and returns its slot to the free pool.
// The inode must not own any blocks anymore.
func (alloc *Allocator) DeallocInode(inodeID easyfs.InodeID) error {
	if uint32(inodeID) >= alloc.inodeBitmap.Maximum() {
		return easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("inode %d not in range [0, %d)", inodeID, alloc.inodeBitmap.Maximum()),
		)
	}

	blockID, offset := alloc.DiskInodePos(inodeID)
	err := layout.ModifyDiskInode(alloc.store, blockID, offset, func(inode *layout.DiskInode) error {
		*inode = layout.DiskInode{}
		return nil
	})
	if err != nil {
		return err
	}
	return alloc.inodeBitmap.Dealloc(alloc.store, uint32(inodeID))
}

// AddOpenRef records a newly opened file on `inodeID`.
func (alloc *Allocator) AddOpenRef(inodeID easyfs.InodeID) {
	alloc.openRefs[inodeID]++
}

// DropOpenRef records that a file on `inodeID` was closed, and returns how many
// remain open. Dropping a reference that was never added panics.
func (alloc *Allocator) DropOpenRef(inodeID easyfs.InodeID) int {
	count, ok := alloc.openRefs[inodeID]
	if !ok {
		panic(fmt.Sprintf("inode %d has no open files to close", inodeID))
	}

	count--
	if count == 0 {
		delete(alloc.openRefs, inodeID)
	} else {
		alloc.openRefs[inodeID] = count
	}
	return count
}

// OpenRefs returns the number of open files on `inodeID`.
func (alloc *Allocator) OpenRefs(inodeID easyfs.InodeID) int {
	return alloc.openRefs[inodeID]
}

// AllocData reserves a free data block and returns its block number. The block
// is already zeroed, since blocks are cleared when formatting and when freed.
func (alloc *Allocator) AllocData() (easyfs.BlockID, error) {
	unit, err := alloc.dataBitmap.Alloc(alloc.store)
	if err != nil {
		alloc.logger.WithError(err).Warn("out of data blocks")
		return 0, err
	}
	return alloc.superBlock.DataAreaStart() + easyfs.BlockID(unit), nil
}

// AllocDataBlocks reserves `count` data blocks. It's all or nothing: if there
// aren't enough, any blocks already taken are given back before failing.
func (alloc *Allocator) AllocDataBlocks(count uint32) ([]easyfs.BlockID, error) {
	blocks := make([]easyfs.BlockID, 0, count)
	for i := uint32(0); i < count; i++ {
		blockID, err := alloc.AllocData()
		if err != nil {
			rollbackErr := alloc.DeallocDataBlocks(blocks)
			if rollbackErr != nil {
				return nil, multierror.Append(err, rollbackErr)
			}
			return nil, err
		}
		blocks = append(blocks, blockID)
	}
	return blocks, nil
}

// DeallocData zeroes a data block and returns it to the free pool. Freeing a
// block twice is not detected.
func (alloc *Allocator) DeallocData(blockID easyfs.BlockID) error {
	dataStart := alloc.superBlock.DataAreaStart()
	dataEnd := dataStart + easyfs.BlockID(alloc.superBlock.DataAreaBlocks)
	if blockID < dataStart || blockID >= dataEnd {
		return easyfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("block %d is outside the data area [%d, %d)", blockID, dataStart, dataEnd),
		)
	}

	err := alloc.store.ZeroBlock(blockID)
	if err != nil {
		return err
	}
	return alloc.dataBitmap.Dealloc(alloc.store, uint32(blockID-dataStart))
}

// DeallocDataBlocks frees every block in `blocks`, continuing past failures.
func (alloc *Allocator) DeallocDataBlocks(blocks []easyfs.BlockID) error {
	var result *multierror.Error
	for _, blockID := range blocks {
		err := alloc.DeallocData(blockID)
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// DiskInodePos returns the block holding an inode's record and the record's
// byte offset within that block.
func (alloc *Allocator) DiskInodePos(inodeID easyfs.InodeID) (easyfs.BlockID, int) {
	blockID := alloc.superBlock.InodeAreaStart() + easyfs.BlockID(inodeID/layout.InodesPerBlock)
	offset := int(inodeID%layout.InodesPerBlock) * layout.DiskInodeSize
	return blockID, offset
}

// DiskInodeID is the inverse of [Allocator.DiskInodePos].
func (alloc *Allocator) DiskInodeID(blockID easyfs.BlockID, offset int) easyfs.InodeID {
	blockIndex := uint32(blockID - alloc.superBlock.InodeAreaStart())
	return easyfs.InodeID(blockIndex*layout.InodesPerBlock + uint32(offset/layout.DiskInodeSize))
}
