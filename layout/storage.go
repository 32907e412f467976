// Package layout defines the on-disk structures of the filesystem: the
// superblock, disk inodes, and directory entries, along with the logic for
// mapping a disk inode's logical blocks onto physical ones.
//
// All integers are stored little-endian. Nothing in this package allocates or
// frees blocks; callers hand in freshly allocated blocks and get back the ones
// to free.

package layout

import (
	"encoding/binary"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/blockcache"
)

// Storage pairs a block cache with the device whose blocks it's caching.
type Storage struct {
	Cache  *blockcache.Cache
	Device easyfs.BlockDevice
}

// Read runs `callback` on a cached block, starting at `offset` bytes into it.
func (store Storage) Read(blockID easyfs.BlockID, offset int, callback blockcache.BlockCallback) error {
	return store.Cache.Read(blockID, store.Device, offset, callback)
}

// Modify runs `callback` on a cached block and marks it dirty.
func (store Storage) Modify(blockID easyfs.BlockID, offset int, callback blockcache.BlockCallback) error {
	return store.Cache.Modify(blockID, store.Device, offset, callback)
}

// ZeroBlock fills a block with null bytes.
func (store Storage) ZeroBlock(blockID easyfs.BlockID) error {
	return store.Modify(blockID, 0, func(data []byte) error {
		for i := range data {
			data[i] = 0
		}
		return nil
	})
}

// readIndex reads entry `index` of an index block, i.e. a block that's an
// array of block numbers.
func readIndex(store Storage, indexBlock uint32, index uint32) (uint32, error) {
	var value uint32
	err := store.Read(easyfs.BlockID(indexBlock), 0, func(data []byte) error {
		value = binary.LittleEndian.Uint32(data[index*4:])
		return nil
	})
	return value, err
}

// writeIndex sets entry `index` of an index block.
func writeIndex(store Storage, indexBlock uint32, index uint32, value uint32) error {
	return store.Modify(easyfs.BlockID(indexBlock), 0, func(data []byte) error {
		binary.LittleEndian.PutUint32(data[index*4:], value)
		return nil
	})
}
